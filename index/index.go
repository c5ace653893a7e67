// Package index provides an exact in-process nearest-neighbor index over
// fact embeddings. It is derived state: the full index can be rebuilt at any
// time from the embeddings persisted in storage.
package index

import (
	"errors"
	"math"
	"sort"
	"sync"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Match is a single query hit.
type Match struct {
	ID    int64
	Score float64
}

type entry struct {
	vec  []float32
	norm float64
}

// Index is an exact cosine-similarity index. It is safe for concurrent use;
// queries never block each other. The scan is linear, which keeps top-1
// recall exact for the duplicate check and is fine at knowledge-base scale.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[int64]entry
}

func New() *Index {
	return &Index{
		entries: make(map[int64]entry),
	}
}

// Upsert inserts or replaces the vector for id. The first vector fixes the
// index dimension; later vectors must match it. Idempotent.
func (x *Index) Upsert(id int64, vec []float32) error {
	if len(vec) == 0 {
		return ErrDimensionMismatch
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dimension == 0 {
		x.dimension = len(vec)
	} else if len(vec) != x.dimension {
		return ErrDimensionMismatch
	}

	cp := make([]float32, len(vec))
	copy(cp, vec)
	x.entries[id] = entry{vec: cp, norm: norm(cp)}
	return nil
}

// Remove deletes the vector for id; removing an absent id is a no-op.
func (x *Index) Remove(id int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, id)
}

// Query returns up to k matches ordered best-first by cosine similarity.
// Equal scores break toward the lower id so results are deterministic.
func (x *Index) Query(vec []float32, k int) []Match {
	if k <= 0 {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.entries) == 0 || len(vec) != x.dimension {
		return nil
	}

	qn := norm(vec)
	matches := make([]Match, 0, len(x.entries))
	for id, e := range x.entries {
		matches = append(matches, Match{ID: id, Score: cosine(vec, qn, e)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Len reports the number of indexed vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

func norm(v []float32) float64 {
	var n float64
	for _, f := range v {
		n += float64(f) * float64(f)
	}
	return math.Sqrt(n)
}

func cosine(q []float32, qn float64, e entry) float64 {
	if qn == 0 || e.norm == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(e.vec[i])
	}
	return dot / (qn * e.norm)
}
