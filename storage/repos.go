package storage

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"time"
)

// ErrNotFound is returned by repos when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Repos is implemented by every driver and exposes the three record sets.
type Repos interface {
	Fact() FactRepo
	Alias() AliasRepo
	Config() ConfigRepo
}

// FactRecord is one persisted knowledge unit. Vote and flag counters are
// named columns so increments can be single atomic statements.
type FactRecord struct {
	ID         int64
	UUID       string
	Topic      string
	Content    string
	Embedding  []float32
	Upvotes    int64
	Downvotes  int64
	FlagCount  int64
	Visibility string
	CreatedAt  time.Time
}

// VoteCounts is the counter pair returned after a vote increment.
type VoteCounts struct {
	Upvotes   int64
	Downvotes int64
}

type FactRepo interface {
	// Create persists a new fact and returns its monotonically assigned id.
	Create(topic, content string, embedding []float32, visibility string) (int64, error)
	Get(id int64) (FactRecord, error)
	// Replace swaps topic, content and embedding while preserving the vote
	// and flag counters. Embeddings are never mutated in place elsewhere.
	Replace(id int64, topic, content string, embedding []float32) error
	Delete(id int64) error
	// AddVote atomically increments one counter and returns both.
	AddVote(id int64, up bool) (VoteCounts, error)
	// IncrementFlag atomically bumps the flag counter and returns the new value.
	IncrementFlag(id int64) (int64, error)
	ResetFlags(id int64) error
	// Each streams every stored (id, embedding) pair in id order, for
	// rebuilding the similarity index.
	Each(fn func(id int64, embedding []float32) error) error
	// ListTopics returns up to limit topics matching the substring, most
	// recent first. An empty match lists recent topics.
	ListTopics(match string, limit int) ([]string, error)
}

type AliasRepo interface {
	Upsert(trigger, replacement string) error
	Delete(trigger string) error
	All() (map[string]string, error)
}

type ConfigRepo interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	All() (map[string]string, error)
}

// encodeEmbedding serializes []float32 into []byte (little-endian).
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// decodeEmbedding converts little-endian []byte back to []float32.
func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := 0; i < len(out); i++ {
		u := binary.LittleEndian.Uint32(b[i*4:])
		out[i] = math.Float32frombits(u)
	}
	return out
}

func decodeAnyTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return parseTimeString(x)
	case []byte:
		return parseTimeString(string(x))
	default:
		return time.Time{}, false
	}
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Common layouts:
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05", // SQLite datetime('now')
		"2006-01-02 15:04:05.999999999",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
