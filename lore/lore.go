// Package lore is the retrieval-and-curation core of a knowledge-base
// assistant: embedding-backed similarity search, duplicate suppression on
// ingestion, confidence-threshold routing between answer and escalation, and
// the feedback loop over stored-fact quality counters.
//
// The package is a library with no threads of its own; it is invoked by
// request handlers and is safe for concurrent use.
package lore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"lorekeep/embed"
	"lorekeep/index"
	"lorekeep/storage"
)

// Visibility controls how a fact may be presented by callers. Sensitive
// facts are still retrievable; presentation is the caller's decision.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilitySensitive Visibility = "sensitive"
)

type Lore struct {
	Config   *ConfigCache
	Storage  *storage.Manager
	Embedder embed.Embedder

	// idx is swapped wholesale on rebuild; readers load it lock-free.
	idx atomic.Pointer[index.Index]

	logger  *slog.Logger
	alerts  AlertSink
	aliases *aliasCache

	// ingestMu serializes the duplicate-check-then-insert sequence, the
	// store/index write pair, and index swaps, so no two ingestions proceed
	// past the duplicate check simultaneously.
	ingestMu sync.Mutex
}

type Option func(*Lore)

func New(opts ...Option) *Lore {
	l := &Lore{}
	l.idx.Store(index.New())

	for _, opt := range opts {
		opt(l)
	}

	// Defaults
	if l.Storage == nil {
		l.Storage = storage.NewManager()
	}
	if l.Embedder == nil {
		l.Embedder = embed.NewHashEmbedder()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}

	l.Config = newConfigCache(func(key string) (string, error) {
		repos, err := l.repos()
		if err != nil {
			return "", err
		}
		return repos.Config().Get(key)
	})
	l.aliases = newAliasCache(func() (map[string]string, error) {
		repos, err := l.repos()
		if err != nil {
			return nil, err
		}
		return repos.Alias().All()
	})

	return l
}

func WithStorageConn(conn any) Option {
	return func(l *Lore) {
		l.Storage = storage.NewManager()
		_ = l.Storage.Start(conn)
	}
}

func WithEmbedder(e embed.Embedder) Option {
	return func(l *Lore) {
		l.Embedder = e
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Lore) {
		l.logger = logger
	}
}

// WithAlertSink installs the collaborator notified exactly once per flag
// threshold crossing.
func WithAlertSink(sink AlertSink) Option {
	return func(l *Lore) {
		l.alerts = sink
	}
}

// Build runs storage migrations and rebuilds the similarity index from the
// persisted embeddings. Call it once before serving traffic.
func (l *Lore) Build() error {
	if err := l.Storage.Build(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return l.RebuildIndex()
}

// Index returns the current similarity index. Rebuilds swap the whole
// index, so hold the returned value when making several related calls.
func (l *Lore) Index() *index.Index {
	return l.idx.Load()
}

// RebuildIndex reconstructs the similarity index by re-upserting every
// stored embedding. The index is derived state; this is the recovery path
// after a restart. Retrievals keep running against the old index until the
// swap.
func (l *Lore) RebuildIndex() error {
	repos, err := l.repos()
	if err != nil {
		return err
	}

	l.ingestMu.Lock()
	defer l.ingestMu.Unlock()

	fresh := index.New()
	err = repos.Fact().Each(func(id int64, embedding []float32) error {
		if len(embedding) == 0 {
			return nil
		}
		return fresh.Upsert(id, embedding)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	l.idx.Store(fresh)

	l.logger.Debug("similarity index rebuilt", "facts", fresh.Len())
	return nil
}

// Reembed regenerates every stored embedding with the current embedder and
// swaps in an index built from the fresh vectors. Run it after changing
// embedding providers or models: vectors from different embedders are not
// comparable, so the stored ones are useless to the new one. The pass is
// not atomic; if it fails midway, rerunning it completes the job. Returns
// the number of facts re-embedded.
func (l *Lore) Reembed(ctx context.Context) (int, error) {
	repos, err := l.repos()
	if err != nil {
		return 0, err
	}

	l.ingestMu.Lock()
	defer l.ingestMu.Unlock()

	var ids []int64
	err = repos.Fact().Each(func(id int64, _ []float32) error {
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	fresh := index.New()
	if len(ids) == 0 {
		l.idx.Store(fresh)
		return 0, nil
	}

	records := make([]storage.FactRecord, 0, len(ids))
	contents := make([]string, 0, len(ids))
	for _, id := range ids {
		rec, err := repos.Fact().Get(id)
		if err != nil {
			return 0, mapStoreErr(err)
		}
		records = append(records, rec)
		contents = append(contents, rec.Content)
	}

	vecs, err := l.Embedder.EmbedTexts(ctx, contents)
	if err != nil {
		return 0, fmt.Errorf("embed facts: %w", err)
	}
	if len(vecs) != len(records) {
		return 0, fmt.Errorf("%w: expected %d embeddings, got %d",
			embed.ErrEmbeddingServiceUnavailable, len(records), len(vecs))
	}

	for i, rec := range records {
		if err := repos.Fact().Replace(rec.ID, rec.Topic, rec.Content, vecs[i]); err != nil {
			return i, mapStoreErr(err)
		}
		if err := fresh.Upsert(rec.ID, vecs[i]); err != nil {
			return i, fmt.Errorf("index fact %d: %w", rec.ID, err)
		}
	}

	l.idx.Store(fresh)

	l.logger.Info("embeddings regenerated", "facts", len(records))
	return len(records), nil
}

// Forget removes a fact from both the store and the index. The pair is
// performed under the ingestion lock so observers never see one without the
// other.
func (l *Lore) Forget(id int64) error {
	repos, err := l.repos()
	if err != nil {
		return err
	}

	l.ingestMu.Lock()
	defer l.ingestMu.Unlock()

	if err := repos.Fact().Delete(id); err != nil {
		return mapStoreErr(err)
	}
	l.idx.Load().Remove(id)

	l.logger.Debug("fact forgotten", "id", id)
	return nil
}

// Topics lists stored topics matching the substring, most recent first.
// Callers use it to drive autocomplete.
func (l *Lore) Topics(match string, limit int) ([]string, error) {
	repos, err := l.repos()
	if err != nil {
		return nil, err
	}
	topics, err := repos.Fact().ListTopics(match, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return topics, nil
}

// Fact returns the stored record for id.
func (l *Lore) Fact(id int64) (storage.FactRecord, error) {
	repos, err := l.repos()
	if err != nil {
		return storage.FactRecord{}, err
	}
	rec, err := repos.Fact().Get(id)
	if err != nil {
		return storage.FactRecord{}, mapStoreErr(err)
	}
	return rec, nil
}

// InvalidateAliases drops the cached alias snapshot. The admin collaborator
// that writes aliases is responsible for calling it.
func (l *Lore) InvalidateAliases() {
	l.aliases.invalidate()
}

func (l *Lore) repos() (storage.Repos, error) {
	repos, err := l.Storage.Repos()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return repos, nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrUnknownFact
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
