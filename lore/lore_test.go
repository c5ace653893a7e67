package lore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"lorekeep/lore"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	// One connection keeps concurrent writers serialized in sqlite.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestLore(t *testing.T, db *sql.DB, opts ...lore.Option) *lore.Lore {
	t.Helper()
	all := append([]lore.Option{
		lore.WithStorageConn(db),
		lore.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	l := lore.New(all...)
	require.NoError(t, l.Build())
	return l
}

func setConfig(t *testing.T, l *lore.Lore, key, value string) {
	t.Helper()
	repos, err := l.Storage.Repos()
	require.NoError(t, err)
	require.NoError(t, repos.Config().Set(key, value))
	l.Config.Invalidate(key)
}

func TestTeachAssignsMonotonicIDs(t *testing.T) {
	l := newTestLore(t, newTestDB(t))
	ctx := context.Background()

	contents := []string{
		"The fire station is at grid E4.",
		"Respawn points reset every six hours.",
		"Generators need fuel every two days.",
	}

	var prev int64
	for _, content := range contents {
		id, err := l.Teach(ctx, "ops", content, lore.VisibilityPublic)
		require.NoError(t, err)
		require.Greater(t, id, prev)
		prev = id
	}
	require.Equal(t, 3, l.Index().Len())
}

func TestForgetRemovesStoreAndIndex(t *testing.T) {
	l := newTestLore(t, newTestDB(t))
	ctx := context.Background()

	id, err := l.Teach(ctx, "fire station", "The fire station is at grid E4.", lore.VisibilityPublic)
	require.NoError(t, err)

	require.NoError(t, l.Forget(id))
	require.Equal(t, 0, l.Index().Len())

	_, err = l.Fact(id)
	require.ErrorIs(t, err, lore.ErrUnknownFact)

	// Deleting an already-forgotten fact is a caller error.
	require.ErrorIs(t, l.Forget(id), lore.ErrUnknownFact)

	setConfig(t, l, lore.KeyConfidenceThreshold, "0.99")
	res, err := l.Ask(ctx, "The fire station is at grid E4.")
	require.NoError(t, err)
	require.NotNil(t, res.Gap)
	require.False(t, res.Gap.HasCandidate)
}

func TestRebuildIndexReproducesQueryResults(t *testing.T) {
	db := newTestDB(t)
	l := newTestLore(t, db)
	ctx := context.Background()

	contents := []string{
		"The fire station is at grid E4.",
		"Respawn points reset every six hours.",
		"The westside bridge is closed after dark.",
	}
	for _, content := range contents {
		_, err := l.Teach(ctx, "ops", content, lore.VisibilityPublic)
		require.NoError(t, err)
	}

	setConfig(t, l, lore.KeyConfidenceThreshold, "0.99")
	before, err := l.Ask(ctx, contents[1])
	require.NoError(t, err)
	require.NotNil(t, before.Answered)

	// A fresh engine over the same storage rebuilds the index from the
	// persisted embeddings and answers identically.
	rebuilt := newTestLore(t, db)
	setConfig(t, rebuilt, lore.KeyConfidenceThreshold, "0.99")
	require.Equal(t, l.Index().Len(), rebuilt.Index().Len())

	after, err := rebuilt.Ask(ctx, contents[1])
	require.NoError(t, err)
	require.NotNil(t, after.Answered)
	require.Equal(t, before.Answered.FactID, after.Answered.FactID)
	require.InDelta(t, before.Answered.Score, after.Answered.Score, 1e-9)
}

func TestReembedSwitchesProviders(t *testing.T) {
	db := newTestDB(t)
	l := newTestLore(t, db)
	ctx := context.Background()

	idA, err := l.Teach(ctx, "fire station", "The fire station is at grid E4.", lore.VisibilityPublic)
	require.NoError(t, err)
	idB, err := l.Teach(ctx, "respawn", "Respawn points reset every six hours.", lore.VisibilityPublic)
	require.NoError(t, err)

	// A fresh engine with a different embedder rebuilds its index from
	// vectors the previous embedder produced. Those are useless to the new
	// one: the question embeds in the wrong dimension and nothing matches.
	emb := stubEmbedder{vectors: map[string][]float32{
		"The fire station is at grid E4.":       {1, 0},
		"Respawn points reset every six hours.": {0, 1},
	}}
	next := newTestLore(t, db, lore.WithEmbedder(emb))
	setConfig(t, next, lore.KeyConfidenceThreshold, "0.99")

	res, err := next.Ask(ctx, "The fire station is at grid E4.")
	require.NoError(t, err)
	require.NotNil(t, res.Gap)

	n, err := next.Reembed(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Stored vectors were regenerated, not just the index.
	rec, err := next.Fact(idA)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 0}, rec.Embedding)

	res, err = next.Ask(ctx, "The fire station is at grid E4.")
	require.NoError(t, err)
	require.NotNil(t, res.Answered)
	require.Equal(t, idA, res.Answered.FactID)

	res, err = next.Ask(ctx, "Respawn points reset every six hours.")
	require.NoError(t, err)
	require.NotNil(t, res.Answered)
	require.Equal(t, idB, res.Answered.FactID)
}

func TestReembedEmptyStore(t *testing.T) {
	l := newTestLore(t, newTestDB(t))

	n, err := l.Reembed(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, l.Index().Len())
}

func TestRebuildIndexDuringRetrievals(t *testing.T) {
	l := newTestLore(t, newTestDB(t))
	ctx := context.Background()

	contents := []string{
		"The fire station is at grid E4.",
		"Respawn points reset every six hours.",
		"The westside bridge is closed after dark.",
	}
	for _, content := range contents {
		_, err := l.Teach(ctx, "ops", content, lore.VisibilityPublic)
		require.NoError(t, err)
	}

	const rounds = 25
	errs := make(chan error, rounds*2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := l.RebuildIndex(); err != nil {
				errs <- err
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, err := l.Ask(ctx, contents[i%len(contents)]); err != nil {
				errs <- err
			}
		}
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, len(contents), l.Index().Len())
}

func TestTopics(t *testing.T) {
	l := newTestLore(t, newTestDB(t))
	ctx := context.Background()

	taught := []struct{ topic, content string }{
		{"fire station", "The fire station is at grid E4."},
		{"respawn", "Respawn points reset every six hours."},
		{"fire drill", "The westside bridge is closed after dark."},
	}
	for _, f := range taught {
		_, err := l.Teach(ctx, f.topic, f.content, lore.VisibilityPublic)
		require.NoError(t, err)
	}

	recent, err := l.Topics("", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"fire drill", "respawn", "fire station"}, recent)

	fire, err := l.Topics("fire", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"fire drill", "fire station"}, fire)
}

func TestFactRecordFields(t *testing.T) {
	l := newTestLore(t, newTestDB(t))
	ctx := context.Background()

	id, err := l.Teach(ctx, "fire station", "The fire station is at grid E4.", lore.VisibilitySensitive)
	require.NoError(t, err)

	rec, err := l.Fact(id)
	require.NoError(t, err)
	require.Equal(t, id, rec.ID)
	require.NotEmpty(t, rec.UUID)
	require.Equal(t, "fire station", rec.Topic)
	require.Equal(t, "The fire station is at grid E4.", rec.Content)
	require.Equal(t, string(lore.VisibilitySensitive), rec.Visibility)
	require.NotEmpty(t, rec.Embedding)
	require.False(t, rec.CreatedAt.IsZero())
	require.Zero(t, rec.Upvotes)
	require.Zero(t, rec.Downvotes)
	require.Zero(t, rec.FlagCount)
}
