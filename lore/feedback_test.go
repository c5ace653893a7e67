package lore_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"lorekeep/lore"
)

func teachOne(t *testing.T, l *lore.Lore) int64 {
	t.Helper()
	id, err := l.Teach(context.Background(), "fire station", "The fire station is at grid E4.", lore.VisibilityPublic)
	require.NoError(t, err)
	return id
}

func TestVoteCounts(t *testing.T) {
	l := newTestLore(t, newTestDB(t))
	id := teachOne(t, l)

	counts, err := l.Vote(id, lore.Upvote)
	require.NoError(t, err)
	require.Equal(t, lore.VoteCounts{Upvotes: 1, Downvotes: 0}, counts)

	counts, err = l.Vote(id, lore.Upvote)
	require.NoError(t, err)
	require.Equal(t, lore.VoteCounts{Upvotes: 2, Downvotes: 0}, counts)

	counts, err = l.Vote(id, lore.Downvote)
	require.NoError(t, err)
	require.Equal(t, lore.VoteCounts{Upvotes: 2, Downvotes: 1}, counts)
}

func TestVoteErrors(t *testing.T) {
	l := newTestLore(t, newTestDB(t))
	id := teachOne(t, l)

	_, err := l.Vote(id, lore.Direction("sideways"))
	require.ErrorIs(t, err, lore.ErrInvalidDirection)

	_, err = l.Vote(id+100, lore.Upvote)
	require.ErrorIs(t, err, lore.ErrUnknownFact)
}

func TestConcurrentVotesLoseNoUpdates(t *testing.T) {
	l := newTestLore(t, newTestDB(t))
	id := teachOne(t, l)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Vote(id, lore.Upvote)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := l.Fact(id)
	require.NoError(t, err)
	require.Equal(t, int64(n), rec.Upvotes)
}

func TestFlagThresholdCrossesExactlyOnce(t *testing.T) {
	var alerts []lore.Alert
	sink := func(a lore.Alert) { alerts = append(alerts, a) }

	l := newTestLore(t, newTestDB(t), lore.WithAlertSink(sink))
	id := teachOne(t, l)

	// Default threshold is 3: the first two flags stay quiet.
	for want := int64(1); want <= 2; want++ {
		res, err := l.Flag(id)
		require.NoError(t, err)
		require.Equal(t, want, res.FlagCount)
		require.False(t, res.ThresholdCrossed)
	}

	res, err := l.Flag(id)
	require.NoError(t, err)
	require.Equal(t, int64(3), res.FlagCount)
	require.True(t, res.ThresholdCrossed)

	// Staying above the threshold does not re-fire.
	res, err = l.Flag(id)
	require.NoError(t, err)
	require.Equal(t, int64(4), res.FlagCount)
	require.False(t, res.ThresholdCrossed)

	require.Len(t, alerts, 1)
	require.Equal(t, lore.Alert{FactID: id, FlagCount: 3}, alerts[0])
}

func TestFlagRefiresAfterModerationReset(t *testing.T) {
	var alerts []lore.Alert
	sink := func(a lore.Alert) { alerts = append(alerts, a) }

	l := newTestLore(t, newTestDB(t), lore.WithAlertSink(sink))
	id := teachOne(t, l)

	setConfig(t, l, lore.KeyFlagThreshold, "2")

	for i := 0; i < 2; i++ {
		_, err := l.Flag(id)
		require.NoError(t, err)
	}
	require.Len(t, alerts, 1)

	require.NoError(t, l.ClearFlags(id))
	rec, err := l.Fact(id)
	require.NoError(t, err)
	require.Zero(t, rec.FlagCount)

	for i := 0; i < 2; i++ {
		_, err := l.Flag(id)
		require.NoError(t, err)
	}
	require.Len(t, alerts, 2)
}

func TestFlagUnknownFact(t *testing.T) {
	l := newTestLore(t, newTestDB(t))

	_, err := l.Flag(7)
	require.ErrorIs(t, err, lore.ErrUnknownFact)
	require.ErrorIs(t, l.ClearFlags(7), lore.ErrUnknownFact)
}
