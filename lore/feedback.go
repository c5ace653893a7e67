package lore

// Direction is the vote direction supplied by callers. The engine is
// vote-count-additive: deduplication of voter identities is the caller's
// concern, never handled here.
type Direction string

const (
	Upvote   Direction = "up"
	Downvote Direction = "down"
)

// VoteCounts is the counter pair after a vote was applied.
type VoteCounts struct {
	Upvotes   int64
	Downvotes int64
}

// FlagResult reports the flag counter after an increment and whether this
// call crossed the alert threshold.
type FlagResult struct {
	FlagCount        int64
	ThresholdCrossed bool
}

// Alert is emitted to the AlertSink exactly once per threshold crossing.
type Alert struct {
	FactID    int64
	FlagCount int64
}

// AlertSink receives curation alerts. Implemented by an external
// notification collaborator.
type AlertSink func(Alert)

// Vote increments one of the fact's vote counters and returns both. The
// increment is a single atomic statement in storage, so concurrent votes
// never lose updates.
func (l *Lore) Vote(factID int64, direction Direction) (VoteCounts, error) {
	if direction != Upvote && direction != Downvote {
		return VoteCounts{}, ErrInvalidDirection
	}

	repos, err := l.repos()
	if err != nil {
		return VoteCounts{}, err
	}

	counts, err := repos.Fact().AddVote(factID, direction == Upvote)
	if err != nil {
		return VoteCounts{}, mapStoreErr(err)
	}

	l.logger.Debug("vote applied", "id", factID, "direction", string(direction))
	return VoteCounts{Upvotes: counts.Upvotes, Downvotes: counts.Downvotes}, nil
}

// Flag increments the fact's flag counter. ThresholdCrossed is true only
// when this increment moved the counter from below the configured threshold
// to at or above it; calls that merely keep the counter above the threshold
// do not re-fire. On a crossing the alert sink, when installed, is invoked
// once.
func (l *Lore) Flag(factID int64) (FlagResult, error) {
	repos, err := l.repos()
	if err != nil {
		return FlagResult{}, err
	}

	threshold, err := l.Config.Int(KeyFlagThreshold, DefaultFlagThreshold)
	if err != nil {
		return FlagResult{}, err
	}

	count, err := repos.Fact().IncrementFlag(factID)
	if err != nil {
		return FlagResult{}, mapStoreErr(err)
	}

	crossed := threshold > 0 && count >= threshold && count-1 < threshold
	if crossed {
		l.logger.Info("flag threshold crossed", "id", factID, "flags", count)
		if l.alerts != nil {
			l.alerts(Alert{FactID: factID, FlagCount: count})
		}
	}

	return FlagResult{FlagCount: count, ThresholdCrossed: crossed}, nil
}

// ClearFlags resets the fact's flag counter to zero. This is the moderation
// action that returns a flagged fact to active; a later crossing fires the
// alert again.
func (l *Lore) ClearFlags(factID int64) error {
	repos, err := l.repos()
	if err != nil {
		return err
	}
	if err := repos.Fact().ResetFlags(factID); err != nil {
		return mapStoreErr(err)
	}
	l.logger.Debug("flags cleared", "id", factID)
	return nil
}
