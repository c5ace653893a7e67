package lore

import (
	"context"
	"errors"
	"fmt"

	"lorekeep/storage"
)

// Answer references the fact that satisfied the confidence threshold.
type Answer struct {
	FactID     int64
	Topic      string
	Content    string
	Score      float64
	Visibility Visibility
}

// KnowledgeGap reports that no stored fact met the confidence threshold.
// BestFactID and BestScore describe the closest candidate when the index
// was not empty, so the caller can decide whether to prompt for teaching.
type KnowledgeGap struct {
	BestFactID   int64
	BestScore    float64
	HasCandidate bool
}

// Result is the outcome of a retrieval: exactly one of Answered or Gap is
// set.
type Result struct {
	Answered *Answer
	Gap      *KnowledgeGap
}

// Ask routes a question to either an answer or a knowledge gap. The input
// is alias-rewritten, embedded, and matched against the index; the best
// score decides the branch. Ask mutates nothing, and identical questions
// against an identical index always take the same branch to the same fact.
func (l *Lore) Ask(ctx context.Context, question string) (Result, error) {
	question = normalizeText(question)
	if question == "" {
		return Result{Gap: &KnowledgeGap{}}, nil
	}

	rewritten, err := l.aliases.rewrite(question)
	if err != nil {
		return Result{}, err
	}

	vec, err := l.Embedder.EmbedText(ctx, rewritten)
	if err != nil {
		return Result{}, fmt.Errorf("embed question: %w", err)
	}

	threshold, err := l.Config.Float(KeyConfidenceThreshold, DefaultConfidenceThreshold)
	if err != nil {
		return Result{}, err
	}
	k, err := l.Config.Int(KeyRecallK, DefaultRecallK)
	if err != nil {
		return Result{}, err
	}

	matches := l.idx.Load().Query(vec, int(k))
	if len(matches) == 0 {
		return Result{Gap: &KnowledgeGap{}}, nil
	}

	repos, err := l.repos()
	if err != nil {
		return Result{}, err
	}

	// The index can briefly cite facts already forgotten from the store.
	// Skip those; the first surviving match decides the branch, so a gap
	// never carries a dangling id.
	for _, m := range matches {
		rec, err := repos.Fact().Get(m.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}

		if m.Score < threshold {
			return Result{Gap: &KnowledgeGap{
				BestFactID:   m.ID,
				BestScore:    m.Score,
				HasCandidate: true,
			}}, nil
		}
		return Result{Answered: &Answer{
			FactID:     rec.ID,
			Topic:      rec.Topic,
			Content:    rec.Content,
			Score:      m.Score,
			Visibility: Visibility(rec.Visibility),
		}}, nil
	}

	return Result{Gap: &KnowledgeGap{}}, nil
}
