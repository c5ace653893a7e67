package lore

import (
	"context"
	"fmt"
	"strings"
)

// normalizeText trims and collapses internal whitespace, so ingestion and
// retrieval see the same canonical form.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Teach validates and ingests a new fact. Content near-identical to an
// existing fact (cosine similarity at or above the duplicate threshold) is
// rejected with *DuplicateError and nothing is written. The duplicate check
// and the store/index write pair run under the ingestion lock, so at most
// one of any set of concurrent near-duplicate ingestions succeeds.
func (l *Lore) Teach(ctx context.Context, topic, content string, visibility Visibility) (int64, error) {
	topic = normalizeText(topic)
	content = normalizeText(content)
	if topic == "" {
		return 0, ErrEmptyTopic
	}
	if content == "" {
		return 0, ErrEmptyContent
	}
	if visibility == "" {
		visibility = VisibilityPublic
	}
	if visibility != VisibilityPublic && visibility != VisibilitySensitive {
		return 0, ErrInvalidVisibility
	}

	vec, err := l.Embedder.EmbedText(ctx, content)
	if err != nil {
		return 0, fmt.Errorf("embed content: %w", err)
	}

	repos, err := l.repos()
	if err != nil {
		return 0, err
	}
	dupThreshold, err := l.Config.Float(KeyDuplicateThreshold, DefaultDuplicateThreshold)
	if err != nil {
		return 0, err
	}

	l.ingestMu.Lock()
	defer l.ingestMu.Unlock()
	idx := l.idx.Load()

	// Exact top-1 query; a false negative here would corrupt the base.
	if matches := idx.Query(vec, 1); len(matches) > 0 && matches[0].Score >= dupThreshold {
		return 0, &DuplicateError{ExistingID: matches[0].ID, Similarity: matches[0].Score}
	}

	id, err := repos.Fact().Create(topic, content, vec, string(visibility))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := idx.Upsert(id, vec); err != nil {
		// Roll the store write back; no fact may exist without an index entry.
		if delErr := repos.Fact().Delete(id); delErr != nil {
			l.logger.Error("rollback of fact failed", "id", id, "error", delErr)
		}
		return 0, fmt.Errorf("index fact %d: %w", id, err)
	}

	l.logger.Debug("fact taught", "id", id, "topic", topic)
	return id, nil
}

// Reteach replaces an existing fact's topic, content and embedding while
// preserving its vote and flag counters. Editing is modeled as
// create-or-replace: the embedding is recomputed, never mutated in place.
// No duplicate check runs here; the edited fact is usually its own nearest
// neighbor.
func (l *Lore) Reteach(ctx context.Context, id int64, topic, content string) error {
	topic = normalizeText(topic)
	content = normalizeText(content)
	if topic == "" {
		return ErrEmptyTopic
	}
	if content == "" {
		return ErrEmptyContent
	}

	vec, err := l.Embedder.EmbedText(ctx, content)
	if err != nil {
		return fmt.Errorf("embed content: %w", err)
	}

	repos, err := l.repos()
	if err != nil {
		return err
	}

	l.ingestMu.Lock()
	defer l.ingestMu.Unlock()
	idx := l.idx.Load()

	prev, err := repos.Fact().Get(id)
	if err != nil {
		return mapStoreErr(err)
	}

	if err := repos.Fact().Replace(id, topic, content, vec); err != nil {
		return mapStoreErr(err)
	}

	if err := idx.Upsert(id, vec); err != nil {
		// Restore the previous record so store and index stay in step.
		if restoreErr := repos.Fact().Replace(id, prev.Topic, prev.Content, prev.Embedding); restoreErr != nil {
			l.logger.Error("restore of fact failed", "id", id, "error", restoreErr)
		}
		return fmt.Errorf("index fact %d: %w", id, err)
	}

	l.logger.Debug("fact retaught", "id", id, "topic", topic)
	return nil
}
