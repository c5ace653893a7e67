package lore

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFact is returned when a fact id does not exist, most
	// likely because it was already forgotten.
	ErrUnknownFact = errors.New("unknown fact")

	// ErrStorageUnavailable wraps failures of the storage collaborator.
	// It is fatal for the current call and never retried internally.
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrEmptyTopic        = errors.New("topic must not be empty")
	ErrEmptyContent      = errors.New("content must not be empty")
	ErrInvalidVisibility = errors.New("visibility must be public or sensitive")
	ErrInvalidDirection  = errors.New("vote direction must be up or down")
)

// DuplicateError reports that ingestion was rejected because the content is
// a near-duplicate of an existing fact. It is an expected outcome, not a
// fault: callers surface it as "already known".
type DuplicateError struct {
	ExistingID int64
	Similarity float64
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("near-duplicate of fact %d (similarity %.4f)", e.ExistingID, e.Similarity)
}
