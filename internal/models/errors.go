package models

import (
	"errors"
	"fmt"
)

// ErrJobCancelled signals a cooperative halt, not a failure. Tasks hit by it
// are marked cancelled and never retried.
var ErrJobCancelled = errors.New("job cancelled")

// FetchError is a network or HTTP-level fetch failure. Retryable.
type FetchError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch failed for %s: HTTP %d %s", e.URL, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("fetch failed for %s: %s", e.URL, e.Reason)
}

// EmptyContentError means a page fetched successfully but yielded no
// extractable text. Retryable - the content may change.
type EmptyContentError struct {
	URL string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("no extractable content at %s", e.URL)
}

// QuotaExceededError means the tenant's knowledge-base size limit would be
// exceeded. Not transient, so never retried - terminal for the task.
type QuotaExceededError struct {
	TenantID    string
	Tier        string
	AttemptedMB float64
	CurrentMB   float64
	LimitMB     float64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("storage limit exceeded: %s tier allows %.0fMB, currently using %.1fMB (attempted to add %.1fMB)",
		e.Tier, e.LimitMB, e.CurrentMB, e.AttemptedMB)
}

// EmbeddingError is a per-chunk embedding generation failure. It never fails
// the task - the chunk is stored without a vector.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding generation failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError means two vectors of different dimensions met in a
// similarity computation, usually after an embedding model change.
type DimensionMismatchError struct {
	LenA int
	LenB int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %d vs %d", e.LenA, e.LenB)
}

// PersistenceError is a store-layer failure. Retryable up to the cap.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsRetryable classifies a task-level error. Quota rejections and
// cancellations are terminal; everything else retries up to MaxRetryCount.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrJobCancelled) {
		return false
	}
	var quotaErr *QuotaExceededError
	return !errors.As(err, &quotaErr)
}
