package pipeline

import (
	"context"
	"errors"
	"time"
)

type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusCompleted StageStatus = "completed"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
)

// StageResult records one stage invocation. Once the status reaches a
// terminal value the result is never mutated; the orchestrator keeps it for
// the run report.
type StageResult struct {
	StageName string        `json:"stage_name"`
	Status    StageStatus   `json:"status"`
	Result    any           `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	CacheHit  bool          `json:"cache_hit"`
}

// Completed reports whether the stage finished successfully, from cache or
// execution.
func (r StageResult) Completed() bool {
	return r.Status == StatusCompleted
}

// WorkFunc is the unit a stage executes. The payload is opaque to the
// orchestrator; stages use concrete types internally.
type WorkFunc func(ctx context.Context, input any) (any, error)

// ItemFunc processes one batch item.
type ItemFunc func(ctx context.Context, item any) (any, error)

type fatalError struct {
	err error
}

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// Fatal marks an error as non-retryable: the retry loop stops immediately
// and the stage fails with this error.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err carries a Fatal marker anywhere in its chain.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}
