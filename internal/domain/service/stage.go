package service

import (
	"context"
	"errors"
)

var (
	// ErrStageNotInitialized is returned by Process when Initialize has not run.
	ErrStageNotInitialized = errors.New("stage not initialized")
	// ErrStageDisabled is returned by Initialize on a disabled stage.
	ErrStageDisabled = errors.New("stage disabled")
)

// Stage is the lifecycle and processing contract every pipeline stage satisfies.
//
// Initialize is idempotent. Process fails with ErrStageNotInitialized until
// Initialize succeeds. Shutdown releases stage-local state and may be called
// any number of times. HealthCheck is true iff the stage is enabled and initialized.
type Stage[In, Out any] interface {
	Name() string
	Enabled() bool
	Initialize(ctx context.Context) error
	Process(ctx context.Context, in In) (Out, error)
	Shutdown(ctx context.Context) error
	HealthCheck(ctx context.Context) bool
}
