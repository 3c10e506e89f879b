package analysis

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when the caller cancels a run. It is not a
	// processing failure and callers should not report it as one.
	ErrCancelled = errors.New("analysis cancelled")

	// ErrFatal marks configuration failures (missing or rejected credentials)
	// that no retry can fix. They abort the run.
	ErrFatal = errors.New("fatal analysis error")
)

// checkCancelled returns an ErrCancelled error if ctx is done.
func checkCancelled(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return cancelledError(ctx)
}

func cancelledError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

// stopErr returns the error that must abort the run when err is fatal or the
// run was cancelled, and nil when err only degrades one unit of work.
func stopErr(ctx context.Context, err error) error {
	if errors.Is(err, ErrFatal) || errors.Is(err, ErrCancelled) {
		return err
	}
	if ctx.Err() != nil {
		return cancelledError(ctx)
	}
	return nil
}

// IsCancelled reports whether err is a user-initiated cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsFatal reports whether err is a configuration failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
