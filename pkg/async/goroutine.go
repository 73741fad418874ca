package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/leasehold/leasehold/pkg/observability"
)

// Task is a unit of background work
type Task func(ctx context.Context) error

// Run executes fn with panic recovery and an optional timeout. Errors and
// panics are logged under taskName and returned; a panic becomes an error.
func Run(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn Task) (err error) {
	ctx := parentCtx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parentCtx, timeout)
		defer cancel()
	}

	start := time.Now()
	log := logger.WithField("task", taskName)

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(map[string]interface{}{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("PANIC in background task")
			err = fmt.Errorf("%s: panic: %v", taskName, r)
		}
	}()

	if err := fn(ctx); err != nil {
		log.WithError(err).Error("Background task failed")
		return fmt.Errorf("%s: %w", taskName, err)
	}

	log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Background task complete")
	return nil
}

// SafeGo runs fn in a new goroutine through Run. The returned channel is
// closed with the task's error, if any, once it finishes.
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn Task) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		if err := Run(parentCtx, logger, timeout, taskName, fn); err != nil {
			done <- err
		}
	}()
	return done
}
