package app

import (
	"context"
	"time"

	"github.com/bft-labs/testvisor/internal/ports"
)

// Worker invokes the test routine until it reports a non-zero status.
type Worker struct {
	routine     ports.TestRoutine
	pc          *ProcessContext
	coord       *Coordinator
	logger      ports.Logger
	pause       time.Duration
	failOnError bool
}

// Run loops until the routine fails, shutdown is requested or ctx is done.
// It returns the last status, zero when stopped without a failure.
func (w *Worker) Run(ctx context.Context) int {
	for iteration := 0; ; iteration++ {
		if w.pc.ShutdownRequested() || ctx.Err() != nil {
			return 0
		}

		w.logger.Info("test started",
			ports.String("routine", w.routine.Name()),
			ports.Int("iteration", iteration),
		)
		status := w.routine.Run(ctx)
		w.logger.Info("test finished",
			ports.String("routine", w.routine.Name()),
			ports.Int("iteration", iteration),
			ports.Int("status", status),
		)

		if status != 0 {
			if w.failOnError {
				w.coord.Fail(ctx, "test routine %s returned %d at iteration %d", w.routine.Name(), status, iteration)
			}
			return status
		}

		if w.pause > 0 {
			select {
			case <-ctx.Done():
				return 0
			case <-time.After(w.pause):
			}
		}
	}
}
