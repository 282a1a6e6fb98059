package ports

import "context"

// TestRoutine is the external routine the worker loop invokes repeatedly.
// It returns zero on success and a non-zero status on failure.
type TestRoutine interface {
	Name() string
	Run(ctx context.Context) int
}
