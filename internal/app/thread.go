package app

import (
	"context"

	"github.com/bft-labs/testvisor/internal/domain"
)

type threadKey struct{}

// WithThread returns a context identifying the calling goroutine as thread h.
func WithThread(ctx context.Context, h domain.Handle) context.Context {
	return context.WithValue(ctx, threadKey{}, h)
}

// ThreadFrom returns the thread handle carried by ctx, or domain.BadHandle.
func ThreadFrom(ctx context.Context) domain.Handle {
	if h, ok := ctx.Value(threadKey{}).(domain.Handle); ok {
		return h
	}
	return domain.BadHandle
}
