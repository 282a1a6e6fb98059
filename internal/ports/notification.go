package ports

import (
	"context"

	"github.com/bft-labs/testvisor/internal/domain"
)

// NotificationSource delivers system notifications to the main thread.
type NotificationSource interface {
	// Name identifies the source in logs.
	Name() string

	// Next blocks until a notification arrives or ctx is done.
	// Any error ends the source.
	Next(ctx context.Context) (domain.Notification, error)
}
