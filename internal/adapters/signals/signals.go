// Package signals turns operating system signals into notifications.
package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bft-labs/testvisor/internal/domain"
)

// DefaultMapping maps SIGINT and SIGTERM to a terminate request and SIGHUP
// to a pending host shutdown.
func DefaultMapping() map[os.Signal]domain.NotificationKind {
	return map[os.Signal]domain.NotificationKind{
		syscall.SIGINT:  domain.NotifyTerminate,
		syscall.SIGTERM: domain.NotifyTerminate,
		syscall.SIGHUP:  domain.NotifyHostShutdownPending,
	}
}

// Source is a ports.NotificationSource fed by signal.Notify.
type Source struct {
	ch      chan os.Signal
	mapping map[os.Signal]domain.NotificationKind
}

// New subscribes to every signal in mapping. Call Stop to unsubscribe.
func New(mapping map[os.Signal]domain.NotificationKind) *Source {
	s := newSource(mapping)
	sigs := make([]os.Signal, 0, len(mapping))
	for sig := range mapping {
		sigs = append(sigs, sig)
	}
	signal.Notify(s.ch, sigs...)
	return s
}

func newSource(mapping map[os.Signal]domain.NotificationKind) *Source {
	return &Source{
		ch:      make(chan os.Signal, 4),
		mapping: mapping,
	}
}

// Name implements ports.NotificationSource.
func (s *Source) Name() string { return "signals" }

// Next implements ports.NotificationSource.
func (s *Source) Next(ctx context.Context) (domain.Notification, error) {
	for {
		select {
		case <-ctx.Done():
			return domain.Notification{}, ctx.Err()
		case sig := <-s.ch:
			kind, ok := s.mapping[sig]
			if !ok {
				continue
			}
			return domain.Notification{Kind: kind, Source: "signal " + sig.String(), At: time.Now()}, nil
		}
	}
}

// Stop unsubscribes from signal delivery.
func (s *Source) Stop() {
	signal.Stop(s.ch)
}
