package domain

import (
	"encoding/binary"
	"fmt"
	"time"
)

// NotificationKind enumerates the system events the main thread waits for.
type NotificationKind int

const (
	NotifyTerminate NotificationKind = iota + 1
	NotifyHostUp
	NotifyBluescreen
	NotifyKernelStopping
	NotifyHostHibernate
	NotifyHostStandby
	NotifyHostShutdownPending
)

// NotificationKinds lists every kind in declaration order.
var NotificationKinds = []NotificationKind{
	NotifyTerminate,
	NotifyHostUp,
	NotifyBluescreen,
	NotifyKernelStopping,
	NotifyHostHibernate,
	NotifyHostStandby,
	NotifyHostShutdownPending,
}

// String returns the wire name of the kind, as used by the control directory.
func (k NotificationKind) String() string {
	switch k {
	case NotifyTerminate:
		return "terminate"
	case NotifyHostUp:
		return "host-up"
	case NotifyBluescreen:
		return "bluescreen"
	case NotifyKernelStopping:
		return "kernel-stopping"
	case NotifyHostHibernate:
		return "host-hibernate"
	case NotifyHostStandby:
		return "host-standby"
	case NotifyHostShutdownPending:
		return "host-shutdown-pending"
	default:
		return "unknown"
	}
}

// ParseNotificationKind is the inverse of NotificationKind.String.
func ParseNotificationKind(s string) (NotificationKind, error) {
	for _, k := range NotificationKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown notification kind %q", s)
}

// Notification is a system event delivered to the main thread.
type Notification struct {
	Kind   NotificationKind
	Source string
	At     time.Time
}

// TerminationSignal is the discriminant a non-main thread posts to the main
// inbox to request teardown.
type TerminationSignal uint32

// SignalTerminate asks the main thread to run cleanup.
const SignalTerminate TerminationSignal = 0

// Bytes returns the signal's 4-byte little-endian discriminant.
func (s TerminationSignal) Bytes() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(s))
	return b
}

// MarshalBinary implements encoding.BinaryMarshaler. It never fails.
func (s TerminationSignal) MarshalBinary() ([]byte, error) {
	return s.Bytes(), nil
}

// UnmarshalBinary decodes a 4-byte discriminant.
func (s *TerminationSignal) UnmarshalBinary(b []byte) error {
	if len(b) != 4 {
		return fmt.Errorf("termination signal: want 4 bytes, got %d", len(b))
	}
	*s = TerminationSignal(binary.LittleEndian.Uint32(b))
	return nil
}
