package domain

import (
	"fmt"
	"strconv"
)

// MaxNameLen is the longest name a directory accepts.
const MaxNameLen = 14

// Kind identifies the type of object a Handle refers to.
type Kind int

const (
	// KindInvalid is reported for handles whose object no longer exists.
	KindInvalid Kind = iota
	KindProcess
	KindThread
	KindMailbox
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindProcess:
		return "process"
	case KindThread:
		return "thread"
	case KindMailbox:
		return "mailbox"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "process":
		return KindProcess, nil
	case "thread":
		return KindThread, nil
	case "mailbox":
		return KindMailbox, nil
	case "invalid":
		return KindInvalid, nil
	}
	return KindInvalid, fmt.Errorf("unknown object kind %q", s)
}

// Handle references an object owned by a process. ID is zero for process
// handles and unique within the owning process otherwise.
type Handle struct {
	Kind Kind
	PID  int
	ID   uint64
}

// BadHandle is the zero Handle; it never refers to an object.
var BadHandle = Handle{}

// IsBad reports whether h is the zero handle.
func (h Handle) IsBad() bool {
	return h == BadHandle
}

// String formats the handle as kind:pid/id.
func (h Handle) String() string {
	if h.IsBad() {
		return "bad"
	}
	return h.Kind.String() + ":" + strconv.Itoa(h.PID) + "/" + strconv.FormatUint(h.ID, 10)
}

// ProcessHandle returns the handle of the process with the given pid.
func ProcessHandle(pid int) Handle {
	return Handle{Kind: KindProcess, PID: pid}
}

// Scope names the directory a registration lives in.
type Scope string

// RootScope is shared by every process on the host.
const RootScope Scope = "root"

// ProcessScope returns the private scope of the process with the given pid.
func ProcessScope(pid int) Scope {
	return Scope("proc-" + strconv.Itoa(pid))
}

// ValidateName checks that name is 1..MaxNameLen printable ASCII characters.
func ValidateName(name string) error {
	if name == "" || len(name) > MaxNameLen {
		return fmt.Errorf("%w: %q must be 1..%d characters", ErrInvalidName, name, MaxNameLen)
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x21 || name[i] > 0x7e {
			return fmt.Errorf("%w: %q contains a non-printable or non-ASCII byte", ErrInvalidName, name)
		}
	}
	return nil
}
