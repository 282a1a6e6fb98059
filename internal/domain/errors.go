package domain

// Error is an immutable error type backed by a string constant, so domain
// errors can be declared as const and still matched with errors.Is.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}

// Lifecycle errors.
const (
	// ErrInvalidTransition is returned when a phase transition does not follow
	// the BeforeInit -> InitBusy -> InitDone -> CleanupBusy order.
	ErrInvalidTransition = Error("testvisor: invalid phase transition")

	// ErrCleanupInProgress is returned by BeginCleanup when teardown has
	// already been entered. The caller must not repeat any teardown step.
	ErrCleanupInProgress = Error("testvisor: cleanup already in progress")

	// ErrInitFailed is returned by the supervisor when startup was aborted.
	ErrInitFailed = Error("testvisor: initialization failed")

	// ErrNotifyFailed is returned when no notification source is left.
	ErrNotifyFailed = Error("testvisor: notification wait failed")
)

// Directory errors.
const (
	// ErrNameExists is returned by a directory when the name is already
	// cataloged in the scope.
	ErrNameExists = Error("testvisor: name already cataloged")

	// ErrNameNotFound is returned when a lookup or uncatalog finds no entry.
	ErrNameNotFound = Error("testvisor: name not found")

	// ErrNameInUse is returned by the registry when a name is held by a live
	// object, or when reclaiming a stale entry did not free the name.
	ErrNameInUse = Error("testvisor: name held by a live object")

	// ErrInvalidName is returned for names that are empty, longer than
	// MaxNameLen or not printable ASCII.
	ErrInvalidName = Error("testvisor: invalid name")

	// ErrBadHandle is returned when cataloging the zero handle.
	ErrBadHandle = Error("testvisor: bad handle")
)

// Messaging errors.
const (
	// ErrMailboxFull is returned when a mailbox cannot take another message.
	ErrMailboxFull = Error("testvisor: mailbox full")

	// ErrNoMailbox is returned when a handle does not resolve to a mailbox.
	ErrNoMailbox = Error("testvisor: handle is not a live mailbox")
)

// Configuration errors.
const (
	// ErrInvalidTickLength is returned when the platform tick length
	// resolves to zero microseconds.
	ErrInvalidTickLength = Error("testvisor: invalid low level tick length")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = Error("testvisor: invalid configuration")
)
