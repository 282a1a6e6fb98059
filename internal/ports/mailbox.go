package ports

import "github.com/bft-labs/testvisor/internal/domain"

// Mailbox accepts fixed-size messages for the thread that owns it.
type Mailbox interface {
	// Send delivers data without blocking.
	// Returns domain.ErrMailboxFull if the mailbox cannot take it.
	Send(data []byte) error
}

// MailboxResolver maps a mailbox handle to its endpoint.
type MailboxResolver interface {
	// Mailbox returns domain.ErrNoMailbox if h does not name a live mailbox.
	Mailbox(h domain.Handle) (Mailbox, error)
}

// Inbox is the receiving side of a mailbox.
type Inbox interface {
	Handle() domain.Handle
	Receive() <-chan []byte
}

// ObjectTable creates and checks the objects of the current process.
type ObjectTable interface {
	ObjectTypes
	MailboxResolver

	// Self returns the handle of the current process.
	Self() domain.Handle

	// PID returns the current process id.
	PID() int

	// NewThread allocates a handle for a goroutine acting as a thread.
	NewThread(name string) domain.Handle

	// NewInbox creates a mailbox owned by the caller.
	NewInbox(depth int) Inbox

	// Delete invalidates a thread or mailbox handle.
	Delete(h domain.Handle)
}
