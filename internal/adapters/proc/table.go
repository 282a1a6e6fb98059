// Package proc owns the in-process object table: thread and mailbox
// handles, their validity, liveness of foreign processes, and process exit.
package proc

import (
	"os"
	"sync"

	"github.com/bft-labs/testvisor/internal/domain"
	"github.com/bft-labs/testvisor/internal/ports"
)

// Table tracks the threads and mailboxes created by this process.
// It implements ports.ObjectTable.
type Table struct {
	mu        sync.RWMutex
	pid       int
	next      uint64
	threads   map[uint64]string
	mailboxes map[uint64]*Mailbox
	alive     func(pid int) bool
}

// NewTable creates a table for the current process.
func NewTable() *Table {
	return newTable(os.Getpid(), processAlive)
}

func newTable(pid int, alive func(int) bool) *Table {
	return &Table{
		pid:       pid,
		threads:   make(map[uint64]string),
		mailboxes: make(map[uint64]*Mailbox),
		alive:     alive,
	}
}

// PID returns the pid of the owning process.
func (t *Table) PID() int {
	return t.pid
}

// Self returns the handle of the owning process.
func (t *Table) Self() domain.Handle {
	return domain.ProcessHandle(t.pid)
}

// NewThread allocates a handle for a goroutine acting as a thread.
func (t *Table) NewThread(name string) domain.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.threads[t.next] = name
	return domain.Handle{Kind: domain.KindThread, PID: t.pid, ID: t.next}
}

// NewMailbox creates a mailbox holding up to depth messages.
func (t *Table) NewMailbox(depth int) *Mailbox {
	if depth <= 0 {
		depth = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	m := &Mailbox{
		handle: domain.Handle{Kind: domain.KindMailbox, PID: t.pid, ID: t.next},
		ch:     make(chan []byte, depth),
	}
	t.mailboxes[t.next] = m
	return m
}

// Delete removes a thread or mailbox. Later validity checks on h report
// domain.KindInvalid.
func (t *Table) Delete(h domain.Handle) {
	if h.PID != t.pid {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch h.Kind {
	case domain.KindThread:
		delete(t.threads, h.ID)
	case domain.KindMailbox:
		delete(t.mailboxes, h.ID)
	}
}

// TypeOf implements ports.ObjectTypes. Objects of other processes can only
// be checked as far as their process is still alive.
func (t *Table) TypeOf(h domain.Handle) domain.Kind {
	if h.IsBad() {
		return domain.KindInvalid
	}
	if h.PID != t.pid {
		if h.PID <= 0 || !t.alive(h.PID) {
			return domain.KindInvalid
		}
		return h.Kind
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	switch h.Kind {
	case domain.KindProcess:
		return domain.KindProcess
	case domain.KindThread:
		if _, ok := t.threads[h.ID]; ok {
			return domain.KindThread
		}
	case domain.KindMailbox:
		if _, ok := t.mailboxes[h.ID]; ok {
			return domain.KindMailbox
		}
	}
	return domain.KindInvalid
}

// Mailbox implements ports.MailboxResolver.
func (t *Table) Mailbox(h domain.Handle) (ports.Mailbox, error) {
	if h.Kind != domain.KindMailbox || h.PID != t.pid {
		return nil, domain.ErrNoMailbox
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.mailboxes[h.ID]
	if !ok {
		return nil, domain.ErrNoMailbox
	}
	return m, nil
}

// Mailbox is a bounded in-process message queue owned by one thread.
type Mailbox struct {
	handle domain.Handle
	ch     chan []byte
}

// Handle returns the mailbox handle.
func (m *Mailbox) Handle() domain.Handle {
	return m.handle
}

// Send implements ports.Mailbox.
func (m *Mailbox) Send(data []byte) error {
	msg := append([]byte(nil), data...)
	select {
	case m.ch <- msg:
		return nil
	default:
		return domain.ErrMailboxFull
	}
}

// Receive returns the channel the owner reads messages from.
func (m *Mailbox) Receive() <-chan []byte {
	return m.ch
}

// NewInbox implements ports.ObjectTable.
func (t *Table) NewInbox(depth int) ports.Inbox {
	return t.NewMailbox(depth)
}
