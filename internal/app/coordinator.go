package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/testvisor/internal/domain"
	"github.com/bft-labs/testvisor/internal/ports"
	"github.com/bft-labs/testvisor/internal/registry"
)

// exitCode is used on every teardown path.
const exitCode = 0

// Names holds the fixed names the lifecycle core registers and looks up.
type Names struct {
	// Process is the process's name in the root scope.
	Process string
	// MainThread is the main thread's name in the process scope.
	MainThread string
	// Inbox is the main thread's termination inbox in the process scope.
	Inbox string
}

// DefaultNames returns the names used when none are configured.
func DefaultNames() Names {
	return Names{
		Process:    "testvisor",
		MainThread: "TMain",
		Inbox:      "R?EXIT_MBOX",
	}
}

// Coordinator routes failures and performs teardown. It is shared by the
// main thread and every worker thread.
type Coordinator struct {
	pc        *ProcessContext
	root      *registry.Registry
	local     *registry.Registry
	mailboxes ports.MailboxResolver
	exiter    ports.Exiter
	logger    ports.Logger

	names        Names
	rootScope    domain.Scope
	processScope domain.Scope

	// inboxWait bounds the inbox lookup of non-main threads. It is set once
	// the tick length is known.
	inboxWait time.Duration
}

// Fail reports a failure from any thread and routes it:
//
//   - before initialization the process exits at once;
//   - on the main thread during initialization Cleanup runs and Fail does
//     not return;
//   - on the main thread after initialization Fail only reports;
//   - on any other thread a termination request is posted to the main
//     inbox and Fail returns.
//
// A panic raised while handling the failure is logged and Fail returns.
func (c *Coordinator) Fail(ctx context.Context, format string, args ...interface{}) {
	defer c.contain()

	thread := ThreadFrom(ctx)
	phase := c.pc.Phase()
	c.logger.Error(fmt.Sprintf(format, args...),
		ports.Stringer("thread", thread),
		ports.Stringer("phase", phase),
	)

	if phase == domain.PhaseBeforeInit {
		c.exiter.Exit(exitCode)
		return
	}

	if main := c.pc.Main(); !thread.IsBad() && thread == main {
		if phase == domain.PhaseInitBusy {
			c.Cleanup(ctx)
		}
		return
	}

	c.requestTermination(ctx, thread)
}

// requestTermination posts SignalTerminate to the main inbox. Every failure
// along the way is logged and dropped.
func (c *Coordinator) requestTermination(ctx context.Context, thread domain.Handle) {
	h, err := c.local.Lookup(ctx, c.processScope, c.names.Inbox, c.inboxWait)
	if err != nil {
		c.logger.Warn("termination inbox not found",
			ports.String("inbox", c.names.Inbox),
			ports.Duration("wait", c.inboxWait),
			ports.Err(err),
		)
		return
	}

	mbx, err := c.mailboxes.Mailbox(h)
	if err != nil {
		c.logger.Warn("termination inbox unusable", ports.Stringer("handle", h), ports.Err(err))
		return
	}

	if err := mbx.Send(domain.SignalTerminate.Bytes()); err != nil {
		if errors.Is(err, domain.ErrMailboxFull) {
			c.logger.Debug("termination already pending")
			return
		}
		c.logger.Warn("cannot send termination request", ports.Err(err))
		return
	}
	c.logger.Info("termination requested", ports.Stringer("thread", thread))
}

// Cleanup tears the process down: it enters CleanupBusy, retracts the
// process name from the root scope and exits. It runs at most once; a
// caller that loses the race returns immediately. The winner does not
// return.
func (c *Coordinator) Cleanup(ctx context.Context) {
	won, err := c.retract(ctx)
	if !won {
		return
	}
	if err == nil {
		c.logger.Info("cleanup finished")
	}
	c.exiter.Exit(exitCode)
}

// Release is Cleanup without the exit: it enters CleanupBusy and retracts
// the process name, then returns. It is used when the main thread's
// context ends. A call that loses the race to Cleanup does nothing.
func (c *Coordinator) Release(ctx context.Context) error {
	won, err := c.retract(ctx)
	if won && err == nil {
		c.logger.Info("released")
	}
	return err
}

// retract enters CleanupBusy and removes the process name from the root
// scope. won is false when another caller already started cleanup.
func (c *Coordinator) retract(ctx context.Context) (won bool, err error) {
	if err := c.pc.BeginCleanup(); err != nil {
		c.logger.Debug("cleanup skipped", ports.Err(err))
		return false, nil
	}

	c.logger.Info("cleanup started", ports.Stringer("thread", ThreadFrom(ctx)))

	if !c.pc.Cataloged() {
		return true, nil
	}
	if err := c.root.Unregister(c.rootScope, c.names.Process); err != nil {
		c.logger.Error("cannot remove my own name",
			ports.String("name", c.names.Process),
			ports.Err(err),
		)
		return true, err
	}
	return true, nil
}

func (c *Coordinator) contain() {
	if r := recover(); r != nil {
		c.logger.Error("fault while handling failure", ports.Any("panic", r))
	}
}
