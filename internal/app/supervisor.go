package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/testvisor/internal/domain"
	"github.com/bft-labs/testvisor/internal/ports"
	"github.com/bft-labs/testvisor/internal/registry"
	"github.com/bft-labs/testvisor/internal/ticks"
)

// DefaultInboxLookupUsecs bounds how long a worker waits for the main inbox.
const DefaultInboxLookupUsecs = 5_000_000

// Config holds supervisor settings.
type Config struct {
	Names Names

	// InboxLookupUsecs bounds the inbox lookup of failing worker threads.
	// ticks.WaitForever waits without a deadline.
	InboxLookupUsecs uint32

	// IterationPauseUsecs is slept between two test iterations.
	IterationPauseUsecs uint32

	// FailOnRoutineError makes a non-zero routine status call Fail from
	// the worker thread.
	FailOnRoutineError bool

	// InboxDepth is the capacity of the termination inbox.
	InboxDepth int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Names:              DefaultNames(),
		InboxLookupUsecs:   DefaultInboxLookupUsecs,
		FailOnRoutineError: true,
		InboxDepth:         1,
	}
}

// Dependencies are the adapters the supervisor is wired with.
type Dependencies struct {
	// Root holds the shared root scope.
	Root ports.Directory
	// Local holds this process's private scope.
	Local    ports.Directory
	Objects  ports.ObjectTable
	Platform ports.Platform
	Exiter   ports.Exiter
	Routine  ports.TestRoutine
	Sources  []ports.NotificationSource
	Logger   ports.Logger
}

// Reaction handles a notification kind that has no lifecycle meaning.
type Reaction func(ctx context.Context, n domain.Notification)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithReaction installs the reaction for kind. Terminate cannot be
// overridden.
func WithReaction(kind domain.NotificationKind, r Reaction) Option {
	return func(s *Supervisor) {
		if kind != domain.NotifyTerminate {
			s.reactions[kind] = r
		}
	}
}

// WithPhaseEmitter reports phase transitions to e.
func WithPhaseEmitter(e PhaseEmitter) Option {
	return func(s *Supervisor) {
		s.pc.emitter = e
	}
}

// Supervisor is the main thread: it initializes the process, starts the
// worker and dispatches notifications until teardown.
type Supervisor struct {
	cfg       Config
	deps      Dependencies
	pc        *ProcessContext
	coord     *Coordinator
	worker    *Worker
	reactions map[domain.NotificationKind]Reaction
	logger    ports.Logger

	workerDone chan int
}

// New wires a Supervisor. Nothing is registered until Run.
func New(cfg Config, deps Dependencies, opts ...Option) *Supervisor {
	if cfg.InboxDepth <= 0 {
		cfg.InboxDepth = 1
	}

	pc := NewProcessContext(deps.Logger, nil)
	root := registry.New(deps.Root, deps.Objects, deps.Logger)
	local := registry.New(deps.Local, deps.Objects, deps.Logger)

	coord := &Coordinator{
		pc:           pc,
		root:         root,
		local:        local,
		mailboxes:    deps.Objects,
		exiter:       deps.Exiter,
		logger:       deps.Logger,
		names:        cfg.Names,
		rootScope:    domain.RootScope,
		processScope: domain.ProcessScope(deps.Objects.PID()),
	}

	s := &Supervisor{
		cfg:   cfg,
		deps:  deps,
		pc:    pc,
		coord: coord,
		worker: &Worker{
			routine:     deps.Routine,
			pc:          pc,
			coord:       coord,
			logger:      deps.Logger,
			failOnError: cfg.FailOnRoutineError,
		},
		reactions:  make(map[domain.NotificationKind]Reaction),
		logger:     deps.Logger,
		workerDone: make(chan int, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Context returns the process context.
func (s *Supervisor) Context() *ProcessContext {
	return s.pc
}

// Coordinator returns the failure and teardown coordinator.
func (s *Supervisor) Coordinator() *Coordinator {
	return s.coord
}

// WorkerDone receives the worker's final status once it stops.
func (s *Supervisor) WorkerDone() <-chan int {
	return s.workerDone
}

// Run initializes the process and dispatches notifications. It must be
// called on the goroutine acting as the main thread. Teardown exits the
// process through the Exiter, so Run only returns when ctx is done or when
// initialization could not be completed. When ctx ends Run retracts the
// process name before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	main := s.deps.Objects.NewThread("main")
	ctx = WithThread(ctx, main)

	ratio, err := s.deps.Platform.KernelTickRatio()
	if err != nil {
		s.coord.Fail(ctx, "cannot copy system info: %v", err)
		return fmt.Errorf("%w: %w", domain.ErrInitFailed, err)
	}
	conv, err := ticks.FromKernelTickRatio(ratio)
	if err != nil {
		s.coord.Fail(ctx, "invalid low level tick length: %v", err)
		return fmt.Errorf("%w: %w", domain.ErrInitFailed, err)
	}
	s.coord.inboxWait = conv.Wait(s.cfg.InboxLookupUsecs)
	s.worker.pause = conv.Wait(s.cfg.IterationPauseUsecs)

	if err := s.pc.BeginInit(main); err != nil {
		return err
	}
	s.logger.Debug("initializing",
		ports.Int("pid", s.deps.Objects.PID()),
		ports.Uint32("tick_usecs", conv.TickUsecs()),
		ports.Duration("inbox_wait", s.coord.inboxWait),
	)

	if err := s.coord.local.Register(s.coord.processScope, main, s.cfg.Names.MainThread); err != nil {
		s.logger.Warn("cannot catalog main thread", ports.String("name", s.cfg.Names.MainThread), ports.Err(err))
	}

	if err := s.coord.root.Register(domain.RootScope, s.deps.Objects.Self(), s.cfg.Names.Process); err != nil {
		s.coord.Fail(ctx, "cannot catalog process name %q: %v", s.cfg.Names.Process, err)
		return fmt.Errorf("%w: %w", domain.ErrInitFailed, err)
	}
	if err := s.pc.RecordCataloged(); err != nil {
		return err
	}

	inbox := s.deps.Objects.NewInbox(s.cfg.InboxDepth)
	if err := s.coord.local.Register(s.coord.processScope, inbox.Handle(), s.cfg.Names.Inbox); err != nil {
		s.coord.Fail(ctx, "cannot catalog termination inbox %q: %v", s.cfg.Names.Inbox, err)
		return fmt.Errorf("%w: %w", domain.ErrInitFailed, err)
	}

	events, notifyDone := s.pump(ctx)

	workerCtx := WithThread(ctx, s.deps.Objects.NewThread("worker"))
	go func() {
		status := s.worker.Run(workerCtx)
		s.logger.Info("worker stopped", ports.Int("status", status))
		s.workerDone <- status
	}()

	if err := s.pc.CompleteInit(); err != nil {
		return err
	}
	s.logger.Info("initialization finished",
		ports.String("process", s.cfg.Names.Process),
		ports.String("routine", s.deps.Routine.Name()),
	)

	return s.dispatch(ctx, inbox, events, notifyDone)
}

// pump fans every notification source into one channel. The returned error
// channel fires once when the first source fails.
func (s *Supervisor) pump(ctx context.Context) (<-chan domain.Notification, <-chan error) {
	events := make(chan domain.Notification)
	if len(s.deps.Sources) == 0 {
		return events, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range s.deps.Sources {
		src := src
		g.Go(func() error {
			for {
				n, err := src.Next(gctx)
				if err != nil {
					return fmt.Errorf("%s: %w", src.Name(), err)
				}
				select {
				case events <- n:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()
	return events, done
}

func (s *Supervisor) dispatch(ctx context.Context, inbox ports.Inbox, events <-chan domain.Notification, notifyDone <-chan error) error {
	for {
		select {
		case n := <-events:
			if n.Kind == domain.NotifyTerminate {
				s.logger.Info("terminate notification", ports.String("source", n.Source))
				s.coord.Cleanup(ctx)
				return nil
			}
			s.react(ctx, n)

		case msg := <-inbox.Receive():
			var sig domain.TerminationSignal
			if err := sig.UnmarshalBinary(msg); err != nil || sig != domain.SignalTerminate {
				s.logger.Warn("ignoring inbox message", ports.Int("bytes", len(msg)), ports.Err(err))
				continue
			}
			s.logger.Info("termination request received")
			s.coord.Cleanup(ctx)
			return nil

		case err := <-notifyDone:
			if ctx.Err() != nil {
				return s.release(ctx)
			}
			s.coord.Fail(ctx, "notify failed: %v", err)
			s.coord.Cleanup(ctx)
			return fmt.Errorf("%w: %w", domain.ErrNotifyFailed, err)

		case <-ctx.Done():
			return s.release(ctx)
		}
	}
}

// release retracts the process name when ctx ends so that Run leaves no
// registration behind. It returns ctx.Err joined with any retract failure.
func (s *Supervisor) release(ctx context.Context) error {
	if err := s.coord.Release(ctx); err != nil {
		return errors.Join(ctx.Err(), err)
	}
	return ctx.Err()
}

// react runs the operator reaction for a non-terminate notification. Kinds
// without a reaction are logged and otherwise ignored.
func (s *Supervisor) react(ctx context.Context, n domain.Notification) {
	switch n.Kind {
	case domain.NotifyHostUp,
		domain.NotifyBluescreen,
		domain.NotifyKernelStopping,
		domain.NotifyHostHibernate,
		domain.NotifyHostStandby,
		domain.NotifyHostShutdownPending:
	default:
		s.logger.Warn("unknown notification", ports.Int("kind", int(n.Kind)), ports.String("source", n.Source))
		return
	}

	r, ok := s.reactions[n.Kind]
	if !ok {
		s.logger.Info("notification", ports.Stringer("kind", n.Kind), ports.String("source", n.Source))
		return
	}

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("reaction panicked", ports.Stringer("kind", n.Kind), ports.Any("panic", p))
		}
	}()
	r(ctx, n)
}
