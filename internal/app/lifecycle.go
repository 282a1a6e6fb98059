package app

import (
	"sync"

	"github.com/bft-labs/testvisor/internal/domain"
	"github.com/bft-labs/testvisor/internal/ports"
)

// PhaseEmitter is called after every successful phase transition.
type PhaseEmitter interface {
	OnPhaseChange(previous, current domain.Phase)
}

// ProcessContext is the process-wide coordination record. Exactly one exists
// per process; it is created by the supervisor and passed by pointer to the
// coordinator and the worker. All mutation goes through the transition
// methods below.
type ProcessContext struct {
	mu        sync.Mutex
	main      domain.Handle
	phase     domain.Phase
	cataloged bool
	shutdown  bool
	logger    ports.Logger
	emitter   PhaseEmitter
}

// NewProcessContext creates a context in PhaseBeforeInit.
func NewProcessContext(logger ports.Logger, emitter PhaseEmitter) *ProcessContext {
	return &ProcessContext{
		phase:   domain.PhaseBeforeInit,
		logger:  logger,
		emitter: emitter,
	}
}

// Phase returns the current phase.
func (p *ProcessContext) Phase() domain.Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Main returns the main thread's handle, or domain.BadHandle before init.
func (p *ProcessContext) Main() domain.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.main
}

// Cataloged reports whether the process name is registered in the root scope.
func (p *ProcessContext) Cataloged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cataloged
}

// ShutdownRequested reports whether cleanup has begun. Worker threads stop
// starting new work once it is set.
func (p *ProcessContext) ShutdownRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdown
}

// BeginInit moves BeforeInit -> InitBusy and records the main thread.
func (p *ProcessContext) BeginInit(main domain.Handle) error {
	p.mu.Lock()
	if p.phase != domain.PhaseBeforeInit || main.IsBad() {
		p.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	p.main = main
	p.phase = domain.PhaseInitBusy
	p.mu.Unlock()

	p.emit(domain.PhaseBeforeInit, domain.PhaseInitBusy)
	return nil
}

// CompleteInit moves InitBusy -> InitDone.
func (p *ProcessContext) CompleteInit() error {
	p.mu.Lock()
	if p.phase != domain.PhaseInitBusy {
		p.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	p.phase = domain.PhaseInitDone
	p.mu.Unlock()

	p.emit(domain.PhaseInitBusy, domain.PhaseInitDone)
	return nil
}

// BeginCleanup moves InitBusy or InitDone -> CleanupBusy and requests
// shutdown. Of any number of concurrent callers exactly one succeeds; the
// others get domain.ErrCleanupInProgress and must not tear anything down.
func (p *ProcessContext) BeginCleanup() error {
	p.mu.Lock()
	prev := p.phase
	switch prev {
	case domain.PhaseCleanupBusy:
		p.mu.Unlock()
		return domain.ErrCleanupInProgress
	case domain.PhaseInitBusy, domain.PhaseInitDone:
	default:
		p.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	p.phase = domain.PhaseCleanupBusy
	p.shutdown = true
	p.mu.Unlock()

	p.emit(prev, domain.PhaseCleanupBusy)
	return nil
}

// RecordCataloged notes that the process name was registered. Only valid
// while initializing.
func (p *ProcessContext) RecordCataloged() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase != domain.PhaseInitBusy {
		return domain.ErrInvalidTransition
	}
	p.cataloged = true
	return nil
}

func (p *ProcessContext) emit(from, to domain.Phase) {
	if p.emitter != nil {
		p.emitter.OnPhaseChange(from, to)
	}
	p.logger.Info("phase transition",
		ports.Stringer("from", from),
		ports.Stringer("to", to),
	)
}
