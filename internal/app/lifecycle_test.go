package app

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bft-labs/testvisor/internal/domain"
)

// mockEmitter tracks phase change events for testing.
type mockEmitter struct {
	mu     sync.Mutex
	events []phaseChangeEvent
}

type phaseChangeEvent struct {
	previous domain.Phase
	current  domain.Phase
}

func (m *mockEmitter) OnPhaseChange(previous, current domain.Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, phaseChangeEvent{previous, current})
}

func (m *mockEmitter) Events() []phaseChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]phaseChangeEvent{}, m.events...)
}

var mainHandle = domain.Handle{Kind: domain.KindThread, PID: 1, ID: 1}

func TestNewProcessContext(t *testing.T) {
	pc := NewProcessContext(&mockLogger{}, nil)

	if pc.Phase() != domain.PhaseBeforeInit {
		t.Errorf("initial phase = %v, want BeforeInit", pc.Phase())
	}
	if !pc.Main().IsBad() {
		t.Errorf("initial main = %v, want bad handle", pc.Main())
	}
	if pc.Cataloged() || pc.ShutdownRequested() {
		t.Error("flags set on a fresh context")
	}
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase domain.Phase
		want  string
	}{
		{domain.PhaseBeforeInit, "BeforeInit"},
		{domain.PhaseInitBusy, "InitBusy"},
		{domain.PhaseInitDone, "InitDone"},
		{domain.PhaseCleanupBusy, "CleanupBusy"},
		{domain.Phase(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %s, want %s", tt.phase, got, tt.want)
		}
	}
}

// transition applies the named operation to pc.
func transition(pc *ProcessContext, op string) error {
	switch op {
	case "BeginInit":
		return pc.BeginInit(mainHandle)
	case "CompleteInit":
		return pc.CompleteInit()
	case "BeginCleanup":
		return pc.BeginCleanup()
	}
	panic("unknown op " + op)
}

// contextAt returns a context that has been driven to phase.
func contextAt(t *testing.T, phase domain.Phase) *ProcessContext {
	t.Helper()
	pc := NewProcessContext(&mockLogger{}, nil)
	steps := map[domain.Phase][]string{
		domain.PhaseBeforeInit:  nil,
		domain.PhaseInitBusy:    {"BeginInit"},
		domain.PhaseInitDone:    {"BeginInit", "CompleteInit"},
		domain.PhaseCleanupBusy: {"BeginInit", "CompleteInit", "BeginCleanup"},
	}
	for _, op := range steps[phase] {
		if err := transition(pc, op); err != nil {
			t.Fatalf("%s: %v", op, err)
		}
	}
	return pc
}

func TestProcessContext_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.Phase
		op      string
		want    domain.Phase
		wantErr error
	}{
		{"begin init", domain.PhaseBeforeInit, "BeginInit", domain.PhaseInitBusy, nil},
		{"complete init", domain.PhaseInitBusy, "CompleteInit", domain.PhaseInitDone, nil},
		{"cleanup during init", domain.PhaseInitBusy, "BeginCleanup", domain.PhaseCleanupBusy, nil},
		{"cleanup after init", domain.PhaseInitDone, "BeginCleanup", domain.PhaseCleanupBusy, nil},
		{"cleanup twice", domain.PhaseCleanupBusy, "BeginCleanup", domain.PhaseCleanupBusy, domain.ErrCleanupInProgress},
		{"cleanup before init", domain.PhaseBeforeInit, "BeginCleanup", domain.PhaseBeforeInit, domain.ErrInvalidTransition},
		{"complete before init", domain.PhaseBeforeInit, "CompleteInit", domain.PhaseBeforeInit, domain.ErrInvalidTransition},
		{"begin init twice", domain.PhaseInitBusy, "BeginInit", domain.PhaseInitBusy, domain.ErrInvalidTransition},
		{"complete init twice", domain.PhaseInitDone, "CompleteInit", domain.PhaseInitDone, domain.ErrInvalidTransition},
		{"begin init after cleanup", domain.PhaseCleanupBusy, "BeginInit", domain.PhaseCleanupBusy, domain.ErrInvalidTransition},
		{"complete init after cleanup", domain.PhaseCleanupBusy, "CompleteInit", domain.PhaseCleanupBusy, domain.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := contextAt(t, tt.from)

			err := transition(pc, tt.op)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("%s error = %v, want %v", tt.op, err, tt.wantErr)
			}
			if pc.Phase() != tt.want {
				t.Errorf("phase = %v, want %v", pc.Phase(), tt.want)
			}
		})
	}
}

func TestProcessContext_BeginInitRejectsBadHandle(t *testing.T) {
	pc := NewProcessContext(&mockLogger{}, nil)

	if err := pc.BeginInit(domain.BadHandle); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("BeginInit(bad) error = %v, want ErrInvalidTransition", err)
	}
	if pc.Phase() != domain.PhaseBeforeInit {
		t.Errorf("phase = %v, want BeforeInit", pc.Phase())
	}
}

func TestProcessContext_BeginCleanupRequestsShutdown(t *testing.T) {
	pc := contextAt(t, domain.PhaseInitDone)

	if pc.ShutdownRequested() {
		t.Fatal("shutdown requested before cleanup")
	}
	if err := pc.BeginCleanup(); err != nil {
		t.Fatalf("BeginCleanup: %v", err)
	}
	if !pc.ShutdownRequested() {
		t.Error("shutdown not requested after cleanup began")
	}
}

func TestProcessContext_RecordCataloged(t *testing.T) {
	for _, phase := range []domain.Phase{domain.PhaseBeforeInit, domain.PhaseInitDone, domain.PhaseCleanupBusy} {
		pc := contextAt(t, phase)
		if err := pc.RecordCataloged(); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("RecordCataloged in %v error = %v, want ErrInvalidTransition", phase, err)
		}
		if pc.Cataloged() {
			t.Errorf("cataloged flag set in %v", phase)
		}
	}

	pc := contextAt(t, domain.PhaseInitBusy)
	if err := pc.RecordCataloged(); err != nil {
		t.Fatalf("RecordCataloged: %v", err)
	}
	if !pc.Cataloged() {
		t.Error("cataloged flag not set")
	}
}

func TestProcessContext_MonotonicPhase(t *testing.T) {
	ops := []string{"BeginInit", "CompleteInit", "BeginCleanup"}
	rng := rand.New(rand.NewSource(1))

	for run := 0; run < 200; run++ {
		pc := NewProcessContext(&mockLogger{}, nil)
		last := pc.Phase()
		for step := 0; step < 10; step++ {
			_ = transition(pc, ops[rng.Intn(len(ops))])
			cur := pc.Phase()
			if cur < last {
				t.Fatalf("run %d: phase regressed from %v to %v", run, last, cur)
			}
			last = cur
		}
	}
}

func TestProcessContext_ConcurrentBeginCleanup(t *testing.T) {
	const n = 32
	pc := contextAt(t, domain.PhaseInitDone)

	var (
		wg       sync.WaitGroup
		winners  atomic.Int32
		inFlight atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := pc.BeginCleanup()
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, domain.ErrCleanupInProgress):
				inFlight.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("winners = %d, want 1", winners.Load())
	}
	if inFlight.Load() != n-1 {
		t.Errorf("already-in-progress = %d, want %d", inFlight.Load(), n-1)
	}
}

func TestProcessContext_EmitsEvents(t *testing.T) {
	emitter := &mockEmitter{}
	pc := NewProcessContext(&mockLogger{}, emitter)

	_ = pc.BeginInit(mainHandle)
	_ = pc.CompleteInit()
	_ = pc.BeginCleanup()
	_ = pc.BeginCleanup()

	want := []phaseChangeEvent{
		{domain.PhaseBeforeInit, domain.PhaseInitBusy},
		{domain.PhaseInitBusy, domain.PhaseInitDone},
		{domain.PhaseInitDone, domain.PhaseCleanupBusy},
	}
	got := emitter.Events()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
}
