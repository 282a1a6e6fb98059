package app

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/testvisor/internal/adapters/memdir"
	"github.com/bft-labs/testvisor/internal/adapters/proc"
	"github.com/bft-labs/testvisor/internal/domain"
	"github.com/bft-labs/testvisor/internal/ports"
	"github.com/bft-labs/testvisor/internal/registry"
)

// mockLogger records messages and their fields for assertions.
type mockLogger struct {
	mu       sync.Mutex
	messages []string
	fields   [][]ports.Field
}

func (m *mockLogger) record(msg string, fields []ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	m.fields = append(m.fields, fields)
}

func (m *mockLogger) Debug(msg string, fields ...ports.Field) { m.record(msg, fields) }
func (m *mockLogger) Info(msg string, fields ...ports.Field)  { m.record(msg, fields) }
func (m *mockLogger) Warn(msg string, fields ...ports.Field)  { m.record(msg, fields) }
func (m *mockLogger) Error(msg string, fields ...ports.Field) { m.record(msg, fields) }

func (m *mockLogger) has(msg string) bool {
	_, ok := m.find(msg)
	return ok
}

// field returns the value of key on the first message equal to msg.
func (m *mockLogger) field(msg, key string) (interface{}, bool) {
	fields, ok := m.find(msg)
	if !ok {
		return nil, false
	}
	for _, f := range fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (m *mockLogger) find(msg string) ([]ports.Field, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, got := range m.messages {
		if got == msg {
			return m.fields[i], true
		}
	}
	return nil, false
}

// mockExiter records exit codes and ends the calling goroutine, so code
// after Exit never runs, as with os.Exit.
type mockExiter struct {
	mu     sync.Mutex
	codes  []int
	exited chan int
}

func newMockExiter() *mockExiter {
	return &mockExiter{exited: make(chan int, 64)}
}

func (e *mockExiter) Exit(code int) {
	e.mu.Lock()
	e.codes = append(e.codes, code)
	e.mu.Unlock()
	e.exited <- code
	runtime.Goexit()
}

func (e *mockExiter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.codes)
}

// wait returns the first exit code, failing the test on timeout.
func (e *mockExiter) wait(t *testing.T) int {
	t.Helper()
	select {
	case code := <-e.exited:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
		return -1
	}
}

// onThread runs fn on a new goroutine and reports whether fn returned
// normally (true) or the goroutine was ended by the exiter (false).
func onThread(fn func()) bool {
	done := make(chan bool, 1)
	go func() {
		returned := false
		defer func() { done <- returned }()
		fn()
		returned = true
	}()
	return <-done
}

// testObjects is a proc.Table whose foreign processes are alive only when
// listed in foreign.
type testObjects struct {
	*proc.Table
	foreign map[int]bool
}

func newTestObjects(foreignAlive ...int) *testObjects {
	o := &testObjects{Table: proc.NewTable(), foreign: make(map[int]bool)}
	for _, pid := range foreignAlive {
		o.foreign[pid] = true
	}
	return o
}

func (o *testObjects) TypeOf(h domain.Handle) domain.Kind {
	if !h.IsBad() && h.PID != o.PID() {
		if o.foreign[h.PID] {
			return h.Kind
		}
		return domain.KindInvalid
	}
	return o.Table.TypeOf(h)
}

// countingDirectory counts Uncatalog calls and can refuse them.
type countingDirectory struct {
	*memdir.Directory
	mu             sync.Mutex
	uncatalogCalls int
	failUncatalog  bool
}

func (c *countingDirectory) Uncatalog(scope domain.Scope, name string) error {
	c.mu.Lock()
	c.uncatalogCalls++
	fail := c.failUncatalog
	c.mu.Unlock()
	if fail {
		return errors.New("directory refused")
	}
	return c.Directory.Uncatalog(scope, name)
}

func (c *countingDirectory) uncatalogs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uncatalogCalls
}

type coordinatorFixture struct {
	coord   *Coordinator
	pc      *ProcessContext
	root    *countingDirectory
	local   *memdir.Directory
	objects *testObjects
	exiter  *mockExiter
	logger  *mockLogger
	main    domain.Handle
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()

	logger := &mockLogger{}
	objects := newTestObjects()
	root := &countingDirectory{Directory: memdir.New()}
	local := memdir.New()
	pc := NewProcessContext(logger, nil)
	exiter := newMockExiter()

	coord := &Coordinator{
		pc:           pc,
		root:         registry.New(root, objects, logger),
		local:        registry.New(local, objects, logger),
		mailboxes:    objects,
		exiter:       exiter,
		logger:       logger,
		names:        DefaultNames(),
		rootScope:    domain.RootScope,
		processScope: domain.ProcessScope(objects.PID()),
		inboxWait:    50 * time.Millisecond,
	}

	return &coordinatorFixture{
		coord:   coord,
		pc:      pc,
		root:    root,
		local:   local,
		objects: objects,
		exiter:  exiter,
		logger:  logger,
		main:    objects.NewThread("main"),
	}
}

// initialize performs BeginInit and registers the process name, leaving the
// context in InitBusy.
func (f *coordinatorFixture) initialize(t *testing.T) {
	t.Helper()
	if err := f.pc.BeginInit(f.main); err != nil {
		t.Fatalf("BeginInit: %v", err)
	}
	if err := f.coord.root.Register(domain.RootScope, f.objects.Self(), f.coord.names.Process); err != nil {
		t.Fatalf("Register process: %v", err)
	}
	if err := f.pc.RecordCataloged(); err != nil {
		t.Fatalf("RecordCataloged: %v", err)
	}
}

// openInbox creates and registers the main inbox.
func (f *coordinatorFixture) openInbox(t *testing.T) ports.Inbox {
	t.Helper()
	inbox := f.objects.NewInbox(1)
	if err := f.coord.local.Register(f.coord.processScope, inbox.Handle(), f.coord.names.Inbox); err != nil {
		t.Fatalf("Register inbox: %v", err)
	}
	return inbox
}

func (f *coordinatorFixture) mainCtx() context.Context {
	return WithThread(context.Background(), f.main)
}

func (f *coordinatorFixture) workerCtx() context.Context {
	return WithThread(context.Background(), f.objects.NewThread("worker"))
}

func (f *coordinatorFixture) processNameRegistered() bool {
	_, err := f.root.Lookup(context.Background(), domain.RootScope, f.coord.names.Process, 0)
	return err == nil
}
