package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/testvisor/internal/adapters/fsdir"
	logAdapter "github.com/bft-labs/testvisor/internal/adapters/log"
	"github.com/bft-labs/testvisor/internal/adapters/memdir"
	"github.com/bft-labs/testvisor/internal/domain"
)

// fakeTypes reports handles in live as valid and everything else invalid.
type fakeTypes struct {
	mu   sync.Mutex
	live map[domain.Handle]bool
}

func newFakeTypes(live ...domain.Handle) *fakeTypes {
	f := &fakeTypes{live: make(map[domain.Handle]bool)}
	for _, h := range live {
		f.live[h] = true
	}
	return f
}

func (f *fakeTypes) TypeOf(h domain.Handle) domain.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live[h] {
		return h.Kind
	}
	return domain.KindInvalid
}

func (f *fakeTypes) kill(h domain.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, h)
}

// scriptedDirectory wraps a memdir and can force catalog failures.
type scriptedDirectory struct {
	*memdir.Directory
	catalogCalls   int
	uncatalogCalls int
	failCatalog    int // number of leading Catalog calls to fail
	failUncatalog  bool
}

func (s *scriptedDirectory) Catalog(scope domain.Scope, obj domain.Handle, name string) error {
	s.catalogCalls++
	if s.catalogCalls <= s.failCatalog {
		return errors.New("catalog refused")
	}
	return s.Directory.Catalog(scope, obj, name)
}

func (s *scriptedDirectory) Uncatalog(scope domain.Scope, name string) error {
	s.uncatalogCalls++
	if s.failUncatalog {
		return errors.New("uncatalog refused")
	}
	return s.Directory.Uncatalog(scope, name)
}

var (
	scope = domain.RootScope
	oldP  = domain.ProcessHandle(10)
	newP  = domain.ProcessHandle(20)
)

func lookup(t *testing.T, r *Registry, name string) domain.Handle {
	t.Helper()
	h, err := r.Lookup(context.Background(), scope, name, 0)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", name, err)
	}
	return h
}

func TestRegister_FreeName(t *testing.T) {
	r := New(memdir.New(), newFakeTypes(newP), logAdapter.NewNoopLogger())

	if err := r.Register(scope, newP, "X"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := lookup(t, r, "X"); got != newP {
		t.Errorf("X -> %v, want %v", got, newP)
	}
}

func TestRegister_ReclaimsStaleEntry(t *testing.T) {
	types := newFakeTypes(oldP, newP)
	dir := &scriptedDirectory{Directory: memdir.New()}
	r := New(dir, types, logAdapter.NewNoopLogger())

	if err := r.Register(scope, oldP, "X"); err != nil {
		t.Fatalf("Register(old): %v", err)
	}
	types.kill(oldP)

	if err := r.Register(scope, newP, "X"); err != nil {
		t.Fatalf("Register over stale entry: %v", err)
	}
	if got := lookup(t, r, "X"); got != newP {
		t.Errorf("X -> %v, want %v", got, newP)
	}
	if dir.uncatalogCalls != 1 {
		t.Errorf("uncatalog calls = %d, want 1", dir.uncatalogCalls)
	}
}

func TestRegister_LiveHolderKept(t *testing.T) {
	dir := &scriptedDirectory{Directory: memdir.New()}
	r := New(dir, newFakeTypes(oldP, newP), logAdapter.NewNoopLogger())

	if err := r.Register(scope, oldP, "X"); err != nil {
		t.Fatalf("Register(old): %v", err)
	}

	err := r.Register(scope, newP, "X")
	if !errors.Is(err, domain.ErrNameInUse) {
		t.Fatalf("Register over live entry error = %v, want ErrNameInUse", err)
	}
	if got := lookup(t, r, "X"); got != oldP {
		t.Errorf("X -> %v, want original %v", got, oldP)
	}
	if dir.uncatalogCalls != 0 {
		t.Errorf("uncatalog calls = %d, want 0", dir.uncatalogCalls)
	}
}

func TestRegister_SamePIDEarlierInstance(t *testing.T) {
	root := t.TempDir()
	earlier := fsdir.New(root, logAdapter.NewNoopLogger())
	if err := earlier.Catalog(scope, newP, "testvisor"); err != nil {
		t.Fatalf("Catalog(earlier): %v", err)
	}

	// newP stays live: the restarted process was given the same pid.
	current := fsdir.New(root, logAdapter.NewNoopLogger())
	r := New(current, newFakeTypes(newP), logAdapter.NewNoopLogger())

	if err := r.Register(scope, newP, "testvisor"); err != nil {
		t.Fatalf("Register over earlier instance: %v", err)
	}
	stamp, err := current.Stamp(scope, "testvisor")
	if err != nil {
		t.Fatalf("Stamp: %v", err)
	}
	if stamp != current.Instance() {
		t.Errorf("stamp = %q, want current instance %q", stamp, current.Instance())
	}
}

func TestRegister_StampedLiveHolderKept(t *testing.T) {
	root := t.TempDir()
	other := fsdir.New(root, logAdapter.NewNoopLogger())
	current := fsdir.New(root, logAdapter.NewNoopLogger())
	r := New(current, newFakeTypes(oldP, newP), logAdapter.NewNoopLogger())

	tests := []struct {
		name   string
		holder *fsdir.Directory
		held   domain.Handle
	}{
		{"other pid, other instance", other, oldP},
		{"same pid, same instance", current, newP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.holder.Catalog(scope, tt.held, "X"); err != nil {
				t.Fatalf("Catalog: %v", err)
			}
			t.Cleanup(func() { _ = tt.holder.Uncatalog(scope, "X") })

			if err := r.Register(scope, newP, "X"); !errors.Is(err, domain.ErrNameInUse) {
				t.Fatalf("Register error = %v, want ErrNameInUse", err)
			}
			if got := lookup(t, r, "X"); got != tt.held {
				t.Errorf("X -> %v, want %v", got, tt.held)
			}
		})
	}
}

func TestRegister_SingleRetry(t *testing.T) {
	types := newFakeTypes(newP)
	dir := &scriptedDirectory{Directory: memdir.New()}
	_ = dir.Directory.Catalog(scope, oldP, "X") // stale: oldP is not live
	dir.failCatalog = 2

	r := New(dir, types, logAdapter.NewNoopLogger())
	err := r.Register(scope, newP, "X")

	if !errors.Is(err, domain.ErrNameInUse) {
		t.Fatalf("error = %v, want ErrNameInUse", err)
	}
	if dir.catalogCalls != 2 {
		t.Errorf("catalog calls = %d, want exactly 2", dir.catalogCalls)
	}
}

func TestRegister_UncatalogFailure(t *testing.T) {
	dir := &scriptedDirectory{Directory: memdir.New(), failUncatalog: true}
	_ = dir.Directory.Catalog(scope, oldP, "X")

	r := New(dir, newFakeTypes(newP), logAdapter.NewNoopLogger())
	if err := r.Register(scope, newP, "X"); !errors.Is(err, domain.ErrNameInUse) {
		t.Fatalf("error = %v, want ErrNameInUse", err)
	}
	if dir.catalogCalls != 1 {
		t.Errorf("catalog calls = %d, want 1 (no retry without reclaim)", dir.catalogCalls)
	}
}

func TestRegister_CatalogErrorWithoutEntry(t *testing.T) {
	dir := &scriptedDirectory{Directory: memdir.New(), failCatalog: 1}
	r := New(dir, newFakeTypes(newP), logAdapter.NewNoopLogger())

	if err := r.Register(scope, newP, "X"); !errors.Is(err, domain.ErrNameInUse) {
		t.Fatalf("error = %v, want ErrNameInUse", err)
	}
	if dir.catalogCalls != 1 {
		t.Errorf("catalog calls = %d, want 1", dir.catalogCalls)
	}
}

func TestRegister_Validation(t *testing.T) {
	r := New(memdir.New(), newFakeTypes(), logAdapter.NewNoopLogger())

	tests := []struct {
		name    string
		obj     domain.Handle
		regName string
		wantErr error
	}{
		{"empty name", newP, "", domain.ErrInvalidName},
		{"fifteen chars", newP, "abcdefghijklmno", domain.ErrInvalidName},
		{"non ascii", newP, "caf\xc3\xa9", domain.ErrInvalidName},
		{"space", newP, "a b", domain.ErrInvalidName},
		{"bad handle", domain.BadHandle, "ok", domain.ErrBadHandle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(scope, tt.obj, tt.regName); !errors.Is(err, tt.wantErr) {
				t.Errorf("Register error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := r.Register(scope, newP, "fourteen-chars"); err != nil {
		t.Errorf("14-character name rejected: %v", err)
	}
}

func TestUnregister(t *testing.T) {
	r := New(memdir.New(), newFakeTypes(newP), logAdapter.NewNoopLogger())
	_ = r.Register(scope, newP, "X")

	if err := r.Unregister(scope, "X"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := r.Unregister(scope, "X"); !errors.Is(err, domain.ErrNameNotFound) {
		t.Errorf("second Unregister error = %v, want ErrNameNotFound", err)
	}
}

func TestLookup_Wait(t *testing.T) {
	r := New(memdir.New(), newFakeTypes(newP), logAdapter.NewNoopLogger())

	if _, err := r.Lookup(context.Background(), scope, "X", 10*time.Millisecond); !errors.Is(err, domain.ErrNameNotFound) {
		t.Errorf("Lookup error = %v, want ErrNameNotFound", err)
	}
}

func TestInspectAndPrune(t *testing.T) {
	types := newFakeTypes(oldP, newP)
	r := New(memdir.New(), types, logAdapter.NewNoopLogger())
	_ = r.Register(scope, oldP, "old")
	_ = r.Register(scope, newP, "new")
	types.kill(oldP)

	statuses, err := r.Inspect(scope)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	stale := map[string]bool{}
	for _, s := range statuses {
		stale[s.Name] = s.Stale
	}
	if !stale["old"] || stale["new"] {
		t.Errorf("stale flags = %v, want old only", stale)
	}

	removed, err := r.Prune(scope)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 1 || removed[0] != "old" {
		t.Errorf("Prune removed %v, want [old]", removed)
	}
	if got := lookup(t, r, "new"); got != newP {
		t.Errorf("live entry removed")
	}
}
