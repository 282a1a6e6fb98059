// Package memdir implements an in-process ports.Directory.
//
// It backs the private process scope: the main thread's name and the
// termination inbox live here and disappear with the process.
package memdir

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/testvisor/internal/domain"
	"github.com/bft-labs/testvisor/internal/ports"
)

// Directory is a mutex-guarded map of scopes to name bindings.
type Directory struct {
	mu      sync.Mutex
	scopes  map[domain.Scope]map[string]domain.Handle
	changed chan struct{} // closed and replaced on every Catalog
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{
		scopes:  make(map[domain.Scope]map[string]domain.Handle),
		changed: make(chan struct{}),
	}
}

// Catalog implements ports.Directory.
func (d *Directory) Catalog(scope domain.Scope, obj domain.Handle, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	names, ok := d.scopes[scope]
	if !ok {
		names = make(map[string]domain.Handle)
		d.scopes[scope] = names
	}
	if _, exists := names[name]; exists {
		return domain.ErrNameExists
	}
	names[name] = obj

	close(d.changed)
	d.changed = make(chan struct{})
	return nil
}

// Lookup implements ports.Directory.
func (d *Directory) Lookup(ctx context.Context, scope domain.Scope, name string, wait time.Duration) (domain.Handle, error) {
	var deadline <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		d.mu.Lock()
		h, ok := d.scopes[scope][name]
		changed := d.changed
		d.mu.Unlock()

		if ok {
			return h, nil
		}
		if wait == 0 {
			return domain.BadHandle, domain.ErrNameNotFound
		}

		select {
		case <-changed:
		case <-deadline:
			return domain.BadHandle, domain.ErrNameNotFound
		case <-ctx.Done():
			return domain.BadHandle, domain.ErrNameNotFound
		}
	}
}

// Uncatalog implements ports.Directory.
func (d *Directory) Uncatalog(scope domain.Scope, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := d.scopes[scope]
	if _, ok := names[name]; !ok {
		return domain.ErrNameNotFound
	}
	delete(names, name)
	return nil
}

// List implements ports.ListingDirectory. Entries are sorted by name.
func (d *Directory) List(scope domain.Scope) ([]ports.Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := make([]ports.Entry, 0, len(d.scopes[scope]))
	for name, h := range d.scopes[scope] {
		entries = append(entries, ports.Entry{Scope: scope, Name: name, Handle: h})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
