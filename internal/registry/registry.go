// Package registry registers objects under names in a scoped directory and
// reclaims names left behind by objects that no longer exist.
//
// A process that crashes or is killed without running cleanup leaves its
// name cataloged. Register recovers from that once: if the existing entry
// refers to an invalid object, the entry is removed and cataloging is
// retried a single time. A name held by a live object is never overridden.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/testvisor/internal/domain"
	"github.com/bft-labs/testvisor/internal/ports"
)

// Registry applies the reclaim protocol on top of a ports.Directory.
type Registry struct {
	dir    ports.Directory
	types  ports.ObjectTypes
	logger ports.Logger
}

// New creates a Registry.
func New(dir ports.Directory, types ports.ObjectTypes, logger ports.Logger) *Registry {
	return &Registry{dir: dir, types: types, logger: logger}
}

// Register catalogs obj under name in scope, reclaiming a stale entry once.
// Returns an error wrapping domain.ErrNameInUse when the name stays taken.
func (r *Registry) Register(scope domain.Scope, obj domain.Handle, name string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if obj.IsBad() {
		return domain.ErrBadHandle
	}

	err := r.dir.Catalog(scope, obj, name)
	if err == nil {
		return nil
	}

	old, lerr := r.dir.Lookup(context.Background(), scope, name, 0)
	if lerr != nil {
		return fmt.Errorf("%w: catalog %q: %w", domain.ErrNameInUse, name, err)
	}
	if !r.stale(scope, name, obj, old) {
		return fmt.Errorf("%w: %q -> %s", domain.ErrNameInUse, name, old)
	}

	r.logger.Warn("reclaiming stale name",
		ports.String("scope", string(scope)),
		ports.String("name", name),
		ports.Stringer("stale", old),
	)
	if uerr := r.dir.Uncatalog(scope, name); uerr != nil {
		return fmt.Errorf("%w: remove stale %q: %w", domain.ErrNameInUse, name, uerr)
	}
	if err := r.dir.Catalog(scope, obj, name); err != nil {
		return fmt.Errorf("%w: catalog %q after reclaim: %w", domain.ErrNameInUse, name, err)
	}
	return nil
}

// stale reports whether old, found under name, can be reclaimed for obj.
// An invalid object is stale. So is an entry with obj's pid stamped by
// another directory instance: it was left by an earlier process that was
// given the same pid, which is common for pid 1 in containers.
func (r *Registry) stale(scope domain.Scope, name string, obj, old domain.Handle) bool {
	if r.types.TypeOf(old) == domain.KindInvalid {
		return true
	}
	sd, ok := r.dir.(ports.StampedDirectory)
	if !ok || old.PID != obj.PID {
		return false
	}
	stamp, err := sd.Stamp(scope, name)
	if err != nil {
		return false
	}
	return stamp != sd.Instance()
}

// Unregister removes name from scope. Failures are returned, not retried.
func (r *Registry) Unregister(scope domain.Scope, name string) error {
	if err := r.dir.Uncatalog(scope, name); err != nil {
		return fmt.Errorf("uncatalog %q: %w", name, err)
	}
	return nil
}

// Lookup returns the handle registered under name, waiting up to wait.
func (r *Registry) Lookup(ctx context.Context, scope domain.Scope, name string, wait time.Duration) (domain.Handle, error) {
	return r.dir.Lookup(ctx, scope, name, wait)
}

// Status describes one entry of a scope.
type Status struct {
	ports.Entry
	Stale bool
}

// Inspect lists a scope and marks entries whose object is invalid.
func (r *Registry) Inspect(scope domain.Scope) ([]Status, error) {
	ld, ok := r.dir.(ports.ListingDirectory)
	if !ok {
		return nil, errors.New("directory cannot list entries")
	}
	entries, err := ld.List(scope)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, Status{Entry: e, Stale: r.types.TypeOf(e.Handle) == domain.KindInvalid})
	}
	return out, nil
}

// Prune unregisters every stale entry of scope and returns their names.
func (r *Registry) Prune(scope domain.Scope) ([]string, error) {
	statuses, err := r.Inspect(scope)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, s := range statuses {
		if !s.Stale {
			continue
		}
		if err := r.Unregister(scope, s.Name); err != nil {
			return removed, err
		}
		removed = append(removed, s.Name)
	}
	return removed, nil
}
