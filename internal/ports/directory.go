package ports

import (
	"context"
	"time"

	"github.com/bft-labs/testvisor/internal/domain"
)

// Directory is a scoped name service. Catalog and Uncatalog must be atomic
// with respect to each other for the same scope.
type Directory interface {
	// Catalog binds name to obj within scope.
	// Returns domain.ErrNameExists if the name is already bound.
	Catalog(scope domain.Scope, obj domain.Handle, name string) error

	// Lookup returns the handle bound to name. A zero wait returns at once,
	// a positive wait blocks until the name appears or the wait elapses, and
	// a negative wait blocks until ctx is done.
	// Returns domain.ErrNameNotFound if the name is not bound in time.
	Lookup(ctx context.Context, scope domain.Scope, name string, wait time.Duration) (domain.Handle, error)

	// Uncatalog removes the binding for name.
	// Returns domain.ErrNameNotFound if there is none.
	Uncatalog(scope domain.Scope, name string) error
}

// Entry is one binding reported by a ListingDirectory.
type Entry struct {
	Scope  domain.Scope
	Name   string
	Handle domain.Handle
	// Instance is the writer's stamp, empty for directories that keep none.
	Instance string
}

// ListingDirectory is a Directory that can enumerate a scope.
type ListingDirectory interface {
	Directory
	List(scope domain.Scope) ([]Entry, error)
}

// StampedDirectory is a Directory shared between processes. Every binding
// carries the instance stamp of the Directory that wrote it, which tells a
// binding left by an earlier process apart from one made by the current
// process when both had the same pid.
type StampedDirectory interface {
	Directory

	// Instance returns the stamp this Directory writes.
	Instance() string

	// Stamp returns the stamp recorded with name.
	// Returns domain.ErrNameNotFound if the name is not bound.
	Stamp(scope domain.Scope, name string) (string, error)
}

// ObjectTypes reports the kind of the object a handle refers to.
// Objects that no longer exist report domain.KindInvalid.
type ObjectTypes interface {
	TypeOf(h domain.Handle) domain.Kind
}
