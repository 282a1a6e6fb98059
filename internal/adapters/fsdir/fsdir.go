package fsdir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/testvisor/internal/domain"
	"github.com/bft-labs/testvisor/internal/ports"
)

const (
	lockFileName   = ".lock"
	entrySuffix    = ".toml"
	lockRetryDelay = 10 * time.Millisecond
	lockTimeout    = 5 * time.Second
	pollInterval   = 50 * time.Millisecond
)

// entryFile is the on-disk form of one binding.
type entryFile struct {
	Name         string    `toml:"name"`
	Kind         string    `toml:"kind"`
	PID          int       `toml:"pid"`
	ID           uint64    `toml:"id"`
	Instance     string    `toml:"instance"`
	RegisteredAt time.Time `toml:"registered_at"`
}

// Directory stores bindings under a root directory.
type Directory struct {
	root     string
	instance string
	logger   ports.Logger
}

// New creates a Directory rooted at root. Scope directories are created on
// first use.
func New(root string, logger ports.Logger) *Directory {
	return &Directory{
		root:     root,
		instance: uuid.NewString(),
		logger:   logger,
	}
}

// Root returns the root directory.
func (d *Directory) Root() string {
	return d.root
}

// Instance identifies this Directory in the entries it writes.
func (d *Directory) Instance() string {
	return d.instance
}

// Catalog implements ports.Directory.
func (d *Directory) Catalog(scope domain.Scope, obj domain.Handle, name string) error {
	unlock, err := d.lock(scope)
	if err != nil {
		return err
	}
	defer unlock()

	path := d.entryPath(scope, name)
	if _, err := os.Stat(path); err == nil {
		return domain.ErrNameExists
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat entry %s: %w", path, err)
	}

	data, err := toml.Marshal(entryFile{
		Name:         name,
		Kind:         obj.Kind.String(),
		PID:          obj.PID,
		ID:           obj.ID,
		Instance:     d.instance,
		RegisteredAt: time.Now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", name, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish entry %s: %w", name, err)
	}

	d.logger.Debug("cataloged",
		ports.String("scope", string(scope)),
		ports.String("name", name),
		ports.Stringer("handle", obj),
		ports.String("instance", d.instance),
	)
	return nil
}

// Uncatalog implements ports.Directory.
func (d *Directory) Uncatalog(scope domain.Scope, name string) error {
	unlock, err := d.lock(scope)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(d.entryPath(scope, name)); err != nil {
		if os.IsNotExist(err) {
			return domain.ErrNameNotFound
		}
		return fmt.Errorf("remove entry %s: %w", name, err)
	}

	d.logger.Debug("uncataloged",
		ports.String("scope", string(scope)),
		ports.String("name", name),
	)
	return nil
}

// Lookup implements ports.Directory.
func (d *Directory) Lookup(ctx context.Context, scope domain.Scope, name string, wait time.Duration) (domain.Handle, error) {
	h, err := d.read(scope, name)
	if err == nil || !errors.Is(err, domain.ErrNameNotFound) || wait == 0 {
		return h, err
	}

	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	if err := os.MkdirAll(d.scopeDir(scope), 0o755); err != nil {
		return domain.BadHandle, fmt.Errorf("create scope %s: %w", scope, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Debug("fsnotify unavailable, polling", ports.Err(err))
		return d.poll(ctx, scope, name)
	}
	defer watcher.Close()

	if err := watcher.Add(d.scopeDir(scope)); err != nil {
		d.logger.Debug("cannot watch scope, polling", ports.String("scope", string(scope)), ports.Err(err))
		return d.poll(ctx, scope, name)
	}

	// the entry may have appeared before the watch was in place
	if h, err := d.read(scope, name); !errors.Is(err, domain.ErrNameNotFound) {
		return h, err
	}

	target := escapeName(name) + entrySuffix
	for {
		select {
		case <-ctx.Done():
			return domain.BadHandle, domain.ErrNameNotFound

		case event, ok := <-watcher.Events:
			if !ok {
				return d.poll(ctx, scope, name)
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if h, err := d.read(scope, name); !errors.Is(err, domain.ErrNameNotFound) {
				return h, err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return d.poll(ctx, scope, name)
			}
			d.logger.Debug("watch error", ports.Err(err))
		}
	}
}

// List implements ports.ListingDirectory. Unreadable entries are skipped.
func (d *Directory) List(scope domain.Scope) ([]ports.Entry, error) {
	files, err := os.ReadDir(d.scopeDir(scope))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scope %s: %w", scope, err)
	}

	var entries []ports.Entry
	for _, f := range files {
		fn := f.Name()
		if f.IsDir() || !strings.HasSuffix(fn, entrySuffix) {
			continue
		}
		name, err := unescapeName(strings.TrimSuffix(fn, entrySuffix))
		if err != nil {
			continue
		}
		e, err := d.readEntry(scope, name)
		if err != nil {
			d.logger.Warn("skipping unreadable entry", ports.String("file", fn), ports.Err(err))
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (d *Directory) poll(ctx context.Context, scope domain.Scope, name string) (domain.Handle, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return domain.BadHandle, domain.ErrNameNotFound
		case <-ticker.C:
			if h, err := d.read(scope, name); !errors.Is(err, domain.ErrNameNotFound) {
				return h, err
			}
		}
	}
}

// Stamp implements ports.StampedDirectory.
func (d *Directory) Stamp(scope domain.Scope, name string) (string, error) {
	e, err := d.readEntry(scope, name)
	if err != nil {
		return "", err
	}
	return e.Instance, nil
}

func (d *Directory) read(scope domain.Scope, name string) (domain.Handle, error) {
	e, err := d.readEntry(scope, name)
	if err != nil {
		return domain.BadHandle, err
	}
	return e.Handle, nil
}

func (d *Directory) readEntry(scope domain.Scope, name string) (ports.Entry, error) {
	data, err := os.ReadFile(d.entryPath(scope, name))
	if err != nil {
		if os.IsNotExist(err) {
			return ports.Entry{}, domain.ErrNameNotFound
		}
		return ports.Entry{}, fmt.Errorf("read entry %s: %w", name, err)
	}

	var ef entryFile
	if err := toml.Unmarshal(data, &ef); err != nil {
		return ports.Entry{}, fmt.Errorf("decode entry %s: %w", name, err)
	}
	kind, err := domain.ParseKind(ef.Kind)
	if err != nil {
		return ports.Entry{}, fmt.Errorf("decode entry %s: %w", name, err)
	}
	return ports.Entry{
		Scope:    scope,
		Name:     name,
		Handle:   domain.Handle{Kind: kind, PID: ef.PID, ID: ef.ID},
		Instance: ef.Instance,
	}, nil
}

// lock takes the scope's flock, creating the scope directory if needed.
func (d *Directory) lock(scope domain.Scope) (func(), error) {
	dir := d.scopeDir(scope)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scope %s: %w", scope, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	fl := flock.New(filepath.Join(dir, lockFileName))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock scope %s: %w", scope, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock scope %s: lock not acquired", scope)
	}

	return func() {
		if err := fl.Close(); err != nil {
			d.logger.Debug("failed to release scope lock", ports.String("path", fl.Path()), ports.Err(err))
		}
	}, nil
}

func (d *Directory) scopeDir(scope domain.Scope) string {
	return filepath.Join(d.root, escapeName(string(scope)))
}

func (d *Directory) entryPath(scope domain.Scope, name string) string {
	return filepath.Join(d.scopeDir(scope), escapeName(name)+entrySuffix)
}

var _ ports.StampedDirectory = (*Directory)(nil)
