// Package control delivers notifications posted as files in a control
// directory. A file named after a notification kind is delivered once and
// removed; `testvisor notify` writes them.
package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/testvisor/internal/domain"
	"github.com/bft-labs/testvisor/internal/ports"
)

// Source watches a control directory. It implements
// ports.NotificationSource.
type Source struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  ports.Logger
}

// New creates dir if needed, discards notifications left over from an
// earlier run and starts watching.
func New(dir string, logger ports.Logger) (*Source, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create control dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	s := &Source{dir: dir, watcher: watcher, logger: logger}
	s.discardStale()
	return s, nil
}

// Name implements ports.NotificationSource.
func (s *Source) Name() string { return "control " + s.dir }

// Next implements ports.NotificationSource.
func (s *Source) Next(ctx context.Context) (domain.Notification, error) {
	for {
		select {
		case <-ctx.Done():
			return domain.Notification{}, ctx.Err()

		case event, ok := <-s.watcher.Events:
			if !ok {
				return domain.Notification{}, errors.New("control watcher closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if n, ok := s.consume(event.Name); ok {
				return n, nil
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return domain.Notification{}, errors.New("control watcher closed")
			}
			s.logger.Warn("control watcher error", ports.Err(err))
		}
	}
}

// Close stops watching.
func (s *Source) Close() error {
	return s.watcher.Close()
}

// consume removes path and returns its notification. A file that is already
// gone was delivered by an earlier event.
func (s *Source) consume(path string) (domain.Notification, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return domain.Notification{}, false
	}
	kind, err := domain.ParseNotificationKind(base)
	if err != nil {
		s.logger.Warn("ignoring control file", ports.String("file", base))
		return domain.Notification{}, false
	}
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cannot remove control file", ports.String("file", base), ports.Err(err))
		}
		return domain.Notification{}, false
	}
	return domain.Notification{Kind: kind, Source: "control", At: time.Now()}, true
}

func (s *Source) discardStale() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("cannot scan control dir", ports.Err(err))
		return
	}
	for _, e := range entries {
		if _, err := domain.ParseNotificationKind(e.Name()); err != nil {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
			s.logger.Info("discarded stale notification", ports.String("kind", e.Name()))
		}
	}
}

// Post drops a notification file for kind into dir. The file appears
// atomically so a watcher never sees a partial write.
func Post(dir string, kind domain.NotificationKind) error {
	name := kind.String()
	if _, err := domain.ParseNotificationKind(name); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create control file: %w", err)
	}
	_, werr := tmp.WriteString(time.Now().UTC().Format(time.RFC3339Nano) + "\n")
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write control file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish control file: %w", err)
	}
	return nil
}
