package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/mhmdtwsm/GradProject-sub000/internal/events"
)

// ChangeKind describes an out-of-process change to a vault file.
type ChangeKind string

const (
	ChangeWritten ChangeKind = "written"
	ChangeRemoved ChangeKind = "removed"
)

// ChangeCallback is called for every change to a vault record file.
type ChangeCallback func(kind ChangeKind, vaultID string)

// Watcher reports changes to the record files of a JSONStore directory.
// It sees this process's own writes too; callers compare contents to tell
// them apart.
type Watcher struct {
	w      *fsnotify.Watcher
	dir    string
	logger *events.Logger
}

// NewWatcher starts watching dir. Changes are reported once Run is called.
func NewWatcher(dir string, logger *events.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("resolve vault directory: %w", err)
	}

	if err := w.Add(abs); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", abs, err)
	}

	return &Watcher{
		w:      w,
		dir:    abs,
		logger: logger.WithField("component", "vault_watcher"),
	}, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context, cb ChangeCallback) error {
	defer w.w.Close()

	w.logger.WithField("dir", w.dir).Info("Watching vault directory")

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Vault watcher stopped")
			return nil

		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}

			if filepath.Dir(ev.Name) != w.dir {
				continue
			}
			id, ok := idFromName(filepath.Base(ev.Name))
			if !ok {
				// Temp files and foreign files.
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				w.logger.WithField("vault_id", id).Debug("Vault file written")
				cb(ChangeWritten, id)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.logger.WithField("vault_id", id).Debug("Vault file removed")
				cb(ChangeRemoved, id)
			}

		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("Vault watcher error")
		}
	}
}

// Close stops the watcher without Run.
func (w *Watcher) Close() error {
	return w.w.Close()
}
