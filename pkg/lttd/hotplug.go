package lttd

import (
	"errors"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// hotplugWatcher follows channel files appearing and disappearing while the
// session runs. It opens new channels but never closes one: removals are
// only marked, the owning worker runs the close callback.
type hotplugWatcher[T any] struct {
	s       *Session[T]
	watcher *fsnotify.Watcher
	scanner *scanner[T]
	logger  *zap.Logger
}

// newHotplugWatcher subscribes to the channel root. Failing to do so is
// fatal to the session.
func newHotplugWatcher[T any](s *Session[T]) (*hotplugWatcher[T], error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(s.cfg.ChannelRoot); err != nil {
		watcher.Close()
		return nil, err
	}

	return &hotplugWatcher[T]{
		s:       s,
		watcher: watcher,
		scanner: newScanner(s),
		logger:  s.logger.Named("hotplug"),
	}, nil
}

// add subscribes to a subfolder discovered by the scanner
func (h *hotplugWatcher[T]) add(dir string) {
	if err := h.watcher.Add(dir); err != nil {
		h.logger.Warn("Failed to watch channel folder, hot-plug disabled for it",
			zap.String("path", dir),
			zap.Error(err))
	}
}

// run handles filesystem events until the session stops
func (h *hotplugWatcher[T]) run() error {
	ticker := time.NewTicker(h.s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if h.s.stopping() {
			return nil
		}

		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return nil
			}
			h.handle(event)

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				h.logger.Warn("Hot-plug events overflowed, rescanning channel tree")
				h.scanner.scan()
				continue
			}
			h.logger.Warn("Hot-plug watcher error", zap.Error(err))

		case <-ticker.C:
		}
	}
}

func (h *hotplugWatcher[T]) handle(event fsnotify.Event) {
	if h.s.stopping() {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			h.logger.Debug("Created entry vanished", zap.String("path", event.Name), zap.Error(err))
			return
		}
		h.s.revive(event.Name)
		if info.IsDir() {
			h.logger.Info("Channel folder appeared", zap.String("path", event.Name))
			h.scanner.folder(event.Name)
			return
		}
		if info.Mode().IsRegular() {
			h.logger.Info("Channel appeared", zap.String("path", event.Name))
			h.scanner.file(event.Name)
		}

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		h.removeUnder(event.Name)

	case event.Has(fsnotify.Chmod):
		if !readable(event.Name) {
			h.logger.Info("Channel no longer readable", zap.String("path", event.Name))
			h.removeUnder(event.Name)
		}
	}
}

// removeUnder marks the channel at path, or every channel below it when path
// was a folder
func (h *hotplugWatcher[T]) removeUnder(path string) {
	for _, ch := range h.s.markRemoved(path) {
		h.logger.Info("Channel removed", zap.String("path", ch.path))
	}
}

func (h *hotplugWatcher[T]) close() error {
	return h.watcher.Close()
}
