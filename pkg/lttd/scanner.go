package lttd

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// scanner walks the channel tree, reporting folders before their content
// and opening every channel file that passes the filter
type scanner[T any] struct {
	s      *Session[T]
	root   string
	logger *zap.Logger
}

func newScanner[T any](s *Session[T]) *scanner[T] {
	return &scanner[T]{
		s:      s,
		root:   s.cfg.ChannelRoot,
		logger: s.logger.Named("scanner"),
	}
}

// scan walks the whole tree from the root
func (sc *scanner[T]) scan() {
	sc.walk(sc.root)
}

// walk scans dir, which has already been reported to the sink
func (sc *scanner[T]) walk(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		sc.logger.Warn("Failed to read channel folder",
			zap.String("path", dir),
			zap.Error(err))
		return
	}

	for _, entry := range entries {
		if sc.s.stopping() {
			return
		}

		path := filepath.Join(dir, entry.Name())
		switch {
		case entry.IsDir():
			sc.folder(path)
		case entry.Type().IsRegular():
			sc.file(path)
		}
	}
}

// folder reports a subdirectory, subscribes to it and descends
func (sc *scanner[T]) folder(path string) {
	rel := sc.rel(path)
	if err := sc.s.cb.OnNewFolder(rel); err != nil {
		sc.logger.Warn("New folder callback failed, skipping subtree",
			zap.String("path", rel),
			zap.Error(err))
		return
	}

	if w := sc.s.watcher; w != nil {
		w.add(path)
	}
	sc.walk(path)
}

// file opens a channel file when it passes the filter
func (sc *scanner[T]) file(path string) {
	if !sc.s.filter.include(filepath.Base(path)) {
		sc.logger.Debug("Channel filtered out", zap.String("path", path))
		return
	}
	sc.s.openChannel(path, sc.rel(path))
}

func (sc *scanner[T]) rel(path string) string {
	rel, err := filepath.Rel(sc.root, path)
	if err != nil {
		return path
	}
	return rel
}
