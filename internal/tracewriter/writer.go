// Package tracewriter is the sink that mirrors a channel tree into a trace
// directory on disk, one trace file per channel.
package tracewriter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/yairfalse/lttd/pkg/lttd"
)

// ErrFileExists is returned when a trace file already exists and append
// mode is off
var ErrFileExists = errors.New("file exists, try append mode")

// Config configures a Writer
type Config struct {
	// TraceDir is the trace directory. It is created if missing.
	TraceDir string

	// Append continues existing trace files instead of refusing them
	Append bool

	// Verbose logs every transfer at debug level
	Verbose bool

	// PipeSize is the capacity requested for each worker pipe. Zero keeps
	// the kernel default.
	PipeSize int

	// Logger (default: no-op)
	Logger *zap.Logger
}

// File is the per-channel payload: the open trace file
type File struct {
	f       *os.File
	relPath string
	written int64
}

// Name returns the trace file path
func (f *File) Name() string {
	return f.f.Name()
}

// Written returns the bytes written through this handle
func (f *File) Written() int64 {
	return f.written
}

// Writer implements lttd.Callbacks for trace files
type Writer struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	pipes map[int]*pipe

	files atomic.Int64
	bytes atomic.Int64

	done    chan struct{}
	endOnce sync.Once
}

var _ lttd.Callbacks[*File] = (*Writer)(nil)

// New creates the trace directory and returns a writer for it
func New(cfg Config) (*Writer, error) {
	if cfg.TraceDir == "" {
		return nil, fmt.Errorf("trace directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.TraceDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	return &Writer{
		cfg:    cfg,
		logger: cfg.Logger.Named("tracewriter"),
		pipes:  make(map[int]*pipe),
		done:   make(chan struct{}),
	}, nil
}

func (w *Writer) OnNewFolder(relPath string) error {
	path := filepath.Join(w.cfg.TraceDir, relPath)
	if err := os.Mkdir(path, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to create trace folder %s: %w", path, err)
	}
	w.logger.Debug("Trace folder ready", zap.String("path", path))
	return nil
}

func (w *Writer) OnOpenChannel(ch *lttd.Channel[*File], relPath string) error {
	path := filepath.Join(w.cfg.TraceDir, relPath)

	var (
		f   *os.File
		err error
	)
	if w.cfg.Append {
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
		if err == nil {
			if _, err = f.Seek(0, io.SeekEnd); err != nil {
				f.Close()
			}
		}
	} else {
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrFileExists)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to open trace file %s: %w", path, err)
	}

	ch.UserData = &File{f: f, relPath: relPath}
	w.files.Add(1)
	w.logger.Debug("Trace file opened",
		zap.String("channel", relPath),
		zap.String("path", path),
		zap.Bool("append", w.cfg.Append))
	return nil
}

func (w *Writer) OnCloseChannel(ch *lttd.Channel[*File]) error {
	file := ch.UserData
	if file == nil {
		return nil
	}

	w.logger.Debug("Trace file closed",
		zap.String("channel", file.relPath),
		zap.Int64("written", file.written))
	return file.f.Close()
}

// OnReadSubbuffer moves the reserved subbuffer into the trace file, with
// splice through the worker pipe when the channel has a descriptor
func (w *Writer) OnReadSubbuffer(ch *lttd.Channel[*File], length uint32) error {
	file := ch.UserData
	if file == nil {
		return fmt.Errorf("channel %s has no trace file", ch.RelPath())
	}

	if err := w.transfer(ch, file, length); err != nil {
		return err
	}

	file.written += int64(length)
	w.bytes.Add(int64(length))
	if w.cfg.Verbose {
		w.logger.Debug("Subbuffer written",
			zap.String("channel", file.relPath),
			zap.Uint32("length", length))
	}
	return nil
}

func (w *Writer) transfer(ch *lttd.Channel[*File], file *File, length uint32) error {
	if fd, ok := ch.Fd(); ok {
		if p := w.pipe(ch.Worker()); p != nil {
			n, err := spliceSubbuffer(fd, p, file.f, length)
			if err == nil {
				return nil
			}
			if !errors.Is(err, errSpliceUnsupported) || n != 0 {
				return err
			}
		}
	}

	n, err := io.Copy(file.f, io.NewSectionReader(ch, 0, int64(length)))
	if err != nil {
		return fmt.Errorf("failed to copy subbuffer: %w", err)
	}
	if n != int64(length) {
		return fmt.Errorf("short subbuffer copy: %d of %d bytes", n, length)
	}
	return nil
}

func (w *Writer) pipe(worker int) *pipe {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pipes[worker]
}

func (w *Writer) OnNewThread(worker int) error {
	p, err := newPipe(w.cfg.PipeSize)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}

	w.mu.Lock()
	w.pipes[worker] = p
	w.mu.Unlock()
	return nil
}

func (w *Writer) OnCloseThread(worker int) error {
	w.mu.Lock()
	p := w.pipes[worker]
	delete(w.pipes, worker)
	w.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.close()
}

func (w *Writer) OnTraceEnd() {
	w.logger.Info("Trace written",
		zap.String("trace_dir", w.cfg.TraceDir),
		zap.Int64("files", w.files.Load()),
		zap.Int64("bytes", w.bytes.Load()))
	w.endOnce.Do(func() { close(w.done) })
}

// Done is closed once the trace ended
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the trace ended or ctx is done
func (w *Writer) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BytesWritten returns the total bytes written to trace files
func (w *Writer) BytesWritten() int64 {
	return w.bytes.Load()
}
