package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Handler runs cleanup hooks when the process is asked to stop
type Handler struct {
	mu          sync.Mutex
	shutdownFns []namedFn
	timeout     time.Duration
	signals     []os.Signal
	logger      *zap.Logger

	sigChan chan os.Signal
	once    sync.Once
	done    chan struct{}
}

type namedFn struct {
	name string
	fn   func(context.Context) error
}

// NewHandler creates a new shutdown handler
func NewHandler(timeout time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		timeout: timeout,
		signals: []os.Signal{
			os.Interrupt,    // Ctrl+C
			syscall.SIGTERM, // kill, init systems
			syscall.SIGQUIT, // Quit
		},
		logger:  logger.Named("shutdown"),
		sigChan: make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}
}

// Register registers a cleanup function
func (h *Handler) Register(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.shutdownFns = append(h.shutdownFns, namedFn{name: name, fn: fn})
}

// Start begins listening for shutdown signals
func (h *Handler) Start() {
	signal.Notify(h.sigChan, h.signals...)

	go func() {
		select {
		case sig := <-h.sigChan:
			h.logger.Info("Received signal, starting graceful shutdown",
				zap.Stringer("signal", sig))
			h.Shutdown()
		case <-h.done:
		}
	}()
}

// Stop releases the signal subscription
func (h *Handler) Stop() {
	signal.Stop(h.sigChan)
}

// Wait blocks until shutdown is complete
func (h *Handler) Wait() {
	<-h.done
}

// Done is closed once shutdown completed
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Shutdown runs the cleanup functions once. Later calls are no-ops.
func (h *Handler) Shutdown() {
	h.once.Do(func() {
		h.executeShutdown()
		close(h.done)
	})
}

// executeShutdown runs all cleanup functions
func (h *Handler) executeShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	start := time.Now()
	errors := 0

	h.mu.Lock()
	fns := make([]namedFn, len(h.shutdownFns))
	copy(fns, h.shutdownFns)
	h.mu.Unlock()

	// Execute cleanup functions in reverse order (LIFO)
	for i := len(fns) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			h.logger.Warn("Shutdown timeout exceeded, some cleanup may be incomplete")
			break
		}

		fnStart := time.Now()
		if err := fns[i].fn(ctx); err != nil {
			errors++
			h.logger.Warn("Cleanup failed",
				zap.String("name", fns[i].name),
				zap.Duration("took", time.Since(fnStart)),
				zap.Error(err))
			continue
		}
		h.logger.Debug("Cleaned up",
			zap.String("name", fns[i].name),
			zap.Duration("took", time.Since(fnStart)))
	}

	if errors > 0 {
		h.logger.Warn("Shutdown completed with errors",
			zap.Int("errors", errors),
			zap.Duration("took", time.Since(start)))
		return
	}
	h.logger.Info("Graceful shutdown completed", zap.Duration("took", time.Since(start)))
}
