package lttd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State is the lifecycle state of a Session
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session drains one channel tree with a fixed pool of workers.
//
// A Session is single use: Start blocks until every worker exited and
// OnTraceEnd returned, after which the session is released and only
// Statistics and State remain meaningful.
type Session[T any] struct {
	id     string
	cfg    Config
	cb     Callbacks[T]
	filter channelFilter
	logger *zap.Logger

	state         atomic.Int32
	stopRequested atomic.Bool
	scanned       atomic.Bool
	startTime     atomic.Value

	workers []*worker[T]
	pool    *workerPool
	watcher *hotplugWatcher[T]

	// registry maps absolute channel paths to open channels. A nil value
	// reserves the path while its open is in flight.
	mu       sync.Mutex
	registry map[string]*Channel[T]
	ordinal  uint64

	// reopen holds paths recreated while their old handle was still open,
	// keyed to their relative path. They are opened again once the old
	// handle is closed.
	reopen map[string]string
	// gone holds paths removed while their open was in flight
	gone map[string]bool
	// retired holds paths closed after a hang-up or failure. Rescans skip
	// them until the file is created again.
	retired map[string]bool

	stats   sessionStats
	metrics *sessionMetrics
	warn    *rate.Limiter
}

// New creates a session. Both filters set is rejected with ErrConflictingFilters.
func New[T any](cb Callbacks[T], cfg Config) (*Session[T], error) {
	if cb == nil {
		return nil, fmt.Errorf("callbacks cannot be nil")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	logger := cfg.Logger.With(zap.String("session_id", id))

	s := &Session[T]{
		id:       id,
		cfg:      cfg,
		cb:       cb,
		filter:   cfg.filter(),
		logger:   logger,
		pool:     newWorkerPool(logger),
		registry: make(map[string]*Channel[T]),
		reopen:   make(map[string]string),
		gone:     make(map[string]bool),
		retired:  make(map[string]bool),
		metrics:  newSessionMetrics(id, logger),
		warn:     rate.NewLimiter(rate.Every(time.Second), 10),
	}
	s.state.Store(int32(StateCreated))

	s.workers = make([]*worker[T], cfg.Threads)
	for i := range s.workers {
		s.workers[i] = newWorker(s, i)
	}

	return s, nil
}

// ID returns the unique session identifier
func (s *Session[T]) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session[T]) State() State {
	return State(s.state.Load())
}

// Start runs the session and blocks until it ended. Failing to subscribe to
// the channel tree is reported before any worker starts.
func (s *Session[T]) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		if s.State() == StateEnded {
			return ErrSessionEnded
		}
		return ErrAlreadyStarted
	}
	if s.stopRequested.Load() {
		s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	}

	if err := s.checkRoot(); err != nil {
		s.state.Store(int32(StateEnded))
		return err
	}

	watcher, err := newHotplugWatcher(s)
	if err != nil {
		s.state.Store(int32(StateEnded))
		return fmt.Errorf("failed to subscribe to channel tree: %w", err)
	}
	s.watcher = watcher

	s.startTime.Store(time.Now())
	s.logger.Info("Starting session",
		zap.String("channel_root", s.cfg.ChannelRoot),
		zap.Int("threads", s.cfg.Threads),
		zap.Bool("flight_only", s.cfg.FlightOnly),
		zap.Bool("normal_only", s.cfg.NormalOnly))

	for _, w := range s.workers {
		s.pool.Go(fmt.Sprintf("worker-%d", w.id), w.run)
	}
	s.pool.Go("hotplug", watcher.run)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info("Context cancelled, stopping session")
			_ = s.Stop()
		case <-done:
		}
	}()

	newScanner(s).scan()
	s.scanned.Store(true)
	s.maybeFinished()

	err = s.pool.Wait()
	close(done)

	if cerr := watcher.close(); cerr != nil {
		s.logger.Warn("Failed to close hot-plug watcher", zap.Error(cerr))
	}

	s.state.Store(int32(StateEnded))
	s.logger.Info("Session ended",
		zap.Int64("channels_opened", s.stats.channelsOpened.Load()),
		zap.Int64("subbuffers_read", s.stats.subbuffersRead.Load()),
		zap.Int64("bytes_read", s.stats.bytesRead.Load()),
		zap.Int64("channel_errors", s.stats.channelErrors.Load()))

	s.cb.OnTraceEnd()
	s.release()

	return err
}

// Stop asks the session to end and returns immediately. It only flips atomic
// flags, so it is safe from signal handling goroutines. Completion is
// reported through OnTraceEnd.
func (s *Session[T]) Stop() error {
	if State(s.state.Load()) == StateEnded {
		return ErrSessionEnded
	}
	s.stopRequested.Store(true)
	s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	return nil
}

func (s *Session[T]) stopping() bool {
	return s.stopRequested.Load()
}

func (s *Session[T]) checkRoot() error {
	info, err := os.Stat(s.cfg.ChannelRoot)
	if err != nil {
		return fmt.Errorf("failed to access channel root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("channel root %s is not a directory", s.cfg.ChannelRoot)
	}
	return nil
}

// release drops everything the session held once OnTraceEnd returned
func (s *Session[T]) release() {
	s.mu.Lock()
	s.registry = nil
	s.reopen = nil
	s.gone = nil
	s.retired = nil
	s.mu.Unlock()

	s.workers = nil
	s.watcher = nil
}

// openChannel opens the channel file at path and hands it to its worker.
// Assignment is by discovery ordinal modulo the worker count.
func (s *Session[T]) openChannel(path, relPath string) {
	if s.stopping() {
		return
	}

	s.mu.Lock()
	if s.registry == nil {
		s.mu.Unlock()
		return
	}
	if s.retired[path] {
		s.mu.Unlock()
		s.logger.Debug("Channel already finished, not reopening", zap.String("channel", relPath))
		return
	}
	if cur, known := s.registry[path]; known {
		if (cur == nil && s.gone[path]) || (cur != nil && cur.isRemoved()) {
			s.reopen[path] = relPath
			s.logger.Debug("Channel recreated before its old handle closed",
				zap.String("channel", relPath))
		}
		s.mu.Unlock()
		return
	}
	s.registry[path] = nil
	ordinal := s.ordinal
	s.ordinal++
	s.mu.Unlock()

	w := s.workers[ordinal%uint64(len(s.workers))]
	opened := false

	w.inbox.deliver(func() *Channel[T] {
		if s.stopping() {
			return nil
		}
		ch := s.acquire(path, relPath, w.id)
		if ch == nil {
			return nil
		}
		opened = true
		return ch
	})

	if !opened {
		s.forget(path, nil, false)
	}
}

// acquire opens the buffer and runs OnOpenChannel. It returns nil when either fails.
func (s *Session[T]) acquire(path, relPath string, workerID int) *Channel[T] {
	logger := s.logger.With(zap.String("channel", relPath), zap.Int("worker", workerID))

	buf, err := s.cfg.Backend.Open(path)
	if err != nil {
		logger.Warn("Failed to open channel", zap.Error(err))
		s.recordChannelError("open")
		return nil
	}

	ch, err := NewChannel[T](path, relPath, buf, workerID)
	if err != nil {
		logger.Warn("Failed to read channel geometry", zap.Error(err))
		_ = buf.Close()
		s.recordChannelError("open")
		return nil
	}

	if err := s.cb.OnOpenChannel(ch, relPath); err != nil {
		logger.Warn("Open channel callback failed, channel dropped", zap.Error(err))
		_ = buf.Close()
		var zero T
		ch.UserData = zero
		s.recordChannelError("open")
		return nil
	}

	s.mu.Lock()
	if s.registry != nil {
		s.registry[path] = ch
		if s.gone[path] {
			delete(s.gone, path)
			ch.removed.Store(true)
		}
	}
	s.mu.Unlock()

	s.stats.channelsOpened.Add(1)
	s.metrics.recordOpen(1)
	logger.Debug("Channel opened",
		zap.Uint32("subbuffers", ch.nSubbuf),
		zap.Uint32("max_subbuffer_size", ch.maxSize))

	return ch
}

// forget removes path from the registry if it still maps to ch. A retired
// path is not reopened by rescans. A reopen recorded for path runs now.
func (s *Session[T]) forget(path string, ch *Channel[T], retire bool) {
	s.mu.Lock()
	if s.registry == nil {
		s.mu.Unlock()
		return
	}
	if cur, ok := s.registry[path]; !ok || cur != ch {
		s.mu.Unlock()
		return
	}
	delete(s.registry, path)
	delete(s.gone, path)

	relPath, again := s.reopen[path]
	delete(s.reopen, path)
	if retire && !again {
		s.retired[path] = true
	}
	s.mu.Unlock()

	if again {
		s.openChannel(path, relPath)
	}
}

// markRemoved flags every channel at or below path for close by its owner.
// Opens still in flight are flagged once they complete.
func (s *Session[T]) markRemoved(path string) []*Channel[T] {
	prefix := path + string(filepath.Separator)
	under := func(p string) bool {
		return p == path || strings.HasPrefix(p, prefix)
	}

	s.mu.Lock()
	var marked []*Channel[T]
	for p, ch := range s.registry {
		if !under(p) {
			continue
		}
		if ch == nil {
			s.gone[p] = true
			continue
		}
		marked = append(marked, ch)
	}
	for p := range s.reopen {
		if under(p) {
			delete(s.reopen, p)
		}
	}
	s.mu.Unlock()

	for _, ch := range marked {
		ch.markRemoved()
	}
	return marked
}

// revive clears the retired mark of path and of everything below it, so a
// recreated channel is opened again
func (s *Session[T]) revive(path string) {
	prefix := path + string(filepath.Separator)

	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.retired {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(s.retired, p)
		}
	}
}

// maybeFinished stops the session once every opened channel is closed and
// the kernel hung up at least one of them, meaning the trace itself ended
func (s *Session[T]) maybeFinished() {
	if s.cfg.IgnoreHangup || !s.scanned.Load() || s.stopping() {
		return
	}
	opened := s.stats.channelsOpened.Load()
	if opened > 0 && s.stats.hungUp.Load() > 0 && s.stats.channelsClosed.Load() >= opened {
		s.logger.Info("All channels hung up, stopping session",
			zap.Int64("channels", opened))
		_ = s.Stop()
	}
}

func (s *Session[T]) recordChannelError(op string) {
	s.stats.channelErrors.Add(1)
	s.metrics.recordChannelError(op)
}
