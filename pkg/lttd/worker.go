package lttd

import (
	"time"

	"go.uber.org/zap"
)

// worker owns a disjoint set of channels and drains them until the session
// stops. Every callback touching one of its channels after open runs here.
type worker[T any] struct {
	id     int
	s      *Session[T]
	inbox  *inbox[T]
	logger *zap.Logger

	channels []*Channel[T]
	bufs     []Buffer
	ready    []Readiness
}

func newWorker[T any](s *Session[T], id int) *worker[T] {
	return &worker[T]{
		id:     id,
		s:      s,
		inbox:  newInbox[T](),
		logger: s.logger.With(zap.Int("worker", id)),
	}
}

func (w *worker[T]) run() error {
	if err := w.s.cb.OnNewThread(w.id); err != nil {
		w.logger.Warn("New thread callback failed", zap.Error(err))
	}
	defer func() {
		if err := w.s.cb.OnCloseThread(w.id); err != nil {
			w.logger.Warn("Close thread callback failed", zap.Error(err))
		}
	}()

	idle := time.NewTimer(w.s.cfg.PollInterval)
	defer idle.Stop()

	for !w.s.stopping() {
		w.adopt(w.inbox.take())
		w.reapRemoved()

		if len(w.channels) == 0 {
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(w.s.cfg.PollInterval)
			select {
			case <-w.inbox.notify:
			case <-idle.C:
			}
			continue
		}

		w.poll()
	}

	w.shutdown()
	return nil
}

// adopt takes ownership of newly opened channels
func (w *worker[T]) adopt(chs []*Channel[T]) {
	for _, ch := range chs {
		w.channels = append(w.channels, ch)
		w.logger.Debug("Channel assigned", zap.String("channel", ch.relPath))
	}
}

// poll waits for readiness once and services every ready channel
func (w *worker[T]) poll() {
	w.bufs = w.bufs[:0]
	for _, ch := range w.channels {
		w.bufs = append(w.bufs, ch.buf)
	}
	if cap(w.ready) < len(w.bufs) {
		w.ready = make([]Readiness, len(w.bufs))
	}
	w.ready = w.ready[:len(w.bufs)]
	clear(w.ready)

	n, err := w.s.cfg.Backend.Poll(w.bufs, w.s.cfg.PollInterval, w.ready)
	if err != nil {
		if interrupted(err) {
			return
		}
		if w.s.warn.Allow() {
			w.logger.Warn("Failed to poll channels", zap.Error(err))
		}
		time.Sleep(w.s.cfg.PollInterval)
		return
	}
	if n == 0 {
		return
	}

	// Urgent (full) buffers go first so the producer is unblocked sooner
	for _, pass := range []Readiness{Urgent, Readable | Hangup} {
		for i, ch := range w.channels {
			r := w.ready[i]
			if r&pass == 0 || ch.closed {
				continue
			}
			w.ready[i] = 0
			w.service(ch, r)
		}
	}

	w.compact()
}

// service handles one ready channel
func (w *worker[T]) service(ch *Channel[T], r Readiness) {
	if r&(Readable|Urgent) != 0 {
		if w.readSubbuffer(ch) == readFailed {
			w.close(ch, closeFailed)
			return
		}
	}
	if r&Hangup != 0 {
		w.drain(ch)
		w.close(ch, closeHangup)
	}
}

// reapRemoved closes channels the hot-plug watcher flagged
func (w *worker[T]) reapRemoved() {
	removed := false
	for _, ch := range w.channels {
		if ch.isRemoved() {
			w.drain(ch)
			w.close(ch, closeRemoved)
			removed = true
		}
	}
	if removed {
		w.compact()
	}
}

// shutdown seals the inbox, then drains and closes every remaining channel
func (w *worker[T]) shutdown() {
	w.adopt(w.inbox.seal())

	w.logger.Debug("Worker stopping", zap.Int("channels", len(w.channels)))
	for _, ch := range w.channels {
		w.drain(ch)
		w.close(ch, closeStopping)
	}
	w.channels = nil
}

// compact drops closed channels from the working set
func (w *worker[T]) compact() {
	live := w.channels[:0]
	for _, ch := range w.channels {
		if !ch.closed {
			live = append(live, ch)
		}
	}
	clear(w.channels[len(live):])
	w.channels = live
}
