package lttd

import (
	"errors"

	"go.uber.org/zap"
)

type readResult int

const (
	readNone readResult = iota
	readDelivered
	readFailed
)

// readSubbuffer runs one reserve, deliver, release cycle on ch. The release
// happens even when the sink failed, so the producer never stalls on a slot
// held by a dropped channel.
func (w *worker[T]) readSubbuffer(ch *Channel[T]) readResult {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return readNone
	}

	consumed, err := ch.buf.GetSubbuf()
	if errors.Is(err, ErrNoData) {
		if w.s.cfg.Verbose {
			w.logger.Debug("No subbuffer available", zap.String("channel", ch.relPath))
		}
		return readNone
	}
	if err != nil {
		w.logger.Warn("Failed to reserve subbuffer",
			zap.String("channel", ch.relPath),
			zap.Error(err))
		w.s.recordChannelError("reserve")
		return readFailed
	}

	length, err := ch.buf.SubbufSize()
	if err != nil {
		w.logger.Warn("Failed to get subbuffer size",
			zap.String("channel", ch.relPath),
			zap.Error(err))
		w.release(ch, consumed)
		w.s.recordChannelError("size")
		return readFailed
	}

	if w.s.cfg.Verbose {
		w.logger.Debug("Subbuffer reserved",
			zap.String("channel", ch.relPath),
			zap.Uint32("consumed", consumed),
			zap.Uint32("length", length))
	}

	cbErr := w.s.cb.OnReadSubbuffer(ch, length)
	putErr := w.release(ch, consumed)

	if cbErr != nil {
		w.logger.Warn("Read subbuffer callback failed, closing channel",
			zap.String("channel", ch.relPath),
			zap.Uint32("length", length),
			zap.Error(cbErr))
		w.s.recordChannelError("read")
		return readFailed
	}
	if putErr != nil {
		w.s.recordChannelError("release")
		return readFailed
	}

	w.s.stats.subbuffersRead.Add(1)
	w.s.stats.bytesRead.Add(int64(length))
	w.s.metrics.recordSubbuffer(length)
	return readDelivered
}

// release hands the reservation back. A corrupted subbuffer is reported but
// does not fail the channel.
func (w *worker[T]) release(ch *Channel[T], consumed uint32) error {
	err := ch.buf.PutSubbuf(consumed)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrSubbufCorrupted) {
		w.s.stats.corruptSubbuffers.Add(1)
		w.s.metrics.recordCorrupted()
		if w.s.warn.Allow() {
			w.logger.Warn("Reader has been pushed by the writer, last subbuffer corrupted",
				zap.String("channel", ch.relPath),
				zap.Uint32("consumed", consumed))
		}
		return nil
	}

	w.logger.Warn("Failed to release subbuffer",
		zap.String("channel", ch.relPath),
		zap.Uint32("consumed", consumed),
		zap.Error(err))
	return err
}

// drain reads whatever is still ready, bounded by the configured attempts
func (w *worker[T]) drain(ch *Channel[T]) {
	attempts := w.s.cfg.DrainAttempts
	if attempts == 0 {
		attempts = int(ch.nSubbuf)
	}
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		switch w.readSubbuffer(ch) {
		case readDelivered:
			continue
		case readFailed:
			w.close(ch, closeFailed)
			return
		default:
			return
		}
	}
}

// close runs the close transition once: sink callback, buffer release and
// payload reset, all under the channel lock
func (w *worker[T]) close(ch *Channel[T], cause closeCause) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true

	if err := w.s.cb.OnCloseChannel(ch); err != nil {
		w.logger.Warn("Close channel callback failed",
			zap.String("channel", ch.relPath),
			zap.Error(err))
	}
	if err := ch.buf.Close(); err != nil {
		w.logger.Debug("Failed to close channel buffer",
			zap.String("channel", ch.relPath),
			zap.Error(err))
	}
	var zero T
	ch.UserData = zero
	ch.mu.Unlock()

	w.s.forget(ch.path, ch, cause == closeHangup || cause == closeFailed)
	w.s.stats.channelsClosed.Add(1)
	w.s.metrics.recordOpen(-1)

	w.logger.Debug("Channel closed",
		zap.String("channel", ch.relPath),
		zap.Stringer("cause", cause))

	if cause == closeHangup {
		w.s.stats.hungUp.Add(1)
	}
	w.s.maybeFinished()
}
