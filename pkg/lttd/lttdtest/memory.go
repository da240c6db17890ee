// Package lttdtest provides an in-memory channel backend for exercising
// sessions and sinks without kernel relay channels.
package lttdtest

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/yairfalse/lttd/pkg/lttd"
)

const (
	// DefaultSubbufCount is the geometry reported by new buffers
	DefaultSubbufCount = 4
	// DefaultSubbufSize is the max subbuffer size reported by new buffers
	DefaultSubbufSize = 4096
)

var (
	// ErrAlreadyReserved is returned by GetSubbuf while a subbuffer is held
	ErrAlreadyReserved = errors.New("subbuffer already reserved")
	// ErrNotReserved is returned by PutSubbuf without a reservation
	ErrNotReserved = errors.New("no subbuffer reserved")
	// ErrBufferClosed is returned by every operation on a closed buffer
	ErrBufferClosed = errors.New("buffer closed")
)

// MemoryBackend serves channel files from memory. Tests create the channel
// files on disk so the scanner and watcher see them, and feed data through
// the buffer returned by Buffer.
type MemoryBackend struct {
	mu      sync.Mutex
	buffers map[string]*MemoryBuffer
	changed chan struct{}

	// OpenErr, when set, is consulted before every open
	OpenErr func(path string) error
}

// NewMemoryBackend creates an empty backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		buffers: make(map[string]*MemoryBuffer),
		changed: make(chan struct{}),
	}
}

// Buffer returns the buffer for path, creating it if needed
func (b *MemoryBackend) Buffer(path string) *MemoryBuffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bufferLocked(path)
}

func (b *MemoryBackend) bufferLocked(path string) *MemoryBuffer {
	buf, ok := b.buffers[path]
	if !ok {
		buf = &MemoryBuffer{
			backend: b,
			path:    path,
			nSubbuf: DefaultSubbufCount,
			maxSize: DefaultSubbufSize,
			closed:  true,
		}
		b.buffers[path] = buf
	}
	return buf
}

// Opens returns how many times path was opened
func (b *MemoryBackend) Opens(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[path]; ok {
		return buf.opens
	}
	return 0
}

// Open implements lttd.Backend
func (b *MemoryBackend) Open(path string) (lttd.Buffer, error) {
	if b.OpenErr != nil {
		if err := b.OpenErr(path); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	buf := b.bufferLocked(path)
	if !buf.closed {
		return nil, fmt.Errorf("%s is already open", path)
	}
	buf.closed = false
	buf.opens++
	return buf, nil
}

// Poll implements lttd.Backend
func (b *MemoryBackend) Poll(bufs []lttd.Buffer, timeout time.Duration, ready []lttd.Readiness) (int, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		changed := b.changed
		n := 0
		for i, lb := range bufs {
			mb, ok := lb.(*MemoryBuffer)
			if !ok {
				b.mu.Unlock()
				return 0, fmt.Errorf("buffer %d is not a memory buffer", i)
			}
			ready[i] = mb.readinessLocked()
			if ready[i] != 0 {
				n++
			}
		}
		b.mu.Unlock()

		if n > 0 {
			return n, nil
		}

		select {
		case <-changed:
		case <-deadline.C:
			return 0, nil
		}
	}
}

// signalLocked wakes every poller
func (b *MemoryBackend) signalLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// MemoryBuffer is a queue of subbuffers with relay reservation semantics
type MemoryBuffer struct {
	backend *MemoryBackend
	path    string
	nSubbuf uint32
	maxSize uint32

	queue    [][]byte
	reserved []byte
	held     bool
	consumed uint32
	hungUp   bool
	closed   bool
	opens    int
	putErr   error
}

var _ lttd.Buffer = (*MemoryBuffer)(nil)

// Write queues one subbuffer of data. Data longer than the max subbuffer
// size is truncated.
func (m *MemoryBuffer) Write(data []byte) {
	b := m.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if uint32(len(data)) > m.maxSize {
		data = data[:m.maxSize]
	}
	m.queue = append(m.queue, append([]byte(nil), data...))
	b.signalLocked()
}

// HangUp marks the channel finished. Queued data is still readable.
func (m *MemoryBuffer) HangUp() {
	b := m.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	m.hungUp = true
	b.signalLocked()
}

// Closed reports whether the engine released the buffer
func (m *MemoryBuffer) Closed() bool {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	return m.closed
}

// Pending returns how many subbuffers are queued and unread
func (m *MemoryBuffer) Pending() int {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	return len(m.queue)
}

// SetGeometry overrides the subbuffer count and size reported to the engine
func (m *MemoryBuffer) SetGeometry(nSubbuf, maxSize uint32) {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	m.nSubbuf = nSubbuf
	m.maxSize = maxSize
}

func (m *MemoryBuffer) readinessLocked() lttd.Readiness {
	if m.closed {
		return lttd.Hangup
	}
	var r lttd.Readiness
	if len(m.queue) > 0 {
		r |= lttd.Readable
		if uint32(len(m.queue)) >= m.nSubbuf {
			r |= lttd.Urgent
		}
	}
	if m.hungUp && len(m.queue) == 0 {
		r |= lttd.Hangup
	}
	return r
}

func (m *MemoryBuffer) SubbufCount() (uint32, error) {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	return m.nSubbuf, nil
}

func (m *MemoryBuffer) MaxSubbufSize() (uint32, error) {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	return m.maxSize, nil
}

func (m *MemoryBuffer) GetSubbuf() (uint32, error) {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()

	if m.closed {
		return 0, ErrBufferClosed
	}
	if m.held {
		return 0, ErrAlreadyReserved
	}
	if len(m.queue) == 0 {
		return 0, lttd.ErrNoData
	}
	m.reserved = m.queue[0]
	m.queue = m.queue[1:]
	m.held = true
	return m.consumed, nil
}

func (m *MemoryBuffer) SubbufSize() (uint32, error) {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()

	if !m.held {
		return 0, ErrNotReserved
	}
	return uint32(len(m.reserved)), nil
}

// ReadAt reads from the reserved subbuffer
func (m *MemoryBuffer) ReadAt(p []byte, off int64) (int, error) {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()

	if !m.held {
		return 0, ErrNotReserved
	}
	if off >= int64(len(m.reserved)) {
		return 0, io.EOF
	}
	n := copy(p, m.reserved[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemoryBuffer) PutSubbuf(consumed uint32) error {
	b := m.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if !m.held {
		return ErrNotReserved
	}
	if consumed != m.consumed {
		return fmt.Errorf("consumed count mismatch: got %d, want %d", consumed, m.consumed)
	}
	m.held = false
	m.reserved = nil
	m.consumed++
	b.signalLocked()

	if err := m.putErr; err != nil {
		m.putErr = nil
		return err
	}
	return nil
}

func (m *MemoryBuffer) Close() error {
	b := m.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if m.closed {
		return ErrBufferClosed
	}
	m.closed = true
	m.held = false
	m.reserved = nil
	b.signalLocked()
	return nil
}

// FailNextPut makes the next PutSubbuf return err after releasing the
// subbuffer
func (m *MemoryBuffer) FailNextPut(err error) {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	m.putErr = err
}

// Held reports whether a subbuffer is currently reserved
func (m *MemoryBuffer) Held() bool {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	return m.held
}
