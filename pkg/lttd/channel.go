package lttd

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// closeCause records why a channel was closed
type closeCause int

const (
	closeStopping closeCause = iota
	closeRemoved
	closeHangup
	closeFailed
)

func (c closeCause) String() string {
	switch c {
	case closeStopping:
		return "stopping"
	case closeRemoved:
		return "removed"
	case closeHangup:
		return "hangup"
	case closeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Channel is the state tracked for one kernel channel file.
//
// Sinks may read the accessors and own UserData between OnOpenChannel and
// OnCloseChannel. Everything else belongs to the engine.
type Channel[T any] struct {
	path    string
	relPath string
	buf     Buffer
	nSubbuf uint32
	maxSize uint32
	worker  int

	// mu is held across a whole reserve/deliver/release cycle and across the
	// close transition, so a removal never lands mid-reservation.
	mu      sync.Mutex
	closed  bool
	removed atomic.Bool

	// UserData is the sink's payload for this channel
	UserData T
}

// NewChannel wraps an opened buffer. The engine creates channels itself;
// this is exported for sinks that need to exercise their callbacks directly.
func NewChannel[T any](path, relPath string, buf Buffer, worker int) (*Channel[T], error) {
	nSubbuf, err := buf.SubbufCount()
	if err != nil {
		return nil, fmt.Errorf("failed to get subbuffer count: %w", err)
	}
	maxSize, err := buf.MaxSubbufSize()
	if err != nil {
		return nil, fmt.Errorf("failed to get max subbuffer size: %w", err)
	}

	return &Channel[T]{
		path:    path,
		relPath: relPath,
		buf:     buf,
		nSubbuf: nSubbuf,
		maxSize: maxSize,
		worker:  worker,
	}, nil
}

// Path returns the absolute path of the channel file
func (c *Channel[T]) Path() string {
	return c.path
}

// RelPath returns the path relative to the channel root
func (c *Channel[T]) RelPath() string {
	return c.relPath
}

// SubbufCount returns the number of subbuffers of the channel
func (c *Channel[T]) SubbufCount() uint32 {
	return c.nSubbuf
}

// MaxSubbufSize returns the size of one subbuffer
func (c *Channel[T]) MaxSubbufSize() uint32 {
	return c.maxSize
}

// Worker returns the ordinal of the worker owning the channel
func (c *Channel[T]) Worker() int {
	return c.worker
}

// Fd returns the channel descriptor when the buffer is backed by one
func (c *Channel[T]) Fd() (uintptr, bool) {
	if fb, ok := c.buf.(FdBuffer); ok {
		return fb.Fd(), true
	}
	return 0, false
}

// ReadAt reads from the currently reserved subbuffer
func (c *Channel[T]) ReadAt(p []byte, off int64) (int, error) {
	return c.buf.ReadAt(p, off)
}

// markRemoved flags the channel for close by its owner. Taking the lock
// waits out any in-flight reservation.
func (c *Channel[T]) markRemoved() {
	c.mu.Lock()
	c.removed.Store(true)
	c.mu.Unlock()
}

func (c *Channel[T]) isRemoved() bool {
	return c.removed.Load()
}
