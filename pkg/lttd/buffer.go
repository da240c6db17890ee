package lttd

import (
	"io"
	"time"
)

// Readiness reports what a poll observed on one channel buffer
type Readiness uint8

const (
	// Readable means at least one subbuffer is ready to be reserved
	Readable Readiness = 1 << iota
	// Urgent means the buffer is full and should be consumed first
	Urgent
	// Hangup means the channel is finished (tracing stopped, CPU removed or error)
	Hangup
)

// Buffer is the control interface of one kernel channel buffer.
//
// GetSubbuf reserves the next subbuffer and returns the consumed count that
// must be handed back to PutSubbuf. While a subbuffer is reserved, ReadAt
// offsets are relative to the start of that subbuffer.
type Buffer interface {
	io.ReaderAt

	SubbufCount() (uint32, error)
	MaxSubbufSize() (uint32, error)

	GetSubbuf() (uint32, error)
	SubbufSize() (uint32, error)
	PutSubbuf(consumed uint32) error

	Close() error
}

// FdBuffer is implemented by buffers backed by a real file descriptor.
// Sinks use it for zero-copy transfers.
type FdBuffer interface {
	Buffer
	Fd() uintptr
}

// Backend opens channel buffers and waits for them to become ready
type Backend interface {
	// Open acquires the buffer behind the channel file at path
	Open(path string) (Buffer, error)

	// Poll waits at most timeout for any of bufs to become ready and stores
	// each buffer's readiness in ready, which has the same length as bufs.
	// It returns the number of ready buffers; zero means the wait timed out.
	Poll(bufs []Buffer, timeout time.Duration, ready []Readiness) (int, error)
}
