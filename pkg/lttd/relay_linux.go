//go:build linux
// +build linux

package lttd

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Relay channel control requests, _IOR/_IOW(0xF5, nr, __u32)
const (
	relayGetSubbuf        = 0x8004f500
	relayPutSubbuf        = 0x4004f501
	relayGetNSubbufs      = 0x8004f502
	relayGetSubbufSize    = 0x8004f503
	relayGetMaxSubbufSize = 0x8004f504
)

// relayBackend drives kernel relay channel files through ioctl and poll
type relayBackend struct{}

// NewRelayBackend returns the backend for kernel relay channels
func NewRelayBackend() Backend {
	return relayBackend{}
}

func (relayBackend) Open(path string) (Buffer, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &relayBuffer{fd: fd}, nil
}

func (relayBackend) Poll(bufs []Buffer, timeout time.Duration, ready []Readiness) (int, error) {
	fds := make([]unix.PollFd, len(bufs))
	for i, b := range bufs {
		rb, ok := b.(*relayBuffer)
		if !ok {
			return 0, fmt.Errorf("buffer %d is not a relay buffer", i)
		}
		fds[i] = unix.PollFd{
			Fd:     int32(rb.fd),
			Events: unix.POLLIN | unix.POLLPRI,
		}
	}

	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	count := 0
	for i, pfd := range fds {
		var r Readiness
		if pfd.Revents&unix.POLLIN != 0 {
			r |= Readable
		}
		if pfd.Revents&unix.POLLPRI != 0 {
			r |= Urgent
		}
		if pfd.Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			r |= Hangup
		}
		ready[i] = r
		if r != 0 {
			count++
		}
	}
	return count, nil
}

// relayBuffer is one open relay channel descriptor
type relayBuffer struct {
	fd int
}

func (b *relayBuffer) Fd() uintptr {
	return uintptr(b.fd)
}

func (b *relayBuffer) ReadAt(p []byte, off int64) (int, error) {
	return unix.Pread(b.fd, p, off)
}

func (b *relayBuffer) ioctl(req uintptr, v *uint32) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), req, uintptr(unsafe.Pointer(v)))
	if errno != 0 {
		return errno
	}
	return nil
}

func (b *relayBuffer) get(req uintptr) (uint32, error) {
	var v uint32
	err := b.ioctl(req, &v)
	return v, err
}

func (b *relayBuffer) SubbufCount() (uint32, error) {
	return b.get(relayGetNSubbufs)
}

func (b *relayBuffer) MaxSubbufSize() (uint32, error) {
	return b.get(relayGetMaxSubbufSize)
}

func (b *relayBuffer) GetSubbuf() (uint32, error) {
	consumed, err := b.get(relayGetSubbuf)
	if err == unix.EAGAIN || err == unix.ENODATA {
		return 0, ErrNoData
	}
	return consumed, err
}

func (b *relayBuffer) SubbufSize() (uint32, error) {
	return b.get(relayGetSubbufSize)
}

func (b *relayBuffer) PutSubbuf(consumed uint32) error {
	err := b.ioctl(relayPutSubbuf, &consumed)
	if err == unix.EIO {
		return ErrSubbufCorrupted
	}
	return err
}

func (b *relayBuffer) Close() error {
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}
