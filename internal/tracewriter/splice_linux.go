//go:build linux
// +build linux

package tracewriter

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

var errSpliceUnsupported = errors.New("splice not supported by channel")

const spliceFlags = unix.SPLICE_F_MOVE | unix.SPLICE_F_MORE

// pipe is the per-worker relay between channel and trace file
type pipe struct {
	r, w int
}

func newPipe(size int) (*pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	p := &pipe{r: fds[0], w: fds[1]}

	if size > 0 {
		// Best effort, capped by /proc/sys/fs/pipe-max-size
		_, _ = unix.FcntlInt(uintptr(p.w), unix.F_SETPIPE_SZ, size)
	}
	return p, nil
}

func (p *pipe) close() error {
	errR := unix.Close(p.r)
	errW := unix.Close(p.w)
	if errR != nil {
		return errR
	}
	return errW
}

// discard empties the pipe after a failed transfer so the next channel on
// this worker does not inherit stale bytes
func (p *pipe) discard() {
	n, err := unix.IoctlGetInt(p.r, unix.TIOCINQ) // TIOCINQ is Linux's FIONREAD
	if err != nil || n <= 0 {
		return
	}
	buf := make([]byte, n)
	for n > 0 {
		m, err := unix.Read(p.r, buf[:n])
		if err != nil || m <= 0 {
			return
		}
		n -= m
	}
}

// spliceSubbuffer moves length bytes from the reserved subbuffer of src into
// dst. It returns the bytes taken from the channel.
func spliceSubbuffer(src uintptr, p *pipe, dst *os.File, length uint32) (int64, error) {
	var off int64
	remaining := int(length)
	out := int(dst.Fd())

	for remaining > 0 {
		n, err := unix.Splice(int(src), &off, p.w, nil, remaining, spliceFlags)
		if err != nil {
			if off == 0 && (err == unix.EINVAL || err == unix.ENOSYS) {
				return 0, errSpliceUnsupported
			}
			return off, fmt.Errorf("failed to splice channel to pipe: %w", err)
		}
		if n == 0 {
			return off, io.ErrUnexpectedEOF
		}

		for pending := n; pending > 0; {
			m, err := unix.Splice(p.r, nil, out, nil, int(pending), spliceFlags)
			if err != nil {
				p.discard()
				return off, fmt.Errorf("failed to splice pipe to trace file: %w", err)
			}
			pending -= m
		}
		remaining -= int(n)
	}
	return off, nil
}
