//go:build unix

package lttd

import (
	"errors"

	"golang.org/x/sys/unix"
)

// interrupted reports a poll cut short by a signal
func interrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

// readable reports whether the process may still read path
func readable(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}
