//go:build !unix

package cli

import "errors"

func isDaemonChild() bool {
	return false
}

func daemonize() (int, error) {
	return 0, errors.New("daemon mode is not supported on this platform")
}
