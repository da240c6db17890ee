//go:build !linux
// +build !linux

package lttd

import "time"

// Platform fallback for non-Linux systems (development only).
// Sessions can still run against an injected Backend.

type relayBackend struct{}

// NewRelayBackend returns a backend that refuses every channel
func NewRelayBackend() Backend {
	return relayBackend{}
}

func (relayBackend) Open(string) (Buffer, error) {
	return nil, ErrUnsupportedPlatform
}

func (relayBackend) Poll([]Buffer, time.Duration, []Readiness) (int, error) {
	return 0, ErrUnsupportedPlatform
}
