// Package lttd drains per-CPU kernel relay channels into a caller supplied sink.
//
// A Session walks a channel tree (typically a debugfs directory), opens every
// channel file that passes the flight/normal filters and hands each one to a
// fixed pool of workers. Workers run the reserve, deliver, release cycle on
// their channels until the session is stopped or the channel goes away.
// Channels appearing or disappearing while the session runs (CPU hot-plug)
// are picked up through filesystem notifications.
//
// The sink is a Callbacks implementation. Every callback except OnTraceEnd may
// be invoked concurrently from several workers.
//
// The kernel relay backend is Linux only. Elsewhere NewRelayBackend fails
// with ErrUnsupportedPlatform and sessions run on caller supplied backends.
package lttd
