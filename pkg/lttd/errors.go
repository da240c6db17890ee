package lttd

import "errors"

var (
	// ErrConflictingFilters is returned when both flight-only and normal-only are requested
	ErrConflictingFilters = errors.New("flight-only and normal-only filters are mutually exclusive")

	// ErrWorkerCount is returned when the worker count is not positive
	ErrWorkerCount = errors.New("invalid worker count")

	// ErrAlreadyStarted is returned by Start on a session that is running or stopping
	ErrAlreadyStarted = errors.New("session already started")

	// ErrSessionEnded is returned once the session has delivered OnTraceEnd
	ErrSessionEnded = errors.New("session ended")

	// ErrNoData is returned by Buffer.GetSubbuf when no subbuffer is ready
	ErrNoData = errors.New("no subbuffer available")

	// ErrSubbufCorrupted is returned by Buffer.PutSubbuf when the writer
	// overwrote the subbuffer while it was reserved
	ErrSubbufCorrupted = errors.New("reader pushed by the writer, subbuffer corrupted")

	// ErrUnsupportedPlatform is returned by the relay backend outside Linux
	ErrUnsupportedPlatform = errors.New("relay channels are only supported on linux")
)
