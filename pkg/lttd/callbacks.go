package lttd

// Callbacks is the sink a Session reports to.
//
// T is the per-channel payload type stored in Channel.UserData. The payload
// may be set from OnOpenChannel and must be released by OnCloseChannel, after
// which the engine resets it to the zero value.
//
// All methods except OnTraceEnd must be safe for concurrent use.
type Callbacks[T any] interface {
	// OnOpenChannel is called once a channel buffer has been acquired.
	// relPath is relative to the channel root. A non-nil error drops the channel.
	OnOpenChannel(ch *Channel[T], relPath string) error

	// OnCloseChannel is called exactly once per opened channel, from the
	// worker owning it. The channel is never read again afterwards.
	// Errors are logged only.
	OnCloseChannel(ch *Channel[T]) error

	// OnNewFolder is called for every subdirectory before its content is
	// scanned. A non-nil error skips the subtree.
	OnNewFolder(relPath string) error

	// OnReadSubbuffer is called with a reserved subbuffer of length bytes.
	// It must move exactly length bytes out of the channel before returning.
	// A non-nil error closes the channel.
	OnReadSubbuffer(ch *Channel[T], length uint32) error

	// OnNewThread is called by each worker before it starts draining
	OnNewThread(worker int) error

	// OnCloseThread is called by each worker right before it exits
	OnCloseThread(worker int) error

	// OnTraceEnd is called once, after every worker has exited. No callback
	// follows it.
	OnTraceEnd()
}

// NopCallbacks implements every callback as a no-op. Embed it to implement
// only the callbacks you need.
type NopCallbacks[T any] struct{}

func (NopCallbacks[T]) OnOpenChannel(*Channel[T], string) error   { return nil }
func (NopCallbacks[T]) OnCloseChannel(*Channel[T]) error          { return nil }
func (NopCallbacks[T]) OnNewFolder(string) error                  { return nil }
func (NopCallbacks[T]) OnReadSubbuffer(*Channel[T], uint32) error { return nil }
func (NopCallbacks[T]) OnNewThread(int) error                     { return nil }
func (NopCallbacks[T]) OnCloseThread(int) error                   { return nil }
func (NopCallbacks[T]) OnTraceEnd()                               {}
