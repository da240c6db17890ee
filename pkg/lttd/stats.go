package lttd

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of a session's counters
type Stats struct {
	SessionID         string
	State             State
	ChannelsOpened    int64
	ChannelsClosed    int64
	ChannelErrors     int64
	SubbuffersRead    int64
	BytesRead         int64
	CorruptSubbuffers int64
	RunningWorkers    int32
	Uptime            time.Duration
}

// sessionStats is updated concurrently by workers
type sessionStats struct {
	channelsOpened    atomic.Int64
	channelsClosed    atomic.Int64
	channelErrors     atomic.Int64
	subbuffersRead    atomic.Int64
	bytesRead         atomic.Int64
	corruptSubbuffers atomic.Int64
	hungUp            atomic.Int64
}

// Statistics returns the session counters
func (s *Session[T]) Statistics() Stats {
	var uptime time.Duration
	if t, ok := s.startTime.Load().(time.Time); ok {
		uptime = time.Since(t)
	}

	return Stats{
		SessionID:         s.id,
		State:             s.State(),
		ChannelsOpened:    s.stats.channelsOpened.Load(),
		ChannelsClosed:    s.stats.channelsClosed.Load(),
		ChannelErrors:     s.stats.channelErrors.Load(),
		SubbuffersRead:    s.stats.subbuffersRead.Load(),
		BytesRead:         s.stats.bytesRead.Load(),
		CorruptSubbuffers: s.stats.corruptSubbuffers.Load(),
		RunningWorkers:    s.pool.Running(),
		Uptime:            uptime,
	}
}
