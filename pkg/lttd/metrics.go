package lttd

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/yairfalse/lttd/pkg/lttd"

// sessionMetrics holds the OTEL instruments of a session. Any instrument
// may be nil when its creation failed; metrics are optional.
type sessionMetrics struct {
	attrs metric.MeasurementOption

	subbuffersRead    metric.Int64Counter
	bytesRead         metric.Int64Counter
	channelErrors     metric.Int64Counter
	corruptSubbuffers metric.Int64Counter
	openChannels      metric.Int64UpDownCounter
}

func newSessionMetrics(sessionID string, logger *zap.Logger) *sessionMetrics {
	meter := otel.Meter(meterName)
	m := &sessionMetrics{
		attrs: metric.WithAttributes(attribute.String("session_id", sessionID)),
	}

	var err error
	m.subbuffersRead, err = meter.Int64Counter(
		"lttd_subbuffers_read_total",
		metric.WithDescription("Subbuffers delivered to the sink"),
		metric.WithUnit("1"),
	)
	if err != nil {
		logger.Debug("Failed to create subbuffers read counter", zap.Error(err))
		m.subbuffersRead = nil
	}

	m.bytesRead, err = meter.Int64Counter(
		"lttd_bytes_read_total",
		metric.WithDescription("Bytes delivered to the sink"),
		metric.WithUnit("By"),
	)
	if err != nil {
		logger.Debug("Failed to create bytes read counter", zap.Error(err))
		m.bytesRead = nil
	}

	m.channelErrors, err = meter.Int64Counter(
		"lttd_channel_errors_total",
		metric.WithDescription("Channels dropped because of an error"),
		metric.WithUnit("1"),
	)
	if err != nil {
		logger.Debug("Failed to create channel errors counter", zap.Error(err))
		m.channelErrors = nil
	}

	m.corruptSubbuffers, err = meter.Int64Counter(
		"lttd_corrupted_subbuffers_total",
		metric.WithDescription("Subbuffers overwritten by the writer while reserved"),
		metric.WithUnit("1"),
	)
	if err != nil {
		logger.Debug("Failed to create corrupted subbuffers counter", zap.Error(err))
		m.corruptSubbuffers = nil
	}

	m.openChannels, err = meter.Int64UpDownCounter(
		"lttd_open_channels",
		metric.WithDescription("Channels currently open"),
		metric.WithUnit("1"),
	)
	if err != nil {
		logger.Debug("Failed to create open channels gauge", zap.Error(err))
		m.openChannels = nil
	}

	return m
}

func (m *sessionMetrics) recordSubbuffer(length uint32) {
	ctx := context.Background()
	if m.subbuffersRead != nil {
		m.subbuffersRead.Add(ctx, 1, m.attrs)
	}
	if m.bytesRead != nil {
		m.bytesRead.Add(ctx, int64(length), m.attrs)
	}
}

func (m *sessionMetrics) recordChannelError(op string) {
	if m.channelErrors != nil {
		m.channelErrors.Add(context.Background(), 1, m.attrs,
			metric.WithAttributes(attribute.String("op", op)))
	}
}

func (m *sessionMetrics) recordCorrupted() {
	if m.corruptSubbuffers != nil {
		m.corruptSubbuffers.Add(context.Background(), 1, m.attrs)
	}
}

func (m *sessionMetrics) recordOpen(delta int64) {
	if m.openChannels != nil {
		m.openChannels.Add(context.Background(), delta, m.attrs)
	}
}
