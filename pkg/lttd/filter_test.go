package lttd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFlightChannel(t *testing.T) {
	assert.True(t, IsFlightChannel("flight-cpu0"))
	assert.True(t, IsFlightChannel("flight-"))
	assert.False(t, IsFlightChannel("cpu0"))
	assert.False(t, IsFlightChannel("my-flight-cpu0"))
	assert.False(t, IsFlightChannel("Flight-cpu0"))
}

func TestChannelFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter channelFilter
		file   string
		want   bool
	}{
		{"no filter normal", channelFilter{}, "cpu0", true},
		{"no filter flight", channelFilter{}, "flight-cpu0", true},
		{"flight only keeps flight", channelFilter{flightOnly: true}, "flight-cpu0", true},
		{"flight only drops normal", channelFilter{flightOnly: true}, "cpu0", false},
		{"normal only keeps normal", channelFilter{normalOnly: true}, "cpu0", true},
		{"normal only drops flight", channelFilter{normalOnly: true}, "flight-cpu1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.include(tt.file))
		})
	}
}
