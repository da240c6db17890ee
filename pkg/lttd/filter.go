package lttd

import "strings"

// FlightPrefix marks channel files written in flight-recorder mode
const FlightPrefix = "flight-"

// IsFlightChannel reports whether the channel file name belongs to a
// flight-recorder channel
func IsFlightChannel(name string) bool {
	return strings.HasPrefix(name, FlightPrefix)
}

// channelFilter selects channel files by mode. Both flags set is rejected by
// Config.Validate.
type channelFilter struct {
	flightOnly bool
	normalOnly bool
}

func (f channelFilter) include(name string) bool {
	switch {
	case f.flightOnly:
		return IsFlightChannel(name)
	case f.normalOnly:
		return !IsFlightChannel(name)
	default:
		return true
	}
}
