package models

import (
	"regexp"
	"strconv"
	"strings"
)

// GPSStatus is the receiver status reported by /api/gps/formatted
type GPSStatus string

const (
	GPSActive       GPSStatus = "active"
	GPSNoFix        GPSStatus = "no_fix"
	GPSConnected    GPSStatus = "connected"
	GPSDisconnected GPSStatus = "disconnected"
	GPSError        GPSStatus = "error"
	GPSUnknown      GPSStatus = "unknown"
)

// GPSFixQuality is the badge derived from GPSStatus
type GPSFixQuality string

const (
	GPSFixAcquired  GPSFixQuality = "fix"
	GPSFixAcquiring GPSFixQuality = "acquiring"
	GPSFixLost      GPSFixQuality = "lost"
	GPSFixUnknown   GPSFixQuality = "unknown"
)

const (
	UnknownCoordinates = "Unknown"
	NoValue            = "--"
)

// ParseGPSStatus maps any unrecognised value to GPSUnknown
func ParseGPSStatus(s string) GPSStatus {
	switch st := GPSStatus(s); st {
	case GPSActive, GPSNoFix, GPSConnected, GPSDisconnected, GPSError:
		return st
	}
	return GPSUnknown
}

// FixQuality classifies the status the way the dashboard badge does
func (s GPSStatus) FixQuality() GPSFixQuality {
	switch s {
	case GPSActive:
		return GPSFixAcquired
	case GPSNoFix, GPSConnected:
		return GPSFixAcquiring
	case GPSDisconnected, GPSError:
		return GPSFixLost
	default:
		return GPSFixUnknown
	}
}

var (
	latitudePattern  = regexp.MustCompile(`(\d+(?:\.\d+)?)°\s*([NS])`)
	longitudePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)°\s*([EW])`)
)

// ParseCoordinates parses a display string such as "13.7563° N, 100.5018° E"
// into signed decimal degrees.
func ParseCoordinates(s string) (lat, lng float64, ok bool) {
	if s == "" || s == UnknownCoordinates {
		return 0, 0, false
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}

	latMatch := latitudePattern.FindStringSubmatch(parts[0])
	lngMatch := longitudePattern.FindStringSubmatch(parts[1])
	if latMatch == nil || lngMatch == nil {
		return 0, 0, false
	}

	lat, err := strconv.ParseFloat(latMatch[1], 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(lngMatch[1], 64)
	if err != nil {
		return 0, 0, false
	}

	if latMatch[2] == "S" {
		lat = -lat
	}
	if lngMatch[2] == "W" {
		lng = -lng
	}
	return lat, lng, true
}
