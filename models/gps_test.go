package models

import "testing"

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		in       string
		lat, lng float64
		ok       bool
	}{
		{"13.7563° N, 100.5018° E", 13.7563, 100.5018, true},
		{"33.8688° S, 151.2093° E", -33.8688, 151.2093, true},
		{"40.7128° N, 74.0060° W", 40.7128, -74.006, true},
		{"51°N, 0.1278° W", 51, -0.1278, true},
		{UnknownCoordinates, 0, 0, false},
		{"", 0, 0, false},
		{"13.7563, 100.5018", 0, 0, false},
		{"13.7563° N", 0, 0, false},
	}

	for _, tt := range tests {
		lat, lng, ok := ParseCoordinates(tt.in)
		if ok != tt.ok || lat != tt.lat || lng != tt.lng {
			t.Errorf("ParseCoordinates(%q) = %v, %v, %v; want %v, %v, %v", tt.in, lat, lng, ok, tt.lat, tt.lng, tt.ok)
		}
	}
}

func TestGPSFixQuality(t *testing.T) {
	tests := []struct {
		status string
		want   GPSFixQuality
	}{
		{"active", GPSFixAcquired},
		{"no_fix", GPSFixAcquiring},
		{"connected", GPSFixAcquiring},
		{"disconnected", GPSFixLost},
		{"error", GPSFixLost},
		{"searching", GPSFixUnknown},
		{"", GPSFixUnknown},
	}

	for _, tt := range tests {
		if got := ParseGPSStatus(tt.status).FixQuality(); got != tt.want {
			t.Errorf("status %q: fix quality = %s, want %s", tt.status, got, tt.want)
		}
	}
}
