package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMotorStatusPayload(t *testing.T) {
	var p MotorStatusPayload
	if err := json.Unmarshal([]byte(`{"running": true, "speed": 69.6, "direction": "forward"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	r, err := p.Reading()
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if r != (MotorReading{Running: true, Speed: 70, Direction: DirectionForward}) {
		t.Fatalf("reading = %+v", r)
	}

	for _, body := range []string{
		`{"speed": 10, "direction": "stop"}`,
		`{"running": false, "direction": "stop"}`,
		`{"running": false, "speed": 10}`,
	} {
		var p MotorStatusPayload
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			t.Fatalf("unmarshal %s: %v", body, err)
		}
		if _, err := p.Reading(); !errors.Is(err, ErrMissingField) {
			t.Errorf("%s: err = %v, want ErrMissingField", body, err)
		}
	}

	speed, running, direction := 120.0, true, "stop"
	if _, err := (MotorStatusPayload{Running: &running, Speed: &speed, Direction: &direction}).Reading(); err == nil {
		t.Errorf("speed 120 accepted")
	}
}

func TestGPSPayloadDefaults(t *testing.T) {
	var p GPSPayload
	if err := json.Unmarshal([]byte(`{"status": "disconnected", "error": "serial port closed"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	r, err := p.Reading()
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	want := GPSReading{
		Status:      GPSDisconnected,
		Coordinates: UnknownCoordinates,
		Speed:       NoValue,
		Altitude:    NoValue,
		Satellites:  NoValue,
		Description: "serial port closed",
	}
	if r != want {
		t.Fatalf("reading = %+v, want %+v", r, want)
	}
}

func TestObstaclePayload(t *testing.T) {
	var p ObstaclePayload
	if err := json.Unmarshal([]byte(`{"distance": 8.5, "warning_level": "danger", "detected": true, "auto_stop_triggered": true}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	r, err := p.Reading()
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if r.DistanceCm != 8.5 || r.ReportedLevel != "danger" || !r.Detected || !r.AutoStopTriggered {
		t.Fatalf("reading = %+v", r)
	}

	if _, err := (ObstaclePayload{}).Reading(); !errors.Is(err, ErrMissingField) {
		t.Fatalf("empty payload: err = %v", err)
	}
}

func TestWatermarksNeverMoveDown(t *testing.T) {
	w := Watermarks{}.Raise(FamilyGPS, 9)
	w = w.Raise(FamilyGPS, 4)
	if w.Get(FamilyGPS) != 9 {
		t.Fatalf("gps watermark = %d, want 9", w.Get(FamilyGPS))
	}
	if w.Get(FamilyMotor) != 0 {
		t.Fatalf("motor watermark moved")
	}
}
