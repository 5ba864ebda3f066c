package models

import (
	"errors"
	"fmt"
	"math"
)

// Reading is a validated poll result for one field family
type Reading interface {
	Family() Family
}

// MotorReading is a validated GET /api/motors/status result
type MotorReading struct {
	Running   bool
	Speed     int
	Direction Direction
}

func (MotorReading) Family() Family { return FamilyMotor }

// SensorReading combines the distance sensor and obstacle status polls.
// Either half may be nil when its endpoint failed on this tick.
type SensorReading struct {
	DistanceCm *float64
	Obstacle   *ObstacleReading
}

func (SensorReading) Family() Family { return FamilySensor }

// ObstacleReading is a validated GET /api/obstacle_status result
type ObstacleReading struct {
	DistanceCm        float64
	ReportedLevel     string
	Detected          bool
	AutoStopTriggered bool
}

// GPSReading is a validated GET /api/gps/formatted result
type GPSReading struct {
	Status      GPSStatus
	Coordinates string
	Speed       string
	Altitude    string
	Satellites  string
	Description string
}

func (GPSReading) Family() Family { return FamilyGPS }

// CameraReading is a validated camera liveness probe
type CameraReading struct {
	Available bool
	URL       string
}

func (CameraReading) Family() Family { return FamilyCamera }

// FrameReading carries a cache-busted frame URL for the live feed
type FrameReading struct {
	FrameURL string
}

func (FrameReading) Family() Family { return FamilyCamera }

// ErrMissingField marks a payload that lacks a required field
var ErrMissingField = errors.New("missing required field")

// MotorStatusPayload is the body of GET /api/motors/status
type MotorStatusPayload struct {
	Running   *bool    `json:"running"`
	Speed     *float64 `json:"speed"`
	Direction *string  `json:"direction"`
}

// Reading validates the payload
func (p MotorStatusPayload) Reading() (MotorReading, error) {
	if p.Running == nil {
		return MotorReading{}, fmt.Errorf("%w: running", ErrMissingField)
	}
	if p.Speed == nil {
		return MotorReading{}, fmt.Errorf("%w: speed", ErrMissingField)
	}
	if p.Direction == nil {
		return MotorReading{}, fmt.Errorf("%w: direction", ErrMissingField)
	}

	speed := int(math.Round(*p.Speed))
	if speed < 0 || speed > 100 {
		return MotorReading{}, fmt.Errorf("speed %d out of range", speed)
	}
	direction, ok := ParseDirection(*p.Direction)
	if !ok {
		return MotorReading{}, fmt.Errorf("unknown direction %q", *p.Direction)
	}

	return MotorReading{Running: *p.Running, Speed: speed, Direction: direction}, nil
}

// DistancePayload is the body of GET /api/sensors/distance
type DistancePayload struct {
	Distance *float64 `json:"distance"`
	Error    string   `json:"error,omitempty"`
}

// Reading validates the payload
func (p DistancePayload) Reading() (float64, error) {
	if p.Distance == nil {
		if p.Error != "" {
			return 0, fmt.Errorf("%w: distance (%s)", ErrMissingField, p.Error)
		}
		return 0, fmt.Errorf("%w: distance", ErrMissingField)
	}
	if *p.Distance < 0 || math.IsNaN(*p.Distance) {
		return 0, fmt.Errorf("invalid distance %v", *p.Distance)
	}
	return *p.Distance, nil
}

// ObstaclePayload is the body of GET /api/obstacle_status
type ObstaclePayload struct {
	Distance          *float64 `json:"distance"`
	WarningLevel      *string  `json:"warning_level"`
	Detected          *bool    `json:"detected"`
	AutoStopTriggered *bool    `json:"auto_stop_triggered"`
}

// Reading validates the payload
func (p ObstaclePayload) Reading() (ObstacleReading, error) {
	if p.Distance == nil {
		return ObstacleReading{}, fmt.Errorf("%w: distance", ErrMissingField)
	}
	if p.Detected == nil {
		return ObstacleReading{}, fmt.Errorf("%w: detected", ErrMissingField)
	}
	if *p.Distance < 0 || math.IsNaN(*p.Distance) {
		return ObstacleReading{}, fmt.Errorf("invalid distance %v", *p.Distance)
	}

	r := ObstacleReading{
		DistanceCm: *p.Distance,
		Detected:   *p.Detected,
	}
	if p.WarningLevel != nil {
		r.ReportedLevel = *p.WarningLevel
	}
	if p.AutoStopTriggered != nil {
		r.AutoStopTriggered = *p.AutoStopTriggered
	}
	return r, nil
}

// GPSPayload is the body of GET /api/gps/formatted
type GPSPayload struct {
	Status            *string `json:"status"`
	Coordinates       string  `json:"coordinates"`
	Speed             string  `json:"speed"`
	Altitude          string  `json:"altitude"`
	Satellites        string  `json:"satellites"`
	StatusDescription string  `json:"status_description"`
	Error             string  `json:"error,omitempty"`
}

// Reading validates the payload and fills display defaults
func (p GPSPayload) Reading() (GPSReading, error) {
	if p.Status == nil {
		return GPSReading{}, fmt.Errorf("%w: status", ErrMissingField)
	}

	r := GPSReading{
		Status:      ParseGPSStatus(*p.Status),
		Coordinates: orDefault(p.Coordinates, UnknownCoordinates),
		Speed:       orDefault(p.Speed, NoValue),
		Altitude:    orDefault(p.Altitude, NoValue),
		Satellites:  orDefault(p.Satellites, NoValue),
		Description: p.StatusDescription,
	}
	if r.Description == "" && p.Error != "" {
		r.Description = p.Error
	}
	return r, nil
}

// Reading validates the payload
func (p CameraStatusPayload) Reading() (CameraReading, error) {
	if p.Available == nil {
		return CameraReading{}, fmt.Errorf("%w: available", ErrMissingField)
	}
	return CameraReading{Available: *p.Available, URL: p.URL}, nil
}

// GPSSaveRequest is the body of POST /api/gps/save
type GPSSaveRequest struct {
	Label string `json:"label"`
}

// GPSSaveResponse is the reply of POST /api/gps/save
type GPSSaveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
