package models

import (
	"time"
)

// Direction is the motor direction reported by the backend or requested by the user
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
	DirectionLeft     Direction = "left"
	DirectionRight    Direction = "right"
	DirectionStop     Direction = "stop"
	DirectionJoystick Direction = "joystick"
)

// ParseDirection maps a wire value to a Direction
func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(s); d {
	case DirectionForward, DirectionBackward, DirectionLeft, DirectionRight, DirectionStop, DirectionJoystick:
		return d, true
	}
	return "", false
}

// IsMovement reports whether the direction moves the chair
func (d Direction) IsMovement() bool {
	return d != DirectionStop && d != ""
}

// Badge returns the short label shown next to the direction indicator
func (d Direction) Badge() string {
	switch d {
	case DirectionForward:
		return "Forward"
	case DirectionBackward:
		return "Backward"
	case DirectionLeft:
		return "Left"
	case DirectionRight:
		return "Right"
	case DirectionJoystick:
		return "Joystick"
	case DirectionStop:
		return "Stopped"
	default:
		return "None"
	}
}

// ObstacleLevel classifies how close the nearest obstacle is
type ObstacleLevel string

const (
	ObstacleClear   ObstacleLevel = "clear"
	ObstacleCaution ObstacleLevel = "caution"
	ObstacleWarning ObstacleLevel = "warning"
	ObstacleDanger  ObstacleLevel = "danger"
)

// Family groups DeviceState fields that share one overwrite rule
type Family string

const (
	FamilyMotor  Family = "motor"
	FamilySensor Family = "sensor"
	FamilyGPS    Family = "gps"
	FamilyCamera Family = "camera"
)

// MotorState is the motor field family
type MotorState struct {
	Running   bool      `json:"running"`
	Speed     int       `json:"speed"`
	Direction Direction `json:"direction"`
}

// DistanceState holds the raw distance sensor value; Cm is nil until the first reading
type DistanceState struct {
	Cm *float64 `json:"cm,omitempty"`
}

// ObstacleState is derived from the obstacle sensor reading
type ObstacleState struct {
	DistanceCm        float64       `json:"distance_cm"`
	Level             ObstacleLevel `json:"level"`
	Detected          bool          `json:"detected"`
	AutoStopTriggered bool          `json:"auto_stop_triggered"`
}

// GPSState is the formatted GPS family
type GPSState struct {
	Status      GPSStatus     `json:"status"`
	FixQuality  GPSFixQuality `json:"fix_quality"`
	Coordinates string        `json:"coordinates"`
	Speed       string        `json:"speed"`
	Altitude    string        `json:"altitude"`
	Satellites  string        `json:"satellites"`
	Description string        `json:"description,omitempty"`
	Latitude    *float64      `json:"latitude,omitempty"`
	Longitude   *float64      `json:"longitude,omitempty"`
}

// CameraState is the camera family
type CameraState struct {
	Status   CameraStatus `json:"status"`
	URL      string       `json:"url"`
	FrameURL string       `json:"frame_url,omitempty"`
}

// Available reports whether the live feed should be shown
func (c CameraState) Available() bool {
	return c.Status == CameraAvailable
}

// LastCommand is the most recent user-issued intent
type LastCommand struct {
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      CommandKind `json:"kind,omitempty"`
	Direction Direction   `json:"direction,omitempty"`
	Speed     int         `json:"speed"`
}

// Watermarks holds one logical sequence number per field family
type Watermarks struct {
	Motor  uint64 `json:"motor"`
	Sensor uint64 `json:"sensor"`
	GPS    uint64 `json:"gps"`
	Camera uint64 `json:"camera"`
}

// Get returns the watermark of a family
func (w Watermarks) Get(f Family) uint64 {
	switch f {
	case FamilyMotor:
		return w.Motor
	case FamilySensor:
		return w.Sensor
	case FamilyGPS:
		return w.GPS
	case FamilyCamera:
		return w.Camera
	}
	return 0
}

// Raise returns a copy with the family watermark moved up to seq. It never moves down.
func (w Watermarks) Raise(f Family, seq uint64) Watermarks {
	if seq <= w.Get(f) {
		return w
	}
	switch f {
	case FamilyMotor:
		w.Motor = seq
	case FamilySensor:
		w.Sensor = seq
	case FamilyGPS:
		w.GPS = seq
	case FamilyCamera:
		w.Camera = seq
	}
	return w
}

// DeviceState is the single reconciled view of the wheelchair.
// It is passed by value; pointer fields point at values that are never mutated in place.
type DeviceState struct {
	SessionID   string        `json:"session_id"`
	Motor       MotorState    `json:"motor"`
	Distance    DistanceState `json:"distance"`
	Obstacle    ObstacleState `json:"obstacle"`
	GPS         GPSState      `json:"gps"`
	Camera      CameraState   `json:"camera"`
	LastCommand LastCommand   `json:"last_command"`
	Confirmed   Watermarks    `json:"confirmed"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewDeviceState returns the all-unknown state a session starts from
func NewDeviceState(sessionID string, defaultSpeed int) DeviceState {
	return DeviceState{
		SessionID: sessionID,
		Motor: MotorState{
			Speed:     defaultSpeed,
			Direction: DirectionStop,
		},
		Obstacle: ObstacleState{
			Level: ObstacleClear,
		},
		GPS: GPSState{
			Status:      GPSUnknown,
			FixQuality:  GPSFixUnknown,
			Coordinates: UnknownCoordinates,
			Speed:       NoValue,
			Altitude:    NoValue,
			Satellites:  NoValue,
		},
		Camera: CameraState{
			Status: CameraUnknown,
		},
	}
}
