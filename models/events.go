package models

import (
	"time"
)

// EventType names a presentation event published to external consumers
type EventType string

const (
	EventStateChanged      EventType = "state_changed"
	EventCommandFailed     EventType = "command_failed"
	EventCameraAvailable   EventType = "camera_available"
	EventCameraUnavailable EventType = "camera_unavailable"
)

// StateEvent is the envelope published on MQTT and RabbitMQ
type StateEvent struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"session_id"`
	Timestamp time.Time    `json:"timestamp"`
	Reason    string       `json:"reason,omitempty"`
	State     *DeviceState `json:"state,omitempty"`
}

// StateSnapshot is one entry of the session history log
type StateSnapshot struct {
	SessionID string      `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
	State     DeviceState `json:"state"`
}
