package models

import "strings"

// CommandKind identifies a user intent
type CommandKind string

const (
	CommandDirection     CommandKind = "direction"
	CommandSpeed         CommandKind = "speed"
	CommandToggle        CommandKind = "toggle"
	CommandJoystick      CommandKind = "joystick"
	CommandEmergencyStop CommandKind = "emergency_stop"
)

// Command is a user intent as received from the command topic or a Go caller
type Command struct {
	Kind      CommandKind `json:"kind"`
	Direction Direction   `json:"direction,omitempty"`
	Speed     *int        `json:"speed,omitempty"`
	X         float64     `json:"x,omitempty"`
	Y         float64     `json:"y,omitempty"`
}

// MotorCommandRequest is the body of POST /api/motors/control
type MotorCommandRequest struct {
	Command string   `json:"command"`
	Speed   int      `json:"speed"`
	X       *float64 `json:"x,omitempty"`
	Y       *float64 `json:"y,omitempty"`
}

// CommandAck is the reply of POST /api/motors/control and GET /api/emergency_stop
type CommandAck struct {
	Status  string              `json:"status"`
	Message string              `json:"message,omitempty"`
	State   *MotorStatusPayload `json:"state,omitempty"`
}

// Succeeded reports whether the backend accepted the command
func (a CommandAck) Succeeded() bool {
	return strings.EqualFold(a.Status, "success")
}
