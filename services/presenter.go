package services

import (
	"reflect"
	"time"

	"wheelsync/models"

	"go.uber.org/zap"
)

// Presenter consumes reconciled state. Implementations are called while the state store
// holds its lock, so they must return quickly and queue any I/O.
//
// Events arrive in the order changes were applied. Within one change OnStateChanged fires
// first, followed by OnCameraAvailable or OnCameraUnavailable when the camera status flipped.
// OnCommandFailed never accompanies a state change.
type Presenter interface {
	OnStateChanged(state models.DeviceState)
	OnCommandFailed(reason string)
	OnCameraUnavailable()
	OnCameraAvailable()
}

// MultiPresenter fans every event out to each presenter in order
type MultiPresenter []Presenter

func (m MultiPresenter) OnStateChanged(state models.DeviceState) {
	for _, p := range m {
		p.OnStateChanged(state)
	}
}

func (m MultiPresenter) OnCommandFailed(reason string) {
	for _, p := range m {
		p.OnCommandFailed(reason)
	}
}

func (m MultiPresenter) OnCameraUnavailable() {
	for _, p := range m {
		p.OnCameraUnavailable()
	}
}

func (m MultiPresenter) OnCameraAvailable() {
	for _, p := range m {
		p.OnCameraAvailable()
	}
}

// LogPresenter writes presentation events to the structured log
type LogPresenter struct {
	logger *zap.Logger
}

func NewLogPresenter(logger *zap.Logger) *LogPresenter {
	return &LogPresenter{logger: logger}
}

func (l *LogPresenter) OnStateChanged(state models.DeviceState) {
	fields := []zap.Field{
		zap.Bool("motor_running", state.Motor.Running),
		zap.Int("motor_speed", state.Motor.Speed),
		zap.String("direction", state.Motor.Direction.Badge()),
		zap.String("obstacle_level", string(state.Obstacle.Level)),
		zap.String("gps_fix", string(state.GPS.FixQuality)),
		zap.String("camera", string(state.Camera.Status)),
	}
	if state.Distance.Cm != nil {
		fields = append(fields, zap.Float64("distance_cm", *state.Distance.Cm))
	}
	l.logger.Debug("Device state changed", fields...)
}

func (l *LogPresenter) OnCommandFailed(reason string) {
	l.logger.Warn("Command failed", zap.String("reason", reason))
}

func (l *LogPresenter) OnCameraUnavailable() {
	l.logger.Warn("Camera unavailable, hiding live feed")
}

func (l *LogPresenter) OnCameraAvailable() {
	l.logger.Info("Camera available, showing live feed")
}

// MaterialChange reports whether next differs from prev in more than the frame URL and timestamp
func MaterialChange(prev, next models.DeviceState) bool {
	prev.Camera.FrameURL, next.Camera.FrameURL = "", ""
	prev.UpdatedAt, next.UpdatedAt = time.Time{}, time.Time{}
	return !reflect.DeepEqual(prev, next)
}
