package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"wheelsync/models"

	"go.uber.org/zap"
)

// CommandDispatcher sends user intents to the backend and confirms them in the state store
type CommandDispatcher struct {
	backend CommandSink
	store   *StateStore
	logger  *zap.Logger

	mu       sync.Mutex
	speed    int // slider value sent with the next command
	observed int // motor speed last seen in the store
	inFlight int
}

// NewCommandDispatcher creates a new command dispatcher
func NewCommandDispatcher(backend CommandSink, store *StateStore, defaultSpeed int, logger *zap.Logger) *CommandDispatcher {
	return &CommandDispatcher{
		backend: backend,
		store:   store,
		logger:  logger,
		speed:    defaultSpeed,
		observed: defaultSpeed,
	}
}

// Speed returns the speed that will accompany the next command
func (d *CommandDispatcher) Speed() int {
	return d.sliderSpeed(d.store.Snapshot().Motor)
}

// sliderSpeed follows the polled motor speed when it moves, so a speed changed on the
// backend by another client is not reverted. A locally stored speed is kept until then.
func (d *CommandDispatcher) sliderSpeed(local models.MotorState) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight == 0 && local.Speed != d.observed {
		d.speed = local.Speed
		d.observed = local.Speed
	}
	return d.speed
}

// SendCommand validates a command against the local view, sends it and confirms its effect.
// On failure the state is left untouched and presenters receive OnCommandFailed once.
func (d *CommandDispatcher) SendCommand(ctx context.Context, cmd models.Command) (models.CommandAck, error) {
	local := d.store.Snapshot().Motor

	req, err := d.prepare(cmd, local)
	if err != nil {
		d.logger.Debug("Command rejected locally",
			zap.String("kind", string(cmd.Kind)),
			zap.String("direction", string(cmd.Direction)),
			zap.Error(err))
		return models.CommandAck{}, err
	}

	// A speed change without a movement in progress only moves the slider; re-sending
	// "stop" would switch the motors off
	if cmd.Kind == models.CommandSpeed && !carriesSpeed(local) {
		d.setSpeed(req.Speed)
		return models.CommandAck{Status: "success", Message: "speed stored"}, nil
	}

	d.begin()
	defer d.end()

	seq := d.store.NextSeq()
	d.store.RecordCommand(cmd, req.Speed, seq)

	var ack models.CommandAck
	if cmd.Kind == models.CommandEmergencyStop {
		ack, err = d.backend.EmergencyStop(ctx)
	} else {
		ack, err = d.backend.MotorCommand(ctx, req)
	}
	if err != nil {
		d.logger.Warn("Motor command failed",
			zap.String("command", req.Command),
			zap.Int("speed", req.Speed),
			zap.Uint64("seq", seq),
			zap.Error(err))
		d.store.ReportCommandFailure(failureReason(req.Command, err))
		return ack, err
	}

	if cmd.Kind == models.CommandSpeed {
		d.setSpeed(req.Speed)
	}
	outcome := d.store.ConfirmCommand(d.effect(cmd, req, local, ack), seq)

	d.logger.Info("Motor command confirmed",
		zap.String("command", req.Command),
		zap.Int("speed", req.Speed),
		zap.Uint64("seq", seq),
		zap.Stringer("outcome", outcome))
	return ack, nil
}

// SetDirection moves the chair; only stop is accepted while motors are off
func (d *CommandDispatcher) SetDirection(ctx context.Context, direction models.Direction) error {
	_, err := d.SendCommand(ctx, models.Command{Kind: models.CommandDirection, Direction: direction})
	return err
}

// SetSpeed changes the speed of the current direction
func (d *CommandDispatcher) SetSpeed(ctx context.Context, speed int) error {
	_, err := d.SendCommand(ctx, models.Command{Kind: models.CommandSpeed, Speed: &speed})
	return err
}

// ToggleMotors starts stopped motors and stops running ones
func (d *CommandDispatcher) ToggleMotors(ctx context.Context) error {
	_, err := d.SendCommand(ctx, models.Command{Kind: models.CommandToggle})
	return err
}

// Joystick sends a joystick vector
func (d *CommandDispatcher) Joystick(ctx context.Context, x, y float64) error {
	_, err := d.SendCommand(ctx, models.Command{Kind: models.CommandJoystick, X: x, Y: y})
	return err
}

// EmergencyStop stops the motors through the dedicated endpoint
func (d *CommandDispatcher) EmergencyStop(ctx context.Context) error {
	_, err := d.SendCommand(ctx, models.Command{Kind: models.CommandEmergencyStop})
	return err
}

func (d *CommandDispatcher) prepare(cmd models.Command, local models.MotorState) (models.MotorCommandRequest, error) {
	speed := d.sliderSpeed(local)
	if cmd.Speed != nil {
		speed = *cmd.Speed
	}
	if speed < 0 || speed > 100 {
		return models.MotorCommandRequest{}, fmt.Errorf("%w: speed %d outside 0-100", ErrInvalidCommand, speed)
	}
	req := models.MotorCommandRequest{Speed: speed}

	switch cmd.Kind {
	case models.CommandDirection:
		switch cmd.Direction {
		case models.DirectionStop:
		case models.DirectionForward, models.DirectionBackward, models.DirectionLeft, models.DirectionRight:
			if !local.Running {
				return req, fmt.Errorf("%w: motors are not running", ErrInvalidCommand)
			}
		default:
			return req, fmt.Errorf("%w: unknown direction %q", ErrInvalidCommand, cmd.Direction)
		}
		req.Command = string(cmd.Direction)

	case models.CommandSpeed:
		if cmd.Speed == nil {
			return req, fmt.Errorf("%w: speed command without speed", ErrInvalidCommand)
		}
		req.Command = string(local.Direction)

	case models.CommandToggle:
		if local.Running {
			req.Command = "stop"
		} else {
			req.Command = "start"
		}

	case models.CommandJoystick:
		if !local.Running {
			return req, fmt.Errorf("%w: motors are not running", ErrInvalidCommand)
		}
		if math.Abs(cmd.X) > 1 || math.Abs(cmd.Y) > 1 || math.IsNaN(cmd.X) || math.IsNaN(cmd.Y) {
			return req, fmt.Errorf("%w: joystick vector (%.2f, %.2f) outside [-1,1]", ErrInvalidCommand, cmd.X, cmd.Y)
		}
		x, y := cmd.X, cmd.Y
		req.Command = string(models.DirectionJoystick)
		req.X = &x
		req.Y = &y

	case models.CommandEmergencyStop:
		req.Command = "emergency_stop"

	default:
		return req, fmt.Errorf("%w: unknown kind %q", ErrInvalidCommand, cmd.Kind)
	}

	return req, nil
}

// effect is the motor state a command confirms
func (d *CommandDispatcher) effect(cmd models.Command, req models.MotorCommandRequest, local models.MotorState, ack models.CommandAck) models.MotorReading {
	stopped := models.MotorReading{Running: false, Speed: req.Speed, Direction: models.DirectionStop}

	switch cmd.Kind {
	case models.CommandToggle:
		if req.Command == "stop" {
			return stopped
		}
		return models.MotorReading{Running: true, Speed: req.Speed, Direction: models.DirectionStop}

	case models.CommandEmergencyStop:
		return stopped

	case models.CommandDirection:
		if cmd.Direction == models.DirectionStop {
			return stopped
		}
		return models.MotorReading{Running: true, Speed: req.Speed, Direction: cmd.Direction}

	case models.CommandSpeed:
		return models.MotorReading{Running: local.Running, Speed: req.Speed, Direction: local.Direction}

	case models.CommandJoystick:
		if ack.State != nil {
			if echoed, err := ack.State.Reading(); err == nil {
				return echoed
			}
		}
		return models.MotorReading{Running: true, Speed: req.Speed, Direction: models.DirectionJoystick}
	}

	return models.MotorReading{Running: local.Running, Speed: local.Speed, Direction: local.Direction}
}

// carriesSpeed reports whether a speed change must be sent to take effect
func carriesSpeed(m models.MotorState) bool {
	return m.Running && m.Direction.IsMovement() && m.Direction != models.DirectionJoystick
}

func (d *CommandDispatcher) setSpeed(speed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.speed = speed
}

func (d *CommandDispatcher) begin() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight++
}

func (d *CommandDispatcher) end() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight--
}

// SaveLocation stores the current GPS position under a label
func (d *CommandDispatcher) SaveLocation(ctx context.Context, label string) (string, error) {
	if d.store.Snapshot().GPS.Status != models.GPSActive {
		return "", ErrNoGPSFix
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return "", fmt.Errorf("%w: empty location label", ErrInvalidCommand)
	}

	resp, err := d.backend.SaveGPS(ctx, label)
	if err != nil {
		d.store.ReportCommandFailure(failureReason("save location", err))
		return "", err
	}
	d.logger.Info("Location saved", zap.String("label", label), zap.String("message", resp.Message))
	return resp.Message, nil
}

// UpdateCameraURL points the backend at a new camera and confirms the camera family
func (d *CommandDispatcher) UpdateCameraURL(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("%w: empty camera URL", ErrInvalidCommand)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	seq := d.store.NextSeq()
	resp, err := d.backend.UpdateCamera(ctx, url)
	if err != nil {
		d.logger.Warn("Camera URL update failed", zap.String("url", url), zap.Error(err))
		d.store.ReportCommandFailure(failureReason("update camera", err))
		return err
	}

	available := resp.Success
	if resp.Available != nil {
		available = *resp.Available
	}
	if resp.URL != nil && *resp.URL != "" {
		url = *resp.URL
	}
	d.store.ConfirmCommand(models.CameraReading{Available: available, URL: url}, seq)

	d.logger.Info("Camera URL updated", zap.String("url", url), zap.Bool("available", available))
	return nil
}

// ScanCameras asks the backend to discover cameras on the local network
func (d *CommandDispatcher) ScanCameras(ctx context.Context) ([]string, error) {
	cameras, err := d.backend.ScanCameras(ctx)
	if err != nil {
		d.store.ReportCommandFailure(failureReason("scan cameras", err))
		return nil, err
	}
	for i, c := range cameras {
		cameras[i] = strings.TrimPrefix(c, "http://")
	}
	d.logger.Info("Camera scan finished", zap.Int("count", len(cameras)))
	return cameras, nil
}

// TakeSnapshot saves a frame on the backend and returns its path
func (d *CommandDispatcher) TakeSnapshot(ctx context.Context) (string, error) {
	resp, err := d.backend.Snapshot(ctx)
	if err != nil {
		d.store.ReportCommandFailure(failureReason("snapshot", err))
		return "", err
	}
	d.logger.Info("Snapshot saved", zap.String("path", resp.Path), zap.Int("size", resp.Size))
	return resp.Path, nil
}

func failureReason(action string, err error) string {
	switch {
	case errors.Is(err, ErrNetworkFailure):
		return fmt.Sprintf("%s: backend unreachable", action)
	case errors.Is(err, ErrBackendRejected):
		return fmt.Sprintf("%s: %s", action, strings.TrimPrefix(err.Error(), ErrBackendRejected.Error()+": "))
	default:
		return fmt.Sprintf("%s: %v", action, err)
	}
}
