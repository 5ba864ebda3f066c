// Package simulator is an in-process fake of the wheelchair web backend.
package simulator

import (
	"math/rand"
	"sync"
	"time"

	"wheelsync/models"

	"go.uber.org/zap"
)

// Obstacle thresholds of the backend's own detector, in cm, compared with <=
const (
	thresholdDanger  = 10.0
	thresholdWarning = 25.0
	thresholdCaution = 50.0
)

// MotorSnapshot is the simulated motor controller state
type MotorSnapshot struct {
	Running   bool   `json:"running"`
	Speed     int    `json:"speed"`
	Direction string `json:"direction"`
}

// Backend holds the simulated hardware. All methods are safe for concurrent use.
type Backend struct {
	mu     sync.Mutex
	logger *zap.Logger
	rng    *rand.Rand

	motor       MotorSnapshot
	lastCommand *models.MotorCommandRequest
	commands    int

	distance float64
	jitter   float64

	gpsFix      bool
	coordinates string
	saved       []string

	cameraURL       string
	cameraAvailable bool
	cameras         []string
	snapshots       int

	latency  time.Duration
	failures map[string]int
}

// New returns a backend with stopped motors, a clear path, no GPS fix and an available camera
func New(logger *zap.Logger) *Backend {
	return &Backend{
		logger:          logger,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		motor:           MotorSnapshot{Speed: 100, Direction: "stop"},
		distance:        120,
		coordinates:     "13.736717° N, 100.523186° E",
		cameraURL:       "http://192.168.1.3:8080",
		cameraAvailable: true,
		cameras:         []string{"http://192.168.1.3:8080"},
		failures:        make(map[string]int),
	}
}

// SetMotor overrides the motor controller state
func (b *Backend) SetMotor(m MotorSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.motor = m
}

// Motor returns the motor controller state
func (b *Backend) Motor() MotorSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.motor
}

// LastCommand returns the most recent motor command body and how many were received
func (b *Backend) LastCommand() (models.MotorCommandRequest, int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastCommand == nil {
		return models.MotorCommandRequest{}, b.commands, false
	}
	return *b.lastCommand, b.commands, true
}

// SetDistance sets the distance sensor value; jitter adds up to ±jitter cm of noise
func (b *Backend) SetDistance(cm, jitter float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.distance = cm
	b.jitter = jitter
}

// SetGPSFix toggles between an active fix and no fix
func (b *Backend) SetGPSFix(fix bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gpsFix = fix
}

// SavedLocations returns the labels saved through /api/gps/save
func (b *Backend) SavedLocations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.saved...)
}

// SetCameraAvailable toggles camera liveness
func (b *Backend) SetCameraAvailable(available bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cameraAvailable = available
}

// SetCameras sets the result of a camera scan
func (b *Backend) SetCameras(cameras ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cameras = cameras
}

// CameraURL returns the configured camera URL
func (b *Backend) CameraURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cameraURL
}

// SetLatency delays every response
func (b *Backend) SetLatency(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latency = d
}

// FailNext makes the next n requests to path answer 500
func (b *Backend) FailNext(path string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[path] = n
}

// shouldFail consumes one injected failure for path
func (b *Backend) shouldFail(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures[path] <= 0 {
		return false
	}
	b.failures[path]--
	return true
}

func (b *Backend) currentLatency() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latency
}

// readDistance must be called with mu held
func (b *Backend) readDistance() float64 {
	d := b.distance
	if b.jitter > 0 {
		d += (b.rng.Float64()*2 - 1) * b.jitter
	}
	if d < 0 {
		d = 0
	}
	return float64(int(d*10)) / 10
}

func warningLevel(d float64) (level string, autoStop bool) {
	switch {
	case d <= thresholdDanger:
		return "danger", true
	case d <= thresholdWarning:
		return "warning", false
	case d <= thresholdCaution:
		return "caution", false
	default:
		return "none", false
	}
}
