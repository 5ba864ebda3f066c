package simulator

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"wheelsync/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// controlRequest keeps optional fields optional, unlike models.MotorCommandRequest
type controlRequest struct {
	Command string   `json:"command"`
	Speed   *float64 `json:"speed"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
}

// Router serves every backend endpoint
func (b *Backend) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(b.faults)

	r.HandleFunc("/api/motors/status", b.handleMotorStatus).Methods("GET")
	r.HandleFunc("/api/motors/control", b.handleMotorControl).Methods("POST")
	r.HandleFunc("/api/joystick", b.handleJoystick).Methods("POST")
	r.HandleFunc("/api/emergency_stop", b.handleEmergencyStop).Methods("GET")
	r.HandleFunc("/api/sensors/distance", b.handleDistance).Methods("GET")
	r.HandleFunc("/api/obstacle_status", b.handleObstacleStatus).Methods("GET")
	r.HandleFunc("/api/gps/formatted", b.handleGPSFormatted).Methods("GET")
	r.HandleFunc("/api/gps/save", b.handleGPSSave).Methods("POST")
	r.HandleFunc("/api/camera/status", b.handleCameraStatus).Methods("GET")
	r.HandleFunc("/api/camera/update-url", b.handleCameraUpdate).Methods("POST")
	r.HandleFunc("/api/camera/scan", b.handleCameraScan).Methods("GET")
	r.HandleFunc("/api/camera/snapshot", b.handleSnapshot).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods("GET")

	return r
}

// faults applies injected latency and failures
func (b *Backend) faults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d := b.currentLatency(); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		if b.shouldFail(r.URL.Path) {
			b.logger.Debug("Injected failure", zap.String("path", r.URL.Path))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (b *Backend) handleMotorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.Motor())
}

func (b *Backend) handleMotorControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "message": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	speed := b.recordCommand(req)
	b.logger.Debug("Motor control", zap.String("command", req.Command), zap.Int("speed", speed))

	switch {
	case req.Command == "start":
		b.motor.Running = true
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Motors started"})
		return

	case req.Command == "stop":
		b.motor.Running = false
		b.motor.Direction = "stop"
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Motors stopped"})
		return

	case !b.motor.Running:
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "message": "Motors not started"})
		return
	}

	switch req.Command {
	case "forward", "backward":
		b.motor.Direction = req.Command
	case "left", "right":
		// Turning is disabled on the chair
		b.motor.Direction = "stop"
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "info",
			"message": "Turning functionality disabled",
			"state":   b.motor,
		})
		return
	case "joystick":
		writeJSON(w, http.StatusOK, b.joystick(req))
		return
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "message": "Unknown command " + req.Command})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "state": b.motor})
}

func (b *Backend) handleJoystick(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	req.Command = "joystick"

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recordCommand(req)
	if !b.motor.Running {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "message": "Motors not started"})
		return
	}
	writeJSON(w, http.StatusOK, b.joystick(req))
}

// recordCommand must be called with mu held. It stores the body and applies the speed.
func (b *Backend) recordCommand(req controlRequest) int {
	speed := b.motor.Speed
	if req.Speed != nil {
		speed = int(*req.Speed)
	}
	if speed > 95 {
		speed = 100
	}
	b.motor.Speed = speed

	b.commands++
	b.lastCommand = &models.MotorCommandRequest{
		Command: req.Command,
		Speed:   speed,
		X:       req.X,
		Y:       req.Y,
	}
	return speed
}

// joystick must be called with mu held and motors running
func (b *Backend) joystick(req controlRequest) map[string]any {
	var x, y float64
	if req.X != nil {
		x = *req.X
	}
	if req.Y != nil {
		y = *req.Y
	}

	switch {
	case y > 0.1:
		b.motor.Direction = "forward"
		return map[string]any{"status": "success", "state": b.motor, "message": "Moving forward"}
	case y < -0.1:
		b.motor.Direction = "backward"
		return map[string]any{"status": "success", "state": b.motor, "message": "Moving backward"}
	case math.Abs(x) < 0.1:
		b.motor.Direction = "stop"
		return map[string]any{"status": "success", "state": b.motor, "message": "Motors stopped"}
	}

	left := clamp(int(float64(b.motor.Speed)*(y-x)), -100, 100)
	right := clamp(int(float64(b.motor.Speed)*(y+x)), -100, 100)
	return map[string]any{
		"status": "success",
		"state":  b.motor,
		"motors": map[string]int{"left": left, "right": right},
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func (b *Backend) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.motor.Running = false
	b.motor.Direction = "stop"
	b.mu.Unlock()

	b.logger.Info("Emergency stop")
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Emergency stop activated"})
}

func (b *Backend) handleDistance(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	d := b.readDistance()
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"distance": d})
}

func (b *Backend) handleObstacleStatus(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	d := b.readDistance()
	b.mu.Unlock()
	level, autoStop := warningLevel(d)

	writeJSON(w, http.StatusOK, map[string]any{
		"distance":            d,
		"warning_level":       level,
		"detected":            level != "none",
		"auto_stop_triggered": autoStop,
	})
}

func (b *Backend) handleGPSFormatted(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	fix, coordinates := b.gpsFix, b.coordinates
	b.mu.Unlock()

	if !fix {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":             "no_fix",
			"coordinates":        "Unknown",
			"speed":              "--",
			"altitude":           "--",
			"satellites":         "3",
			"status_description": "Connected, waiting for satellite fix",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "active",
		"coordinates":        coordinates,
		"speed":              "0.0 km/h",
		"altitude":           "12.0 m",
		"satellites":         "8",
		"status_description": "GPS has a valid fix",
	})
}

func (b *Backend) handleGPSSave(w http.ResponseWriter, r *http.Request) {
	var req models.GPSSaveRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.gpsFix {
		writeJSON(w, http.StatusOK, models.GPSSaveResponse{Success: false, Message: "No valid GPS coordinates available"})
		return
	}
	label := req.Label
	if label == "" {
		label = "Unnamed"
	}
	b.saved = append(b.saved, label)
	writeJSON(w, http.StatusOK, models.GPSSaveResponse{
		Success: true,
		Message: fmt.Sprintf("Location '%s' saved at %s", label, b.coordinates),
	})
}

func (b *Backend) handleCameraStatus(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"available": b.cameraAvailable, "url": b.cameraURL})
}

func (b *Backend) handleCameraUpdate(w http.ResponseWriter, r *http.Request) {
	var req models.CameraUpdateRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	url := strings.TrimSpace(req.URL)
	if url == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "No URL provided"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.cameraURL = url
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"available": b.cameraAvailable,
		"message":   "Camera URL updated",
		"url":       url,
	})
}

func (b *Backend) handleCameraScan(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	writeJSON(w, http.StatusOK, models.CameraScanResponse{Cameras: append([]string{}, b.cameras...)})
}

func (b *Backend) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cameraAvailable {
		writeJSON(w, http.StatusOK, models.SnapshotResponse{Success: false, Error: "Camera not available"})
		return
	}
	b.snapshots++
	filename := fmt.Sprintf("snapshot_%d.jpg", b.snapshots)
	writeJSON(w, http.StatusOK, models.SnapshotResponse{
		Success:  true,
		Path:     "snapshots/" + filename,
		Filename: filename,
		Size:     48213,
	})
}
