package simulator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Backend, *httptest.Server) {
	t.Helper()
	b := New(zap.NewNop())
	server := httptest.NewServer(b.Router())
	t.Cleanup(server.Close)
	return b, server
}

func call(t *testing.T, server *httptest.Server, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, out
}

func control(t *testing.T, server *httptest.Server, body map[string]any) map[string]any {
	t.Helper()
	_, out := call(t, server, http.MethodPost, "/api/motors/control", body)
	return out
}

func TestMotorControlRequiresStart(t *testing.T) {
	b, server := newTestServer(t)

	out := control(t, server, map[string]any{"command": "forward", "speed": 50})
	if out["status"] != "error" || out["message"] != "Motors not started" {
		t.Fatalf("forward while stopped = %v", out)
	}

	if out := control(t, server, map[string]any{"command": "start", "speed": 50}); out["status"] != "success" {
		t.Fatalf("start = %v", out)
	}
	out = control(t, server, map[string]any{"command": "forward", "speed": 70})
	if out["status"] != "success" {
		t.Fatalf("forward = %v", out)
	}
	if m := b.Motor(); !m.Running || m.Direction != "forward" || m.Speed != 70 {
		t.Fatalf("motor = %+v", m)
	}

	if out := control(t, server, map[string]any{"command": "stop"}); out["status"] != "success" {
		t.Fatalf("stop = %v", out)
	}
	if m := b.Motor(); m.Running || m.Direction != "stop" || m.Speed != 70 {
		t.Fatalf("motor after stop = %+v", m)
	}
}

func TestMotorControlSpeedSnap(t *testing.T) {
	b, server := newTestServer(t)

	control(t, server, map[string]any{"command": "start", "speed": 97})
	if m := b.Motor(); m.Speed != 100 {
		t.Fatalf("speed = %d, want 100", m.Speed)
	}
	cmd, n, ok := b.LastCommand()
	if !ok || n != 1 || cmd.Command != "start" || cmd.Speed != 100 {
		t.Fatalf("last command = %+v (%d)", cmd, n)
	}
}

func TestMotorControlTurningDisabled(t *testing.T) {
	b, server := newTestServer(t)
	control(t, server, map[string]any{"command": "start", "speed": 50})
	control(t, server, map[string]any{"command": "forward", "speed": 50})

	out := control(t, server, map[string]any{"command": "left", "speed": 50})
	if out["status"] != "info" {
		t.Fatalf("left = %v", out)
	}
	if m := b.Motor(); m.Direction != "stop" || !m.Running {
		t.Fatalf("motor = %+v", m)
	}

	if out := control(t, server, map[string]any{"command": "spin"}); out["status"] != "error" {
		t.Fatalf("unknown command = %v", out)
	}
}

func TestJoystick(t *testing.T) {
	b, server := newTestServer(t)
	control(t, server, map[string]any{"command": "start", "speed": 60})

	tests := []struct {
		x, y      float64
		direction string
	}{
		{0, 0.7, "forward"},
		{0, -0.7, "backward"},
		{0.05, 0, "stop"},
	}
	for _, tt := range tests {
		out := control(t, server, map[string]any{"command": "joystick", "x": tt.x, "y": tt.y, "speed": 60})
		state, _ := out["state"].(map[string]any)
		if out["status"] != "success" || state["direction"] != tt.direction {
			t.Errorf("joystick (%v, %v) = %v, want %s", tt.x, tt.y, out, tt.direction)
		}
	}

	_, out := call(t, server, http.MethodPost, "/api/joystick", map[string]any{"x": 0.5, "y": 0, "speed": 60})
	motors, ok := out["motors"].(map[string]any)
	if !ok || motors["left"] != float64(-30) || motors["right"] != float64(30) {
		t.Fatalf("turn in place = %v", out)
	}
	if _, n, _ := b.LastCommand(); n != 5 {
		t.Fatalf("commands = %d, want 5", n)
	}
}

func TestObstacleStatusLevels(t *testing.T) {
	b, server := newTestServer(t)

	tests := []struct {
		distance float64
		level    string
		autoStop bool
	}{
		{8, "danger", true},
		{10, "danger", true},
		{20, "warning", false},
		{45, "caution", false},
		{120, "none", false},
	}
	for _, tt := range tests {
		b.SetDistance(tt.distance, 0)
		_, out := call(t, server, http.MethodGet, "/api/obstacle_status", nil)
		if out["warning_level"] != tt.level || out["auto_stop_triggered"] != tt.autoStop || out["distance"] != tt.distance {
			t.Errorf("distance %v = %v", tt.distance, out)
		}
	}
}

func TestGPSSaveNeedsFix(t *testing.T) {
	b, server := newTestServer(t)

	_, out := call(t, server, http.MethodPost, "/api/gps/save", map[string]string{"label": "Home"})
	if out["success"] != false {
		t.Fatalf("save without fix = %v", out)
	}

	b.SetGPSFix(true)
	_, out = call(t, server, http.MethodGet, "/api/gps/formatted", nil)
	if out["status"] != "active" {
		t.Fatalf("gps = %v", out)
	}
	_, out = call(t, server, http.MethodPost, "/api/gps/save", map[string]string{"label": "Home"})
	if out["success"] != true {
		t.Fatalf("save = %v", out)
	}
	if saved := b.SavedLocations(); len(saved) != 1 || saved[0] != "Home" {
		t.Fatalf("saved = %v", saved)
	}
}

func TestInjectedFailures(t *testing.T) {
	b, server := newTestServer(t)
	b.FailNext("/api/motors/status", 1)

	status, _ := call(t, server, http.MethodGet, "/api/motors/status", nil)
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	status, out := call(t, server, http.MethodGet, "/api/motors/status", nil)
	if status != http.StatusOK || out["direction"] != "stop" {
		t.Fatalf("second call = %d %v", status, out)
	}
}

func TestCameraEndpoints(t *testing.T) {
	b, server := newTestServer(t)

	_, out := call(t, server, http.MethodPost, "/api/camera/update-url", map[string]string{"url": ""})
	if out["success"] != false {
		t.Fatalf("empty url = %v", out)
	}
	_, out = call(t, server, http.MethodPost, "/api/camera/update-url", map[string]string{"url": "http://10.0.0.2:8080"})
	if out["success"] != true || b.CameraURL() != "http://10.0.0.2:8080" {
		t.Fatalf("update = %v", out)
	}

	b.SetCameraAvailable(false)
	_, out = call(t, server, http.MethodGet, "/api/camera/status", nil)
	if out["available"] != false {
		t.Fatalf("status = %v", out)
	}
	_, out = call(t, server, http.MethodGet, "/api/camera/snapshot", nil)
	if out["success"] != false {
		t.Fatalf("snapshot without camera = %v", out)
	}
}
