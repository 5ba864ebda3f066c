package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wheelsync/config"
	"wheelsync/models"
	"wheelsync/simulator"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newTestBackendClient(t *testing.T, url string, timeoutMs int) *BackendClient {
	t.Helper()
	return NewBackendClient(&config.Config{BackendURL: url, RequestTimeoutMs: timeoutMs}, zaptest.NewLogger(t))
}

// serveJSON answers every request with the given status and body
func serveJSON(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestBackendClientReadsSimulator(t *testing.T) {
	sim := simulator.New(zap.NewNop())
	sim.SetDistance(22, 0)
	server := httptest.NewServer(sim.Router())
	defer server.Close()

	client := newTestBackendClient(t, server.URL, 1000)
	ctx := context.Background()

	motor, err := client.MotorStatus(ctx)
	if err != nil {
		t.Fatalf("motor status: %v", err)
	}
	if motor.Running || motor.Direction != models.DirectionStop || motor.Speed != 100 {
		t.Fatalf("motor = %+v", motor)
	}

	distance, err := client.Distance(ctx)
	if err != nil || distance != 22 {
		t.Fatalf("distance = %v, %v", distance, err)
	}

	obstacle, err := client.ObstacleStatus(ctx)
	if err != nil {
		t.Fatalf("obstacle status: %v", err)
	}
	if obstacle.ReportedLevel != "warning" || !obstacle.Detected {
		t.Fatalf("obstacle = %+v", obstacle)
	}

	gps, err := client.GPS(ctx)
	if err != nil {
		t.Fatalf("gps: %v", err)
	}
	if gps.Status != models.GPSNoFix || gps.Coordinates != models.UnknownCoordinates {
		t.Fatalf("gps = %+v", gps)
	}

	camera, err := client.CameraStatus(ctx)
	if err != nil || !camera.Available {
		t.Fatalf("camera = %+v, %v", camera, err)
	}
}

func TestBackendClientMalformedBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		call func(*BackendClient) error
	}{
		{"motor missing speed", `{"running": true, "direction": "stop"}`, func(c *BackendClient) error {
			_, err := c.MotorStatus(context.Background())
			return err
		}},
		{"motor unknown direction", `{"running": true, "speed": 10, "direction": "up"}`, func(c *BackendClient) error {
			_, err := c.MotorStatus(context.Background())
			return err
		}},
		{"distance error body", `{"error": "sensor offline"}`, func(c *BackendClient) error {
			_, err := c.Distance(context.Background())
			return err
		}},
		{"gps without status", `{"coordinates": "Unknown"}`, func(c *BackendClient) error {
			_, err := c.GPS(context.Background())
			return err
		}},
		{"camera without availability", `{"url": "http://cam"}`, func(c *BackendClient) error {
			_, err := c.CameraStatus(context.Background())
			return err
		}},
		{"not json", `<html>`, func(c *BackendClient) error {
			_, err := c.ObstacleStatus(context.Background())
			return err
		}},
	}

	for _, tt := range tests {
		server := serveJSON(t, http.StatusOK, tt.body)
		err := tt.call(newTestBackendClient(t, server.URL, 1000))
		if !errors.Is(err, ErrMalformedReading) {
			t.Errorf("%s: err = %v, want ErrMalformedReading", tt.name, err)
		}
	}
}

func TestBackendClientErrorStatus(t *testing.T) {
	server := serveJSON(t, http.StatusInternalServerError, `{"error": "boom"}`)
	_, err := newTestBackendClient(t, server.URL, 1000).MotorStatus(context.Background())
	if !errors.Is(err, ErrBackendRejected) {
		t.Fatalf("err = %v, want ErrBackendRejected", err)
	}
}

func TestBackendClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	start := time.Now()
	_, err := newTestBackendClient(t, server.URL, 50).MotorStatus(context.Background())
	if !errors.Is(err, ErrNetworkFailure) {
		t.Fatalf("err = %v, want ErrNetworkFailure", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("request took %s, want it bounded by the timeout", elapsed)
	}
}

func TestBackendClientRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestBackendClient(t, url, 500).GPS(context.Background())
	if !errors.Is(err, ErrNetworkFailure) {
		t.Fatalf("err = %v, want ErrNetworkFailure", err)
	}
}

func TestBackendClientCommandStatus(t *testing.T) {
	tests := []struct {
		body    string
		wantErr bool
		reason  string
	}{
		{`{"status": "success", "message": "Motors started"}`, false, ""},
		{`{"status": "error", "message": "Motors not started"}`, true, "Motors not started"},
		{`{"status": "info", "message": "Turning functionality disabled"}`, true, "Turning functionality disabled"},
		{`{"status": "pending"}`, true, `status "pending"`},
	}

	for _, tt := range tests {
		server := serveJSON(t, http.StatusOK, tt.body)
		_, err := newTestBackendClient(t, server.URL, 1000).MotorCommand(context.Background(),
			models.MotorCommandRequest{Command: "start", Speed: 50})
		if !tt.wantErr {
			if err != nil {
				t.Errorf("%s: unexpected err %v", tt.body, err)
			}
			continue
		}
		if !errors.Is(err, ErrBackendRejected) || !strings.Contains(err.Error(), tt.reason) {
			t.Errorf("%s: err = %v, want rejection with %q", tt.body, err, tt.reason)
		}
	}
}

func TestBackendClientSendsJSON(t *testing.T) {
	var gotMethod, gotPath, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		fmt.Fprint(w, `{"success": true, "message": "saved"}`)
	}))
	defer server.Close()

	if _, err := newTestBackendClient(t, server.URL, 1000).SaveGPS(context.Background(), "Home"); err != nil {
		t.Fatalf("save gps: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/gps/save" || gotType != "application/json" {
		t.Fatalf("request = %s %s (%s)", gotMethod, gotPath, gotType)
	}
}
