package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wheelsync/config"
	"wheelsync/models"

	"go.uber.org/zap"
)

// TelemetrySource is the read side of the wheelchair backend
type TelemetrySource interface {
	MotorStatus(ctx context.Context) (models.MotorReading, error)
	Distance(ctx context.Context) (float64, error)
	ObstacleStatus(ctx context.Context) (models.ObstacleReading, error)
	GPS(ctx context.Context) (models.GPSReading, error)
	CameraStatus(ctx context.Context) (models.CameraReading, error)
}

// CommandSink is the write side of the wheelchair backend
type CommandSink interface {
	MotorCommand(ctx context.Context, req models.MotorCommandRequest) (models.CommandAck, error)
	EmergencyStop(ctx context.Context) (models.CommandAck, error)
	SaveGPS(ctx context.Context, label string) (models.GPSSaveResponse, error)
	UpdateCamera(ctx context.Context, url string) (models.CameraUpdateResponse, error)
	ScanCameras(ctx context.Context) ([]string, error)
	Snapshot(ctx context.Context) (models.SnapshotResponse, error)
}

// Endpoints holds the backend paths, relative to the base URL
type Endpoints struct {
	MotorStatus    string
	MotorCommand   string
	EmergencyStop  string
	Distance       string
	ObstacleStatus string
	GPSFormatted   string
	GPSSave        string
	CameraStatus   string
	CameraUpdate   string
	CameraScan     string
	CameraSnapshot string
}

// DefaultEndpoints are the routes served by the wheelchair web backend
func DefaultEndpoints() Endpoints {
	return Endpoints{
		MotorStatus:    "/api/motors/status",
		MotorCommand:   "/api/motors/control",
		EmergencyStop:  "/api/emergency_stop",
		Distance:       "/api/sensors/distance",
		ObstacleStatus: "/api/obstacle_status",
		GPSFormatted:   "/api/gps/formatted",
		GPSSave:        "/api/gps/save",
		CameraStatus:   "/api/camera/status",
		CameraUpdate:   "/api/camera/update-url",
		CameraScan:     "/api/camera/scan",
		CameraSnapshot: "/api/camera/snapshot",
	}
}

// BackendClient talks JSON over HTTP to the wheelchair backend
type BackendClient struct {
	logger     *zap.Logger
	baseURL    string
	endpoints  Endpoints
	timeout    time.Duration
	httpClient *http.Client
}

// NewBackendClient creates a new backend client
func NewBackendClient(cfg *config.Config, logger *zap.Logger) *BackendClient {
	return &BackendClient{
		logger:    logger,
		baseURL:   cfg.BackendURL,
		endpoints: DefaultEndpoints(),
		timeout:   cfg.RequestTimeout(),
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout(),
		},
	}
}

func (b *BackendClient) MotorStatus(ctx context.Context) (models.MotorReading, error) {
	var payload models.MotorStatusPayload
	if err := b.getJSON(ctx, b.endpoints.MotorStatus, &payload); err != nil {
		return models.MotorReading{}, err
	}
	reading, err := payload.Reading()
	if err != nil {
		return models.MotorReading{}, fmt.Errorf("%w: motor status: %v", ErrMalformedReading, err)
	}
	return reading, nil
}

func (b *BackendClient) Distance(ctx context.Context) (float64, error) {
	var payload models.DistancePayload
	if err := b.getJSON(ctx, b.endpoints.Distance, &payload); err != nil {
		return 0, err
	}
	cm, err := payload.Reading()
	if err != nil {
		return 0, fmt.Errorf("%w: distance: %v", ErrMalformedReading, err)
	}
	return cm, nil
}

func (b *BackendClient) ObstacleStatus(ctx context.Context) (models.ObstacleReading, error) {
	var payload models.ObstaclePayload
	if err := b.getJSON(ctx, b.endpoints.ObstacleStatus, &payload); err != nil {
		return models.ObstacleReading{}, err
	}
	reading, err := payload.Reading()
	if err != nil {
		return models.ObstacleReading{}, fmt.Errorf("%w: obstacle status: %v", ErrMalformedReading, err)
	}
	return reading, nil
}

func (b *BackendClient) GPS(ctx context.Context) (models.GPSReading, error) {
	var payload models.GPSPayload
	if err := b.getJSON(ctx, b.endpoints.GPSFormatted, &payload); err != nil {
		return models.GPSReading{}, err
	}
	reading, err := payload.Reading()
	if err != nil {
		return models.GPSReading{}, fmt.Errorf("%w: gps: %v", ErrMalformedReading, err)
	}
	return reading, nil
}

func (b *BackendClient) CameraStatus(ctx context.Context) (models.CameraReading, error) {
	var payload models.CameraStatusPayload
	if err := b.getJSON(ctx, b.endpoints.CameraStatus, &payload); err != nil {
		return models.CameraReading{}, err
	}
	reading, err := payload.Reading()
	if err != nil {
		return models.CameraReading{}, fmt.Errorf("%w: camera status: %v", ErrMalformedReading, err)
	}
	return reading, nil
}

// MotorCommand sends a command. A non-success status body is returned as ErrBackendRejected.
func (b *BackendClient) MotorCommand(ctx context.Context, req models.MotorCommandRequest) (models.CommandAck, error) {
	var ack models.CommandAck
	if err := b.postJSON(ctx, b.endpoints.MotorCommand, req, &ack); err != nil {
		return ack, err
	}
	return ack, checkAck(ack)
}

func (b *BackendClient) EmergencyStop(ctx context.Context) (models.CommandAck, error) {
	var ack models.CommandAck
	if err := b.getJSON(ctx, b.endpoints.EmergencyStop, &ack); err != nil {
		return ack, err
	}
	return ack, checkAck(ack)
}

func (b *BackendClient) SaveGPS(ctx context.Context, label string) (models.GPSSaveResponse, error) {
	var resp models.GPSSaveResponse
	if err := b.postJSON(ctx, b.endpoints.GPSSave, models.GPSSaveRequest{Label: label}, &resp); err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("%w: %s", ErrBackendRejected, resp.Message)
	}
	return resp, nil
}

// UpdateCamera succeeds when the backend reports success or an available camera
func (b *BackendClient) UpdateCamera(ctx context.Context, url string) (models.CameraUpdateResponse, error) {
	var resp models.CameraUpdateResponse
	if err := b.postJSON(ctx, b.endpoints.CameraUpdate, models.CameraUpdateRequest{URL: url}, &resp); err != nil {
		return resp, err
	}
	if !resp.Success && (resp.Available == nil || !*resp.Available) {
		return resp, fmt.Errorf("%w: %s", ErrBackendRejected, resp.Message)
	}
	return resp, nil
}

func (b *BackendClient) ScanCameras(ctx context.Context) ([]string, error) {
	var resp models.CameraScanResponse
	if err := b.getJSON(ctx, b.endpoints.CameraScan, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrBackendRejected, resp.Error)
	}
	return resp.Cameras, nil
}

func (b *BackendClient) Snapshot(ctx context.Context) (models.SnapshotResponse, error) {
	var resp models.SnapshotResponse
	if err := b.getJSON(ctx, b.endpoints.CameraSnapshot, &resp); err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("%w: %s", ErrBackendRejected, resp.Error)
	}
	return resp, nil
}

func checkAck(ack models.CommandAck) error {
	if ack.Succeeded() {
		return nil
	}
	reason := ack.Message
	if reason == "" {
		reason = fmt.Sprintf("status %q", ack.Status)
	}
	return fmt.Errorf("%w: %s", ErrBackendRejected, reason)
}

func (b *BackendClient) getJSON(ctx context.Context, path string, out any) error {
	return b.do(ctx, http.MethodGet, path, nil, out)
}

func (b *BackendClient) postJSON(ctx context.Context, path string, in, out any) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return b.do(ctx, http.MethodPost, path, jsonData, out)
}

// do performs one bounded request and classifies its failure
func (b *BackendClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	endpoint := b.baseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "wheelsync/1.0")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.logger.Debug("Backend request failed",
			zap.String("method", method),
			zap.String("url", endpoint),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s %s: %v", ErrNetworkFailure, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrNetworkFailure, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b.logger.Debug("Backend returned error status",
			zap.String("url", endpoint),
			zap.Int("status_code", resp.StatusCode),
		)
		return fmt.Errorf("%w: %s %s: %s", ErrBackendRejected, method, path, resp.Status)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedReading, path, err)
	}
	return nil
}
