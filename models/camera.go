package models

// CameraStatus is the camera liveness state machine: unknown -> available <-> unavailable
type CameraStatus string

const (
	CameraUnknown     CameraStatus = "unknown"
	CameraAvailable   CameraStatus = "available"
	CameraUnavailable CameraStatus = "unavailable"
)

// CameraStatusFor maps a probe result to a status
func CameraStatusFor(available bool) CameraStatus {
	if available {
		return CameraAvailable
	}
	return CameraUnavailable
}

// CameraStatusPayload is the body of GET /api/camera/status
type CameraStatusPayload struct {
	URL       string `json:"url"`
	Available *bool  `json:"available"`
	Error     string `json:"error,omitempty"`
}

// CameraUpdateRequest is the body of POST /api/camera/update-url
type CameraUpdateRequest struct {
	URL string `json:"url"`
}

// CameraUpdateResponse is the reply of POST /api/camera/update-url
type CameraUpdateResponse struct {
	Success   bool    `json:"success"`
	Available *bool   `json:"available,omitempty"`
	Message   string  `json:"message,omitempty"`
	URL       *string `json:"url,omitempty"`
}

// CameraScanResponse is the reply of GET /api/camera/scan
type CameraScanResponse struct {
	Cameras []string `json:"cameras"`
	Error   string   `json:"error,omitempty"`
}

// SnapshotResponse is the reply of GET /api/camera/snapshot
type SnapshotResponse struct {
	Success  bool   `json:"success"`
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int    `json:"size,omitempty"`
	Error    string `json:"error,omitempty"`
}
