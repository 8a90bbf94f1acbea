package server

import (
	"time"

	"github.com/grovetools/tracker/errors"
	"github.com/grovetools/tracker/internal/tracker"
)

// Routes served over the daemon socket.
const (
	PathHealth        = "/health"
	PathStartTracking = "/api/startTracking"
	PathStopTracking  = "/api/stopTracking"
	PathGetStatus     = "/api/getStatus"
	PathListActive    = "/api/listActive"
	PathConfig        = "/api/config"
	PathStream        = "/api/stream"
)

// StartRequest is the body of POST /api/startTracking.
type StartRequest struct {
	TaskID string `json:"taskId"`
	tracker.StartOptions
}

// StopRequest is the body of POST /api/stopTracking.
type StopRequest struct {
	TaskID string `json:"taskId"`
}

// Envelope is the shape of every API response. Success false always
// carries Error and, for typed failures, Code.
type Envelope struct {
	Success bool             `json:"success"`
	Error   string           `json:"error,omitempty"`
	Code    errors.ErrorCode `json:"code,omitempty"`
}

// StartResponse answers startTracking.
type StartResponse struct {
	Envelope
	*tracker.StartResult
}

// StopResponse answers stopTracking.
type StopResponse struct {
	Envelope
	Summary *tracker.Summary `json:"summary,omitempty"`
}

// StatusResponse answers getStatus.
type StatusResponse struct {
	Envelope
	Status *tracker.Status `json:"status,omitempty"`
}

// ListResponse answers listActive.
type ListResponse struct {
	Envelope
	Sessions []tracker.ActiveSession `json:"sessions"`
}

// StreamUpdate is one websocket frame on /api/stream.
type StreamUpdate struct {
	Type      string                  `json:"type"`
	Timestamp time.Time               `json:"timestamp"`
	Sessions  []tracker.ActiveSession `json:"sessions"`
}

// RunningConfig is what /api/config reports about the daemon.
type RunningConfig struct {
	SnapshotInterval time.Duration `json:"snapshot_interval"`
	RollupInterval   time.Duration `json:"rollup_interval"`
	StorageRoot      string        `json:"storage_root"`
	ConfigFile       string        `json:"config_file,omitempty"`
	UploadsEnabled   bool          `json:"uploads_enabled"`
	StartedAt        time.Time     `json:"started_at"`
	PID              int           `json:"pid"`
}
