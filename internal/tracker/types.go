package tracker

import (
	"time"

	"github.com/grovetools/tracker/git"
	"github.com/grovetools/tracker/internal/input"
)

// EventType distinguishes the two input streams.
type EventType string

const (
	EventKeypress  EventType = "keypress"
	EventMouseMove EventType = "mouse_move"
)

// InputEvent is one observed key-down or mouse position change.
type InputEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	TaskID    string    `json:"taskId"`
	// ElapsedMs is the time since session start in milliseconds.
	ElapsedMs int64        `json:"elapsedSinceStart"`
	Key       string       `json:"key,omitempty"`
	Position  *input.Point `json:"position,omitempty"`
}

// ScreenshotRecord is one captured frame plus the diff taken with it.
type ScreenshotRecord struct {
	ID            string     `json:"id"`
	Timestamp     time.Time  `json:"timestamp"`
	FilePath      string     `json:"filePath"`
	TaskID        string     `json:"taskId"`
	DiffPath      string     `json:"diffPath,omitempty"`
	DiffContent   string     `json:"diffContent,omitempty"`
	DiffTruncated bool       `json:"diffTruncated,omitempty"`
	DiffError     string     `json:"diffError,omitempty"`
	RemoteKey     string     `json:"remoteKey,omitempty"`
	GitState      *git.State `json:"gitState,omitempty"`
}

// Rollup is a periodic snapshot of a session's counters.
type Rollup struct {
	ID             string      `json:"id"`
	Timestamp      time.Time   `json:"timestamp"`
	Screenshots    int         `json:"screenshots"`
	KeyboardEvents int         `json:"keyboardEvents"`
	MouseEvents    int         `json:"mouseEvents"`
	LastScreenshot string      `json:"lastScreenshot,omitempty"`
	LastKeypress   *InputEvent `json:"lastKeypress,omitempty"`
	LastMouseMove  *InputEvent `json:"lastMouseMove,omitempty"`
	Final          bool        `json:"final,omitempty"`
}

// StartOptions are the caller-supplied parameters of a session.
type StartOptions struct {
	Name        string `json:"name,omitempty"`
	TenantID    string `json:"tenantId,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	GitRepoPath string `json:"gitRepoPath,omitempty"`
	// SnapshotIntervalMinutes wins over SnapshotIntervalMs; both fall back
	// to the engine's configured interval.
	SnapshotIntervalMinutes float64 `json:"snapshotIntervalMinutes,omitempty"`
	SnapshotIntervalMs      int64   `json:"snapshotIntervalMs,omitempty"`
}

// SessionConfig is the effective configuration of a started session.
type SessionConfig struct {
	SnapshotIntervalMs int64  `json:"snapshotIntervalMs"`
	Keyboard           bool   `json:"keyboard"`
	Mouse              bool   `json:"mouse"`
	MousePoller        string `json:"mousePoller,omitempty"`
	GitRepoPath        string `json:"gitRepoPath,omitempty"`
	Uploads            bool   `json:"uploads"`
}

// StartResult is returned by Engine.Start.
type StartResult struct {
	TaskID    string        `json:"taskId"`
	SessionID string        `json:"sessionId"`
	StartTime time.Time     `json:"startTime"`
	Config    SessionConfig `json:"config"`
}

// Summary is the terminal record of a stopped session.
type Summary struct {
	TaskID      string    `json:"taskId"`
	TaskName    string    `json:"taskName,omitempty"`
	SessionID   string    `json:"sessionId"`
	TenantID    string    `json:"tenantId,omitempty"`
	ProjectID   string    `json:"projectId,omitempty"`
	GitRepoPath string    `json:"gitRepoPath,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	DurationMs  int64     `json:"durationMs"`

	ScreenshotCount int      `json:"screenshotCount"`
	Screenshots     []string `json:"screenshots"`

	KeyboardEventCount int          `json:"keyboardEventCount"`
	MouseEventCount    int          `json:"mouseEventCount"`
	KeyboardEvents     []InputEvent `json:"keyboardEvents"`
	MouseEvents        []InputEvent `json:"mouseEvents"`

	FinalRollup     Rollup `json:"finalRollup"`
	KeyboardWarning string `json:"keyboardWarning,omitempty"`
	SummaryPath     string `json:"summaryPath,omitempty"`
}

// Duration returns EndTime - StartTime.
func (s *Summary) Duration() time.Duration {
	return time.Duration(s.DurationMs) * time.Millisecond
}

// Status is a point-in-time view of one task. Active is false when no
// session exists for the task.
type Status struct {
	Active          bool      `json:"active"`
	TaskID          string    `json:"taskId,omitempty"`
	TaskName        string    `json:"taskName,omitempty"`
	SessionID       string    `json:"sessionId,omitempty"`
	StartTime       time.Time `json:"startTime,omitempty"`
	ElapsedMinutes  float64   `json:"elapsedMinutes"`
	Screenshots     int       `json:"screenshots"`
	KeyboardEvents  int       `json:"keyboardEvents"`
	MouseEvents     int       `json:"mouseEvents"`
	LastScreenshot  string    `json:"lastScreenshot,omitempty"`
	KeyboardWarning string    `json:"keyboardWarning,omitempty"`
}

// ActiveSession is one entry of Engine.ListActive.
type ActiveSession struct {
	TaskID      string    `json:"taskId"`
	TaskName    string    `json:"taskName,omitempty"`
	SessionID   string    `json:"sessionId"`
	StartTime   time.Time `json:"startTime"`
	Screenshots int       `json:"screenshots"`
}
