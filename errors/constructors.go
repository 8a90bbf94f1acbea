package errors

import (
	"fmt"
	"os/exec"
	"strings"
)

// AlreadyRunning reports a duplicate start for a task that is already tracked.
func AlreadyRunning(taskID string) *TrackerError {
	return New(ErrCodeAlreadyRunning, fmt.Sprintf("tracking already active for task %s", taskID)).
		WithDetail("taskId", taskID)
}

// NotRunning reports a stop or lookup for a task with no active session.
func NotRunning(taskID string) *TrackerError {
	return New(ErrCodeNotRunning, fmt.Sprintf("no active tracking session for task %s", taskID)).
		WithDetail("taskId", taskID)
}

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *TrackerError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *TrackerError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// CommandFailed creates a command execution failure error
func CommandFailed(cmd []string, err error, stderr string) *TrackerError {
	line := strings.Join(cmd, " ")
	trackerErr := Wrap(err, ErrCodeCommandFailed, fmt.Sprintf("command failed: %s", line)).
		WithDetail("command", line)

	if exitErr, ok := err.(*exec.ExitError); ok {
		trackerErr = trackerErr.WithDetail("exitCode", exitErr.ExitCode())
	}
	if stderr = strings.TrimSpace(stderr); stderr != "" {
		trackerErr = trackerErr.WithDetail("stderr", stderr)
	}

	return trackerErr
}

// CommandTimeout creates an error for a subprocess killed by its deadline.
func CommandTimeout(cmd []string, timeout string) *TrackerError {
	line := strings.Join(cmd, " ")
	return New(ErrCodeCommandTimeout, fmt.Sprintf("command timed out after %s: %s", timeout, line)).
		WithDetail("command", line).
		WithDetail("timeout", timeout)
}

// UploadFailed creates an error for a non-2xx response on either upload leg.
func UploadFailed(stage string, status int, body string) *TrackerError {
	return New(ErrCodeUploadFailed, fmt.Sprintf("%s returned HTTP %d", stage, status)).
		WithDetail("stage", stage).
		WithDetail("status", status).
		WithDetail("body", body)
}

// Unsupported reports a capability that has no backend on this platform.
func Unsupported(capability, platform string) *TrackerError {
	return New(ErrCodeUnsupportedPlatform, fmt.Sprintf("%s is not supported on %s", capability, platform)).
		WithDetail("capability", capability).
		WithDetail("platform", platform)
}
