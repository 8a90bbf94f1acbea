// Package paths provides XDG-compliant path resolution for the tracker.
//
// Resolution order:
// 1. TRACKER_HOME (portable root) → $TRACKER_HOME/{config,data,state}
// 2. XDG env vars → $XDG_*_HOME/grove-tracker
// 3. Platform defaults → ~/.config/grove-tracker, ~/.local/share/grove-tracker, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appDir = "grove-tracker"

func baseDir(sub, xdgEnv string, fallback ...string) string {
	if home := os.Getenv("TRACKER_HOME"); home != "" {
		return filepath.Join(home, sub)
	}
	if xdg := os.Getenv(xdgEnv); xdg != "" {
		return filepath.Join(xdg, appDir)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append([]string{homeDir}, append(fallback, appDir)...)...)
	}
	return ""
}

// ConfigDir returns the tracker configuration directory.
func ConfigDir() string {
	return baseDir("config", "XDG_CONFIG_HOME", ".config")
}

// DataDir returns the tracker data directory.
// Screenshots, diffs and per-screenshot metadata live here.
func DataDir() string {
	return baseDir("data", "XDG_DATA_HOME", ".local", "share")
}

// StateDir returns the tracker state directory.
// Used for the pid file, the history database and component logs.
func StateDir() string {
	return baseDir("state", "XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir returns the directory for the daemon socket.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if home := os.Getenv("TRACKER_HOME"); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appDir)
	}
	return StateDir()
}

// SocketPath returns the path to the tracker daemon unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "trackerd.sock")
}

// PidFilePath returns the path to the tracker daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "trackerd.pid")
}

// HistoryDBPath returns the path to the completed-session index.
func HistoryDBPath() string {
	return filepath.Join(StateDir(), "history.db")
}

// LogDir returns the directory for component log files.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// EnsureDirs creates all tracker directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), DataDir(), StateDir(), RuntimeDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
