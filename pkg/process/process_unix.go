//go:build !windows

// Package process answers liveness questions about other processes.
package process

import (
	"os"
	"syscall"
)

// IsProcessAlive reports whether pid names a running process. Signal 0
// probes existence; EPERM means it exists but belongs to someone else.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}
