//go:build windows

// Package process answers liveness questions about other processes.
package process

import "golang.org/x/sys/windows"

// stillActive is the exit code GetExitCodeProcess reports for a live process.
const stillActive = 259

// IsProcessAlive reports whether pid names a running process.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		// Access denied still proves the process exists.
		return err == windows.ERROR_ACCESS_DENIED
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}
