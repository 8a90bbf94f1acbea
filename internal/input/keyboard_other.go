//go:build !linux && !windows

package input

import (
	"runtime"

	"github.com/grovetools/tracker/errors"
)

func newPlatformBackend() (Backend, error) {
	return nil, errors.Unsupported("global keyboard hook", runtime.GOOS)
}
