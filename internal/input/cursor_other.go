//go:build !windows

package input

import (
	"runtime"

	"github.com/grovetools/tracker/errors"
)

func cursorPos() (Point, error) {
	return Point{}, errors.Unsupported("native cursor position", runtime.GOOS)
}
