//go:build windows

package input

import (
	"unsafe"

	"github.com/grovetools/tracker/errors"
)

var procGetCursorPos = user32.NewProc("GetCursorPos")

func cursorPos() (Point, error) {
	var pt point
	ret, _, err := procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	if ret == 0 {
		return Point{}, errors.Wrap(err, errors.ErrCodeInternal, "GetCursorPos failed")
	}
	return Point{X: int(pt.X), Y: int(pt.Y)}, nil
}
