//go:build windows

package input

import (
	"fmt"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/grovetools/tracker/errors"
)

const (
	whKeyboardLL = 13
	wmKeyDown    = 0x0100
	wmSysKeyDown = 0x0104
	wmQuit       = 0x0012
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessage          = user32.NewProc("GetMessageW")
	procPostThreadMessage   = user32.NewProc("PostThreadMessageW")
)

type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type point struct {
	X, Y int32
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
}

// llHookBackend installs WH_KEYBOARD_LL on a dedicated OS thread that also
// pumps the message loop the hook needs.
type llHookBackend struct {
	threadID uint32
	done     chan struct{}
}

func newPlatformBackend() (Backend, error) {
	return &llHookBackend{}, nil
}

func (b *llHookBackend) Start(emit func(KeyEvent)) error {
	installed := make(chan error, 1)
	b.done = make(chan struct{})

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(b.done)

		callback := syscall.NewCallback(func(nCode int, wParam uintptr, lParam uintptr) uintptr {
			if nCode >= 0 && (wParam == wmKeyDown || wParam == wmSysKeyDown) {
				info := (*kbdllHookStruct)(unsafe.Pointer(lParam))
				emit(KeyEvent{Key: vkName(info.VkCode), Time: time.Now()})
			}
			ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
			return ret
		})

		hook, _, err := procSetWindowsHookEx.Call(whKeyboardLL, callback, 0, 0)
		if hook == 0 {
			installed <- errors.Wrap(err, errors.ErrCodePermissionDenied, "SetWindowsHookEx failed")
			return
		}
		defer procUnhookWindowsHookEx.Call(hook)

		b.threadID = windows.GetCurrentThreadId()
		installed <- nil

		var m msg
		for {
			ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
			// 0 is WM_QUIT, -1 an error
			if ret == 0 || int32(ret) == -1 {
				return
			}
		}
	}()

	return <-installed
}

func (b *llHookBackend) Stop() error {
	procPostThreadMessage.Call(uintptr(b.threadID), wmQuit, 0, 0)
	select {
	case <-b.done:
	case <-time.After(time.Second):
	}
	return nil
}

var vkNames = map[uint32]string{
	0x08: "Backspace", 0x09: "Tab", 0x0D: "Enter", 0x10: "Shift", 0x11: "Ctrl",
	0x12: "Alt", 0x14: "CapsLock", 0x1B: "Escape", 0x20: "Space", 0x21: "PageUp",
	0x22: "PageDown", 0x23: "End", 0x24: "Home", 0x25: "Left", 0x26: "Up",
	0x27: "Right", 0x28: "Down", 0x2D: "Insert", 0x2E: "Delete", 0x5B: "LeftMeta",
	0x5C: "RightMeta", 0xA0: "LeftShift", 0xA1: "RightShift", 0xA2: "LeftCtrl",
	0xA3: "RightCtrl", 0xA4: "LeftAlt", 0xA5: "RightAlt",
}

func vkName(vk uint32) string {
	switch {
	case vk >= 0x30 && vk <= 0x39, vk >= 0x41 && vk <= 0x5A:
		return string(rune(vk))
	case vk >= 0x70 && vk <= 0x7B:
		return fmt.Sprintf("F%d", vk-0x6F)
	}
	if name, ok := vkNames[vk]; ok {
		return name
	}
	return fmt.Sprintf("VK_0x%02X", vk)
}
