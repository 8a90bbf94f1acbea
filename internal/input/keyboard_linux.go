//go:build linux

package input

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/tracker/errors"
)

const (
	evKey       = 0x01
	keyDown     = 1
	timevalSize = 2 * (strconv.IntSize / 8)
	// struct input_event: timeval, u16 type, u16 code, s32 value
	inputEventSize = timevalSize + 8

	// EV_KEY | EV_REP, the bits every real keyboard advertises
	keyboardEVMask = 0x100002

	devicesFile = "/proc/bus/input/devices"
	devInputDir = "/dev/input"
)

// evdevBackend reads key events straight from /dev/input. Reading requires
// membership of the "input" group (or root).
type evdevBackend struct {
	files []*os.File
	wg    sync.WaitGroup
}

func newPlatformBackend() (Backend, error) {
	return &evdevBackend{}, nil
}

func (b *evdevBackend) Start(emit func(KeyEvent)) error {
	f, err := os.Open(devicesFile)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeUnsupportedPlatform, "cannot enumerate input devices")
	}
	names := parseKeyboardDevices(f)
	f.Close()
	if len(names) == 0 {
		return errors.New(errors.ErrCodeUnsupportedPlatform, "no keyboard input devices found")
	}

	var openErr error
	for _, name := range names {
		dev, err := os.Open(filepath.Join(devInputDir, name))
		if err != nil {
			openErr = err
			continue
		}
		b.files = append(b.files, dev)
	}
	if len(b.files) == 0 {
		if os.IsPermission(openErr) {
			return errors.Wrap(openErr, errors.ErrCodePermissionDenied, "cannot read keyboard devices").
				WithDetail("hint", "add your user to the 'input' group")
		}
		return errors.Wrap(openErr, errors.ErrCodeInternal, "cannot open keyboard devices")
	}

	for _, dev := range b.files {
		b.wg.Add(1)
		go b.read(dev, emit)
	}
	return nil
}

func (b *evdevBackend) read(r io.Reader, emit func(KeyEvent)) {
	defer b.wg.Done()
	readEvents(r, emit)
}

// readEvents decodes input_event records until r fails.
func readEvents(r io.Reader, emit func(KeyEvent)) {
	buf := make([]byte, inputEventSize*64)
	for {
		n, err := io.ReadAtLeast(r, buf, inputEventSize)
		for off := 0; off+inputEventSize <= n; off += inputEventSize {
			rec := buf[off+timevalSize : off+inputEventSize]
			typ := binary.LittleEndian.Uint16(rec[0:2])
			code := binary.LittleEndian.Uint16(rec[2:4])
			value := int32(binary.LittleEndian.Uint32(rec[4:8]))
			if typ == evKey && value == keyDown {
				emit(KeyEvent{Key: evdevKeyName(code), Time: time.Now()})
			}
		}
		if err != nil {
			return
		}
	}
}

func (b *evdevBackend) Stop() error {
	for _, f := range b.files {
		f.Close()
	}
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}

// parseKeyboardDevices returns the eventN handler names of devices in a
// /proc/bus/input/devices listing that look like keyboards.
func parseKeyboardDevices(r io.Reader) []string {
	var (
		names   []string
		handler string
		isKbd   bool
		evMask  uint64
	)
	flush := func() {
		if handler != "" && isKbd && evMask&keyboardEVMask == keyboardEVMask {
			names = append(names, handler)
		}
		handler, isKbd, evMask = "", false, 0
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "H: Handlers="):
			for _, h := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				if h == "kbd" {
					isKbd = true
				}
				if strings.HasPrefix(h, "event") {
					handler = h
				}
			}
		case strings.HasPrefix(line, "B: EV="):
			evMask, _ = strconv.ParseUint(strings.TrimPrefix(line, "B: EV="), 16, 64)
		}
	}
	flush()
	return names
}

var evdevKeys = map[uint16]string{
	1: "Escape", 12: "-", 13: "=", 14: "Backspace", 15: "Tab",
	26: "[", 27: "]", 28: "Enter", 29: "LeftCtrl", 39: ";", 40: "'", 41: "`",
	42: "LeftShift", 43: "\\", 51: ",", 52: ".", 53: "/", 54: "RightShift",
	56: "LeftAlt", 57: "Space", 58: "CapsLock", 87: "F11", 88: "F12",
	97: "RightCtrl", 100: "RightAlt", 102: "Home", 103: "Up", 104: "PageUp",
	105: "Left", 106: "Right", 107: "End", 108: "Down", 109: "PageDown",
	110: "Insert", 111: "Delete", 125: "LeftMeta", 126: "RightMeta",
}

func init() {
	rows := []struct {
		first uint16
		keys  string
	}{
		{2, "1234567890"},
		{16, "QWERTYUIOP"},
		{30, "ASDFGHJKL"},
		{44, "ZXCVBNM"},
	}
	for _, row := range rows {
		for i, k := range row.keys {
			evdevKeys[row.first+uint16(i)] = string(k)
		}
	}
	for i := uint16(0); i < 10; i++ {
		evdevKeys[59+i] = "F" + strconv.Itoa(int(i)+1)
	}
}

func evdevKeyName(code uint16) string {
	if name, ok := evdevKeys[code]; ok {
		return name
	}
	return "KEY_" + strconv.Itoa(int(code))
}
