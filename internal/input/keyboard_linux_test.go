//go:build linux

package input

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const procDevices = `I: Bus=0019 Vendor=0000 Product=0001 Version=0000
N: Name="Power Button"
H: Handlers=kbd event0
B: EV=3

I: Bus=0011 Vendor=0001 Product=0001 Version=ab41
N: Name="AT Translated Set 2 keyboard"
H: Handlers=sysrq kbd leds event3
B: EV=120013

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver Mouse"
H: Handlers=mouse0 event5
B: EV=17

I: Bus=0003 Vendor=04d9 Product=0169 Version=0110
N: Name="USB Keyboard"
H: Handlers=sysrq kbd leds event7
B: EV=120013
`

func TestParseKeyboardDevices(t *testing.T) {
	assert.Equal(t, []string{"event3", "event7"}, parseKeyboardDevices(strings.NewReader(procDevices)))
	assert.Empty(t, parseKeyboardDevices(strings.NewReader("")))
}

func encodeEvent(typ, code uint16, value int32) []byte {
	buf := make([]byte, inputEventSize)
	binary.LittleEndian.PutUint16(buf[timevalSize:], typ)
	binary.LittleEndian.PutUint16(buf[timevalSize+2:], code)
	binary.LittleEndian.PutUint32(buf[timevalSize+4:], uint32(value))
	return buf
}

func TestReadEventsKeepsKeyDownsOnly(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(encodeEvent(evKey, 30, 1))  // A down
	stream.Write(encodeEvent(0x00, 0, 0))    // SYN
	stream.Write(encodeEvent(evKey, 30, 2))  // A repeat
	stream.Write(encodeEvent(evKey, 30, 0))  // A up
	stream.Write(encodeEvent(evKey, 57, 1))  // Space down
	stream.Write(encodeEvent(evKey, 999, 1)) // unknown

	var keys []string
	readEvents(&stream, func(ev KeyEvent) { keys = append(keys, ev.Key) })
	assert.Equal(t, []string{"A", "Space", "KEY_999"}, keys)
}

func TestEvdevKeyNames(t *testing.T) {
	assert.Equal(t, "1", evdevKeyName(2))
	assert.Equal(t, "0", evdevKeyName(11))
	assert.Equal(t, "Q", evdevKeyName(16))
	assert.Equal(t, "M", evdevKeyName(50))
	assert.Equal(t, "F1", evdevKeyName(59))
	assert.Equal(t, "F10", evdevKeyName(68))
	assert.Equal(t, "Enter", evdevKeyName(28))
}
