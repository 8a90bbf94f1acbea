package capture

import (
	"context"
	"time"

	"github.com/grovetools/tracker/command"
)

const shutterTimeout = 5 * time.Second

// Shutter plays a short notification sound after a capture. Playback is
// best-effort: a missing player or audio device is ignored.
type Shutter struct {
	runner command.Runner
	spec   *command.Spec
}

// NewShutter picks the sound player for platform. Unknown platforms get a
// silent Shutter.
func NewShutter(runner command.Runner, platform string) *Shutter {
	s := &Shutter{runner: runner}
	switch platform {
	case "darwin":
		s.spec = &command.Spec{Name: "afplay", Args: []string{"/System/Library/Sounds/Tink.aiff"}}
	case "linux":
		s.spec = &command.Spec{Name: "paplay", Args: []string{"/usr/share/sounds/freedesktop/stereo/camera-shutter.oga"}}
	case "windows":
		s.spec = &command.Spec{Name: "powershell", Args: []string{"-NoProfile", "-Command", "[System.Media.SystemSounds]::Asterisk.Play()"}}
	}
	if s.spec != nil {
		s.spec.Timeout = shutterTimeout
	}
	return s
}

// Play runs the player and reports whether it succeeded.
func (s *Shutter) Play(ctx context.Context) bool {
	if s == nil || s.spec == nil {
		return false
	}
	_, err := s.runner.Run(ctx, *s.spec)
	return err == nil
}
