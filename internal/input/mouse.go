package input

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/tracker/command"
	"github.com/grovetools/tracker/errors"
)

// Point is an absolute screen position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// MousePoller reads the current cursor position.
type MousePoller interface {
	Position(ctx context.Context) (Point, error)
	// Name identifies the strategy ("native", "osascript" or "xdotool").
	Name() string
}

const pollTimeout = 2 * time.Second

// NewMousePoller selects the polling strategy for platform (a GOOS value).
// The choice is made once; a session keeps its poller for its lifetime.
func NewMousePoller(platform string, runner command.Runner) (MousePoller, error) {
	switch platform {
	case "windows":
		return nativePoller{}, nil
	case "darwin":
		return &osascriptPoller{runner: runner}, nil
	case "linux":
		return &xdotoolPoller{runner: runner}, nil
	}
	return nil, errors.Unsupported("mouse position polling", platform)
}

// nativePoller asks the OS directly (GetCursorPos).
type nativePoller struct{}

func (nativePoller) Name() string { return "native" }

func (nativePoller) Position(ctx context.Context) (Point, error) {
	return cursorPos()
}

const jxaMouseLocation = `ObjC.import("AppKit"); var p = $.NSEvent.mouseLocation; Math.round(p.x) + "," + Math.round(p.y)`

// osascriptPoller evaluates a JXA snippet reading NSEvent.mouseLocation.
type osascriptPoller struct {
	runner command.Runner
}

func (p *osascriptPoller) Name() string { return "osascript" }

func (p *osascriptPoller) Position(ctx context.Context) (Point, error) {
	res, err := p.runner.Run(ctx, command.Spec{
		Name:    "osascript",
		Args:    []string{"-l", "JavaScript", "-e", jxaMouseLocation},
		Timeout: pollTimeout,
	})
	if err != nil {
		return Point{}, err
	}
	return parseCommaPoint(res.Stdout)
}

// xdotoolPoller runs `xdotool getmouselocation --shell`.
type xdotoolPoller struct {
	runner command.Runner
}

func (p *xdotoolPoller) Name() string { return "xdotool" }

func (p *xdotoolPoller) Position(ctx context.Context) (Point, error) {
	res, err := p.runner.Run(ctx, command.Spec{
		Name:    "xdotool",
		Args:    []string{"getmouselocation", "--shell"},
		Timeout: pollTimeout,
	})
	if err != nil {
		return Point{}, err
	}
	return parseShellPoint(res.Stdout)
}

func parseCommaPoint(out string) (Point, error) {
	parts := strings.Split(strings.TrimSpace(out), ",")
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("unexpected mouse location output: %q", out)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
	y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errX != nil || errY != nil {
		return Point{}, fmt.Errorf("unexpected mouse location output: %q", out)
	}
	return Point{X: x, Y: y}, nil
}

// parseShellPoint reads the X= and Y= lines of xdotool's --shell output.
func parseShellPoint(out string) (Point, error) {
	var p Point
	var haveX, haveY bool
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		switch key {
		case "X":
			p.X, haveX = n, true
		case "Y":
			p.Y, haveY = n, true
		}
	}
	if !haveX || !haveY {
		return Point{}, fmt.Errorf("unexpected xdotool output: %q", out)
	}
	return p, nil
}

// MouseWatcher turns position polls into change events.
type MouseWatcher struct {
	Poller MousePoller
	// Running is checked before every poll; the watcher returns once it is false.
	Running func() bool
	// OnMove receives every position that differs from the previous one.
	OnMove func(Point, time.Time)
	Logger *logrus.Entry
}

// Run polls on every tick until ctx is cancelled, ticks closes or Running
// reports false. The first failure of a streak is logged as a warning and
// the rest at debug level.
func (w *MouseWatcher) Run(ctx context.Context, ticks <-chan time.Time) {
	var (
		last     Point
		haveLast bool
		failing  bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok || !w.Running() {
				return
			}
			pos, err := w.Poller.Position(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if w.Logger != nil {
					if !failing {
						w.Logger.WithError(err).WithField("poller", w.Poller.Name()).Warn("Mouse position poll failed")
					} else {
						w.Logger.WithError(err).Debug("Mouse position poll failed")
					}
				}
				failing = true
				continue
			}
			failing = false
			if haveLast && pos == last {
				continue
			}
			last, haveLast = pos, true
			w.OnMove(pos, time.Now())
		}
	}
}
