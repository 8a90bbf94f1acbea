package input

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/tracker/command"
	"github.com/grovetools/tracker/command/mocks"
	"github.com/grovetools/tracker/errors"
)

func TestNewMousePollerSelection(t *testing.T) {
	runner := &mocks.MockRunner{}
	for platform, want := range map[string]string{
		"windows": "native",
		"darwin":  "osascript",
		"linux":   "xdotool",
	} {
		p, err := NewMousePoller(platform, runner)
		require.NoError(t, err)
		assert.Equal(t, want, p.Name())
	}

	_, err := NewMousePoller("plan9", runner)
	assert.True(t, errors.Is(err, errors.ErrCodeUnsupportedPlatform))
}

func TestXdotoolPoller(t *testing.T) {
	runner := &mocks.MockRunner{RunFunc: func(ctx context.Context, spec command.Spec) (*command.Result, error) {
		return &command.Result{Stdout: "X=812\nY=77\nSCREEN=0\nWINDOW=41943047\n"}, nil
	}}
	p, err := NewMousePoller("linux", runner)
	require.NoError(t, err)

	pos, err := p.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Point{X: 812, Y: 77}, pos)
	assert.Equal(t, []string{"xdotool getmouselocation --shell"}, runner.CallLines())
}

func TestOsascriptPoller(t *testing.T) {
	runner := &mocks.MockRunner{RunFunc: func(ctx context.Context, spec command.Spec) (*command.Result, error) {
		return &command.Result{Stdout: "640,480\n"}, nil
	}}
	p, err := NewMousePoller("darwin", runner)
	require.NoError(t, err)

	pos, err := p.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Point{X: 640, Y: 480}, pos)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "osascript", calls[0].Name)
	assert.Equal(t, []string{"-l", "JavaScript"}, calls[0].Args[:2])
}

func TestParsePointErrors(t *testing.T) {
	_, err := parseCommaPoint("garbage")
	assert.Error(t, err)
	_, err = parseCommaPoint("1,x")
	assert.Error(t, err)
	_, err = parseShellPoint("X=1\n")
	assert.Error(t, err)
}

// scriptedPoller returns positions in order, then repeats the last one.
type scriptedPoller struct {
	mu        sync.Mutex
	positions []Point
	errs      map[int]error
	calls     int
}

func (s *scriptedPoller) Name() string { return "scripted" }

func (s *scriptedPoller) Position(ctx context.Context) (Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if err, ok := s.errs[i]; ok {
		return Point{}, err
	}
	if i >= len(s.positions) {
		i = len(s.positions) - 1
	}
	return s.positions[i], nil
}

func TestMouseWatcherEmitsOnlyOnChange(t *testing.T) {
	poller := &scriptedPoller{
		positions: []Point{{1, 1}, {1, 1}, {2, 3}, {0, 0}, {2, 3}, {2, 3}},
		errs:      map[int]error{3: fmt.Errorf("transient")},
	}

	var mu sync.Mutex
	var moves []Point
	w := &MouseWatcher{
		Poller:  poller,
		Running: func() bool { return true },
		OnMove: func(p Point, _ time.Time) {
			mu.Lock()
			moves = append(moves, p)
			mu.Unlock()
		},
	}

	ticks := make(chan time.Time)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), ticks)
		close(done)
	}()
	for i := 0; i < 6; i++ {
		ticks <- time.Now()
	}
	close(ticks)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Point{{1, 1}, {2, 3}}, moves)
}

func TestMouseWatcherStopsWhenNotRunning(t *testing.T) {
	var running atomic.Bool
	running.Store(true)
	poller := &scriptedPoller{positions: []Point{{1, 1}, {2, 2}}}

	var count atomic.Int32
	w := &MouseWatcher{
		Poller:  poller,
		Running: running.Load,
		OnMove:  func(Point, time.Time) { count.Add(1) },
	}

	ticks := make(chan time.Time, 1)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), ticks)
		close(done)
	}()

	ticks <- time.Now()
	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, time.Millisecond)

	running.Store(false)
	ticks <- time.Now()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not exit after running was cleared")
	}
	assert.Equal(t, int32(1), count.Load())
}

func TestMouseWatcherStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &MouseWatcher{
		Poller:  &scriptedPoller{positions: []Point{{1, 1}}},
		Running: func() bool { return true },
		OnMove:  func(Point, time.Time) {},
	}
	done := make(chan struct{})
	go func() {
		w.Run(ctx, make(chan time.Time))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not exit on cancel")
	}
}
