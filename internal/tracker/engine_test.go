package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/tracker/command"
	"github.com/grovetools/tracker/config"
	"github.com/grovetools/tracker/errors"
	"github.com/grovetools/tracker/git"
	"github.com/grovetools/tracker/internal/capture"
	"github.com/grovetools/tracker/internal/input"
	"github.com/grovetools/tracker/internal/store"
	"github.com/grovetools/tracker/internal/upload"
	"github.com/grovetools/tracker/testutil"
)

const (
	captureEvery = time.Second
	rollupEvery  = time.Hour
	mouseEvery   = 100 * time.Millisecond
)

type fakeTicker struct {
	d       time.Duration
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

// tick blocks until the owning loop has received the tick.
func (f *fakeTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case f.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("tick on %s ticker was not consumed", f.d)
	}
}

type fakeTickers struct {
	mu  sync.Mutex
	all []*fakeTicker
}

func (ft *fakeTickers) factory(d time.Duration) Ticker {
	t := &fakeTicker{d: d, ch: make(chan time.Time)}
	ft.mu.Lock()
	ft.all = append(ft.all, t)
	ft.mu.Unlock()
	return t
}

func (ft *fakeTickers) get(t *testing.T, d time.Duration) *fakeTicker {
	t.Helper()
	var found *fakeTicker
	require.Eventually(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		for _, tk := range ft.all {
			if tk.d == d {
				found = tk
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no ticker for %s", d)
	return found
}

type fakeCapture struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCapture) Capture(ctx context.Context) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("\x89PNG fake"), nil
}

type fakeGit struct {
	mu    sync.Mutex
	n     int
	diff  string
	state git.State
}

func (g *fakeGit) SnapshotRef(ctx context.Context, repo string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("ref-%d", g.n), nil
}

func (g *fakeGit) Diff(ctx context.Context, repo, base, head string) (string, error) {
	if base == head {
		return "", nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.diff, nil
}

func (g *fakeGit) GetState(ctx context.Context, repo string) git.State {
	return g.state
}

type fakeHook struct {
	mu        sync.Mutex
	next      input.Subscription
	listeners map[input.Subscription]input.KeyListener
	err       error
	closes    atomic.Int32
}

func (h *fakeHook) Subscribe(l input.KeyListener) (input.Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners == nil {
		h.listeners = make(map[input.Subscription]input.KeyListener)
	}
	h.next++
	h.listeners[h.next] = l
	return h.next, h.err
}

func (h *fakeHook) Unsubscribe(id input.Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, id)
}

func (h *fakeHook) Close() error {
	h.closes.Add(1)
	return nil
}

func (h *fakeHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

func (h *fakeHook) emit(key string, ts time.Time) {
	h.mu.Lock()
	ls := make([]input.KeyListener, 0, len(h.listeners))
	for _, l := range h.listeners {
		ls = append(ls, l)
	}
	h.mu.Unlock()
	for _, l := range ls {
		l(input.KeyEvent{Key: key, Time: ts})
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine  *Engine
	store   *store.LocalStore
	capture *fakeCapture
	git     *fakeGit
	hook    *fakeHook
	tickers *fakeTickers
	clock   *clock
	logs    *test.Hook
}

func newHarness(t *testing.T, mutate func(*Options, *Deps)) *harness {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	logger, logs := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := &harness{
		store:   st,
		capture: &fakeCapture{},
		git:     &fakeGit{diff: "diff --git a/main.go b/main.go\n+changed\n"},
		hook:    &fakeHook{},
		tickers: &fakeTickers{},
		clock:   &clock{t: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)},
		logs:    logs,
	}
	opts := Options{
		SnapshotInterval: 5 * time.Minute,
		RollupInterval:   rollupEvery,
		StopGrace:        2 * time.Second,
		Keyboard:         true,
	}
	deps := Deps{
		Store:     st,
		Capture:   h.capture,
		Git:       h.git,
		Hook:      h.hook,
		Logger:    logrus.NewEntry(logger),
		NewTicker: h.tickers.factory,
		Now:       h.clock.Now,
	}
	if mutate != nil {
		mutate(&opts, &deps)
	}
	h.engine, err = New(opts, deps)
	require.NoError(t, err)

	t.Cleanup(func() {
		h.engine.StopAll()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.engine.Wait(ctx)
	})
	return h
}

func (h *harness) session(t *testing.T, taskID string) *session {
	t.Helper()
	h.engine.mu.RLock()
	defer h.engine.mu.RUnlock()
	s, ok := h.engine.sessions[taskID]
	require.True(t, ok, "no session for %s", taskID)
	return s
}

func (h *harness) screenshots(t *testing.T, taskID string) []ScreenshotRecord {
	shots, _, _, _ := h.session(t, taskID).snapshot()
	return shots
}

func (h *harness) waitScreenshots(t *testing.T, taskID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.screenshots(t, taskID)) == n
	}, 2*time.Second, 5*time.Millisecond, "want %d screenshots", n)
}

func countFiles(t *testing.T, dir, prefix string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			n++
		}
	}
	return n
}

func TestNewRequiresSnapshotInterval(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	_, err = New(Options{}, Deps{Store: st, Capture: &fakeCapture{}, Git: &fakeGit{}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigInvalid))

	_, err = New(Options{SnapshotInterval: time.Second}, Deps{Store: st})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestResolveInterval(t *testing.T) {
	fallback := 7 * time.Second
	tests := []struct {
		name string
		opts StartOptions
		want time.Duration
	}{
		{"minutes win", StartOptions{SnapshotIntervalMinutes: 0.5, SnapshotIntervalMs: 1000}, 30 * time.Second},
		{"milliseconds", StartOptions{SnapshotIntervalMs: 1500}, 1500 * time.Millisecond},
		{"fallback", StartOptions{}, fallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveInterval(tt.opts, fallback))
		})
	}
}

func TestStartRejectsDuplicateWithoutSideEffects(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.engine.Start("task-1", StartOptions{Name: "Write docs"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", res.TaskID)
	assert.Equal(t, fmt.Sprintf("task-1-%d", h.clock.Now().UnixMilli()), res.SessionID)
	assert.Equal(t, int64(5*60*1000), res.Config.SnapshotIntervalMs)
	h.waitScreenshots(t, "task-1", 1)

	_, err = h.engine.Start("task-1", StartOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeAlreadyRunning))

	assert.Len(t, h.engine.ListActive(), 1)
	assert.Equal(t, 1, h.hook.count())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), h.capture.calls.Load())
}

func TestStartRejectsInvalidTaskID(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.Start("../escape", StartOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	assert.Empty(t, h.engine.ListActive())
}

func TestStopUnknownTask(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.Stop("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotRunning))
	assert.False(t, h.engine.Status("nope").Active)
}

func TestCaptureCadence(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.Start("task-1", StartOptions{SnapshotIntervalMs: captureEvery.Milliseconds()})
	require.NoError(t, err)
	h.waitScreenshots(t, "task-1", 1)

	ticker := h.tickers.get(t, captureEvery)
	for i := 2; i <= 4; i++ {
		h.clock.Advance(captureEvery)
		ticker.tick(t)
		h.waitScreenshots(t, "task-1", i)
	}

	h.clock.Advance(200 * time.Millisecond)
	summary, err := h.engine.Stop("task-1")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.ScreenshotCount)
	assert.Len(t, summary.Screenshots, 4)
	assert.Equal(t, int64(3200), summary.DurationMs)
	assert.True(t, ticker.stopped.Load())

	// Nothing is listening any more, and nothing new lands on disk.
	select {
	case ticker.ch <- time.Now():
		t.Fatal("capture loop still running after stop")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 4, countFiles(t, filepath.Join(h.store.Root(), store.ScreenshotsDir), "screenshot-task-1-"))
	assert.Equal(t, 4, countFiles(t, filepath.Join(h.store.Root(), store.MetadataDir), "task-1-"))
	assert.Empty(t, h.engine.ListActive())
}

func TestFirstCaptureHasNoBaseline(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *Deps) {
		o.MaxPreviewChars = 10
	})
	h.git.state = git.State{Branch: "main"}

	_, err := h.engine.Start("task-1", StartOptions{GitRepoPath: "/repo", SnapshotIntervalMs: 1000})
	require.NoError(t, err)
	h.waitScreenshots(t, "task-1", 1)

	first := h.screenshots(t, "task-1")[0]
	assert.Equal(t, git.NoBaselineMarker, first.DiffContent)
	assert.Empty(t, first.DiffPath)
	require.NotNil(t, first.GitState)
	assert.Equal(t, "main", first.GitState.Branch)

	h.tickers.get(t, captureEvery).tick(t)
	h.waitScreenshots(t, "task-1", 2)

	second := h.screenshots(t, "task-1")[1]
	require.NotEmpty(t, second.DiffPath)
	assert.True(t, second.DiffTruncated)
	assert.True(t, strings.HasSuffix(second.DiffContent, git.TruncationMarker))
	body, err := os.ReadFile(second.DiffPath)
	require.NoError(t, err)
	assert.Equal(t, h.git.diff, string(body))
	assert.Equal(t, "task-1", second.TaskID)
	assert.True(t, strings.HasPrefix(second.ID, "task-1-"))
}

func TestExcludedDiffWritesNoFile(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *Deps) {
		o.Exclude = []string{"*.go"}
	})

	_, err := h.engine.Start("task-1", StartOptions{GitRepoPath: "/repo", SnapshotIntervalMs: 1000})
	require.NoError(t, err)
	h.waitScreenshots(t, "task-1", 1)
	h.tickers.get(t, captureEvery).tick(t)
	h.waitScreenshots(t, "task-1", 2)

	second := h.screenshots(t, "task-1")[1]
	assert.Empty(t, second.DiffPath)
	assert.Empty(t, second.DiffContent)
	assert.Empty(t, second.DiffError)
}

func TestCaptureFailureSkipsTick(t *testing.T) {
	h := newHarness(t, nil)
	h.capture.err = errors.New(errors.ErrCodeCaptureFailed, "no display")

	_, err := h.engine.Start("task-1", StartOptions{SnapshotIntervalMs: 1000})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.capture.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	h.tickers.get(t, captureEvery).tick(t)
	require.Eventually(t, func() bool { return h.capture.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	summary, err := h.engine.Stop("task-1")
	require.NoError(t, err)
	assert.Zero(t, summary.ScreenshotCount)
	assert.Equal(t, 0, countFiles(t, filepath.Join(h.store.Root(), store.ScreenshotsDir), ""))
}

func TestKeyboardEventsAreOrderedAndStopAtStop(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.Start("task-1", StartOptions{})
	require.NoError(t, err)
	start := h.clock.Now()

	h.hook.emit("a", start.Add(2*time.Second))
	h.hook.emit("b", start.Add(time.Second))
	h.hook.emit("c", start.Add(3*time.Second))

	status := h.engine.Status("task-1")
	assert.True(t, status.Active)
	assert.Equal(t, 3, status.KeyboardEvents)

	summary, err := h.engine.Stop("task-1")
	require.NoError(t, err)
	assert.Zero(t, h.hook.count(), "listener must be unsubscribed")

	h.hook.emit("late", start.Add(4*time.Second))

	require.Len(t, summary.KeyboardEvents, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{
		summary.KeyboardEvents[0].Key, summary.KeyboardEvents[1].Key, summary.KeyboardEvents[2].Key,
	})
	for i := 1; i < len(summary.KeyboardEvents); i++ {
		assert.False(t, summary.KeyboardEvents[i].Timestamp.Before(summary.KeyboardEvents[i-1].Timestamp))
	}
	assert.Equal(t, int64(2000), summary.KeyboardEvents[1].ElapsedMs)
	assert.Equal(t, EventKeypress, summary.KeyboardEvents[0].Type)
	assert.Equal(t, 3, summary.FinalRollup.KeyboardEvents)
	assert.True(t, summary.FinalRollup.Final)
}

func TestKeyboardPermissionFailureIsAWarning(t *testing.T) {
	h := newHarness(t, nil)
	h.hook.err = errors.New(errors.ErrCodePermissionDenied, "cannot open /dev/input")

	_, err := h.engine.Start("task-1", StartOptions{})
	require.NoError(t, err)
	assert.Contains(t, h.engine.Status("task-1").KeyboardWarning, "cannot open /dev/input")

	summary, err := h.engine.Stop("task-1")
	require.NoError(t, err)
	assert.Empty(t, summary.KeyboardEvents)
	assert.NotEmpty(t, summary.KeyboardWarning)
	assert.Zero(t, h.hook.count())
}

type seqPoller struct {
	mu  sync.Mutex
	pos []input.Point
}

func (p *seqPoller) Name() string { return "fake" }

func (p *seqPoller) Position(ctx context.Context) (input.Point, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.pos[0]
	if len(p.pos) > 1 {
		p.pos = p.pos[1:]
	}
	return next, nil
}

func TestMouseRecordsOnlyChanges(t *testing.T) {
	poller := &seqPoller{pos: []input.Point{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 2, Y: 3}}}
	h := newHarness(t, func(o *Options, d *Deps) {
		o.Mouse = true
		o.MousePollInterval = mouseEvery
		d.MousePoller = poller
	})

	res, err := h.engine.Start("task-1", StartOptions{})
	require.NoError(t, err)
	assert.True(t, res.Config.Mouse)
	assert.Equal(t, "fake", res.Config.MousePoller)

	ticker := h.tickers.get(t, mouseEvery)
	for i := 0; i < 4; i++ {
		ticker.tick(t)
	}
	require.Eventually(t, func() bool {
		return h.engine.Status("task-1").MouseEvents == 2
	}, time.Second, 5*time.Millisecond)

	summary, err := h.engine.Stop("task-1")
	require.NoError(t, err)
	require.Len(t, summary.MouseEvents, 2)
	assert.Equal(t, input.Point{X: 2, Y: 3}, *summary.MouseEvents[1].Position)
	assert.Equal(t, EventMouseMove, summary.MouseEvents[1].Type)
}

func TestRollupTickPersistsRollups(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.Start("task-1", StartOptions{})
	require.NoError(t, err)
	h.waitScreenshots(t, "task-1", 1)

	h.tickers.get(t, rollupEvery).tick(t)
	require.Eventually(t, func() bool {
		_, _, _, rollups := h.session(t, "task-1").snapshot()
		return len(rollups) == 1
	}, time.Second, 5*time.Millisecond)

	_, err = h.engine.Stop("task-1")
	require.NoError(t, err)

	logs := filepath.Join(h.store.Root(), store.LogsDir)
	assert.Equal(t, 1, countFiles(t, logs, "rollups-task-1-"))
	assert.Equal(t, 1, countFiles(t, logs, "session-task-1-"))
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.Start("task-1", StartOptions{})
	require.NoError(t, err)
	summary, err := h.engine.Stop("task-1")
	require.NoError(t, err)
	require.NotEmpty(t, summary.SummaryPath)
	assert.FileExists(t, summary.SummaryPath)

	logs := filepath.Join(h.store.Root(), store.LogsDir)
	before := countFiles(t, logs, "")

	_, err = h.engine.Stop("task-1")
	assert.True(t, errors.Is(err, errors.ErrCodeNotRunning))
	assert.Equal(t, before, countFiles(t, logs, ""))
}

func TestStopAllTearsDownHookOnce(t *testing.T) {
	h := newHarness(t, nil)

	for _, id := range []string{"task-1", "task-2", "task-3"} {
		_, err := h.engine.Start(id, StartOptions{})
		require.NoError(t, err)
	}
	assert.Len(t, h.engine.ListActive(), 3)

	summaries := h.engine.StopAll()
	require.Len(t, summaries, 3)
	assert.Equal(t, "task-1", summaries[0].TaskID)
	assert.Empty(t, h.engine.ListActive())
	assert.Equal(t, int32(1), h.hook.closes.Load())
	assert.Equal(t, 3, countFiles(t, filepath.Join(h.store.Root(), store.LogsDir), "session-"))

	assert.Empty(t, h.engine.StopAll())
	assert.Equal(t, int32(1), h.hook.closes.Load())
}

type recordingSink struct {
	mu        sync.Mutex
	summaries []*Summary
}

func (r *recordingSink) Record(ctx context.Context, s *Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
	return nil
}

func TestStopRecordsSummaryInSink(t *testing.T) {
	sink := &recordingSink{}
	h := newHarness(t, func(_ *Options, d *Deps) { d.Summaries = sink })

	_, err := h.engine.Start("task-1", StartOptions{Name: "Docs", TenantID: "t", ProjectID: "p"})
	require.NoError(t, err)
	_, err = h.engine.Stop("task-1")
	require.NoError(t, err)

	require.Len(t, sink.summaries, 1)
	assert.Equal(t, "Docs", sink.summaries[0].TaskName)
	assert.Equal(t, "t", sink.summaries[0].TenantID)
}

func TestUploadFailureKeepsFileAndLoopRuns(t *testing.T) {
	var authorizeHits, puts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/uploads/authorize" {
			authorizeHits.Add(1)
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		puts.Add(1)
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t, func(o *Options, d *Deps) {
		o.TenantID = "tenant"
		o.ProjectID = "project"
		d.Uploader = upload.New(upload.NewHTTPAuthority(srv.URL))
	})

	res, err := h.engine.Start("task-1", StartOptions{SnapshotIntervalMs: 1000})
	require.NoError(t, err)
	assert.True(t, res.Config.Uploads)
	h.waitScreenshots(t, "task-1", 1)
	require.Eventually(t, func() bool { return authorizeHits.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.tickers.get(t, captureEvery).tick(t)
	h.waitScreenshots(t, "task-1", 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Wait(ctx))

	assert.Equal(t, int32(2), authorizeHits.Load())
	assert.Zero(t, puts.Load())
	for _, rec := range h.screenshots(t, "task-1") {
		assert.FileExists(t, rec.FilePath)
		assert.Empty(t, rec.RemoteKey)
	}

	var failures int
	for _, entry := range h.logs.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "screenshot upload failed") {
			failures++
		}
	}
	assert.Equal(t, 2, failures)
}

func TestUploadSuccessRecordsRemoteKey(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/uploads/authorize" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"uploadUrl":%q,"key":"k"}`, srv.URL+"/objects/shot.png")
			return
		}
		w.Header().Set("x-request-id", "remote-123")
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t, func(o *Options, d *Deps) {
		o.TenantID = "tenant"
		o.ProjectID = "project"
		d.Uploader = upload.New(upload.NewHTTPAuthority(srv.URL))
	})

	_, err := h.engine.Start("task-1", StartOptions{})
	require.NoError(t, err)
	h.waitScreenshots(t, "task-1", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Wait(ctx))
	assert.Equal(t, "remote-123", h.screenshots(t, "task-1")[0].RemoteKey)
}

func TestSetOptionsAppliesToNewSessions(t *testing.T) {
	h := newHarness(t, nil)

	require.Error(t, h.engine.SetOptions(Options{}))
	require.NoError(t, h.engine.SetOptions(Options{SnapshotInterval: 42 * time.Second}))

	res, err := h.engine.Start("task-1", StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(42000), res.Config.SnapshotIntervalMs)
	assert.Equal(t, config.DefaultRollupInterval, h.engine.Options().RollupInterval)
}

func TestRealRepositoryDiff(t *testing.T) {
	dir := t.TempDir()
	testutil.InitGitRepo(t, dir)

	h := newHarness(t, func(_ *Options, d *Deps) {
		d.Git = git.NewReader(command.NewRunner(), 10*time.Second)
	})

	_, err := h.engine.Start("task-1", StartOptions{GitRepoPath: dir, SnapshotIntervalMs: 1000})
	require.NoError(t, err)
	h.waitScreenshots(t, "task-1", 1)

	testutil.WriteFile(t, dir, "README.md", "# Changed\n")
	h.tickers.get(t, captureEvery).tick(t)
	h.waitScreenshots(t, "task-1", 2)

	second := h.screenshots(t, "task-1")[1]
	require.Empty(t, second.DiffError)
	require.NotEmpty(t, second.DiffPath)
	assert.Contains(t, second.DiffContent, "README.md")
	assert.Contains(t, second.DiffContent, "+# Changed")
	require.NotNil(t, second.GitState)
	assert.Equal(t, "main", second.GitState.Branch)
	assert.True(t, second.GitState.Dirty)

	// The working tree itself is untouched by snapshotting.
	body, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Changed\n", string(body))
}

func TestStopSchedulesFinalDiffUpload(t *testing.T) {
	var (
		mu    sync.Mutex
		types []string
	)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/uploads/authorize" {
			fmt.Fprintf(w, `{"uploadUrl":%q}`, srv.URL+"/objects/x")
			return
		}
		mu.Lock()
		types = append(types, r.Header.Get("Content-Type"))
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t, func(o *Options, d *Deps) {
		o.TenantID = "tenant"
		o.ProjectID = "project"
		d.Uploader = upload.New(upload.NewHTTPAuthority(srv.URL))
	})

	_, err := h.engine.Start("task-1", StartOptions{GitRepoPath: "/repo"})
	require.NoError(t, err)
	h.waitScreenshots(t, "task-1", 1)

	_, err = h.engine.Stop("task-1")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Wait(ctx))

	finals, err := filepath.Glob(filepath.Join(h.store.Root(), store.DiffsDir, "diff-task-1-final-*.patch"))
	require.NoError(t, err)
	assert.Len(t, finals, 1)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, types, upload.ContentTypeDiff)
	assert.Contains(t, types, upload.ContentTypePNG)
}

func TestStartAfterStopAllIsRefused(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.Start("task-1", StartOptions{})
	require.NoError(t, err)
	require.Len(t, h.engine.StopAll(), 1)

	res, err := h.engine.Start("task-2", StartOptions{})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotRunning))
	assert.Empty(t, h.engine.ListActive())
	assert.False(t, h.engine.Status("task-2").Active)
}

func TestStatusInactiveWhileStopping(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.Start("task-1", StartOptions{})
	require.NoError(t, err)
	h.waitScreenshots(t, "task-1", 1)
	require.True(t, h.engine.Status("task-1").Active)

	s := h.session(t, "task-1")
	s.running.Store(false)
	assert.False(t, h.engine.Status("task-1").Active)
	assert.Empty(t, h.engine.ListActive())
	s.running.Store(true)
}

// blockingRunner holds every command until released or cancelled.
type blockingRunner struct {
	calls   atomic.Int32
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, spec command.Spec) (*command.Result, error) {
	r.calls.Add(1)
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &command.Result{}, nil
}

func TestSlowShutterDoesNotDelayCaptures(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	h := newHarness(t, func(o *Options, d *Deps) {
		o.ShutterSound = true
		d.Shutter = capture.NewShutter(runner, "linux")
	})

	_, err := h.engine.Start("task-1", StartOptions{SnapshotIntervalMs: captureEvery.Milliseconds()})
	require.NoError(t, err)
	h.waitScreenshots(t, "task-1", 1)

	ticker := h.tickers.get(t, captureEvery)
	h.clock.Advance(captureEvery)
	ticker.tick(t)
	h.waitScreenshots(t, "task-1", 2)

	require.Eventually(t, func() bool { return runner.calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	close(runner.release)
}
