// Package tracker is the session engine: per-task screenshot capture, input
// observation, git diff snapshots and artifact uploads, each running as a
// background loop owned by a session in the engine's registry.
package tracker

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/tracker/config"
	"github.com/grovetools/tracker/errors"
	"github.com/grovetools/tracker/git"
	"github.com/grovetools/tracker/internal/capture"
	"github.com/grovetools/tracker/internal/input"
	"github.com/grovetools/tracker/internal/store"
	"github.com/grovetools/tracker/internal/upload"
	"github.com/grovetools/tracker/logging"
)

// GitReader is the part of git.Reader the capture loop needs.
type GitReader interface {
	SnapshotRef(ctx context.Context, repoPath string) (string, error)
	Diff(ctx context.Context, repoPath, baseRef, headRef string) (string, error)
	GetState(ctx context.Context, repoPath string) git.State
}

// KeyboardHook is the shared keyboard hook service. *input.Hook satisfies it.
type KeyboardHook interface {
	Subscribe(l input.KeyListener) (input.Subscription, error)
	Unsubscribe(id input.Subscription)
	Close() error
}

// SummarySink receives every summary produced by Stop.
type SummarySink interface {
	Record(ctx context.Context, s *Summary) error
}

// Options are the engine-wide session defaults. SetOptions swaps them for
// sessions started afterwards; running sessions keep what they started with.
type Options struct {
	SnapshotInterval  time.Duration
	RollupInterval    time.Duration
	StopGrace         time.Duration
	MousePollInterval time.Duration
	Keyboard          bool
	Mouse             bool
	ShutterSound      bool
	MaxDiffBytes      int
	MaxPreviewChars   int
	Exclude           []string
	TenantID          string
	ProjectID         string
}

// OptionsFromConfig maps the tracker and git sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SnapshotInterval:  cfg.Tracker.SnapshotInterval.Std(),
		RollupInterval:    cfg.Tracker.RollupInterval.Std(),
		StopGrace:         cfg.Tracker.StopGrace.Std(),
		MousePollInterval: cfg.Tracker.MousePollInterval.Std(),
		Keyboard:          cfg.Tracker.KeyboardEnabled(),
		Mouse:             cfg.Tracker.MouseEnabled(),
		ShutterSound:      cfg.Tracker.ShutterSound,
		MaxDiffBytes:      cfg.Git.MaxDiffBytes,
		MaxPreviewChars:   cfg.Git.MaxPreviewChars,
		Exclude:           append([]string(nil), cfg.Git.Exclude...),
		TenantID:          cfg.Tracker.TenantID,
		ProjectID:         cfg.Tracker.ProjectID,
	}
}

func (o Options) withDefaults() Options {
	if o.RollupInterval <= 0 {
		o.RollupInterval = config.DefaultRollupInterval
	}
	if o.StopGrace <= 0 {
		o.StopGrace = config.DefaultStopGrace
	}
	if o.MousePollInterval <= 0 {
		o.MousePollInterval = config.DefaultMousePollInterval
	}
	return o
}

func (o Options) validate() error {
	if o.SnapshotInterval <= 0 {
		return errors.ConfigInvalid("tracker.snapshot_interval must be greater than zero")
	}
	return nil
}

// Deps are the engine's collaborators. Store, Capture and Git are required;
// the rest may be nil, which disables the matching feature.
type Deps struct {
	Store       store.Store
	Capture     capture.DisplayCapture
	Git         GitReader
	Uploader    upload.Uploader
	Hook        KeyboardHook
	MousePoller input.MousePoller
	Shutter     *capture.Shutter
	Summaries   SummarySink
	Logger      *logrus.Entry
	NewTicker   TickerFactory
	Now         func() time.Time
}

// Engine owns the registry of active sessions.
type Engine struct {
	deps   Deps
	logger *logrus.Entry
	tasks  *taskGroup

	optsMu sync.RWMutex
	opts   Options

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool

	hookOnce sync.Once
}

// New creates an Engine. It fails with CONFIG_INVALID when opts carries no
// snapshot interval.
func New(opts Options, deps Deps) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Capture == nil || deps.Git == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "tracker engine requires a store, a display capture and a git reader")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewLogger("tracker")
	}
	if deps.NewTicker == nil {
		deps.NewTicker = NewTimeTicker
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		deps:     deps,
		logger:   deps.Logger,
		tasks:    newTaskGroup(deps.Logger),
		opts:     opts.withDefaults(),
		sessions: make(map[string]*session),
	}, nil
}

// Options returns the current session defaults.
func (e *Engine) Options() Options {
	e.optsMu.RLock()
	defer e.optsMu.RUnlock()
	return e.opts
}

// SetOptions replaces the session defaults used by later Start calls.
func (e *Engine) SetOptions(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	e.optsMu.Lock()
	e.opts = opts.withDefaults()
	e.optsMu.Unlock()
	e.logger.WithField("snapshot_interval", opts.SnapshotInterval).Info("Session defaults updated")
	return nil
}

func resolveInterval(so StartOptions, fallback time.Duration) time.Duration {
	switch {
	case so.SnapshotIntervalMinutes > 0:
		return time.Duration(so.SnapshotIntervalMinutes * float64(time.Minute))
	case so.SnapshotIntervalMs > 0:
		return time.Duration(so.SnapshotIntervalMs) * time.Millisecond
	default:
		return fallback
	}
}

func screenshotID(taskID string, ts time.Time, seq int) string {
	return fmt.Sprintf("%s-%d-%d", taskID, ts.UnixMilli(), seq)
}

// Start registers a session for taskID and launches its background loops.
// It returns as soon as the loops are running; the first capture happens
// on the capture loop, not here.
func (e *Engine) Start(taskID string, so StartOptions) (*StartResult, error) {
	if err := store.ValidateName(taskID); err != nil {
		return nil, err
	}
	opts := e.Options()
	interval := resolveInterval(so, opts.SnapshotInterval)
	if interval <= 0 {
		return nil, errors.ConfigInvalid("snapshot interval must be greater than zero")
	}

	startTime := e.deps.Now()
	corr := upload.Correlation{
		TenantID:  firstNonEmpty(so.TenantID, opts.TenantID),
		ProjectID: firstNonEmpty(so.ProjectID, opts.ProjectID),
		SessionID: firstNonEmpty(so.SessionID, fmt.Sprintf("%s-%d", taskID, startTime.UnixMilli())),
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		taskID:    taskID,
		taskName:  so.Name,
		startTime: startTime,
		corr:      corr,
		repoPath:  so.GitRepoPath,
		interval:  interval,
		opts:      opts,
		cancel:    cancel,
	}
	s.running.Store(true)
	mouse := opts.Mouse && e.deps.MousePoller != nil

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return nil, errors.New(errors.ErrCodeNotRunning, "tracker engine is shutting down").
			WithDetail("taskId", taskID)
	}
	if _, exists := e.sessions[taskID]; exists {
		e.mu.Unlock()
		cancel()
		return nil, errors.AlreadyRunning(taskID)
	}
	loops := 2
	if mouse {
		loops++
	}
	s.loops.Add(loops)
	e.sessions[taskID] = s
	e.mu.Unlock()

	logger := e.logger.WithFields(logrus.Fields{"task_id": taskID, "session_id": corr.SessionID})

	go e.captureLoop(ctx, s)
	go e.rollupLoop(ctx, s)
	if mouse {
		go e.mouseLoop(ctx, s)
	}
	if opts.Keyboard && e.deps.Hook != nil {
		e.subscribeKeyboard(s)
	}

	logger.WithFields(logrus.Fields{
		"interval": interval,
		"repo":     so.GitRepoPath,
	}).Info("Tracking session started")

	cfg := SessionConfig{
		SnapshotIntervalMs: interval.Milliseconds(),
		Keyboard:           opts.Keyboard && e.deps.Hook != nil,
		Mouse:              mouse,
		GitRepoPath:        so.GitRepoPath,
		Uploads:            e.deps.Uploader != nil && corr.Complete(),
	}
	if mouse {
		cfg.MousePoller = e.deps.MousePoller.Name()
	}
	return &StartResult{
		TaskID:    taskID,
		SessionID: corr.SessionID,
		StartTime: startTime,
		Config:    cfg,
	}, nil
}

// Stop ends the session for taskID and returns its summary.
func (e *Engine) Stop(taskID string) (*Summary, error) {
	e.mu.Lock()
	s, ok := e.sessions[taskID]
	if !ok || s.stopping {
		e.mu.Unlock()
		return nil, errors.NotRunning(taskID)
	}
	s.stopping = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.sessions, taskID)
		e.mu.Unlock()
	}()

	logger := e.logger.WithFields(logrus.Fields{"task_id": taskID, "session_id": s.corr.SessionID})

	s.halt()
	e.unsubscribeKeyboard(s)
	if !waitTimeout(&s.loops, s.opts.StopGrace) {
		logger.WithField("grace", s.opts.StopGrace).Warn("Session loops still running after stop grace")
	}

	end := e.deps.Now()
	if end.Before(s.startTime) {
		end = s.startTime
	}
	final, rollups := s.finalRollup(end)
	e.persistRollups(s, rollups)

	summary := s.summary(end, final)
	rel := store.SummaryPath(taskID, s.startTime)
	summary.SummaryPath = filepath.Join(e.deps.Store.Root(), rel)
	if _, err := e.deps.Store.WriteJSON(rel, summary); err != nil {
		logger.WithError(err).Error("Failed to persist session summary")
		summary.SummaryPath = ""
	}
	if e.deps.Summaries != nil {
		if err := e.deps.Summaries.Record(context.Background(), summary); err != nil {
			logger.WithError(err).Warn("Failed to index session summary")
		}
	}

	if s.repoPath != "" && s.corr.Complete() && e.deps.Uploader != nil {
		e.tasks.Go("final diff upload", logrus.Fields{"task_id": taskID}, func() error {
			return e.finalDiff(s, end)
		})
	}

	logger.WithFields(logrus.Fields{
		"duration":    summary.Duration(),
		"screenshots": summary.ScreenshotCount,
		"keyboard":    summary.KeyboardEventCount,
		"mouse":       summary.MouseEventCount,
	}).Info("Tracking session stopped")
	return summary, nil
}

// StopAll stops every active session concurrently, then closes the shared
// keyboard hook. Start is refused from then on. Calling it again is harmless.
func (e *Engine) StopAll() []*Summary {
	e.mu.Lock()
	e.closed = true
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		summaries []*Summary
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			summary, err := e.Stop(id)
			if err != nil {
				// Lost a race with a direct Stop.
				e.logger.WithField("task_id", id).WithError(err).Debug("Session already stopping")
				return
			}
			mu.Lock()
			summaries = append(summaries, summary)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	e.hookOnce.Do(func() {
		if e.deps.Hook == nil {
			return
		}
		if err := e.deps.Hook.Close(); err != nil {
			e.logger.WithError(err).Warn("Failed to close keyboard hook")
		}
	})

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].TaskID < summaries[j].TaskID })
	return summaries
}

// Status reports on taskID. A task with no session, or one that is being
// stopped, yields Active false.
func (e *Engine) Status(taskID string) Status {
	e.mu.RLock()
	s, ok := e.sessions[taskID]
	e.mu.RUnlock()
	if !ok || !s.running.Load() {
		return Status{TaskID: taskID}
	}
	return s.status(e.deps.Now())
}

// ListActive returns running sessions, oldest first.
func (e *Engine) ListActive() []ActiveSession {
	e.mu.RLock()
	sessions := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.RUnlock()

	out := make([]ActiveSession, 0, len(sessions))
	for _, s := range sessions {
		if !s.running.Load() {
			continue
		}
		st := s.status(e.deps.Now())
		out = append(out, ActiveSession{
			TaskID:      st.TaskID,
			TaskName:    st.TaskName,
			SessionID:   st.SessionID,
			StartTime:   st.StartTime,
			Screenshots: st.Screenshots,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// Wait blocks until detached uploads and final diffs finish or ctx ends.
func (e *Engine) Wait(ctx context.Context) error {
	return e.tasks.Wait(ctx)
}

func (e *Engine) persistRollups(s *session, rollups []Rollup) {
	if _, err := e.deps.Store.WriteJSON(store.RollupPath(s.taskID, s.startTime), rollups); err != nil {
		e.logger.WithField("task_id", s.taskID).WithError(err).Warn("Failed to persist rollups")
	}
}

func (e *Engine) rollupLoop(ctx context.Context, s *session) {
	defer s.loops.Done()
	ticker := e.deps.NewTicker(s.opts.RollupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			rollups, ok := s.appendRollup(e.deps.Now())
			if !ok {
				return
			}
			e.persistRollups(s, rollups)
		}
	}
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
