package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/grovetools/tracker/internal/input"
	"github.com/grovetools/tracker/internal/upload"
)

// session is the engine-owned state of one tracked task.
//
// Each collection has a single writer: the capture loop owns screenshots,
// the keyboard listener owns keyboardEvents, the mouse watcher owns
// mouseEvents and the rollup loop owns rollups until stop. Every append
// happens under mu and only while running is set, so nothing lands in a
// session after Stop has cleared the flag.
type session struct {
	taskID    string
	taskName  string
	startTime time.Time
	corr      upload.Correlation
	repoPath  string
	interval  time.Duration
	opts      Options

	running  atomic.Bool
	stopping bool // guarded by Engine.mu
	cancel   context.CancelFunc
	loops    sync.WaitGroup

	mu            sync.RWMutex
	screenshots   []ScreenshotRecord
	keyboard      []InputEvent
	mouse         []InputEvent
	rollups       []Rollup
	keySub        input.Subscription
	keySubscribed bool
	keyWarning    string
	lastRef       string
	seq           int
}

// halt clears running under the lock, then cancels the session context.
// Once halt returns no append can succeed.
func (s *session) halt() {
	s.mu.Lock()
	s.running.Store(false)
	s.mu.Unlock()
	s.cancel()
}

func (s *session) elapsedMs(t time.Time) int64 {
	return t.Sub(s.startTime).Milliseconds()
}

// clamp keeps per-stream timestamps non-decreasing even if the wall clock
// steps backwards.
func clamp(ts, last time.Time) time.Time {
	if ts.Before(last) {
		return last
	}
	return ts
}

func (s *session) appendKey(key string, ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return false
	}
	if n := len(s.keyboard); n > 0 {
		ts = clamp(ts, s.keyboard[n-1].Timestamp)
	}
	s.keyboard = append(s.keyboard, InputEvent{
		Timestamp: ts,
		Type:      EventKeypress,
		TaskID:    s.taskID,
		ElapsedMs: s.elapsedMs(ts),
		Key:       key,
	})
	return true
}

func (s *session) appendMouse(p input.Point, ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return false
	}
	if n := len(s.mouse); n > 0 {
		ts = clamp(ts, s.mouse[n-1].Timestamp)
	}
	pos := p
	s.mouse = append(s.mouse, InputEvent{
		Timestamp: ts,
		Type:      EventMouseMove,
		TaskID:    s.taskID,
		ElapsedMs: s.elapsedMs(ts),
		Position:  &pos,
	})
	return true
}

// appendScreenshot stores rec, clamping its timestamp in place first.
func (s *session) appendScreenshot(rec *ScreenshotRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return false
	}
	if n := len(s.screenshots); n > 0 {
		rec.Timestamp = clamp(rec.Timestamp, s.screenshots[n-1].Timestamp)
	}
	s.screenshots = append(s.screenshots, *rec)
	return true
}

// nextID reserves a screenshot id. Only the capture loop calls it.
func (s *session) nextID(ts time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := screenshotID(s.taskID, ts, s.seq)
	s.seq++
	return id
}

func (s *session) setRemoteKey(id, key string) (ScreenshotRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.screenshots {
		if s.screenshots[i].ID == id {
			s.screenshots[i].RemoteKey = key
			return s.screenshots[i], true
		}
	}
	return ScreenshotRecord{}, false
}

func (s *session) baseline() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRef
}

func (s *session) setBaseline(ref string) {
	s.mu.Lock()
	s.lastRef = ref
	s.mu.Unlock()
}

// rollupAt builds a rollup from the current counters. Caller holds mu.
func (s *session) rollupAt(ts time.Time, final bool) Rollup {
	r := Rollup{
		ID:             uuid.NewString(),
		Timestamp:      ts,
		Screenshots:    len(s.screenshots),
		KeyboardEvents: len(s.keyboard),
		MouseEvents:    len(s.mouse),
		Final:          final,
	}
	if n := len(s.screenshots); n > 0 {
		r.LastScreenshot = s.screenshots[n-1].FilePath
	}
	if n := len(s.keyboard); n > 0 {
		ev := s.keyboard[n-1]
		r.LastKeypress = &ev
	}
	if n := len(s.mouse); n > 0 {
		ev := s.mouse[n-1]
		r.LastMouseMove = &ev
	}
	if n := len(s.rollups); n > 0 && r.Timestamp.Before(s.rollups[n-1].Timestamp) {
		r.Timestamp = s.rollups[n-1].Timestamp
	}
	return r
}

// appendRollup records a periodic rollup while the session runs.
func (s *session) appendRollup(ts time.Time) ([]Rollup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return nil, false
	}
	s.rollups = append(s.rollups, s.rollupAt(ts, false))
	return append([]Rollup(nil), s.rollups...), true
}

// finalRollup records the closing rollup. Only Stop calls it, after halt.
func (s *session) finalRollup(ts time.Time) (Rollup, []Rollup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rollupAt(ts, true)
	s.rollups = append(s.rollups, r)
	return r, append([]Rollup(nil), s.rollups...)
}

func (s *session) status(now time.Time) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Active:          true,
		TaskID:          s.taskID,
		TaskName:        s.taskName,
		SessionID:       s.corr.SessionID,
		StartTime:       s.startTime,
		ElapsedMinutes:  now.Sub(s.startTime).Minutes(),
		Screenshots:     len(s.screenshots),
		KeyboardEvents:  len(s.keyboard),
		MouseEvents:     len(s.mouse),
		KeyboardWarning: s.keyWarning,
	}
	if n := len(s.screenshots); n > 0 {
		st.LastScreenshot = s.screenshots[n-1].FilePath
	}
	return st
}

func (s *session) summary(end time.Time, final Rollup) *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, len(s.screenshots))
	for i, rec := range s.screenshots {
		paths[i] = rec.FilePath
	}
	return &Summary{
		TaskID:             s.taskID,
		TaskName:           s.taskName,
		SessionID:          s.corr.SessionID,
		TenantID:           s.corr.TenantID,
		ProjectID:          s.corr.ProjectID,
		GitRepoPath:        s.repoPath,
		StartTime:          s.startTime,
		EndTime:            end,
		DurationMs:         end.Sub(s.startTime).Milliseconds(),
		ScreenshotCount:    len(s.screenshots),
		Screenshots:        paths,
		KeyboardEventCount: len(s.keyboard),
		MouseEventCount:    len(s.mouse),
		KeyboardEvents:     append([]InputEvent{}, s.keyboard...),
		MouseEvents:        append([]InputEvent{}, s.mouse...),
		FinalRollup:        final,
		KeyboardWarning:    s.keyWarning,
	}
}

// snapshot returns copies of every collection, for tests and debugging.
func (s *session) snapshot() (shots []ScreenshotRecord, keys, mouse []InputEvent, rollups []Rollup) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ScreenshotRecord(nil), s.screenshots...),
		append([]InputEvent(nil), s.keyboard...),
		append([]InputEvent(nil), s.mouse...),
		append([]Rollup(nil), s.rollups...)
}
