package tracker

import (
	"context"
	"time"

	"github.com/grovetools/tracker/internal/input"
)

func (e *Engine) mouseLoop(ctx context.Context, s *session) {
	defer s.loops.Done()
	ticker := e.deps.NewTicker(s.opts.MousePollInterval)
	defer ticker.Stop()

	w := &input.MouseWatcher{
		Poller:  e.deps.MousePoller,
		Running: s.running.Load,
		OnMove: func(p input.Point, _ time.Time) {
			s.appendMouse(p, e.deps.Now())
		},
		Logger: e.logger.WithField("task_id", s.taskID),
	}
	w.Run(ctx, ticker.C())
}

// subscribeKeyboard attaches s to the shared hook. The listener closes over
// s alone; the hook fans every key-down out to all sessions.
func (e *Engine) subscribeKeyboard(s *session) {
	id, err := e.deps.Hook.Subscribe(func(ev input.KeyEvent) {
		ts := ev.Time
		if ts.IsZero() {
			ts = e.deps.Now()
		}
		s.appendKey(ev.Key, ts)
	})

	s.mu.Lock()
	if err != nil {
		// The listener stays registered but the backend will never feed it.
		s.keyWarning = err.Error()
		if id == 0 {
			s.mu.Unlock()
			return
		}
	}
	if !s.running.Load() {
		// Stop ran while we were subscribing and found nothing to undo.
		s.mu.Unlock()
		e.deps.Hook.Unsubscribe(id)
		return
	}
	s.keySub = id
	s.keySubscribed = true
	s.mu.Unlock()
}

func (e *Engine) unsubscribeKeyboard(s *session) {
	s.mu.Lock()
	id, ok := s.keySub, s.keySubscribed
	s.keySubscribed = false
	s.mu.Unlock()
	if ok {
		e.deps.Hook.Unsubscribe(id)
	}
}
