package tracker

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// taskGroup runs detached work (uploads, final diffs) whose failures go to
// the logger instead of back to a caller. Wait returns once nothing is in
// flight. Unlike a WaitGroup, Go may be called while Wait is blocked.
type taskGroup struct {
	logger *logrus.Entry

	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

func newTaskGroup(logger *logrus.Entry) *taskGroup {
	idle := make(chan struct{})
	close(idle)
	return &taskGroup{logger: logger, idle: idle}
}

// Go runs fn on its own goroutine. A returned error is logged with name.
func (g *taskGroup) Go(name string, fields logrus.Fields, fn func() error) {
	g.mu.Lock()
	if g.pending == 0 {
		g.idle = make(chan struct{})
	}
	g.pending++
	g.mu.Unlock()

	go func() {
		defer g.done()
		defer func() {
			if r := recover(); r != nil {
				g.logger.WithFields(fields).WithField("panic", r).Errorf("Detached %s panicked", name)
			}
		}()
		if err := fn(); err != nil {
			g.logger.WithFields(fields).WithError(err).Warnf("Detached %s failed", name)
		}
	}()
}

func (g *taskGroup) done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending--
	if g.pending == 0 {
		close(g.idle)
	}
}

// Pending reports how many tasks are in flight.
func (g *taskGroup) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Wait blocks until no task is in flight or ctx ends.
func (g *taskGroup) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		idle := g.idle
		g.mu.Unlock()

		select {
		case <-idle:
			// A task started between close and re-read keeps us waiting.
			if g.Pending() == 0 {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
