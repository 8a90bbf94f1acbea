// Package input observes global keyboard and mouse activity.
//
// Keyboard events come from a single process-wide OS hook that is shared by
// every tracked session. Mouse activity is sampled by polling the cursor
// position.
package input

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/tracker/errors"
)

// KeyEvent is one key-down transition.
type KeyEvent struct {
	Key  string
	Time time.Time
}

// KeyListener receives key-down events. It runs on the backend's goroutine
// and must not block.
type KeyListener func(KeyEvent)

// Backend is an OS-level keyboard hook.
type Backend interface {
	// Start begins delivering key-down events to emit. It returns once the
	// hook is installed or has failed.
	Start(emit func(KeyEvent)) error
	// Stop removes the hook. It is called at most once, after a successful Start.
	Stop() error
}

// BackendFactory creates the platform backend on first use.
type BackendFactory func() (Backend, error)

// Subscription identifies a registered listener.
type Subscription uint64

// Hook multiplexes one keyboard Backend out to any number of listeners.
//
// The backend is started lazily by the first Subscribe and torn down only by
// Close; Unsubscribe just drops the listener. A start failure is logged once
// as a warning and returned to every later Subscribe; listeners stay
// registered but never fire.
type Hook struct {
	factory BackendFactory
	logger  *logrus.Entry

	mu        sync.Mutex
	backend   Backend
	started   bool
	startErr  error
	closed    bool
	listeners map[Subscription]KeyListener
	nextID    Subscription
}

// NewHook creates a Hook that builds its backend with factory.
func NewHook(factory BackendFactory, logger *logrus.Entry) *Hook {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hook{
		factory:   factory,
		logger:    logger,
		listeners: make(map[Subscription]KeyListener),
	}
}

// NewPlatformHook creates a Hook backed by this platform's keyboard backend.
func NewPlatformHook(logger *logrus.Entry) *Hook {
	return NewHook(newPlatformBackend, logger)
}

// Subscribe registers l. The returned error, when non-nil, means the
// keyboard backend is unavailable and l will receive nothing.
func (h *Hook) Subscribe(l KeyListener) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, errors.New(errors.ErrCodeNotRunning, "keyboard hook is closed")
	}

	h.nextID++
	id := h.nextID
	h.listeners[id] = l

	if !h.started {
		h.started = true
		h.startErr = h.start()
		if h.startErr != nil {
			h.logger.WithError(h.startErr).Warn("Keyboard hook unavailable; keyboard events will not be recorded")
		} else {
			h.logger.Debug("Keyboard hook started")
		}
	}
	return id, h.startErr
}

// start runs with h.mu held.
func (h *Hook) start() error {
	backend, err := h.factory()
	if err != nil {
		return err
	}
	if err := backend.Start(h.dispatch); err != nil {
		return err
	}
	h.backend = backend
	return nil
}

// Unsubscribe drops a listener. Unknown ids are ignored.
func (h *Hook) Unsubscribe(id Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, id)
}

// ListenerCount reports the number of registered listeners.
func (h *Hook) ListenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Close tears the backend down. Only the first call does anything.
func (h *Hook) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	backend := h.backend
	h.backend = nil
	h.listeners = make(map[Subscription]KeyListener)
	h.mu.Unlock()

	if backend == nil {
		return nil
	}
	h.logger.Debug("Stopping keyboard hook")
	return backend.Stop()
}

func (h *Hook) dispatch(ev KeyEvent) {
	h.mu.Lock()
	listeners := make([]KeyListener, 0, len(h.listeners))
	for _, l := range h.listeners {
		listeners = append(listeners, l)
	}
	h.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}
