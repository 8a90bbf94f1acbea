package input

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/tracker/errors"
)

type fakeBackend struct {
	mu       sync.Mutex
	emit     func(KeyEvent)
	startErr error
	starts   int32
	stops    int32
}

func (f *fakeBackend) Start(emit func(KeyEvent)) error {
	atomic.AddInt32(&f.starts, 1)
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.emit = emit
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) Stop() error {
	atomic.AddInt32(&f.stops, 1)
	return nil
}

func (f *fakeBackend) press(key string) {
	f.mu.Lock()
	emit := f.emit
	f.mu.Unlock()
	emit(KeyEvent{Key: key, Time: time.Now()})
}

func newTestHook(b *fakeBackend) (*Hook, *test.Hook) {
	logger, logs := test.NewNullLogger()
	h := NewHook(func() (Backend, error) { return b, nil }, logrus.NewEntry(logger))
	return h, logs
}

func TestHookStartsLazilyOnce(t *testing.T) {
	b := &fakeBackend{}
	h, _ := newTestHook(b)
	assert.Equal(t, int32(0), atomic.LoadInt32(&b.starts))

	_, err := h.Subscribe(func(KeyEvent) {})
	require.NoError(t, err)
	_, err = h.Subscribe(func(KeyEvent) {})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&b.starts))
	assert.Equal(t, 2, h.ListenerCount())
}

func TestHookFansOutToListeners(t *testing.T) {
	b := &fakeBackend{}
	h, _ := newTestHook(b)

	var a, c []string
	var mu sync.Mutex
	idA, err := h.Subscribe(func(ev KeyEvent) { mu.Lock(); a = append(a, ev.Key); mu.Unlock() })
	require.NoError(t, err)
	_, err = h.Subscribe(func(ev KeyEvent) { mu.Lock(); c = append(c, ev.Key); mu.Unlock() })
	require.NoError(t, err)

	b.press("A")
	h.Unsubscribe(idA)
	b.press("B")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A"}, a)
	assert.Equal(t, []string{"A", "B"}, c)
	assert.Equal(t, 1, h.ListenerCount())
	assert.Equal(t, int32(0), atomic.LoadInt32(&b.stops), "unsubscribe never tears the hook down")
}

func TestHookCloseTearsDownOnce(t *testing.T) {
	b := &fakeBackend{}
	h, _ := newTestHook(b)

	_, err := h.Subscribe(func(KeyEvent) {})
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.stops))
	assert.Equal(t, 0, h.ListenerCount())

	_, err = h.Subscribe(func(KeyEvent) {})
	assert.True(t, errors.Is(err, errors.ErrCodeNotRunning))
}

func TestHookCloseWithoutStart(t *testing.T) {
	b := &fakeBackend{}
	h, _ := newTestHook(b)
	require.NoError(t, h.Close())
	assert.Equal(t, int32(0), atomic.LoadInt32(&b.stops))
}

func TestHookStartFailureWarnsOnce(t *testing.T) {
	b := &fakeBackend{startErr: errors.New(errors.ErrCodePermissionDenied, "no access")}
	h, logs := newTestHook(b)

	for i := 0; i < 3; i++ {
		_, err := h.Subscribe(func(KeyEvent) {})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCodePermissionDenied))
	}

	warnings := 0
	for _, e := range logs.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.starts))

	// A failed start leaves nothing to tear down
	require.NoError(t, h.Close())
	assert.Equal(t, int32(0), atomic.LoadInt32(&b.stops))
}

func TestHookFactoryError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := NewHook(func() (Backend, error) { return nil, fmt.Errorf("unsupported") }, logrus.NewEntry(logger))
	_, err := h.Subscribe(func(KeyEvent) {})
	assert.Error(t, err)
}

func TestHookConcurrentSubscribe(t *testing.T) {
	b := &fakeBackend{}
	h, _ := newTestHook(b)

	var wg sync.WaitGroup
	ids := make(chan Subscription, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := h.Subscribe(func(KeyEvent) {})
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[Subscription]bool{}
	for id := range ids {
		assert.False(t, seen[id], "ids are unique")
		seen[id] = true
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.starts))
	assert.Equal(t, 50, h.ListenerCount())
}
