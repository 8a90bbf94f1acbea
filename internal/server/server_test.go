package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/tracker/errors"
	"github.com/grovetools/tracker/internal/tracker"
)

// memTracker is a registry-only Tracker.
type memTracker struct {
	mu     sync.Mutex
	active map[string]tracker.StartOptions
}

func newMemTracker() *memTracker {
	return &memTracker{active: make(map[string]tracker.StartOptions)}
}

func (m *memTracker) Start(taskID string, opts tracker.StartOptions) (*tracker.StartResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[taskID]; ok {
		return nil, errors.AlreadyRunning(taskID)
	}
	m.active[taskID] = opts
	return &tracker.StartResult{TaskID: taskID, SessionID: taskID + "-1", StartTime: time.Unix(1, 0).UTC()}, nil
}

func (m *memTracker) Stop(taskID string) (*tracker.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[taskID]; !ok {
		return nil, errors.NotRunning(taskID)
	}
	delete(m.active, taskID)
	return &tracker.Summary{TaskID: taskID, ScreenshotCount: 2}, nil
}

func (m *memTracker) Status(taskID string) tracker.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	opts, ok := m.active[taskID]
	return tracker.Status{Active: ok, TaskID: taskID, TaskName: opts.Name}
}

func (m *memTracker) ListActive() []tracker.ActiveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tracker.ActiveSession, 0, len(m.active))
	for id, opts := range m.active {
		out = append(out, tracker.ActiveSession{TaskID: id, TaskName: opts.Name})
	}
	return out
}

func newTestServer(t *testing.T) (*httptest.Server, *memTracker) {
	t.Helper()
	eng := newMemTracker()
	s := New(logrus.NewEntry(logrus.New()))
	s.SetEngine(eng)
	s.SetStreamInterval(10 * time.Millisecond)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, eng
}

func postJSON(t *testing.T, url string, body interface{}, out interface{}) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestStartAndStopTracking(t *testing.T) {
	srv, eng := newTestServer(t)

	var start StartResponse
	status := postJSON(t, srv.URL+PathStartTracking, StartRequest{
		TaskID:       "task-1",
		StartOptions: tracker.StartOptions{Name: "Docs", SnapshotIntervalMinutes: 5},
	}, &start)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, start.Success)
	require.NotNil(t, start.StartResult)
	assert.Equal(t, "task-1-1", start.SessionID)
	eng.mu.Lock()
	assert.Equal(t, 5.0, eng.active["task-1"].SnapshotIntervalMinutes)
	eng.mu.Unlock()

	var dup StartResponse
	status = postJSON(t, srv.URL+PathStartTracking, StartRequest{TaskID: "task-1"}, &dup)
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, dup.Success)
	assert.Equal(t, errors.ErrCodeAlreadyRunning, dup.Code)
	assert.Contains(t, dup.Error, "task-1")

	var stop StopResponse
	status = postJSON(t, srv.URL+PathStopTracking, StopRequest{TaskID: "task-1"}, &stop)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, stop.Success)
	require.NotNil(t, stop.Summary)
	assert.Equal(t, 2, stop.Summary.ScreenshotCount)

	var again StopResponse
	status = postJSON(t, srv.URL+PathStopTracking, StopRequest{TaskID: "task-1"}, &again)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errors.ErrCodeNotRunning, again.Code)
}

func TestStatusAndList(t *testing.T) {
	srv, eng := newTestServer(t)
	_, err := eng.Start("task-1", tracker.StartOptions{Name: "Docs"})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + PathGetStatus + "?taskId=task-1")
	require.NoError(t, err)
	var st StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.True(t, st.Success)
	assert.True(t, st.Status.Active)
	assert.Equal(t, "Docs", st.Status.TaskName)

	resp, err = http.Get(srv.URL + PathGetStatus)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + PathListActive)
	require.NoError(t, err)
	var list ListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "task-1", list.Sessions[0].TaskID)
}

func TestMethodAndBodyChecks(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + PathStartTracking)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(srv.URL+PathStartTracking, "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errors.ErrCodeInvalidInput, env.Code)
}

func TestConfigEndpoint(t *testing.T) {
	s := New(logrus.NewEntry(logrus.New()))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + PathConfig)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	s.SetRunningConfig(&RunningConfig{SnapshotInterval: time.Minute, PID: 42})
	resp, err = http.Get(srv.URL + PathConfig)
	require.NoError(t, err)
	var cfg RunningConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	resp.Body.Close()
	assert.Equal(t, time.Minute, cfg.SnapshotInterval)
	assert.Equal(t, 42, cfg.PID)
}

func TestStreamPushesActiveSessions(t *testing.T) {
	srv, eng := newTestServer(t)
	_, err := eng.Start("task-1", tracker.StartOptions{})
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + PathStream
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first StreamUpdate
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "initial", first.Type)
	require.Len(t, first.Sessions, 1)

	_, err = eng.Stop("task-1")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var next StreamUpdate
		require.NoError(t, conn.ReadJSON(&next))
		if next.Type == "active" && len(next.Sessions) == 0 {
			break
		}
	}
}
