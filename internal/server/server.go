// Package server exposes the session engine over HTTP on a unix socket.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/grovetools/tracker/errors"
	"github.com/grovetools/tracker/internal/tracker"
)

// DefaultStreamInterval is how often /api/stream pushes the active list.
const DefaultStreamInterval = time.Second

// Tracker is the engine surface the API needs.
type Tracker interface {
	Start(taskID string, opts tracker.StartOptions) (*tracker.StartResult, error)
	Stop(taskID string) (*tracker.Summary, error)
	Status(taskID string) tracker.Status
	ListActive() []tracker.ActiveSession
}

// Server manages the daemon's HTTP server over a Unix socket.
type Server struct {
	logger         *logrus.Entry
	server         *http.Server
	engine         Tracker
	streamInterval time.Duration
	upgrader       websocket.Upgrader

	mu            sync.RWMutex
	runningConfig *RunningConfig
}

// New creates a new Server instance.
func New(logger *logrus.Entry) *Server {
	return &Server{
		logger:         logger,
		streamInterval: DefaultStreamInterval,
	}
}

// SetEngine sets the tracker engine behind the API.
func (s *Server) SetEngine(eng Tracker) {
	s.engine = eng
}

// SetRunningConfig sets the configuration reported by /api/config.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.mu.Lock()
	s.runningConfig = cfg
	s.mu.Unlock()
}

// SetStreamInterval changes the /api/stream push period.
func (s *Server) SetStreamInterval(d time.Duration) {
	if d > 0 {
		s.streamInterval = d
	}
}

// Handler returns the API mux wrapped for cleartext HTTP/2.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathHealth, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc(PathStartTracking, s.handleStart)
	mux.HandleFunc(PathStopTracking, s.handleStop)
	mux.HandleFunc(PathGetStatus, s.handleStatus)
	mux.HandleFunc(PathListActive, s.handleList)
	mux.HandleFunc(PathConfig, s.handleConfig)
	mux.HandleFunc(PathStream, s.handleStream)
	return h2c.NewHandler(mux, &http2.Server{})
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.WithField("addr", l.Addr().String()).Info("Daemon listening")
	err := s.server.Serve(l)
	if stderrors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) ready(w http.ResponseWriter) bool {
	if s.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, Envelope{Error: "engine not initialized", Code: errors.ErrCodeNotRunning})
		return false
	}
	return true
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) || !s.ready(w) {
		return
	}
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	res, err := s.engine.Start(req.TaskID, req.StartOptions)
	if err != nil {
		s.logger.WithField("task_id", req.TaskID).WithError(err).Debug("startTracking rejected")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StartResponse{Envelope: Envelope{Success: true}, StartResult: res})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) || !s.ready(w) {
		return
	}
	var req StopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	summary, err := s.engine.Stop(req.TaskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StopResponse{Envelope: Envelope{Success: true}, Summary: summary})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) || !s.ready(w) {
		return
	}
	taskID := r.URL.Query().Get("taskId")
	if taskID == "" {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "taskId is required"))
		return
	}
	st := s.engine.Status(taskID)
	writeJSON(w, http.StatusOK, StatusResponse{Envelope: Envelope{Success: true}, Status: &st})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) || !s.ready(w) {
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Envelope: Envelope{Success: true}, Sessions: s.engine.ListActive()})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cfg := s.runningConfig
	s.mu.RUnlock()
	if cfg == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleStream upgrades to a websocket and pushes the active session list
// every stream interval until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("Stream upgrade failed")
		return
	}
	defer conn.Close()
	s.logger.Debug("Stream client connected")

	// Reads only serve to notice the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	send := func(kind string) bool {
		update := StreamUpdate{Type: kind, Timestamp: time.Now(), Sessions: s.engine.ListActive()}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(update); err != nil {
			s.logger.WithError(err).Debug("Stream write failed")
			return false
		}
		return true
	}
	if !send("initial") {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			s.logger.Debug("Stream client disconnected")
			return
		case <-ticker.C:
			if !send("active") {
				return
			}
		}
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeJSON(w, http.StatusMethodNotAllowed, Envelope{Error: "method not allowed", Code: errors.ErrCodeInvalidInput})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a typed error to an HTTP status and a failure envelope.
func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeAlreadyRunning:
		status = http.StatusConflict
	case errors.ErrCodeNotRunning:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeConfigInvalid:
		status = http.StatusBadRequest
	}
	msg := err.Error()
	var te *errors.TrackerError
	if stderrors.As(err, &te) {
		msg = te.Message
	}
	if code == "" {
		code = errors.ErrCodeInternal
	}
	writeJSON(w, status, Envelope{Error: msg, Code: code})
}
