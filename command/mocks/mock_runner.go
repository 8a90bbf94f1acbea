package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/grovetools/tracker/command"
)

// MockRunner is a mock implementation of command.Runner for testing.
// RunFunc, when set, answers every call; Calls records each Spec in order.
type MockRunner struct {
	RunFunc func(ctx context.Context, spec command.Spec) (*command.Result, error)

	mu    sync.Mutex
	calls []command.Spec
}

// Run records the call and delegates to RunFunc.
func (m *MockRunner) Run(ctx context.Context, spec command.Spec) (*command.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, spec)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, spec)
	}
	return &command.Result{}, nil
}

// Calls returns a copy of the recorded specs.
func (m *MockRunner) Calls() []command.Spec {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]command.Spec, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallLines returns each recorded call as a space-joined command line.
func (m *MockRunner) CallLines() []string {
	calls := m.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = strings.Join(c.Argv(), " ")
	}
	return lines
}
