// Package profiling times named phases of a command and writes pprof
// profiles on request. Timing is off unless Enable is called, and Start is
// then a no-op.
package profiling

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Stopper ends a timed span.
type Stopper interface {
	Stop()
}

type span struct {
	name     string
	start    time.Time
	duration time.Duration
	children []*span
	profiler *Profiler
	once     sync.Once
}

func (s *span) Stop() {
	s.once.Do(func() { s.profiler.endSpan(s) })
}

// Profiler records nested spans. Spans started while another is open
// become its children.
type Profiler struct {
	mu      sync.Mutex
	enabled bool
	root    *span
	stack   []*span
}

var defaultProfiler = &Profiler{}

// Enable turns on the global profiler. Repeated calls are no-ops.
func Enable() {
	defaultProfiler.enable()
}

// Start opens a span on the global profiler.
func Start(name string) Stopper {
	return defaultProfiler.Start(name)
}

// Summarize writes the global span tree.
func Summarize(w io.Writer) {
	defaultProfiler.Summarize(w)
}

func (p *Profiler) enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return
	}
	p.enabled = true
	p.root = &span{name: "root", start: time.Now(), profiler: p}
	p.stack = []*span{p.root}
}

// Start opens a span; callers defer Stop on the result.
func (p *Profiler) Start(name string) Stopper {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return noopStopper{}
	}
	parent := p.stack[len(p.stack)-1]
	s := &span{name: name, start: time.Now(), profiler: p}
	parent.children = append(parent.children, s)
	p.stack = append(p.stack, s)
	return s
}

func (p *Profiler) endSpan(s *span) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.duration = time.Since(s.start)
	// Pop s and anything opened after it that was never stopped.
	for i := len(p.stack) - 1; i > 0; i-- {
		if p.stack[i] == s {
			p.stack = p.stack[:i]
			return
		}
	}
}

// Summarize writes the span tree with each span's share of the total.
func (p *Profiler) Summarize(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	total := time.Since(p.root.start)
	fmt.Fprintln(w, "--- Timing Profile ---")
	for _, child := range p.root.children {
		printSpan(w, child, 0, total)
	}
}

func printSpan(w io.Writer, s *span, depth int, total time.Duration) {
	pct := 0.0
	if total > 0 {
		pct = float64(s.duration) / float64(total) * 100
	}
	fmt.Fprintf(w, "%s- %s (%v, %.1f%%)\n", strings.Repeat("  ", depth), s.name, s.duration.Round(100*time.Microsecond), pct)
	for _, child := range s.children {
		printSpan(w, child, depth+1, total)
	}
}

type noopStopper struct{}

func (noopStopper) Stop() {}
