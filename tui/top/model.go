// Package top is the live session dashboard behind `tracker top`.
package top

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/grovetools/tracker/internal/server"
	"github.com/grovetools/tracker/internal/tracker"
	"github.com/grovetools/tracker/tui/components/table"
	"github.com/grovetools/tracker/tui/theme"
)

// StopFunc stops the session of a task and returns its summary.
type StopFunc func(taskID string) (*tracker.Summary, error)

type keyMap struct {
	Up   key.Binding
	Down key.Binding
	Stop key.Binding
	Quit key.Binding
}

var keys = keyMap{
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Stop: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop session")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

// updateMsg carries one stream frame.
type updateMsg server.StreamUpdate

// closedMsg reports the end of the stream.
type closedMsg struct{}

type stoppedMsg struct {
	summary *tracker.Summary
	err     error
}

// Model is the dashboard state.
type Model struct {
	updates  <-chan server.StreamUpdate
	stop     StopFunc
	now      func() time.Time
	spinner  spinner.Model
	sessions []tracker.ActiveSession
	selected int
	lastSeen time.Time
	status   string
	closed   bool
	width    int
}

// New creates the model reading frames from updates.
func New(updates <-chan server.StreamUpdate, stop StopFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = theme.DefaultTheme.Highlight
	return Model{updates: updates, stop: stop, now: time.Now, spinner: s}
}

// Init starts the spinner and the first stream read.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdate())
}

func (m Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return closedMsg{}
		}
		return updateMsg(u)
	}
}

// Update handles keys, stream frames and stop results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.selected > 0 {
				m.selected--
			}
		case key.Matches(msg, keys.Down):
			if m.selected < len(m.sessions)-1 {
				m.selected++
			}
		case key.Matches(msg, keys.Stop):
			if m.stop == nil || len(m.sessions) == 0 {
				return m, nil
			}
			taskID := m.sessions[m.selected].TaskID
			m.status = fmt.Sprintf("Stopping %s...", taskID)
			stop := m.stop
			return m, func() tea.Msg {
				sum, err := stop(taskID)
				return stoppedMsg{summary: sum, err: err}
			}
		}
		return m, nil

	case updateMsg:
		m.sessions = msg.Sessions
		m.lastSeen = msg.Timestamp
		if m.selected >= len(m.sessions) {
			m.selected = max(len(m.sessions)-1, 0)
		}
		return m, m.waitForUpdate()

	case closedMsg:
		m.closed = true
		m.status = "Daemon connection closed"
		return m, nil

	case stoppedMsg:
		if msg.err != nil {
			m.status = theme.DefaultTheme.Error.Render(msg.err.Error())
		} else {
			m.status = theme.DefaultTheme.Success.Render(fmt.Sprintf("Stopped %s after %s (%d screenshots)",
				msg.summary.TaskID, msg.summary.Duration().Round(time.Second), msg.summary.ScreenshotCount))
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	t := theme.DefaultTheme
	var b strings.Builder

	indicator := m.spinner.View()
	if m.closed {
		indicator = t.Error.Render("●")
	}
	b.WriteString(indicator + " " + theme.RenderHeader("tracker") + " ")
	b.WriteString(t.Muted.Render(fmt.Sprintf("%d active", len(m.sessions))))
	b.WriteString("\n\n")

	if len(m.sessions) == 0 {
		b.WriteString(t.Muted.Render("  No active sessions"))
	} else {
		rows := make([][]string, 0, len(m.sessions))
		now := m.now()
		for _, s := range m.sessions {
			rows = append(rows, []string{
				s.TaskID,
				s.TaskName,
				formatElapsed(now.Sub(s.StartTime)),
				fmt.Sprintf("%d", s.Screenshots),
			})
		}
		b.WriteString(table.SelectableTable([]string{"TASK", "NAME", "ELAPSED", "SHOTS"}, rows, m.selected))
		sel := m.sessions[m.selected]
		b.WriteString("\n")
		b.WriteString(table.StatusTable([][]string{
			{"Session", sel.SessionID},
			{"Started", sel.StartTime.Local().Format("2006-01-02 15:04:05")},
		}))
	}
	b.WriteString("\n\n")

	if m.status != "" {
		b.WriteString(m.status + "\n")
	}
	help := []string{keys.Up.Help().Key + " " + keys.Up.Help().Desc,
		keys.Down.Help().Key + " " + keys.Down.Help().Desc,
		keys.Stop.Help().Key + " " + keys.Stop.Help().Desc,
		keys.Quit.Help().Key + " " + keys.Quit.Help().Desc}
	b.WriteString(t.Muted.Render(strings.Join(help, " • ")))
	return b.String()
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, mnt, s)
	}
	return fmt.Sprintf("%dm%02ds", mnt, s)
}
