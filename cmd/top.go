package cmd

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/grovetools/tracker/cli"
	"github.com/grovetools/tracker/internal/tracker"
	"github.com/grovetools/tracker/tui/top"
)

// NewTopCmd opens the live session dashboard.
func NewTopCmd() *cobra.Command {
	cmd := cli.NewStandardCommand("top", "Live dashboard of active sessions")
	cmd.Long = `Shows the daemon's active sessions, refreshed every second.

Keys: ↑/↓ select, s stops the selected session, q quits.`
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		updates, err := c.Stream(ctx)
		if err != nil {
			return err
		}
		stop := func(taskID string) (*tracker.Summary, error) {
			return c.Stop(ctx, taskID)
		}

		p := tea.NewProgram(top.New(updates, stop), tea.WithAltScreen(), tea.WithContext(ctx))
		_, err = p.Run()
		return err
	}
	return cmd
}
