// Package cmd wires the tracker subcommands onto the root cobra command.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/grovetools/tracker/cli"
	"github.com/grovetools/tracker/internal/client"
	"github.com/grovetools/tracker/pkg/paths"
	"github.com/grovetools/tracker/pkg/profiling"
	"github.com/grovetools/tracker/starship"
)

// NewRootCmd assembles the tracker command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand("tracker", "Track work sessions with screenshots, input activity and git diffs")
	root.Long = `Track work sessions with screenshots, input activity and git diffs.

A long-running daemon owns the sessions; the other commands talk to it over
a unix socket.

Examples:
  # run the daemon in the foreground
  tracker daemon start

  # track a task, diffing the current repository every 5 minutes
  tracker start TASK-42 --name "Fix login" --repo . --interval 5m

  # stop it and print the summary
  tracker stop TASK-42`

	root.AddCommand(
		NewDaemonCmd(),
		NewStartCmd(),
		NewStopCmd(),
		NewStatusCmd(),
		NewListCmd(),
		NewHistoryCmd(),
		NewTopCmd(),
		NewLogsCmd(),
		NewConfigCmd(),
		NewPathsCmd(),
		starship.NewStarshipCmd("tracker", promptStatus),
		cli.NewVersionCommand("tracker"),
	)
	profiling.NewCobraProfiler().Attach(root)
	return root
}

// socketPath is the configured daemon socket, falling back to the XDG
// runtime location when no configuration can be loaded.
func socketPath(cmd *cobra.Command) string {
	if cfg, err := cli.LoadConfig(cmd); err == nil && cfg.Server.Socket != "" {
		return cfg.Server.Socket
	}
	return paths.SocketPath()
}

func connect(cmd *cobra.Command) (*client.Client, error) {
	return client.Connect(socketPath(cmd))
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
