package cmd

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/tracker/cli"
	"github.com/grovetools/tracker/logging"
	"github.com/grovetools/tracker/pkg/paths"
)

// PathsOutput lists the locations tracker reads and writes.
type PathsOutput struct {
	ConfigDir  string `json:"config_dir"`
	DataDir    string `json:"data_dir"`
	StateDir   string `json:"state_dir"`
	RuntimeDir string `json:"runtime_dir"`
	Socket     string `json:"socket"`
	PidFile    string `json:"pid_file"`
	HistoryDB  string `json:"history_db"`
	LogDir     string `json:"log_dir"`
}

// NewPathsCmd prints the resolved XDG paths.
func NewPathsCmd() *cobra.Command {
	cmd := cli.NewStandardCommand("paths", "Print the paths used by tracker")
	cmd.Long = `Print the XDG-compliant paths used by tracker.

Setting TRACKER_HOME moves every directory under a single root.

- config_dir: global tracker.yml
- data_dir: captured artifacts (unless storage.root is set)
- state_dir: logs and the session history database
- runtime_dir: daemon socket and pid file`
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		output := PathsOutput{
			ConfigDir:  paths.ConfigDir(),
			DataDir:    paths.DataDir(),
			StateDir:   paths.StateDir(),
			RuntimeDir: paths.RuntimeDir(),
			Socket:     socketPath(cmd),
			PidFile:    paths.PidFilePath(),
			HistoryDB:  paths.HistoryDBPath(),
			LogDir:     paths.LogDir(),
		}
		if cli.GetOptions(cmd).JSONOutput {
			return printJSON(cmd.OutOrStdout(), output)
		}

		out := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
		out.Path("Config", output.ConfigDir)
		out.Path("Data", output.DataDir)
		out.Path("State", output.StateDir)
		out.Path("Runtime", output.RuntimeDir)
		out.Path("Socket", output.Socket)
		out.Path("Pid file", output.PidFile)
		out.Path("History", output.HistoryDB)
		out.Path("Logs", output.LogDir)
		return nil
	}
	return cmd
}
