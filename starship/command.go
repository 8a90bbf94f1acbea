// Package starship installs and serves a Starship prompt module showing the
// tasks currently being tracked.
package starship

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// StatusFunc produces the prompt segment. An empty string hides the module.
type StatusFunc func(cmd *cobra.Command) (string, error)

const moduleHeader = "[custom.tracker]"

// NewStarshipCmd creates the starship command. binaryName is written into
// starship.toml as the command starship runs on each prompt.
func NewStarshipCmd(binaryName string, status StatusFunc) *cobra.Command {
	starshipCmd := &cobra.Command{
		Use:   "starship",
		Short: "Manage Starship prompt integration",
		Long:  `Shows the actively tracked task in the Starship prompt.`,
	}

	var configPath string
	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Add the tracker module to starship.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("could not get home directory: %w", err)
				}
				path = filepath.Join(home, ".config", "starship.toml")
			}
			return install(cmd.OutOrStdout(), path, binaryName)
		},
	}
	installCmd.Flags().StringVar(&configPath, "config-path", "", "starship.toml to edit (default: ~/.config/starship.toml)")

	statusCmd := &cobra.Command{
		Use:    "status",
		Short:  "Print the prompt segment (run by starship)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Runs on every prompt: never fail loudly.
			if status == nil {
				return nil
			}
			out, err := status(cmd)
			if err != nil || out == "" {
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	starshipCmd.AddCommand(installCmd, statusCmd)
	return starshipCmd
}

func install(w io.Writer, configPath, binaryName string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("starship config not found at %s; install and configure starship first", configPath)
		}
		return fmt.Errorf("could not read starship config: %w", err)
	}

	content, notes := addModule(string(data), binaryName)
	for _, n := range notes {
		fmt.Fprintln(w, n)
	}
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write updated starship config: %w", err)
	}
	fmt.Fprintf(w, "Updated %s. Restart your shell to see the changes.\n", configPath)
	return nil
}

// addModule adds or refreshes the [custom.tracker] section and puts it in the
// prompt format after $git_metrics when that anchor exists.
func addModule(content, binaryName string) (string, []string) {
	var notes []string
	module := fmt.Sprintf(`
%s
description = "Shows the actively tracked task"
command = "%s starship status"
when = "true"
format = " $output "
`, moduleHeader, binaryName)

	if start := strings.Index(content, moduleHeader); start >= 0 {
		end := len(content)
		if next := strings.Index(content[start+1:], "\n["); next >= 0 {
			end = start + 1 + next + 1
		}
		content = content[:start] + strings.TrimPrefix(module, "\n") + content[end:]
		notes = append(notes, "✓ Updated the existing tracker module.")
	} else {
		content += module
		notes = append(notes, "✓ Added "+moduleHeader+" to the starship config.")
	}

	switch {
	case strings.Contains(content, "${custom.tracker}") || strings.Contains(content, "$custom.tracker"):
		notes = append(notes, "✓ Tracker module already in the starship format.")
	case strings.Contains(content, "$git_metrics\\"):
		content = strings.Replace(content, "$git_metrics\\", "$git_metrics\\\n${custom.tracker}\\", 1)
		notes = append(notes, "✓ Added the tracker module to the starship format.")
	default:
		notes = append(notes, "! Add '${custom.tracker}' to the 'format' string manually.")
	}
	return content, notes
}
