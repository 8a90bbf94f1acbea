package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/tracker/cli"
	"github.com/grovetools/tracker/config"
	"github.com/grovetools/tracker/logging"
)

// NewConfigCmd groups the configuration inspection commands.
func NewConfigCmd() *cobra.Command {
	cmd := cli.NewStandardCommand("config", "Inspect tracker configuration")
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigLayersCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigSchemaCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := cli.NewStandardCommand("show", "Print the merged configuration with defaults applied")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(cmd)
		if err != nil {
			return err
		}
		if cli.GetOptions(cmd).JSONOutput {
			return printJSON(cmd.OutOrStdout(), cfg)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal configuration: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	}
	return cmd
}

func newConfigLayersCmd() *cobra.Command {
	cmd := cli.NewStandardCommand("layers", "Show which files make up the configuration")
	cmd.Long = `Shows the files merged into the final configuration, lowest precedence first:
1. Global config ({config_dir}/tracker.yml)
2. Project config (tracker.yml found walking up from the current directory)
3. Override files (tracker.override.yml next to the project config)`
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		layers := config.FindLayers(cwd)
		if cli.GetOptions(cmd).JSONOutput {
			return printJSON(cmd.OutOrStdout(), layers)
		}
		out := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
		if len(layers) == 0 {
			out.Warn("No configuration files found")
			return nil
		}
		for _, layer := range layers {
			out.Path(string(layer.Source), layer.Path)
		}
		return nil
	}
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	cmd := cli.NewStandardCommand("validate", "Validate the configuration against its schema")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if _, err := cli.LoadConfig(cmd); err != nil {
			return err
		}
		logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Configuration is valid")
		return nil
	}
	return cmd
}

func newConfigSchemaCmd() *cobra.Command {
	cmd := cli.NewStandardCommand("schema", "Print the JSON Schema of tracker.yml")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		data, err := config.GenerateSchema()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	return cmd
}
