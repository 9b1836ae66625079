// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modlink/modlink/internal/config"
)

// newConfigCommand creates the `modlink config` command tree.
func newConfigCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage modlink configuration",
		Long: `Manage modlink configuration.

Configuration is read from, in order of precedence:
  - the file given with --config
  - ./modlink.cue in the working directory
  - Linux: ~/.config/modlink/config.cue
  - macOS: ~/Library/Application Support/modlink/config.cue
  - Windows: %APPDATA%\modlink\config.cue

MODLINK_* environment variables override file values.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		Args:  cobra.NoArgs,
	}
	showCmd.RunE = run(app, rootFlags, "load configuration", func(cmd *cobra.Command, _ []string) error {
		cfg, path, err := config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: rootFlags.configPath})
		if err != nil {
			return err
		}
		content, err := config.GenerateCUE(cfg)
		if err != nil {
			return err
		}
		if path == "" {
			path = SubtitleStyle.Render("(using defaults)")
		}
		fmt.Fprintf(app.stdout, "%s: %s\n\n", CmdStyle.Render("Config file"), path)
		fmt.Fprint(app.stdout, content)
		return nil
	})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
	}
	initCmd.RunE = run(app, rootFlags, "create configuration", func(_ *cobra.Command, _ []string) error {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		path, created, err := config.CreateDefaultConfig(dir)
		if err != nil {
			return err
		}
		if !created {
			fmt.Fprintf(app.stdout, "%s Config file already exists: %s\n", infoIcon, path)
			return nil
		}
		fmt.Fprintf(app.stdout, "%s Created %s\n", successIcon, CmdStyle.Render(path))
		return nil
	})

	cfgCmd.AddCommand(showCmd, initCmd)
	return cfgCmd
}
