// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/modlink/modlink/internal/config"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the modlink command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}

	rootCmd := &cobra.Command{
		Use:   "modlink",
		Short: "Link modules into a runnable image",
		Long: TitleStyle.Render("modlink") + SubtitleStyle.Render(" - module resolver and runtime image linker") + `

modlink resolves a set of root modules against a module path, computes their
transitive closure and writes it as a self-contained image: packed module
content, native libraries, launchers and release metadata.

` + SubtitleStyle.Render("Examples:") + `
  modlink link -p mods --add-modules app --output image
  modlink inspect image
  modlink patch image -- -Xmx1g
  modlink modules -p mods`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(app.logOutput, flags, levelFromConfig(cmd.Context(), app, flags))
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/modlink/config.cue)")

	rootCmd.AddCommand(
		newLinkCommand(app, flags),
		newPatchCommand(app, flags),
		newInspectCommand(app, flags),
		newModulesCommand(app, flags),
		newResolveCommand(app, flags),
		newPackCommand(app, flags),
		newConfigCommand(app, flags),
	)
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the code of the outcome. It is called
// by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			var exitErr *ExitError
			if errors.As(err, &exitErr) {
				return
			}
			fang.DefaultErrorHandler(w, styles, err)
		}),
	)
	os.Exit(int(exitCode(err)))
}

// exitCode maps the error returned by the command tree to an exit code.
// Errors that did not come from a command handler are argument parsing
// errors.
func exitCode(err error) ExitCode {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitBadArgs
}

// run wraps a command handler: failures are rendered once and turned into
// an ExitError, and a panic becomes an abnormal exit.
func run(app *App, flags *rootFlagValues, operation string, fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(app.stderr, "\n%s %s: %v\n", ErrorStyle.Render("Internal error:"), operation, r)
				err = &ExitError{Code: ExitAbnormal, Err: fmt.Errorf("%s: %v", operation, r)}
			}
		}()

		if runErr := fn(cmd, args); runErr != nil {
			code := renderError(app.stderr, operation, runErr, flags.verbose)
			return &ExitError{Code: code, Err: runErr}
		}
		return nil
	}
}

func levelFromConfig(ctx context.Context, app *App, flags *rootFlagValues) config.LogLevel {
	cfg, err := app.loadConfig(ctx, flags)
	if err != nil {
		// Commands that need the configuration report the error themselves.
		return config.LogLevelInfo
	}
	return cfg.Log.Level
}

// setupLogging installs a charm logger as the default logger of both the log
// package and log/slog, so library packages logging through slog render in
// the CLI style.
func setupLogging(w io.Writer, flags *rootFlagValues, level config.LogLevel) *log.Logger {
	lvl, err := log.ParseLevel(string(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	if flags.verbose {
		lvl = log.DebugLevel
	}

	logger := log.NewWithOptions(w, log.Options{Prefix: "modlink", Level: lvl})
	log.SetDefault(logger)
	slog.SetDefault(slog.New(logger))
	return logger
}
