// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/modlink/modlink/internal/config"
	"github.com/modlink/modlink/internal/linker"
)

// linkFlagValues holds the flags of the link command.
type linkFlagValues struct {
	modulePath   string
	addModules   []string
	limitModules []string
	output       string
	baseModule   string
	runtime      string
	launcherArgs []string
	keepPackaged string
	saveOpts     string
	parallelism  int
	watch        bool
}

func newLinkCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &linkFlagValues{}

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link modules into an image",
		Long: `Resolve the root modules against the module path and write their closure
as a runnable image.

The module path is a list of locations separated by the host list separator.
A location is an exploded module directory, a packed module (` + CmdStyle.Render(".lmod") + `), a zip or
jar file with ` + CmdStyle.Render("module.cue") + ` at its root, or a directory of such modules. The first
location providing a module wins.`,
		Example: `  # Link the app module and its requirements
  modlink link -p mods:libs --add-modules app --output image

  # Restrict the universe to the closure of base, bake launcher options
  modlink link -p mods --add-modules app --limit-modules base --launcher-args=-Xmx1g -o image

  # Relink whenever the module path changes
  modlink link -p mods --add-modules app -o image --watch`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = run(app, rootFlags, "link image", func(cmd *cobra.Command, _ []string) error {
		cfg, err := app.loadConfig(cmd.Context(), rootFlags)
		if err != nil {
			return err
		}
		opts := flags.options(cmd.Flags(), cfg)

		if flags.watch {
			fmt.Fprintf(app.stdout, "%s Watching %s (Ctrl+C to stop)\n", arrowIcon, strings.Join(opts.ModulePath, ", "))
			return linker.Watch(cmd.Context(), opts, cfg.Watch.Debounce, func(res *linker.Result, err error) {
				if err != nil {
					renderError(app.stderr, "link image", err, rootFlags.verbose)
					return
				}
				printLinkResult(app.stdout, res)
			})
		}

		res, err := linker.Link(cmd.Context(), opts)
		if err != nil {
			return err
		}
		printLinkResult(app.stdout, res)
		return nil
	})

	f := cmd.Flags()
	f.StringVarP(&flags.modulePath, "module-path", "p", "", "module locations, separated by the host list separator")
	f.StringSliceVar(&flags.addModules, "add-modules", nil, "root modules to link (comma-separated)")
	f.StringSliceVar(&flags.limitModules, "limit-modules", nil, "limit the observable modules to the closure of these")
	f.StringVarP(&flags.output, "output", "o", "", "image directory to create")
	f.StringVar(&flags.baseModule, "base-module", "", "module supplying the release attributes")
	f.StringVar(&flags.runtime, "runtime", "", "executable in bin/ started by the launchers")
	f.StringArrayVar(&flags.launcherArgs, "launcher-args", nil, "argument baked into every launcher (repeatable)")
	f.StringVar(&flags.keepPackaged, "keep-packaged-modules", "", "copy the selected module archives to this new directory")
	f.StringVar(&flags.saveOpts, "save-opts", "", "write the link command line to this file")
	f.IntVar(&flags.parallelism, "parallelism", 0, "maximum concurrent file writes (default GOMAXPROCS)")
	f.BoolVar(&flags.watch, "watch", false, "relink when the module path changes")

	return cmd
}

// options merges the flags over the configuration. A flag that was set
// always wins.
func (f *linkFlagValues) options(fs *pflag.FlagSet, cfg *config.Config) linker.Options {
	opts := linker.Options{
		ModulePath:          cfg.ModulePath,
		AddModules:          f.addModules,
		LimitModules:        f.limitModules,
		Output:              cfg.Output,
		BaseModule:          cfg.BaseModule,
		Runtime:             cfg.Launcher.Runtime,
		LaunchArgs:          cfg.Launcher.Args,
		KeepPackagedModules: f.keepPackaged,
		SaveOpts:            f.saveOpts,
		CommandLine:         commandLine("link", fs),
		Stages:              cfg.Plugins,
		Parallelism:         f.parallelism,
	}
	if fs.Changed("module-path") {
		opts.ModulePath = linker.SplitModulePath(f.modulePath)
	}
	if fs.Changed("output") {
		opts.Output = f.output
	}
	if fs.Changed("base-module") {
		opts.BaseModule = f.baseModule
	}
	if fs.Changed("runtime") {
		opts.Runtime = f.runtime
	}
	if fs.Changed("launcher-args") {
		opts.LaunchArgs = f.launcherArgs
	}
	return opts
}

// commandLine reconstructs the invocation from the flags that were set, in
// flag name order.
func commandLine(name string, fs *pflag.FlagSet) []string {
	args := []string{name}
	fs.Visit(func(f *pflag.Flag) {
		switch v := f.Value.(type) {
		case pflag.SliceValue:
			if f.Value.Type() == "stringSlice" {
				args = append(args, "--"+f.Name, strings.Join(v.GetSlice(), ","))
				return
			}
			for _, item := range v.GetSlice() {
				args = append(args, "--"+f.Name, item)
			}
		default:
			if f.Value.Type() == "bool" {
				args = append(args, "--"+f.Name)
				return
			}
			args = append(args, "--"+f.Name, f.Value.String())
		}
	})
	return args
}

func printLinkResult(w io.Writer, res *linker.Result) {
	fmt.Fprintf(w, "%s Linked %d module(s) into %s\n",
		successIcon, len(res.Graph.Names()), CmdStyle.Render(res.Image.Home()))
	for _, name := range res.Graph.Order() {
		fmt.Fprintf(w, "  %s %s\n", infoIcon, name)
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintf(w, "%s %d entries skipped, see the log above\n", WarningStyle.Render("!"), len(res.Warnings))
	}
	for _, kept := range res.Kept {
		fmt.Fprintf(w, "  %s kept %s\n", arrowIcon, kept)
	}
}
