// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modlink/modlink/internal/linker"
	"github.com/modlink/modlink/pkg/finder"
	"github.com/modlink/modlink/pkg/resolve"
)

func newResolveCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var (
		modulePath   string
		addModules   []string
		limitModules []string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the resolved module graph without linking",
		Long: `Resolve the root modules exactly as link would and print every selected
module, dependencies first, with its requirements and location.`,
		Example: `  modlink resolve -p mods --add-modules app --limit-modules base`,
		Args:    cobra.NoArgs,
	}
	cmd.RunE = run(app, rootFlags, "resolve modules", func(cmd *cobra.Command, _ []string) error {
		paths := linker.SplitModulePath(modulePath)
		if len(paths) == 0 {
			cfg, err := app.loadConfig(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}
			paths = cfg.ModulePath
		}
		f, err := finder.OfPaths(paths...)
		if err != nil {
			return err
		}
		g, err := resolve.Resolve(f, addModules, limitModules, addModules)
		if err != nil {
			return err
		}

		for _, name := range g.Order() {
			ref, _ := g.Find(name)
			line := CmdStyle.Render(name)
			if req := g.Requires(name); len(req) > 0 {
				line += " " + arrowIcon + " " + strings.Join(req, ", ")
			}
			fmt.Fprintf(app.stdout, "%s\n    %s\n", line, SubtitleStyle.Render(ref.Location()))
		}
		return nil
	})

	f := cmd.Flags()
	f.StringVarP(&modulePath, "module-path", "p", "", "module locations, separated by the host list separator")
	f.StringSliceVar(&addModules, "add-modules", nil, "root modules (comma-separated)")
	f.StringSliceVar(&limitModules, "limit-modules", nil, "limit the observable modules to the closure of these")
	return cmd
}
