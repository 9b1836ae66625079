// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/modlink/modlink/internal/linker"
	"github.com/modlink/modlink/pkg/finder"
)

var errModulesSource = errors.New("exactly one of --module-path and --image is required")

func newModulesCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var (
		modulePath      string
		imageHome       string
		disableFastPath bool
	)

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List the modules of a module path or an image",
		Example: `  modlink modules -p mods:libs
  modlink modules --image image --disable-fast-path`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = run(app, rootFlags, "list modules", func(cmd *cobra.Command, _ []string) error {
		if (modulePath == "") == (imageHome == "") {
			return fmt.Errorf("%w: %w", linker.ErrInvalidOptions, errModulesSource)
		}

		var f finder.Finder
		if modulePath != "" {
			pf, err := finder.OfPaths(linker.SplitModulePath(modulePath)...)
			if err != nil {
				return err
			}
			f = pf
		} else {
			if !cmd.Flags().Changed("disable-fast-path") {
				cfg, err := app.loadConfig(cmd.Context(), rootFlags)
				if err != nil {
					return err
				}
				disableFastPath = cfg.FastPath.Disabled
			}
			tables := finder.NewModuleTableService(filepath.Join(imageHome, finder.TableFile), disableFastPath)
			sf, err := finder.NewSystemFinder(imageHome, tables)
			if err != nil {
				return err
			}
			if sf.FastPath() {
				fmt.Fprintf(app.stdout, "%s read from the module table\n", SubtitleStyle.Render("modules"))
			}
			f = sf
		}

		printModules(app.stdout, f.FindAll())
		return nil
	})

	f := cmd.Flags()
	f.StringVarP(&modulePath, "module-path", "p", "", "module locations, separated by the host list separator")
	f.StringVar(&imageHome, "image", "", "list the modules linked into this image")
	f.BoolVar(&disableFastPath, "disable-fast-path", false, "read descriptors from the module container even when a module table exists")
	return cmd
}

func printModules(w io.Writer, refs []*finder.Reference) {
	for _, ref := range refs {
		name := ref.Name()
		if v := ref.Descriptor().Version; v != "" {
			name += "@" + v
		}
		fmt.Fprintf(w, "%s %s\n", CmdStyle.Render(name), SubtitleStyle.Render(ref.Location()))
	}
}
