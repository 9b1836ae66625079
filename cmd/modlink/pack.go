// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modlink/modlink/pkg/archive"
)

func newPackCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "pack <module-dir>",
		Short: "Create a packed module from an exploded module directory",
		Long: `Write an exploded module directory as a packed module (` + CmdStyle.Render(".lmod") + `).

Files under native/, bin/, conf/ and legal/ keep their section and are placed
in the matching image directory when linked; everything else is packaged
content.`,
		Example: `  modlink pack mods/app
  modlink pack mods/app -o dist/app.lmod`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = run(app, rootFlags, "pack module", func(_ *cobra.Command, args []string) error {
		path, err := archive.Pack(args[0], output)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.stdout, "%s Packed %s\n", successIcon, CmdStyle.Render(path))
		return nil
	})
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <module>.lmod in the current directory)")
	return cmd
}
