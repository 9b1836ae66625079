// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/modlink/modlink/pkg/image"
)

func newInspectCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <image>",
		Short: "Show the modules and release attributes of an image",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = run(app, rootFlags, "inspect image", func(_ *cobra.Command, args []string) error {
		img, err := image.Open(args[0])
		if err != nil {
			return err
		}
		props, err := image.ReadRelease(filepath.Join(img.Home(), image.ReleaseFile))
		if err != nil {
			return err
		}

		fmt.Fprintln(app.stdout, TitleStyle.Render("Image"))
		fmt.Fprintf(app.stdout, "%s: %s\n", CmdStyle.Render("home"), img.Home())
		fmt.Fprintf(app.stdout, "%s: %s\n", CmdStyle.Render("platform"), img.Platform())
		fmt.Fprintln(app.stdout)

		fmt.Fprintln(app.stdout, TitleStyle.Render("Modules"))
		for _, m := range img.Modules() {
			fmt.Fprintf(app.stdout, "  %s %s\n", infoIcon, m)
		}
		fmt.Fprintln(app.stdout)

		fmt.Fprintln(app.stdout, TitleStyle.Render("Release"))
		for _, k := range slices.Sorted(maps.Keys(props)) {
			fmt.Fprintf(app.stdout, "%s=%s\n", CmdStyle.Render(k), props[k])
		}
		return nil
	})
	return cmd
}
