// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modlink/modlink/internal/linker"
)

func newPatchCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch <image> -- <args...>",
		Short: "Bake launch arguments into the launchers of an image",
		Long: `Rewrite the options line of every launcher of an existing image so that it
passes the given arguments to the runtime. Nothing else in the image changes,
and patching twice with the same arguments is a no-op. Without arguments the
options line is cleared.`,
		Example: `  modlink patch image -- -Xmx1g -Dapp.mode=prod`,
		Args:    cobra.MinimumNArgs(1),
	}
	cmd.RunE = run(app, rootFlags, "patch image", func(cmd *cobra.Command, args []string) error {
		img, err := linker.PostProcess(cmd.Context(), args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Fprintf(app.stdout, "%s Patched launchers of %s\n", successIcon, CmdStyle.Render(img.Home()))
		return nil
	})
	return cmd
}
