// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/modlink/modlink/cmd/modlink"

func main() {
	cmd.Execute()
}
