// SPDX-License-Identifier: MPL-2.0

// Package image materialises a resource pool as a runnable image directory.
//
// The Builder is the terminal sink of the plugin stack. It derives release
// metadata from the base module, places every pool entry according to its
// category, generates launcher scripts for runnable modules and finally
// promotes the fully written staging directory to the requested location:
//
//	<root>/
//	  bin/       native commands and launchers
//	  conf/      configuration files
//	  lib/       native libraries and the packed module container (modules)
//	  legal/     per-module legal notices
//	  release    KEY="value" metadata, including MODULES
//
// An ExecutableImage is the handle returned by a build, or obtained later
// from an existing image with Open. Its launch arguments can be patched into
// the generated launchers after the fact.
package image
