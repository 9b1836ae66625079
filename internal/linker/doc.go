// SPDX-License-Identifier: MPL-2.0

// Package linker implements the link task: it validates link options, builds
// the module finder, resolves the root modules, assembles the resource pool
// and runs the configured plugin stack into an image builder.
//
// It also provides the post-process-only mode, which patches the launchers of
// an existing image, and a watch mode that relinks when the module path
// changes.
package linker
