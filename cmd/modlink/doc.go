// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for modlink.
//
// This package implements the Cobra command hierarchy of the modlink CLI: the
// link command and its post-process-only counterpart, inspection of images
// and module paths, module packing and configuration management.
package cmd
