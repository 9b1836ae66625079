// SPDX-License-Identifier: MPL-2.0

// Package watch provides file-watching with debounced re-execution.
//
// It monitors the locations of a module path, which may be directories or
// single archive files, and invokes a callback after a debounce period.
// Events within the debounce window are coalesced so the callback fires once
// with the full set of changed paths.
package watch
