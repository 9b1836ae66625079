// SPDX-License-Identifier: MPL-2.0

// Package pool holds the content of a resolved module set while it flows
// through the plugin stack.
//
// A Pool is an ordered collection of entries, each addressed by a logical
// path of the form "/<module>/<name>" and tagged with an archive.Category.
// Entry content is drained from module archives exactly once, when the pool
// is assembled; stages then derive new pools from old ones without touching
// the archives again.
package pool
