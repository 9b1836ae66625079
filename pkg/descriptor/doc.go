// SPDX-License-Identifier: MPL-2.0

// Package descriptor defines the module descriptor: the metadata file
// (module.cue) that every linkable module carries at the root of its
// packaged content.
//
// A descriptor names the module, lists the modules it requires, the
// packages it exports and conceals, an optional main class used to generate
// a launcher, optional operating-system attributes that the base module of
// an image contributes to the release file, and an optional table of
// recorded hashes of other modules.
//
// Descriptors are decoded through pkg/cueutil against an embedded schema and
// then checked by Validate, so a *Descriptor returned by Parse is always
// well-formed.
package descriptor
