// SPDX-License-Identifier: MPL-2.0

// Package plugin runs the transformation stages between pool assembly and
// image writing.
//
// A Stack is an ordered list of Stage values followed by exactly one Sink.
// Stages rewrite a pool into a new pool; the sink consumes the final pool
// and produces the image. Stages may drop, add or reorder entries but never
// change the category of an entry they keep.
//
// The built-in stages are created by name through a Registry, which is how
// the configuration file composes a stack.
package plugin
