// SPDX-License-Identifier: MPL-2.0

// Package finder locates modules by name.
//
// A Finder exposes an observable universe of modules: Find looks up a single
// module and FindAll lists every module, sorted by name. Both are free of
// side effects and results are cached, so a Finder can be shared freely once
// constructed.
//
// Three implementations are provided:
//
//   - PathFinder scans an ordered list of filesystem locations. The first
//     location that provides a module name wins.
//   - SystemFinder serves the modules linked into an existing image. It takes
//     its descriptors from the image's pre-computed module table when one is
//     available and falls back to reading the image's packed container.
//   - Of builds a fixed universe from references, used for restricted
//     universes and tests.
package finder
