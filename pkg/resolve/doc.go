// SPDX-License-Identifier: MPL-2.0

// Package resolve computes the set of modules an image needs: the
// transitive closure of a set of root modules over their requires, taken
// from a finder's observable universe and optionally restricted by a limit
// set.
package resolve
