// SPDX-License-Identifier: MPL-2.0

// Package platform holds checks for target platforms that differ from the
// host the linker runs on.
package platform

import "strings"

// windowsReservedNames cannot be used as file names on Windows, with or
// without an extension.
var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// IsWindowsReservedName reports whether a single file name is reserved on
// Windows. Only the part before the first dot is significant.
func IsWindowsReservedName(name string) bool {
	base, _, _ := strings.Cut(name, ".")
	return windowsReservedNames[strings.ToUpper(strings.TrimRight(base, " "))]
}

// ReservedElement returns the first element of the slash-separated path p
// that is reserved on Windows.
func ReservedElement(p string) (string, bool) {
	for elem := range strings.SplitSeq(p, "/") {
		if IsWindowsReservedName(elem) {
			return elem, true
		}
	}
	return "", false
}
