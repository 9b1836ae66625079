// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"runtime"
	"testing"
)

// SetHomeDir points the platform's home (and XDG config) variables at dir
// and returns a function restoring them.
//
//	t.Cleanup(testutil.SetHomeDir(t, t.TempDir()))
func SetHomeDir(t testing.TB, dir string) func() {
	t.Helper()

	switch runtime.GOOS {
	case "windows":
		restoreHome := MustSetenv(t, "USERPROFILE", dir)
		restoreAppData := MustSetenv(t, "APPDATA", dir)
		return func() {
			restoreAppData()
			restoreHome()
		}
	default:
		restoreHome := MustSetenv(t, "HOME", dir)
		restoreXDG := MustSetenv(t, "XDG_CONFIG_HOME", "")
		return func() {
			restoreXDG()
			restoreHome()
		}
	}
}
