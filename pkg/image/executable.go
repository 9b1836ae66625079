// SPDX-License-Identifier: MPL-2.0

package image

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ExecutableImage is a linked image on disk.
type ExecutableImage struct {
	home     string
	modules  []string
	args     []string
	platform Platform
}

func newExecutableImage(home string, modules []string, platform Platform, runtime string) *ExecutableImage {
	return &ExecutableImage{
		home:     home,
		modules:  modules,
		args:     []string{filepath.Join(home, "bin", platform.ExecutableName(runtime))},
		platform: platform,
	}
}

// Open loads the image rooted at home from its release file.
func Open(home string, opts ...Option) (*ExecutableImage, error) {
	o := buildOptions(opts)
	abs, err := filepath.Abs(home)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve image path: %w", err)
	}
	props, err := ReadRelease(filepath.Join(abs, ReleaseFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotAnImage, abs)
		}
		return nil, err
	}

	var modules []string
	if v := props[KeyModules]; v != "" {
		modules = strings.Split(v, ",")
	}
	return newExecutableImage(abs, modules, PlatformFor(props[KeyOSName]), o.runtime), nil
}

// Home returns the image root.
func (i *ExecutableImage) Home() string { return i.home }

// Modules returns the modules recorded in the release file.
func (i *ExecutableImage) Modules() []string { return slices.Clone(i.modules) }

// ExecutionArgs returns the command line that starts the image runtime: the
// runtime binary followed by the launch arguments last stored through this
// handle.
func (i *ExecutableImage) ExecutionArgs() []string { return slices.Clone(i.args) }

// Platform returns the image target platform.
func (i *ExecutableImage) Platform() Platform { return i.platform }

// StoreLaunchArgs bakes args into every launcher of the image and appends
// them to the runtime binary in ExecutionArgs. Like the launchers, a later
// call replaces the arguments of an earlier one.
func (i *ExecutableImage) StoreLaunchArgs(args []string) error {
	if err := PatchLaunchArgs(i, args); err != nil {
		return err
	}
	i.args = append(i.args[:1:1], args...)
	return nil
}

// PatchLaunchArgs rewrites the options line of each launcher in bin/ so the
// launcher passes args to the runtime. Only files named after an image
// module (optionally with .bat) are touched. Launchers without an options
// line are skipped with a warning. Patching twice with the same args leaves
// the files unchanged.
func PatchLaunchArgs(img *ExecutableImage, args []string) error {
	bin := filepath.Join(img.home, "bin")
	entries, err := os.ReadDir(bin)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &WriteError{Path: "bin", Cause: err}
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		syntax := POSIXScript
		module := name
		if trimmed, ok := strings.CutSuffix(name, BatchScript.ext); ok {
			syntax, module = BatchScript, trimmed
		}
		if !slices.Contains(img.modules, module) {
			continue
		}
		if err := patchLauncher(filepath.Join(bin, name), syntax, args); err != nil {
			return err
		}
	}
	return nil
}

func patchLauncher(path string, syntax ScriptSyntax, args []string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &WriteError{Path: path, Cause: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return &WriteError{Path: path, Cause: err}
	}
	patched, found, err := syntax.patch(string(data), args)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !found {
		slog.Warn("launcher has no options line, skipping", "path", path)
		return nil
	}
	if patched == string(data) {
		return nil
	}
	if err := os.WriteFile(path, []byte(patched), info.Mode().Perm()); err != nil {
		return &WriteError{Path: path, Cause: err}
	}
	return nil
}
