// SPDX-License-Identifier: MPL-2.0

package linker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modlink/modlink/pkg/descriptor"
	"github.com/modlink/modlink/pkg/plugin"
)

// ErrInvalidOptions is the sentinel wrapped by OptionsError.
var ErrInvalidOptions = errors.New("invalid link options")

type (
	// Options are the inputs of a link.
	Options struct {
		// ModulePath lists the module locations, searched in order.
		ModulePath []string
		// AddModules are the root modules of the image.
		AddModules []string
		// LimitModules restricts the observable universe to their closure.
		LimitModules []string
		// Output is the image directory. It must not exist unless Replace is
		// set.
		Output string
		// BaseModule supplies the release attributes of the image.
		BaseModule string
		// Runtime is the executable in bin/ the launchers start.
		Runtime string
		// LaunchArgs are baked into every launcher once the image is written.
		LaunchArgs []string
		// KeepPackagedModules is a directory, which must not exist, receiving
		// a copy of every selected module archive.
		KeepPackagedModules string
		// SaveOpts is a file receiving CommandLine.
		SaveOpts string
		// CommandLine is the invoking command line, recorded by SaveOpts.
		CommandLine []string
		// Stages configures the plugin stack.
		Stages []plugin.StageConfig
		// Replace allows Output to exist; the old image is replaced once the
		// new one is complete.
		Replace bool
		// Parallelism bounds concurrent file writes; zero uses GOMAXPROCS.
		Parallelism int
	}

	// OptionsError reports an unusable option.
	OptionsError struct {
		Option string
		Reason string
	}
)

// Error implements the error interface.
func (e *OptionsError) Error() string {
	return fmt.Sprintf("%s: %s", e.Option, e.Reason)
}

// Unwrap returns ErrInvalidOptions for errors.Is() compatibility.
func (e *OptionsError) Unwrap() error { return ErrInvalidOptions }

// Validate checks the options before any module is read.
func (o Options) Validate() error {
	if len(o.ModulePath) == 0 {
		return &OptionsError{Option: "--module-path", Reason: "at least one location is required"}
	}
	for _, p := range o.ModulePath {
		if strings.TrimSpace(p) == "" {
			return &OptionsError{Option: "--module-path", Reason: "empty location"}
		}
	}
	if len(o.AddModules) == 0 {
		return &OptionsError{Option: "--add-modules", Reason: "at least one module is required"}
	}
	if err := validateNames("--add-modules", o.AddModules); err != nil {
		return err
	}
	if err := validateNames("--limit-modules", o.LimitModules); err != nil {
		return err
	}
	if o.Output == "" {
		return &OptionsError{Option: "--output", Reason: "an image directory is required"}
	}
	if !o.Replace && exists(o.Output) {
		return &OptionsError{Option: "--output", Reason: fmt.Sprintf("%s already exists", o.Output)}
	}
	if o.KeepPackagedModules != "" {
		if exists(o.KeepPackagedModules) {
			return &OptionsError{Option: "--keep-packaged-modules", Reason: fmt.Sprintf("%s already exists", o.KeepPackagedModules)}
		}
		if sameDir(o.KeepPackagedModules, o.Output) {
			return &OptionsError{Option: "--keep-packaged-modules", Reason: "must differ from --output"}
		}
	}
	if o.Parallelism < 0 {
		return &OptionsError{Option: "--parallelism", Reason: "must not be negative"}
	}
	return nil
}

func validateNames(option string, names []string) error {
	for _, name := range names {
		if err := descriptor.ModuleName(name).Validate(); err != nil {
			return &OptionsError{Option: option, Reason: err.Error()}
		}
	}
	return nil
}

// SplitModulePath splits a module path on the host list separator (":" on
// POSIX hosts, ";" on Windows), dropping empty elements.
func SplitModulePath(s string) []string {
	var out []string
	for _, p := range filepath.SplitList(s) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitModules splits a comma-separated module list.
func SplitModules(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
