// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/modlink/modlink/pkg/cueutil"
)

// FileName is the name of the descriptor file inside packaged content.
const FileName = "module.cue"

var (
	//go:embed module_schema.cue
	moduleSchema []byte

	// ErrInvalidDescriptor is the sentinel wrapped by every descriptor
	// parsing or validation failure.
	ErrInvalidDescriptor = errors.New("invalid module descriptor")

	// ErrInvalidModuleName is returned when a module name is malformed.
	ErrInvalidModuleName = errors.New("invalid module name")

	nameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

type (
	// ModuleName is a dot-separated module identifier such as "base" or
	// "com.example.app".
	ModuleName string

	// InvalidModuleNameError is returned when a ModuleName fails validation.
	InvalidModuleNameError struct {
		Value ModuleName
	}

	// Descriptor is the parsed content of a module.cue file.
	Descriptor struct {
		// Name is the module name, unique within any finder.
		Name string `json:"name"`
		// Version is the module version; on the base module it becomes the
		// runtime version recorded in the release file.
		Version string `json:"version,omitempty"`
		// Requires lists the names of modules this module depends on.
		Requires []string `json:"requires,omitempty"`
		// Exports lists packages visible to other modules.
		Exports []string `json:"exports,omitempty"`
		// Packages lists concealed packages.
		Packages []string `json:"packages,omitempty"`
		// MainClass is the runnable entry point; a launcher is generated for
		// modules that declare one.
		MainClass string `json:"main_class,omitempty"`
		// OSName, OSArch and OSVersion describe the target platform. Only the
		// base module of an image is required to carry OSName.
		OSName    string `json:"os_name,omitempty"`
		OSArch    string `json:"os_arch,omitempty"`
		OSVersion string `json:"os_version,omitempty"`
		// Hashes records digests of other modules, keyed by module name.
		Hashes map[string]string `json:"hashes,omitempty"`
	}

	// ValidationError collects every problem found in a descriptor.
	ValidationError struct {
		Module string
		Issues []string
	}
)

// Error implements the error interface.
func (e *InvalidModuleNameError) Error() string {
	return fmt.Sprintf("invalid module name %q", string(e.Value))
}

// Unwrap returns ErrInvalidModuleName for errors.Is() compatibility.
func (e *InvalidModuleNameError) Unwrap() error { return ErrInvalidModuleName }

// String returns the string representation of the ModuleName.
func (n ModuleName) String() string { return string(n) }

// Validate returns an *InvalidModuleNameError when n is malformed.
func (n ModuleName) Validate() error {
	if !nameRegex.MatchString(string(n)) {
		return &InvalidModuleNameError{Value: n}
	}
	return nil
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("module %s: %s", e.Module, strings.Join(e.Issues, "; "))
}

// Unwrap returns ErrInvalidDescriptor for errors.Is() compatibility.
func (e *ValidationError) Unwrap() error { return ErrInvalidDescriptor }

// Parse decodes and validates a module.cue document. filename is used only
// in error messages.
func Parse(data []byte, filename string) (*Descriptor, error) {
	result, err := cueutil.ParseAndDecode[Descriptor](moduleSchema, data, "#Module", cueutil.WithFilename(filename))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	d := result.Value
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the invariants the schema cannot express: a module never
// requires itself, requires and packages are free of duplicates, a package
// is either exported or concealed, and recorded hashes are valid digests.
func (d *Descriptor) Validate() error {
	var issues []string

	if err := ModuleName(d.Name).Validate(); err != nil {
		issues = append(issues, err.Error())
	}

	seen := make(map[string]bool, len(d.Requires))
	for _, r := range d.Requires {
		if err := ModuleName(r).Validate(); err != nil {
			issues = append(issues, err.Error())
		}
		if r == d.Name {
			issues = append(issues, "module requires itself")
		}
		if seen[r] {
			issues = append(issues, fmt.Sprintf("duplicate requires %q", r))
		}
		seen[r] = true
	}

	exported := make(map[string]bool, len(d.Exports))
	for _, p := range d.Exports {
		if exported[p] {
			issues = append(issues, fmt.Sprintf("package %q exported twice", p))
		}
		exported[p] = true
	}
	for _, p := range d.Packages {
		if exported[p] {
			issues = append(issues, fmt.Sprintf("package %q is both exported and concealed", p))
		}
	}

	for _, name := range slices.Sorted(maps.Keys(d.Hashes)) {
		if _, err := digest.Parse(d.Hashes[name]); err != nil {
			issues = append(issues, fmt.Sprintf("hash for %s: %v", name, err))
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Module: d.Name, Issues: issues}
	}
	return nil
}

// Schema returns the CUE schema of module.cue. It defines #Module and can be
// concatenated with other schema files that embed descriptors.
func Schema() []byte {
	return append([]byte(nil), moduleSchema...)
}

// AllPackages returns exported and concealed packages, sorted.
func (d *Descriptor) AllPackages() []string {
	out := make([]string, 0, len(d.Exports)+len(d.Packages))
	out = append(out, d.Exports...)
	out = append(out, d.Packages...)
	slices.Sort(out)
	return slices.Compact(out)
}

// Runnable reports whether the module declares a main class.
func (d *Descriptor) Runnable() bool {
	return d.MainClass != ""
}

// RecordedHash returns the digest recorded for module name, if any.
func (d *Descriptor) RecordedHash(name string) (digest.Digest, bool) {
	v, ok := d.Hashes[name]
	if !ok {
		return "", false
	}
	return digest.Digest(v), true
}

// Encode renders d as indented JSON, which is also a valid module.cue.
func Encode(d *Descriptor) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "\t")
	if err != nil {
		return nil, fmt.Errorf("failed to encode descriptor %s: %w", d.Name, err)
	}
	return append(data, '\n'), nil
}
