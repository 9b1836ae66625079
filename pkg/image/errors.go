// SPDX-License-Identifier: MPL-2.0

package image

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingReleaseAttribute is returned when the base module is absent
	// or lacks an attribute required for the release file.
	ErrMissingReleaseAttribute = errors.New("missing release attribute")

	// ErrDanglingLink is returned when a link entry targets a path that was
	// not written to the image.
	ErrDanglingLink = errors.New("link target does not exist")

	// ErrDestinationConflict is returned when two entries would be written
	// to the same image path.
	ErrDestinationConflict = errors.New("image path written twice")

	// ErrReservedName is returned when a Windows image would contain a path
	// element Windows cannot create.
	ErrReservedName = errors.New("reserved file name")

	// ErrOutputExists is returned when the image root already exists and
	// replacing it was not requested.
	ErrOutputExists = errors.New("output directory already exists")

	// ErrNotAnImage is returned by Open for directories without a release
	// file.
	ErrNotAnImage = errors.New("not a linked image")

	// ErrWrite is the sentinel wrapped by WriteError.
	ErrWrite = errors.New("failed to write image")
)

type (
	// ReleaseAttributeError names the base module and the attribute it lacks.
	ReleaseAttributeError struct {
		Module    string
		Attribute string
	}

	// DanglingLinkError names a link entry and its missing target.
	DanglingLinkError struct {
		Path   string
		Target string
	}

	// ConflictError names an image path and the two entries claiming it.
	ConflictError struct {
		Dest   string
		First  string
		Second string
	}

	// ReservedNameError names the image path holding a reserved element.
	ReservedNameError struct {
		Dest    string
		Source  string
		Element string
	}

	// WriteError wraps an I/O failure while writing an image path.
	WriteError struct {
		Path  string
		Cause error
	}
)

// Error implements the error interface.
func (e *ReleaseAttributeError) Error() string {
	if e.Attribute == "" {
		return fmt.Sprintf("base module %s is not part of the image", e.Module)
	}
	return fmt.Sprintf("base module %s does not declare %s", e.Module, e.Attribute)
}

// Unwrap returns ErrMissingReleaseAttribute for errors.Is() compatibility.
func (e *ReleaseAttributeError) Unwrap() error { return ErrMissingReleaseAttribute }

// Error implements the error interface.
func (e *DanglingLinkError) Error() string {
	return fmt.Sprintf("link %s points to %s which is not in the image", e.Path, e.Target)
}

// Unwrap returns ErrDanglingLink for errors.Is() compatibility.
func (e *DanglingLinkError) Unwrap() error { return ErrDanglingLink }

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is claimed by both %s and %s", e.Dest, e.First, e.Second)
}

// Unwrap returns ErrDestinationConflict for errors.Is() compatibility.
func (e *ConflictError) Unwrap() error { return ErrDestinationConflict }

// Error implements the error interface.
func (e *ReservedNameError) Error() string {
	return fmt.Sprintf("%s (from %s) uses %q, a reserved name on Windows", e.Dest, e.Source, e.Element)
}

// Unwrap returns ErrReservedName for errors.Is() compatibility.
func (e *ReservedNameError) Unwrap() error { return ErrReservedName }

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Cause)
}

// Unwrap returns both ErrWrite and the underlying cause.
func (e *WriteError) Unwrap() []error { return []error{ErrWrite, e.Cause} }
