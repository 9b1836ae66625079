// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/modlink/modlink/pkg/descriptor"
)

const (
	// CategoryClasses is packaged class or resource content.
	CategoryClasses Category = "classes"
	// CategoryNativeLib is a native library.
	CategoryNativeLib Category = "native-lib"
	// CategoryNativeCmd is a native executable.
	CategoryNativeCmd Category = "native-cmd"
	// CategoryConfig is a configuration file.
	CategoryConfig Category = "config"
	// CategoryTop is a file that lives at the root of a packed module.
	CategoryTop Category = "top"
	// CategoryOther is any other file, written verbatim into the image.
	CategoryOther Category = "other"

	// KindDirectory is an exploded module directory.
	KindDirectory Kind = "directory"
	// KindZip is a generic zip or jar file.
	KindZip Kind = "zip"
	// KindPacked is a packed module file.
	KindPacked Kind = "packed"
	// KindLinked is one module inside the packed container of a linked image.
	KindLinked Kind = "linked"

	// PackedExt is the file extension of packed modules.
	PackedExt = ".lmod"

	// ReleaseEntry is the root-level file holding release attributes of a
	// base module. It is top content in every archive variant.
	ReleaseEntry = "release"

	sectionClasses = "classes/"
	sectionNative  = "native/"
	sectionBin     = "bin/"
	sectionConf    = "conf/"
	sectionLegal   = "legal/"
)

// ErrInvalidArchive is the sentinel wrapped by FormatError.
var ErrInvalidArchive = errors.New("invalid module archive")

type (
	// Category classifies an entry for placement in an image.
	Category string

	// Kind names the container variant of an Archive.
	Kind string

	// Entry is one file of packaged module content.
	Entry struct {
		// Name is the slash-separated path of the entry within the module.
		// For packed modules the classes/ section prefix is removed; other
		// section prefixes are kept.
		Name string
		// Category decides where the entry is placed in an image.
		Category Category
		// Size is the uncompressed size in bytes.
		Size int64

		source string
	}

	// Warning describes an entry that was skipped while enumerating.
	Warning struct {
		Path   string
		Reason string
	}

	// FormatError reports a location that exists but is not a valid module
	// container.
	FormatError struct {
		Path  string
		Cause error
	}

	// Archive gives read access to the content of one module.
	//
	// Entries are enumerated lazily on first call and returned sorted by
	// name. An Archive must be closed once its content has been drained.
	Archive interface {
		// Kind reports the container variant.
		Kind() Kind
		// Path is the filesystem location of the container.
		Path() string
		// Descriptor parses the module.cue of the archive.
		Descriptor() (*descriptor.Descriptor, error)
		// Entries lists the content of the archive.
		Entries() ([]Entry, error)
		// Open returns a reader for an entry returned by Entries.
		Open(e Entry) (io.ReadCloser, error)
		// Warnings lists entries skipped by Entries.
		Warnings() []Warning
		io.Closer
	}
)

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: not a valid module archive: %v", e.Path, e.Cause)
}

// Unwrap returns ErrInvalidArchive for errors.Is() compatibility. The cause
// is reachable through errors.As on the FormatError itself.
func (e *FormatError) Unwrap() []error { return []error{ErrInvalidArchive, e.Cause} }

// String returns the warning as "path: reason".
func (w Warning) String() string {
	return w.Path + ": " + w.Reason
}

// String returns the string representation of the Category.
func (c Category) String() string { return string(c) }

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryClasses, CategoryNativeLib, CategoryNativeCmd, CategoryConfig, CategoryTop, CategoryOther:
		return true
	default:
		return false
	}
}

// Open sniffs location and returns the matching Archive variant. It does not
// read any content beyond what is needed to recognise the container.
func Open(location string) (Archive, error) {
	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("failed to open module at %s: %w", location, err)
	}
	if info.IsDir() {
		return openDir(location)
	}
	switch strings.ToLower(filepath.Ext(location)) {
	case PackedExt:
		return openZip(location, KindPacked)
	case ".zip", ".jar":
		return openZip(location, KindZip)
	default:
		return nil, &FormatError{Path: location, Cause: errors.New("unrecognised file type")}
	}
}

// IsCandidate reports whether a directory child looks like a module
// container: a directory holding module.cue, or a file with a known
// extension.
func IsCandidate(location string, info os.FileInfo) bool {
	if info.IsDir() {
		_, err := os.Stat(filepath.Join(location, descriptor.FileName))
		return err == nil
	}
	switch strings.ToLower(filepath.Ext(location)) {
	case PackedExt, ".zip", ".jar":
		return info.Mode().IsRegular()
	default:
		return false
	}
}

// classifySection maps a section-prefixed path to its Category. It is used
// for packed modules and exploded directories; generic zips carry only
// classes content plus a root release entry.
func classifySection(name string, kind Kind) (string, Category) {
	switch {
	case name == ReleaseEntry:
		return name, CategoryTop
	case strings.HasPrefix(name, sectionNative):
		return name, CategoryNativeLib
	case strings.HasPrefix(name, sectionBin):
		return name, CategoryNativeCmd
	case strings.HasPrefix(name, sectionConf):
		return name, CategoryConfig
	case strings.HasPrefix(name, sectionLegal):
		return name, CategoryOther
	}
	if kind != KindPacked {
		return name, CategoryClasses
	}
	switch {
	case strings.HasPrefix(name, sectionClasses):
		return strings.TrimPrefix(name, sectionClasses), CategoryClasses
	case !strings.Contains(name, "/"):
		return name, CategoryTop
	default:
		return name, CategoryOther
	}
}

// safeName reports whether a slash-separated entry name stays inside its
// container.
func safeName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	clean := path.Clean(name)
	return clean == name && clean != ".." && !strings.HasPrefix(clean, "../")
}
