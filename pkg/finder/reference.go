// SPDX-License-Identifier: MPL-2.0

package finder

import (
	"errors"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/descriptor"
)

var (
	// ErrNoSearchPath is returned when a PathFinder is built without any
	// location to search.
	ErrNoSearchPath = errors.New("module search path is empty")

	// ErrDuplicateModule is the sentinel wrapped by DuplicateModuleError.
	ErrDuplicateModule = errors.New("duplicate module")
)

type (
	// HashSupplier computes the digest of a module's packaged content.
	HashSupplier func() (digest.Digest, error)

	// Opener produces a fresh reader over a module's content.
	Opener func() (archive.Archive, error)

	// Reference is an immutable handle to one module: its descriptor, where
	// it was found and how to read it.
	Reference struct {
		descriptor *descriptor.Descriptor
		location   string
		open       Opener
		hash       HashSupplier
	}

	// Finder exposes an observable universe of modules.
	Finder interface {
		// Find returns the module called name, if the universe has one.
		Find(name string) (*Reference, bool)
		// FindAll returns every module of the universe, sorted by name.
		FindAll() []*Reference
	}

	// DuplicateModuleError reports two modules with the same name inside a
	// single search location.
	DuplicateModuleError struct {
		Module string
		First  string
		Second string
	}

	// universe is a fixed name-to-reference table.
	universe struct {
		byName map[string]*Reference
		all    []*Reference
	}
)

// NewReference creates a Reference. hash may be nil when no digest can be
// supplied for the module.
func NewReference(d *descriptor.Descriptor, location string, open Opener, hash HashSupplier) *Reference {
	return &Reference{descriptor: d, location: location, open: open, hash: hash}
}

// Name returns the module name.
func (r *Reference) Name() string { return r.descriptor.Name }

// Descriptor returns the module descriptor.
func (r *Reference) Descriptor() *descriptor.Descriptor { return r.descriptor }

// Location returns the URI-like location the module was found at.
func (r *Reference) Location() string { return r.location }

// Open returns a new Archive over the module content. The caller closes it.
func (r *Reference) Open() (archive.Archive, error) { return r.open() }

// HashSupplier returns the digest supplier of the module, or nil.
func (r *Reference) HashSupplier() HashSupplier { return r.hash }

// Error implements the error interface.
func (e *DuplicateModuleError) Error() string {
	return "module " + e.Module + " found twice in one location: " + e.First + " and " + e.Second
}

// Unwrap returns ErrDuplicateModule for errors.Is() compatibility.
func (e *DuplicateModuleError) Unwrap() error { return ErrDuplicateModule }

// Of returns a Finder over exactly refs. When two references share a name
// the first one is kept.
func Of(refs ...*Reference) Finder {
	u := &universe{byName: make(map[string]*Reference, len(refs))}
	for _, r := range refs {
		u.add(r)
	}
	u.seal()
	return u
}

func (u *universe) add(r *Reference) bool {
	if _, exists := u.byName[r.Name()]; exists {
		return false
	}
	u.byName[r.Name()] = r
	u.all = append(u.all, r)
	return true
}

func (u *universe) seal() {
	slices.SortFunc(u.all, func(a, b *Reference) int { return strings.Compare(a.Name(), b.Name()) })
}

func (u *universe) Find(name string) (*Reference, bool) {
	r, ok := u.byName[name]
	return r, ok
}

func (u *universe) FindAll() []*Reference {
	return slices.Clone(u.all)
}
