// SPDX-License-Identifier: MPL-2.0

package finder

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/modlink/modlink/pkg/archive"
)

// PathFinder finds modules on an ordered search path.
//
// Each location is one of:
//   - an exploded module directory (holding module.cue)
//   - a module file (.lmod, .zip or .jar)
//   - a directory whose immediate children are any of the above
//
// Locations are scanned in order. A module name provided by an earlier
// location shadows the same name in later ones; two modules with one name
// inside a single location is an error. Locations that do not exist are
// skipped.
type PathFinder struct {
	universe
	paths []string
}

// OfPaths scans paths and returns the resulting PathFinder.
func OfPaths(paths ...string) (*PathFinder, error) {
	if len(paths) == 0 {
		return nil, ErrNoSearchPath
	}

	hashes := newHashCache(defaultHashCacheSize)
	f := &PathFinder{
		universe: universe{byName: make(map[string]*Reference)},
		paths:    paths,
	}

	for _, p := range paths {
		refs, err := scanLocation(p, hashes)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			if !f.add(r) {
				prev, _ := f.Find(r.Name())
				slog.Debug("module shadowed", "module", r.Name(), "path", r.Location(), "by", prev.Location())
			}
		}
	}
	f.seal()
	return f, nil
}

// Paths returns the search path the finder was built from.
func (f *PathFinder) Paths() []string {
	return append([]string(nil), f.paths...)
}

func scanLocation(location string, hashes *hashCache) ([]*Reference, error) {
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", location, err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("module path entry does not exist", "path", abs)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
	}

	if !info.IsDir() || archive.IsCandidate(abs, info) {
		r, err := readReference(abs, hashes)
		if err != nil {
			return nil, err
		}
		return []*Reference{r}, nil
	}

	children, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", abs, err)
	}

	seen := make(map[string]*Reference)
	var refs []*Reference
	for _, child := range children {
		childPath := filepath.Join(abs, child.Name())
		childInfo, err := os.Stat(childPath)
		if err != nil || !archive.IsCandidate(childPath, childInfo) {
			continue
		}
		r, err := readReference(childPath, hashes)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[r.Name()]; dup {
			return nil, &DuplicateModuleError{Module: r.Name(), First: prev.Location(), Second: r.Location()}
		}
		seen[r.Name()] = r
		refs = append(refs, r)
	}
	return refs, nil
}

// readReference opens the module at path just long enough to read its
// descriptor.
func readReference(path string, hashes *hashCache) (ref *Reference, err error) {
	a, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	d, err := a.Descriptor()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	open := func() (archive.Archive, error) { return archive.Open(path) }
	return NewReference(d, fileURI(path), open, hashes.supplier(path)), nil
}

func fileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// compile-time interface check
var _ Finder = (*PathFinder)(nil)
