// SPDX-License-Identifier: MPL-2.0

package finder

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/opencontainers/go-digest"

	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/descriptor"
)

// ContainerFile is the path of the packed module container relative to an
// image home.
const ContainerFile = "lib/modules"

// SystemFinder serves the modules linked into an image.
//
// When the image's module table is available, not empty, and the table
// service is enabled, descriptors and digests come straight from the table.
// Otherwise every descriptor is read from the packed container and the
// digests recorded in those descriptors are collected into a per-name cache.
type SystemFinder struct {
	universe
	home     string
	fastPath bool
	// hashes holds digests recorded by descriptors, populated on the slow path.
	hashes map[string]digest.Digest
}

// NewSystemFinder builds the finder for the image at home. tables is owned by
// the caller; pass a disabled service to force the slow path.
func NewSystemFinder(home string, tables *ModuleTableService) (*SystemFinder, error) {
	f := &SystemFinder{
		universe: universe{byName: make(map[string]*Reference)},
		home:     home,
	}

	table, err := tables.Table()
	if err != nil {
		return nil, err
	}
	if table != nil && len(table.Modules) > 0 {
		f.fastPath = true
		f.loadTable(table)
	} else {
		if err := f.loadContainer(); err != nil {
			return nil, err
		}
	}
	f.seal()
	slog.Debug("system modules loaded", "path", home, "modules", len(f.all), "fast_path", f.fastPath)
	return f, nil
}

// FastPath reports whether the module table was used.
func (f *SystemFinder) FastPath() bool { return f.fastPath }

func (f *SystemFinder) container() string {
	return filepath.Join(f.home, filepath.FromSlash(ContainerFile))
}

func (f *SystemFinder) loadTable(table *ModuleTable) {
	for i := range table.Modules {
		entry := &table.Modules[i]
		var hash HashSupplier
		if entry.Hash != "" {
			d := digest.Digest(entry.Hash)
			hash = func() (digest.Digest, error) { return d, nil }
		}
		f.add(f.reference(&entry.Descriptor, hash))
	}
}

func (f *SystemFinder) loadContainer() (err error) {
	zr, err := zip.OpenReader(f.container())
	if err != nil {
		return &archive.FormatError{Path: f.container(), Cause: err}
	}
	defer func() {
		if closeErr := zr.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var descriptors []*descriptor.Descriptor
	for _, zf := range zr.File {
		module, rest, ok := strings.Cut(zf.Name, "/")
		if !ok || rest != descriptor.FileName {
			continue
		}
		d, err := readDescriptor(zf, module)
		if err != nil {
			return err
		}
		descriptors = append(descriptors, d)
	}

	f.hashes = make(map[string]digest.Digest)
	for _, d := range descriptors {
		for name, h := range d.Hashes {
			if _, ok := f.hashes[name]; !ok {
				f.hashes[name] = digest.Digest(h)
			}
		}
	}

	for _, d := range descriptors {
		var hash HashSupplier
		if h, ok := f.hashes[d.Name]; ok {
			hash = func() (digest.Digest, error) { return h, nil }
		}
		f.add(f.reference(d, hash))
	}
	return nil
}

func readDescriptor(zf *zip.File, module string) (d *descriptor.Descriptor, err error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor of %s: %w", module, err)
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor of %s: %w", module, err)
	}
	return descriptor.Parse(data, path.Join(ContainerFile, zf.Name))
}

func (f *SystemFinder) reference(d *descriptor.Descriptor, hash HashSupplier) *Reference {
	container := f.container()
	name := d.Name
	open := func() (archive.Archive, error) { return archive.OpenLinked(container, name) }
	return NewReference(d, "image://"+filepath.ToSlash(f.home)+"#"+name, open, hash)
}

var _ Finder = (*SystemFinder)(nil)
