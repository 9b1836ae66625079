// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/modlink/modlink/pkg/descriptor"
)

// zipArchive reads both generic zip files and packed modules; kind selects
// the classification rules.
type zipArchive struct {
	path string
	kind Kind
	zr   *zip.ReadCloser
	// files indexes zr.File by entry name.
	files map[string]*zip.File
	// prefix restricts a linked-image view to one module.
	prefix string

	once     sync.Once
	entries  []Entry
	warnings []Warning
}

func openZip(path string, kind Kind) (*zipArchive, error) {
	want := descriptor.FileName
	if kind == KindPacked {
		want = sectionClasses + descriptor.FileName
	}
	return openZipWith(path, kind, want)
}

func openZipWith(path string, kind Kind, want string) (a *zipArchive, err error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &FormatError{Path: path, Cause: err}
	}
	defer func() {
		if err != nil {
			_ = zr.Close() // best-effort cleanup on the error path
		}
	}()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	if _, ok := files[want]; !ok {
		return nil, &FormatError{Path: path, Cause: fmt.Errorf("%s not found", want)}
	}
	return &zipArchive{path: path, kind: kind, zr: zr, files: files}, nil
}

func (a *zipArchive) Kind() Kind { return a.kind }

func (a *zipArchive) Path() string { return a.path }

func (a *zipArchive) Descriptor() (*descriptor.Descriptor, error) {
	want := a.prefix + descriptor.FileName
	if a.kind == KindPacked {
		want = sectionClasses + descriptor.FileName
	}
	data, err := a.readFile(want)
	if err != nil {
		return nil, err
	}
	return descriptor.Parse(data, a.path+"!/"+want)
}

func (a *zipArchive) readFile(name string) (data []byte, err error) {
	f, ok := a.files[name]
	if !ok {
		return nil, &FormatError{Path: a.path, Cause: fmt.Errorf("%s not found", name)}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &FormatError{Path: a.path, Cause: err}
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return io.ReadAll(rc)
}

func (a *zipArchive) Entries() ([]Entry, error) {
	a.once.Do(a.scan)
	return a.entries, nil
}

func (a *zipArchive) scan() {
	for _, f := range a.zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		if a.prefix != "" && !strings.HasPrefix(f.Name, a.prefix) {
			continue
		}
		if !safeName(f.Name) {
			a.warnings = append(a.warnings, Warning{Path: a.path + "!/" + f.Name, Reason: "unsafe entry name skipped"})
			continue
		}
		if !f.Mode().IsRegular() {
			a.warnings = append(a.warnings, Warning{Path: a.path + "!/" + f.Name, Reason: "not a regular file"})
			continue
		}
		name, cat := strings.TrimPrefix(f.Name, a.prefix), CategoryClasses
		switch {
		case a.kind == KindPacked:
			name, cat = classifySection(f.Name, KindPacked)
		case a.kind == KindZip && name == ReleaseEntry:
			cat = CategoryTop
		}
		a.entries = append(a.entries, Entry{
			Name:     name,
			Category: cat,
			Size:     int64(f.UncompressedSize64),
			source:   f.Name,
		})
	}
	slices.SortFunc(a.entries, func(x, y Entry) int { return strings.Compare(x.Name, y.Name) })
}

func (a *zipArchive) Open(e Entry) (io.ReadCloser, error) {
	f, ok := a.files[e.source]
	if !ok {
		return nil, errors.New("entry does not belong to this archive")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s in %s: %w", e.Name, a.path, err)
	}
	return rc, nil
}

func (a *zipArchive) Warnings() []Warning { return a.warnings }

func (a *zipArchive) Close() error {
	if err := a.zr.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", a.path, err)
	}
	return nil
}

// OpenLinked returns the content of module inside the packed container of a
// linked image. The container stores entries as "<module>/<name>"; every
// entry is class or resource content.
func OpenLinked(container, module string) (Archive, error) {
	a, err := openZipWith(container, KindLinked, module+"/"+descriptor.FileName)
	if err != nil {
		return nil, err
	}
	a.prefix = module + "/"
	return a, nil
}
