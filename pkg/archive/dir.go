// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/modlink/modlink/pkg/descriptor"
)

// dirArchive reads an exploded module directory.
type dirArchive struct {
	root string

	once     sync.Once
	entries  []Entry
	warnings []Warning
	err      error
}

func openDir(root string) (*dirArchive, error) {
	if _, err := os.Stat(filepath.Join(root, descriptor.FileName)); err != nil {
		return nil, &FormatError{Path: root, Cause: fmt.Errorf("%s not found", descriptor.FileName)}
	}
	return &dirArchive{root: root}, nil
}

func (a *dirArchive) Kind() Kind { return KindDirectory }

func (a *dirArchive) Path() string { return a.root }

func (a *dirArchive) Descriptor() (*descriptor.Descriptor, error) {
	file := filepath.Join(a.root, descriptor.FileName)
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	return descriptor.Parse(data, file)
}

func (a *dirArchive) Entries() ([]Entry, error) {
	a.once.Do(a.scan)
	return a.entries, a.err
}

func (a *dirArchive) scan() {
	a.err = filepath.WalkDir(a.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(a.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		// Symlinks could point outside the module; skip rather than follow.
		if d.Type()&fs.ModeSymlink != 0 {
			a.warnings = append(a.warnings, Warning{Path: p, Reason: "symbolic link skipped"})
			return nil
		}
		if !d.Type().IsRegular() {
			a.warnings = append(a.warnings, Warning{Path: p, Reason: "not a regular file"})
			return nil
		}
		info, err := d.Info()
		if err != nil {
			a.warnings = append(a.warnings, Warning{Path: p, Reason: err.Error()})
			return nil
		}
		name, cat := classifySection(rel, KindDirectory)
		a.entries = append(a.entries, Entry{Name: name, Category: cat, Size: info.Size(), source: p})
		return nil
	})
	if a.err != nil {
		a.err = fmt.Errorf("failed to enumerate %s: %w", a.root, a.err)
		return
	}
	slices.SortFunc(a.entries, func(x, y Entry) int { return strings.Compare(x.Name, y.Name) })
}

func (a *dirArchive) Open(e Entry) (io.ReadCloser, error) {
	if e.source == "" {
		return nil, errors.New("entry does not belong to this archive")
	}
	f, err := os.Open(e.source)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", e.Name, err)
	}
	return f, nil
}

func (a *dirArchive) Warnings() []Warning { return a.warnings }

func (a *dirArchive) Close() error { return nil }
