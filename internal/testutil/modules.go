// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/modlink/modlink/pkg/descriptor"
)

// ModuleTree describes an exploded module fixture: its descriptor and the
// files to place next to module.cue, keyed by slash-separated path.
type ModuleTree struct {
	Descriptor descriptor.Descriptor
	Files      map[string]string
}

// Module returns a ModuleTree for name requiring deps, with one class file in
// a package named after the module so that it contributes a package.
func Module(name string, deps ...string) ModuleTree {
	return ModuleTree{
		Descriptor: descriptor.Descriptor{Name: name, Requires: deps, Exports: []string{name}},
		Files: map[string]string{
			filepath.ToSlash(filepath.Join(strings.ReplaceAll(name, ".", "/"), "Main.class")): "class " + name,
		},
	}
}

// WriteModule writes m under parent/<name> and returns the directory.
func WriteModule(t testing.TB, parent string, m ModuleTree) string {
	t.Helper()
	dir := filepath.Join(parent, m.Descriptor.Name)
	data, err := descriptor.Encode(&m.Descriptor)
	if err != nil {
		t.Fatalf("failed to encode descriptor: %v", err)
	}
	MustWriteFile(t, filepath.Join(dir, descriptor.FileName), data, 0o644)
	for _, name := range slices.Sorted(maps.Keys(m.Files)) {
		perm := os.FileMode(0o644)
		if filepath.Dir(filepath.FromSlash(name)) == "bin" {
			perm = 0o755
		}
		MustWriteFile(t, filepath.Join(dir, filepath.FromSlash(name)), []byte(m.Files[name]), perm)
	}
	return dir
}

// WriteModules writes every tree under parent and returns parent.
func WriteModules(t testing.TB, parent string, trees ...ModuleTree) string {
	t.Helper()
	for _, m := range trees {
		WriteModule(t, parent, m)
	}
	return parent
}

// WriteZipModule writes m as a generic zip archive parent/<name>.zip with
// module.cue at its root, and returns the file path.
func WriteZipModule(t testing.TB, parent string, m ModuleTree) string {
	t.Helper()
	path := filepath.Join(parent, m.Descriptor.Name+".zip")
	if err := os.MkdirAll(parent, 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", parent, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			t.Fatalf("failed to close %s: %v", path, err)
		}
	}()

	zw := zip.NewWriter(f)
	data, err := descriptor.Encode(&m.Descriptor)
	if err != nil {
		t.Fatalf("failed to encode descriptor: %v", err)
	}
	files := map[string]string{descriptor.FileName: string(data)}
	for k, v := range m.Files {
		files[k] = v
	}
	for _, name := range slices.Sorted(maps.Keys(files)) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish %s: %v", path, err)
	}
	return path
}
