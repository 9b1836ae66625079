// SPDX-License-Identifier: MPL-2.0

package finder

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/modlink/modlink/internal/testutil"
	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/descriptor"
)

func names(refs []*Reference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Name())
	}
	return out
}

func TestOfPaths_DirectoryOfModules(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteModules(t, dir, testutil.Module("m2", "m1"), testutil.Module("m1"))
	testutil.WriteZipModule(t, dir, testutil.Module("m3"))
	testutil.MustWriteFile(t, filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)

	f, err := OfPaths(dir)
	if err != nil {
		t.Fatalf("OfPaths() error = %v", err)
	}
	if got := names(f.FindAll()); !slices.Equal(got, []string{"m1", "m2", "m3"}) {
		t.Errorf("FindAll() = %v", got)
	}

	r, ok := f.Find("m2")
	if !ok {
		t.Fatal("Find(m2) not found")
	}
	if !strings.HasPrefix(r.Location(), "file://") {
		t.Errorf("Location() = %q, want file URI", r.Location())
	}
	if !slices.Equal(r.Descriptor().Requires, []string{"m1"}) {
		t.Errorf("Requires = %v", r.Descriptor().Requires)
	}
	if _, ok := f.Find("absent"); ok {
		t.Error("Find(absent) should report not found")
	}
}

func TestOfPaths_FirstLocationWins(t *testing.T) {
	t.Parallel()

	first := t.TempDir()
	second := t.TempDir()
	a := testutil.Module("shared")
	a.Descriptor.Version = "1.0"
	b := testutil.Module("shared")
	b.Descriptor.Version = "2.0"
	testutil.WriteModule(t, first, a)
	testutil.WriteModule(t, second, b)

	f, err := OfPaths(first, second)
	if err != nil {
		t.Fatalf("OfPaths() error = %v", err)
	}
	r, _ := f.Find("shared")
	if r.Descriptor().Version != "1.0" {
		t.Errorf("Version = %q, want the module from the first location", r.Descriptor().Version)
	}
	if len(f.FindAll()) != 1 {
		t.Errorf("FindAll() = %v", names(f.FindAll()))
	}
}

func TestOfPaths_SingleModuleLocation(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	dir := testutil.WriteModule(t, tmp, testutil.Module("solo"))
	pdir := testutil.WriteModule(t, filepath.Join(tmp, "src"), testutil.Module("packed"))
	packed, err := archive.Pack(pdir, filepath.Join(tmp, "packed.lmod"))
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}

	f, err := OfPaths(dir, packed)
	if err != nil {
		t.Fatalf("OfPaths() error = %v", err)
	}
	if got := names(f.FindAll()); !slices.Equal(got, []string{"packed", "solo"}) {
		t.Errorf("FindAll() = %v", got)
	}
}

func TestOfPaths_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty search path", func(t *testing.T) {
		t.Parallel()
		if _, err := OfPaths(); !errors.Is(err, ErrNoSearchPath) {
			t.Errorf("error = %v, want ErrNoSearchPath", err)
		}
	})

	t.Run("missing location is skipped", func(t *testing.T) {
		t.Parallel()
		f, err := OfPaths(filepath.Join(t.TempDir(), "nope"))
		if err != nil {
			t.Fatalf("OfPaths() error = %v", err)
		}
		if len(f.FindAll()) != 0 {
			t.Errorf("FindAll() = %v", names(f.FindAll()))
		}
	})

	t.Run("duplicate inside one location", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		testutil.WriteModule(t, dir, testutil.Module("dup"))
		testutil.WriteZipModule(t, dir, testutil.Module("dup"))
		_, err := OfPaths(dir)
		var dupErr *DuplicateModuleError
		if !errors.As(err, &dupErr) || dupErr.Module != "dup" {
			t.Errorf("error = %v, want DuplicateModuleError for dup", err)
		}
	})

	t.Run("corrupt archive", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		bad := filepath.Join(dir, "bad.lmod")
		testutil.MustWriteFile(t, bad, []byte("garbage"), 0o644)
		_, err := OfPaths(dir)
		if !errors.Is(err, archive.ErrInvalidArchive) {
			t.Errorf("error = %v, want ErrInvalidArchive", err)
		}
		if err == nil || !strings.Contains(err.Error(), bad) {
			t.Errorf("error should name %s: %v", bad, err)
		}
	})
}

func TestPathFinder_HashSupplier(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteModules(t, dir, testutil.Module("m1"))
	testutil.WriteZipModule(t, dir, testutil.Module("m2"))

	f, err := OfPaths(dir)
	if err != nil {
		t.Fatalf("OfPaths() error = %v", err)
	}
	for _, r := range f.FindAll() {
		supplier := r.HashSupplier()
		if supplier == nil {
			t.Fatalf("%s has no hash supplier", r.Name())
		}
		first, err := supplier()
		if err != nil {
			t.Fatalf("hash of %s: %v", r.Name(), err)
		}
		if err := first.Validate(); err != nil {
			t.Errorf("invalid digest %q: %v", first, err)
		}
		second, _ := supplier()
		if first != second {
			t.Errorf("hash of %s not stable: %s != %s", r.Name(), first, second)
		}
	}
}

// writeImage writes a minimal image home whose container holds mods, and
// optionally a module table describing them.
func writeImage(t *testing.T, withTable bool, mods ...descriptor.Descriptor) string {
	t.Helper()
	home := t.TempDir()
	container := filepath.Join(home, "lib", "modules")
	testutil.MustWriteFile(t, container, nil, 0o644)

	out, err := os.Create(container)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(out)
	table := &ModuleTable{}
	for i := range mods {
		data, err := descriptor.Encode(&mods[i])
		if err != nil {
			t.Fatal(err)
		}
		for name, content := range map[string][]byte{
			mods[i].Name + "/module.cue": data,
			mods[i].Name + "/Main.class": []byte("class"),
		} {
			w, err := zw.Create(name)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := w.Write(content); err != nil {
				t.Fatal(err)
			}
		}
		table.Modules = append(table.Modules, TableEntry{Descriptor: mods[i], Hash: "sha256:" + strings.Repeat("b", 64)})
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}

	if withTable {
		data, err := EncodeModuleTable(table)
		if err != nil {
			t.Fatal(err)
		}
		testutil.MustWriteFile(t, filepath.Join(home, "lib", "modules.table"), data, 0o644)
	}
	return home
}

func TestSystemFinder_FastPathMatchesFallback(t *testing.T) {
	t.Parallel()

	recorded := "sha256:" + strings.Repeat("c", 64)
	mods := []descriptor.Descriptor{
		{Name: "base", OSName: "Linux", Exports: []string{"lang"}},
		{Name: "app", Requires: []string{"base"}, MainClass: "app.Main", Hashes: map[string]string{"base": recorded}},
	}
	home := writeImage(t, true, mods...)

	fast, err := NewSystemFinder(home, NewModuleTableService(filepath.Join(home, TableFile), false))
	if err != nil {
		t.Fatalf("fast path: %v", err)
	}
	slow, err := NewSystemFinder(home, NewModuleTableService(filepath.Join(home, TableFile), true))
	if err != nil {
		t.Fatalf("slow path: %v", err)
	}
	if !fast.FastPath() || slow.FastPath() {
		t.Fatalf("FastPath() = %v/%v, want true/false", fast.FastPath(), slow.FastPath())
	}

	if !slices.Equal(names(fast.FindAll()), names(slow.FindAll())) {
		t.Fatalf("universes differ: %v vs %v", names(fast.FindAll()), names(slow.FindAll()))
	}
	for _, r := range fast.FindAll() {
		other, _ := slow.Find(r.Name())
		if r.Descriptor().MainClass != other.Descriptor().MainClass ||
			!slices.Equal(r.Descriptor().Requires, other.Descriptor().Requires) {
			t.Errorf("descriptor of %s differs between paths", r.Name())
		}
	}

	// Slow path: digests come from the hash tables declared by descriptors.
	base, _ := slow.Find("base")
	if base.HashSupplier() == nil {
		t.Fatal("slow path should supply the recorded hash for base")
	}
	if d, _ := base.HashSupplier()(); string(d) != recorded {
		t.Errorf("slow path hash = %s, want %s", d, recorded)
	}
	app, _ := slow.Find("app")
	if app.HashSupplier() != nil {
		t.Error("no hash is recorded for app on the slow path")
	}

	// Linked modules can be reopened from the container.
	a, err := base.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer testutil.DeferClose(t, a)()
	entries, err := a.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if got := len(entries); got != 2 {
		t.Errorf("linked module has %d entries, want 2", got)
	}
}

func TestSystemFinder_EmptyTableFallsBack(t *testing.T) {
	t.Parallel()

	home := writeImage(t, false, descriptor.Descriptor{Name: "base", OSName: "Linux"})
	testutil.MustWriteFile(t, filepath.Join(home, "lib", "modules.table"), []byte(`{"modules": []}`), 0o644)

	f, err := NewSystemFinder(home, NewModuleTableService(filepath.Join(home, TableFile), false))
	if err != nil {
		t.Fatalf("NewSystemFinder() error = %v", err)
	}
	if f.FastPath() {
		t.Error("an empty table must not be used")
	}
	if _, ok := f.Find("base"); !ok {
		t.Error("fallback should read base from the container")
	}
}

func TestModuleTableService_LoadsOnce(t *testing.T) {
	t.Parallel()

	home := writeImage(t, true, descriptor.Descriptor{Name: "base"})
	path := filepath.Join(home, TableFile)
	svc := NewModuleTableService(path, false)
	first, err := svc.Table()
	if err != nil || first == nil {
		t.Fatalf("Table() = %v, %v", first, err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	second, err := svc.Table()
	if err != nil || second != first {
		t.Error("table should be loaded once and cached")
	}

	missing, err := NewModuleTableService(path, false).Table()
	if err != nil || missing != nil {
		t.Errorf("missing table = %v, %v, want nil, nil", missing, err)
	}
}

func TestOf_KeepsFirst(t *testing.T) {
	t.Parallel()

	a := NewReference(&descriptor.Descriptor{Name: "x", Version: "1"}, "a", nil, nil)
	b := NewReference(&descriptor.Descriptor{Name: "x", Version: "2"}, "b", nil, nil)
	c := NewReference(&descriptor.Descriptor{Name: "a"}, "c", nil, nil)
	f := Of(a, b, c)
	if got := names(f.FindAll()); !slices.Equal(got, []string{"a", "x"}) {
		t.Errorf("FindAll() = %v", got)
	}
	if r, _ := f.Find("x"); r.Location() != "a" {
		t.Errorf("Find(x) = %s, want first reference", r.Location())
	}
}
