// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"errors"
	"slices"
	"testing"

	"github.com/modlink/modlink/pkg/descriptor"
	"github.com/modlink/modlink/pkg/finder"
)

// universe builds a finder from name -> requires pairs.
func universe(mods map[string][]string) finder.Finder {
	refs := make([]*finder.Reference, 0, len(mods))
	for name, requires := range mods {
		d := &descriptor.Descriptor{Name: name, Requires: requires, Exports: []string{name}}
		refs = append(refs, finder.NewReference(d, "test:"+name, nil, nil))
	}
	return finder.Of(refs...)
}

var chain = map[string][]string{
	"M1": nil,
	"M2": {"M1"},
	"M3": {"M2"},
}

func TestResolve_Closure(t *testing.T) {
	t.Parallel()

	g, err := Resolve(universe(chain), []string{"M3"}, nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := g.Names(); !slices.Equal(got, []string{"M1", "M2", "M3"}) {
		t.Errorf("Names() = %v", got)
	}
	if got := g.Order(); !slices.Equal(got, []string{"M1", "M2", "M3"}) {
		t.Errorf("Order() = %v", got)
	}
	if got := g.Requires("M3"); !slices.Equal(got, []string{"M2"}) {
		t.Errorf("Requires(M3) = %v", got)
	}

	// Every selected module's requires are themselves selected.
	for _, name := range g.Names() {
		for _, dep := range g.Requires(name) {
			if _, ok := g.Find(dep); !ok {
				t.Errorf("%s requires %s which is not selected", name, dep)
			}
		}
	}
}

func TestResolve_LimitExcludesRoot(t *testing.T) {
	t.Parallel()

	_, err := Resolve(universe(chain), []string{"M3"}, []string{"M2"}, nil)
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if resErr.Module != "M3" || resErr.RequiredBy != "" {
		t.Errorf("got %+v, want M3 missing as a root", resErr)
	}
	if !errors.Is(err, ErrModuleNotFound) {
		t.Error("error should wrap ErrModuleNotFound")
	}
}

func TestResolve_LimitIsSubsetOfLimitClosure(t *testing.T) {
	t.Parallel()

	mods := map[string][]string{
		"base": nil,
		"util": {"base"},
		"app":  {"util"},
		"tool": {"base"},
	}
	g, err := Resolve(universe(mods), []string{"util"}, []string{"app"}, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	limitClosure := []string{"app", "base", "util"}
	for _, name := range g.Names() {
		if !slices.Contains(limitClosure, name) {
			t.Errorf("%s selected outside the limit closure", name)
		}
	}
}

func TestResolve_ExtraBypassesLimit(t *testing.T) {
	t.Parallel()

	mods := map[string][]string{
		"base":  nil,
		"util":  {"base"},
		"extra": {"base"},
	}
	g, err := Resolve(universe(mods), nil, []string{"util"}, []string{"extra"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := g.Names(); !slices.Equal(got, []string{"base", "extra"}) {
		t.Errorf("Names() = %v", got)
	}

	// extra's own requires are not pulled into the limited universe.
	mods["lonely"] = []string{"outside"}
	mods["outside"] = nil
	_, err = Resolve(universe(mods), nil, []string{"util"}, []string{"lonely"})
	var resErr *ResolutionError
	if !errors.As(err, &resErr) || resErr.Module != "outside" || resErr.RequiredBy != "lonely" {
		t.Errorf("error = %v, want outside missing, required by lonely", err)
	}
}

func TestResolve_MissingRequire(t *testing.T) {
	t.Parallel()

	mods := map[string][]string{
		"app": {"zeta", "alpha"},
	}
	_, err := Resolve(universe(mods), []string{"app"}, nil, nil)
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	// Requires are visited in sorted order, so alpha is reported first.
	if resErr.Module != "alpha" || resErr.RequiredBy != "app" {
		t.Errorf("got %+v", resErr)
	}
	if resErr.Error() != "module alpha not found, required by app" {
		t.Errorf("Error() = %q", resErr.Error())
	}
}

func TestResolve_MissingLimitModule(t *testing.T) {
	t.Parallel()

	_, err := Resolve(universe(chain), []string{"M1"}, []string{"nope"}, nil)
	if !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("error = %v, want ErrModuleNotFound", err)
	}
}

func TestResolve_NoRoots(t *testing.T) {
	t.Parallel()

	if _, err := Resolve(universe(chain), nil, []string{"M1"}, nil); !errors.Is(err, ErrNoRoots) {
		t.Errorf("error = %v, want ErrNoRoots", err)
	}
}

func TestResolve_CycleTolerated(t *testing.T) {
	t.Parallel()

	mods := map[string][]string{
		"base": nil,
		"a":    {"b", "base"},
		"b":    {"a"},
	}
	g, err := Resolve(universe(mods), []string{"a"}, nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := g.Names(); !slices.Equal(got, []string{"a", "b", "base"}) {
		t.Errorf("Names() = %v", got)
	}
	if got := g.Order(); !slices.Equal(got, []string{"base", "a", "b"}) {
		t.Errorf("Order() = %v", got)
	}
}

func TestResolve_PackageConflict(t *testing.T) {
	t.Parallel()

	one := finder.NewReference(&descriptor.Descriptor{Name: "one", Exports: []string{"shared"}}, "x", nil, nil)
	two := finder.NewReference(&descriptor.Descriptor{Name: "two", Requires: []string{"one"}, Exports: []string{"shared"}}, "y", nil, nil)
	_, err := Resolve(finder.Of(one, two), []string{"two"}, nil, nil)
	var conflict *PackageConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected PackageConflictError, got %v", err)
	}
	if conflict.Package != "shared" || conflict.First != "one" || conflict.Second != "two" {
		t.Errorf("got %+v", conflict)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	t.Parallel()

	mods := map[string][]string{
		"base": nil,
		"c":    {"base"},
		"b":    {"base"},
		"a":    {"c", "b"},
	}
	var first []string
	for range 10 {
		g, err := Resolve(universe(mods), []string{"a"}, nil, nil)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if first == nil {
			first = g.Order()
			continue
		}
		if !slices.Equal(first, g.Order()) {
			t.Fatalf("order changed between runs: %v vs %v", first, g.Order())
		}
	}
	if !slices.Equal(first, []string{"base", "b", "c", "a"}) {
		t.Errorf("Order() = %v", first)
	}
}
