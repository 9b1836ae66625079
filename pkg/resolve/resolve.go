// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/modlink/modlink/internal/dag"
	"github.com/modlink/modlink/pkg/finder"
)

var (
	// ErrNoRoots is returned when neither root nor extra module names are
	// given.
	ErrNoRoots = errors.New("no root modules specified")

	// ErrModuleNotFound is the sentinel wrapped by ResolutionError.
	ErrModuleNotFound = errors.New("module not found")

	// ErrPackageConflict is the sentinel wrapped by PackageConflictError.
	ErrPackageConflict = errors.New("package exported by more than one module")
)

type (
	// ResolutionError reports a module that is required but absent from the
	// universe. RequiredBy is empty when the module was requested as a root.
	ResolutionError struct {
		Module     string
		RequiredBy string
	}

	// PackageConflictError reports two selected modules exporting the same
	// package.
	PackageConflictError struct {
		Package string
		First   string
		Second  string
	}

	// Graph is the result of a successful resolution. It is immutable.
	Graph struct {
		refs     map[string]*finder.Reference
		names    []string
		order    []string
		requires map[string][]string
	}

	// pending is a queued module name with the module that required it.
	pending struct {
		name       string
		requiredBy string
	}
)

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.RequiredBy == "" {
		return fmt.Sprintf("module %s not found", e.Module)
	}
	return fmt.Sprintf("module %s not found, required by %s", e.Module, e.RequiredBy)
}

// Unwrap returns ErrModuleNotFound for errors.Is() compatibility.
func (e *ResolutionError) Unwrap() error { return ErrModuleNotFound }

// Error implements the error interface.
func (e *PackageConflictError) Error() string {
	return fmt.Sprintf("package %s is exported by both %s and %s", e.Package, e.First, e.Second)
}

// Unwrap returns ErrPackageConflict for errors.Is() compatibility.
func (e *PackageConflictError) Unwrap() error { return ErrPackageConflict }

// Resolve computes the closure of roots and extra over f.
//
// When limit is not empty the universe is first restricted with Limit: the
// closure of limit plus the extra modules themselves. Roots outside that
// restricted universe then fail to resolve.
//
// The closure is computed breadth-first from the sorted root names, visiting
// the requires of each module in sorted order, so the reported error for a
// universe with several missing modules is always the same one. Cycles are
// tolerated.
func Resolve(f finder.Finder, roots, limit, extra []string) (*Graph, error) {
	rootSet := sortedUnique(roots, extra)
	if len(rootSet) == 0 {
		return nil, ErrNoRoots
	}

	universe := f
	if len(limit) > 0 {
		limited, err := Limit(f, limit, extra)
		if err != nil {
			return nil, err
		}
		universe = limited
	}

	refs, err := closure(universe, rootSet)
	if err != nil {
		return nil, err
	}
	g := newGraph(refs)
	if err := g.checkPackages(); err != nil {
		return nil, err
	}
	slog.Debug("modules resolved", "roots", rootSet, "modules", len(g.names))
	return g, nil
}

// Limit restricts f to the closure of limit, then adds each extra module
// found directly in f without taking its requires into account.
func Limit(f finder.Finder, limit, extra []string) (finder.Finder, error) {
	refs, err := closure(f, sortedUnique(limit))
	if err != nil {
		return nil, err
	}
	selected := make([]*finder.Reference, 0, len(refs)+len(extra))
	for _, name := range slices.Sorted(maps.Keys(refs)) {
		selected = append(selected, refs[name])
	}
	for _, name := range sortedUnique(extra) {
		if _, ok := refs[name]; ok {
			continue
		}
		if r, ok := f.Find(name); ok {
			selected = append(selected, r)
		}
	}
	return finder.Of(selected...), nil
}

func closure(f finder.Finder, roots []string) (map[string]*finder.Reference, error) {
	visited := make(map[string]*finder.Reference)
	queue := make([]pending, 0, len(roots))
	for _, name := range roots {
		queue = append(queue, pending{name: name})
	}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, done := visited[next.name]; done {
			continue
		}
		ref, ok := f.Find(next.name)
		if !ok {
			return nil, &ResolutionError{Module: next.name, RequiredBy: next.requiredBy}
		}
		visited[next.name] = ref
		for _, dep := range sortedUnique(ref.Descriptor().Requires) {
			if _, done := visited[dep]; !done {
				queue = append(queue, pending{name: dep, requiredBy: next.name})
			}
		}
	}
	return visited, nil
}

func newGraph(refs map[string]*finder.Reference) *Graph {
	g := &Graph{
		refs:     refs,
		names:    slices.Sorted(maps.Keys(refs)),
		requires: make(map[string][]string, len(refs)),
	}

	d := dag.New()
	for _, name := range g.names {
		d.AddNode(name)
	}
	for _, name := range g.names {
		deps := sortedUnique(refs[name].Descriptor().Requires)
		g.requires[name] = deps
		for _, dep := range deps {
			d.AddEdge(dep, name)
		}
	}

	order, err := d.TopologicalSort()
	var cycleErr *dag.CycleError
	if errors.As(err, &cycleErr) {
		slog.Debug("requires cycle", "modules", cycleErr.Cycle)
		order = append(cycleErr.Ordered, cycleErr.Cycle...)
	}
	g.order = order
	return g
}

func (g *Graph) checkPackages() error {
	owner := make(map[string]string)
	for _, name := range g.names {
		for _, pkg := range g.refs[name].Descriptor().Exports {
			if first, taken := owner[pkg]; taken {
				return &PackageConflictError{Package: pkg, First: first, Second: name}
			}
			owner[pkg] = name
		}
	}
	return nil
}

// Names returns the selected module names, sorted.
func (g *Graph) Names() []string { return slices.Clone(g.names) }

// Order returns the selected module names with every module after the
// modules it requires. Members of a requires cycle are listed after all
// other modules, by name.
func (g *Graph) Order() []string { return slices.Clone(g.order) }

// Len returns the number of selected modules.
func (g *Graph) Len() int { return len(g.names) }

// Find returns the reference of a selected module.
func (g *Graph) Find(name string) (*finder.Reference, bool) {
	r, ok := g.refs[name]
	return r, ok
}

// Requires returns the sorted requires of a selected module.
func (g *Graph) Requires(name string) []string { return slices.Clone(g.requires[name]) }

// References returns the selected references in Order.
func (g *Graph) References() []*finder.Reference {
	out := make([]*finder.Reference, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.refs[name])
	}
	return out
}

func sortedUnique(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
