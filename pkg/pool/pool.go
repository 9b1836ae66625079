// SPDX-License-Identifier: MPL-2.0

package pool

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/descriptor"
)

var (
	// ErrDuplicateEntry is returned when an entry path is added twice.
	ErrDuplicateEntry = errors.New("duplicate pool entry")

	// ErrInvalidEntry is returned for entries with a malformed path,
	// unknown category or unknown module.
	ErrInvalidEntry = errors.New("invalid pool entry")
)

type (
	// Entry is one file of the pool. Entries are values; stages that change
	// content build a new Entry.
	Entry struct {
		module   string
		name     string
		category archive.Category
		content  []byte
		link     string
	}

	// Pool is an ordered set of entries plus the descriptors of the
	// modules they belong to.
	Pool struct {
		entries []Entry
		index   map[string]int
		modules map[string]*descriptor.Descriptor
		order   []string
	}

	// Module is the module-level view of a pool.
	Module struct {
		Name       string
		Descriptor *descriptor.Descriptor
		packages   []string
	}
)

// NewEntry creates an entry of module with the given module-relative name.
func NewEntry(module, name string, category archive.Category, content []byte) Entry {
	return Entry{module: module, name: name, category: category, content: content}
}

// NewLink creates a link entry: the image builder materialises it as a
// symbolic link at the entry's location pointing at target, an image-relative
// path that must already exist in the image.
func NewLink(module, name string, category archive.Category, target string) Entry {
	return Entry{module: module, name: name, category: category, link: target}
}

// Module returns the owning module name.
func (e Entry) Module() string { return e.module }

// Name returns the module-relative, slash-separated entry name.
func (e Entry) Name() string { return e.name }

// Path returns the logical path "/<module>/<name>".
func (e Entry) Path() string { return "/" + e.module + "/" + e.name }

// Category returns the entry category.
func (e Entry) Category() archive.Category { return e.category }

// Size returns the content length in bytes.
func (e Entry) Size() int { return len(e.content) }

// Bytes returns the entry content. Callers must not modify it.
func (e Entry) Bytes() []byte { return e.content }

// Reader returns a reader over the entry content.
func (e Entry) Reader() io.Reader { return bytes.NewReader(e.content) }

// LinkTarget returns the link target, or "" for regular entries.
func (e Entry) LinkTarget() string { return e.link }

// IsLink reports whether the entry is a link entry.
func (e Entry) IsLink() bool { return e.link != "" }

// WithContent returns a copy of e with new content.
func (e Entry) WithContent(content []byte) Entry {
	e.content = content
	e.link = ""
	return e
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		index:   make(map[string]int),
		modules: make(map[string]*descriptor.Descriptor),
	}
}

// Derive returns an empty pool that knows the same modules as p. Stages
// build their output pool this way.
func (p *Pool) Derive() *Pool {
	out := New()
	for _, name := range p.order {
		out.modules[name] = p.modules[name]
	}
	out.order = slices.Clone(p.order)
	return out
}

// AddModule registers a module descriptor. Entries can only be added for
// registered modules.
func (p *Pool) AddModule(d *descriptor.Descriptor) {
	if _, ok := p.modules[d.Name]; ok {
		return
	}
	p.modules[d.Name] = d
	p.order = append(p.order, d.Name)
}

// Add appends e. Adding a path twice, or an entry of an unregistered module,
// is an error.
func (p *Pool) Add(e Entry) error {
	if _, ok := p.modules[e.module]; !ok {
		return fmt.Errorf("%w: %s: unknown module %q", ErrInvalidEntry, e.Path(), e.module)
	}
	if !e.category.IsValid() {
		return fmt.Errorf("%w: %s: unknown category %q", ErrInvalidEntry, e.Path(), e.category)
	}
	if e.name == "" || path.Clean(e.name) != e.name || strings.HasPrefix(e.name, "../") || strings.HasPrefix(e.name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidEntry, e.Path())
	}
	key := e.Path()
	if _, exists := p.index[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, key)
	}
	p.index[key] = len(p.entries)
	p.entries = append(p.entries, e)
	return nil
}

// Find returns the entry at a logical path.
func (p *Pool) Find(logicalPath string) (Entry, bool) {
	i, ok := p.index[logicalPath]
	if !ok {
		return Entry{}, false
	}
	return p.entries[i], true
}

// Entries returns the entries in insertion order.
func (p *Pool) Entries() []Entry { return slices.Clone(p.entries) }

// Len returns the number of entries.
func (p *Pool) Len() int { return len(p.entries) }

// ModuleNames returns the registered modules in registration order.
func (p *Pool) ModuleNames() []string { return slices.Clone(p.order) }

// Descriptor returns the descriptor of a registered module.
func (p *Pool) Descriptor(module string) (*descriptor.Descriptor, bool) {
	d, ok := p.modules[module]
	return d, ok
}

// Modules returns the module view, sorted by name. The packages of a module
// are the directories of its class content, excluding the module root and
// META-INF, in dotted form.
func (p *Pool) Modules() []Module {
	packages := make(map[string]map[string]bool, len(p.modules))
	for _, e := range p.entries {
		if e.category != archive.CategoryClasses {
			continue
		}
		dir := path.Dir(e.name)
		if dir == "." || dir == "META-INF" || strings.HasPrefix(dir, "META-INF/") {
			continue
		}
		if packages[e.module] == nil {
			packages[e.module] = make(map[string]bool)
		}
		packages[e.module][strings.ReplaceAll(dir, "/", ".")] = true
	}

	out := make([]Module, 0, len(p.modules))
	for _, name := range slices.Sorted(slices.Values(p.order)) {
		m := Module{Name: name, Descriptor: p.modules[name]}
		for pkg := range packages[name] {
			m.packages = append(m.packages, pkg)
		}
		slices.Sort(m.packages)
		out = append(out, m)
	}
	return out
}

// Packages returns the sorted packages of the module.
func (m Module) Packages() []string { return slices.Clone(m.packages) }
