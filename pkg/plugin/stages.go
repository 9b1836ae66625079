// SPDX-License-Identifier: MPL-2.0

package plugin

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/opencontainers/go-digest"

	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/finder"
	"github.com/modlink/modlink/pkg/image"
	"github.com/modlink/modlink/pkg/pool"
)

// ErrInvalidStageConfig is returned by stage constructors for unusable
// configuration.
var ErrInvalidStageConfig = errors.New("invalid stage configuration")

type (
	// ExcludeFiles drops every entry whose "<module>/<name>" path matches
	// one of its patterns.
	ExcludeFiles struct {
		patterns []string
	}

	// filterStage drops the entries its predicate rejects.
	filterStage struct {
		name string
		keep func(pool.Entry) bool
	}

	// OrderResources moves entries matching its patterns to the front, in
	// pattern order. Entries keep their relative order within a group.
	OrderResources struct {
		patterns []string
	}

	// ReleaseInfo edits the release entry of the base module.
	ReleaseInfo struct {
		base   string
		add    map[string]string
		delete []string
	}

	// CopyFiles adds host files to the base module as other entries.
	CopyFiles struct {
		base  string
		files map[string]string
	}

	// Symlinks adds link entries to the base module.
	Symlinks struct {
		base  string
		links map[string]string
	}

	// SystemModules adds the module table read by the system finder fast
	// path.
	SystemModules struct {
		base string
	}
)

// NewExcludeFiles returns an exclude-files stage.
func NewExcludeFiles(patterns []string) (*ExcludeFiles, error) {
	if err := validatePatterns(patterns); err != nil {
		return nil, err
	}
	return &ExcludeFiles{patterns: patterns}, nil
}

// Name implements Stage.
func (s *ExcludeFiles) Name() string { return StageExcludeFiles }

// Transform implements Stage.
func (s *ExcludeFiles) Transform(in *pool.Pool) (*pool.Pool, error) {
	return filter(in, func(e pool.Entry) bool { return matchIndex(s.patterns, e) < 0 })
}

// StripNativeCommands returns a stage dropping every native-cmd entry.
func StripNativeCommands() Stage {
	return &filterStage{
		name: StageStripNativeCommands,
		keep: func(e pool.Entry) bool { return e.Category() != archive.CategoryNativeCmd },
	}
}

func (s *filterStage) Name() string { return s.name }

func (s *filterStage) Transform(in *pool.Pool) (*pool.Pool, error) {
	return filter(in, s.keep)
}

// NewOrderResources returns an order-resources stage.
func NewOrderResources(patterns []string) (*OrderResources, error) {
	if err := validatePatterns(patterns); err != nil {
		return nil, err
	}
	return &OrderResources{patterns: patterns}, nil
}

// Name implements Stage.
func (s *OrderResources) Name() string { return StageOrderResources }

// Transform implements Stage.
func (s *OrderResources) Transform(in *pool.Pool) (*pool.Pool, error) {
	groups := make([][]pool.Entry, len(s.patterns)+1)
	for _, e := range in.Entries() {
		i := matchIndex(s.patterns, e)
		if i < 0 {
			i = len(s.patterns)
		}
		groups[i] = append(groups[i], e)
	}
	out := in.Derive()
	for _, group := range groups {
		if err := addAll(out, group); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NewReleaseInfo returns a release-info stage. Deletions are applied before
// additions.
func NewReleaseInfo(base string, add map[string]string, del []string) *ReleaseInfo {
	return &ReleaseInfo{base: base, add: add, delete: del}
}

// Name implements Stage.
func (s *ReleaseInfo) Name() string { return StageReleaseInfo }

// Transform implements Stage.
func (s *ReleaseInfo) Transform(in *pool.Pool) (*pool.Pool, error) {
	if _, ok := in.Descriptor(s.base); !ok {
		return nil, fmt.Errorf("base module %s is not in the pool", s.base)
	}
	releasePath := "/" + s.base + "/" + image.ReleaseFile

	props := map[string]string{}
	if e, ok := in.Find(releasePath); ok {
		parsed, err := image.ParseRelease(e.Bytes())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", releasePath, err)
		}
		props = parsed
	}
	for _, k := range s.delete {
		delete(props, k)
	}
	maps.Copy(props, s.add)

	out, err := filter(in, func(e pool.Entry) bool { return e.Path() != releasePath })
	if err != nil {
		return nil, err
	}
	if err := out.Add(pool.NewEntry(s.base, image.ReleaseFile, archive.CategoryTop, image.EncodeRelease(props))); err != nil {
		return nil, err
	}
	return out, nil
}

// NewCopyFiles returns a copy-files stage. files maps host paths to
// image-relative destinations.
func NewCopyFiles(base string, files map[string]string) (*CopyFiles, error) {
	for _, dest := range files {
		if err := validateImagePath(dest); err != nil {
			return nil, err
		}
	}
	return &CopyFiles{base: base, files: files}, nil
}

// Name implements Stage.
func (s *CopyFiles) Name() string { return StageCopyFiles }

// Transform implements Stage.
func (s *CopyFiles) Transform(in *pool.Pool) (*pool.Pool, error) {
	out, err := filter(in, func(pool.Entry) bool { return true })
	if err != nil {
		return nil, err
	}
	for _, src := range slices.Sorted(maps.Keys(s.files)) {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", src, err)
		}
		if err := out.Add(pool.NewEntry(s.base, s.files[src], archive.CategoryOther, data)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NewSymlinks returns a symlinks stage. links maps image-relative link
// paths to image-relative targets.
func NewSymlinks(base string, links map[string]string) (*Symlinks, error) {
	for link, target := range links {
		if err := validateImagePath(link); err != nil {
			return nil, err
		}
		if err := validateImagePath(target); err != nil {
			return nil, err
		}
	}
	return &Symlinks{base: base, links: links}, nil
}

// Name implements Stage.
func (s *Symlinks) Name() string { return StageSymlinks }

// Transform implements Stage.
func (s *Symlinks) Transform(in *pool.Pool) (*pool.Pool, error) {
	out, err := filter(in, func(pool.Entry) bool { return true })
	if err != nil {
		return nil, err
	}
	for _, link := range slices.Sorted(maps.Keys(s.links)) {
		if err := out.Add(pool.NewLink(s.base, link, archive.CategoryOther, s.links[link])); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NewSystemModules returns a system-modules stage.
func NewSystemModules(base string) *SystemModules {
	return &SystemModules{base: base}
}

// Name implements Stage.
func (s *SystemModules) Name() string { return StageSystemModules }

// Transform implements Stage. The table lists every module of the pool,
// sorted by name, with a digest of its content.
func (s *SystemModules) Transform(in *pool.Pool) (*pool.Pool, error) {
	if _, ok := in.Descriptor(s.base); !ok {
		return nil, fmt.Errorf("base module %s is not in the pool", s.base)
	}
	tablePath := "/" + s.base + "/" + finder.TableFile
	out, err := filter(in, func(e pool.Entry) bool { return e.Path() != tablePath })
	if err != nil {
		return nil, err
	}

	byModule := make(map[string][]pool.Entry)
	for _, e := range out.Entries() {
		byModule[e.Module()] = append(byModule[e.Module()], e)
	}

	table := &finder.ModuleTable{}
	for _, name := range slices.Sorted(slices.Values(out.ModuleNames())) {
		d, _ := out.Descriptor(name)
		table.Modules = append(table.Modules, finder.TableEntry{
			Descriptor: *d,
			Hash:       moduleDigest(byModule[name]).String(),
		})
	}
	data, err := finder.EncodeModuleTable(table)
	if err != nil {
		return nil, err
	}
	if err := out.Add(pool.NewEntry(s.base, finder.TableFile, archive.CategoryOther, data)); err != nil {
		return nil, err
	}
	return out, nil
}

// moduleDigest hashes the entries of one module in name order, each as its
// name, a NUL byte and its content. Link entries contribute their target.
func moduleDigest(entries []pool.Entry) digest.Digest {
	sorted := slices.SortedFunc(slices.Values(entries), func(a, b pool.Entry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	d := digest.Canonical.Digester()
	h := d.Hash()
	for _, e := range sorted {
		h.Write([]byte(e.Name()))
		h.Write([]byte{0})
		if e.IsLink() {
			h.Write([]byte(e.LinkTarget()))
		} else {
			h.Write(e.Bytes())
		}
	}
	return d.Digest()
}

func filter(in *pool.Pool, keep func(pool.Entry) bool) (*pool.Pool, error) {
	out := in.Derive()
	for _, e := range in.Entries() {
		if !keep(e) {
			continue
		}
		if err := out.Add(e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func addAll(p *pool.Pool, entries []pool.Entry) error {
	for _, e := range entries {
		if err := p.Add(e); err != nil {
			return err
		}
	}
	return nil
}

// matchIndex returns the index of the first pattern matching e, or -1.
func matchIndex(patterns []string, e pool.Entry) int {
	rel := e.Module() + "/" + e.Name()
	for i, pat := range patterns {
		if matched, err := doublestar.Match(pat, rel); err == nil && matched {
			return i
		}
	}
	return -1
}

func validatePatterns(patterns []string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("%w: bad pattern %q", ErrInvalidStageConfig, pat)
		}
	}
	return nil
}

func validateImagePath(p string) error {
	if p == "" || path.IsAbs(p) || path.Clean(p) != p || p == ".." || strings.HasPrefix(p, "../") {
		return fmt.Errorf("%w: %q is not a relative image path", ErrInvalidStageConfig, p)
	}
	return nil
}
