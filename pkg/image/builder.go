// SPDX-License-Identifier: MPL-2.0

package image

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	osnames "github.com/modlink/modlink/internal/platform"
	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/pool"
)

const (
	// DefaultBaseModule is the module that supplies release metadata.
	DefaultBaseModule = "base"
	// DefaultRuntime is the runtime binary launchers invoke from bin/.
	DefaultRuntime = "java"
)

type (
	// Option configures a Builder or Open.
	Option func(*options)

	options struct {
		baseModule  string
		runtime     string
		replace     bool
		parallelism int
		container   ContainerFactory
	}

	// Builder writes a pool to an image directory. It is the terminal
	// stage of a plugin stack.
	Builder struct {
		root string
		opts options
	}

	fileJob struct {
		dest    string
		source  string
		content []byte
		perm    fs.FileMode
	}

	linkJob struct {
		dest   string
		source string
		target string
	}

	// layout is the placement of every pool entry, computed before any file
	// is written.
	layout struct {
		files   []fileJob
		links   []linkJob
		classes []pool.Entry
		claimed map[string]string
		windows bool
	}
)

// WithBaseModule sets the module supplying release metadata.
func WithBaseModule(name string) Option {
	return func(o *options) { o.baseModule = name }
}

// WithRuntime sets the runtime binary name used by launchers.
func WithRuntime(name string) Option {
	return func(o *options) { o.runtime = name }
}

// WithReplace allows Store to replace an existing image at the root.
func WithReplace(replace bool) Option {
	return func(o *options) { o.replace = replace }
}

// WithParallelism bounds the number of files written concurrently.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithContainer replaces the packed container format.
func WithContainer(f ContainerFactory) Option {
	return func(o *options) { o.container = f }
}

func buildOptions(opts []Option) options {
	o := options{
		baseModule:  DefaultBaseModule,
		runtime:     DefaultRuntime,
		parallelism: runtime.GOMAXPROCS(0),
		container:   NewZipContainer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewBuilder returns a Builder writing to root. root must not exist unless
// WithReplace(true) is given.
func NewBuilder(root string, opts ...Option) (*Builder, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path: %w", err)
	}
	o := buildOptions(opts)
	if !o.replace {
		if _, err := os.Lstat(abs); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrOutputExists, abs)
		}
	}
	return &Builder{root: abs, opts: o}, nil
}

// Root returns the absolute image root.
func (b *Builder) Root() string { return b.root }

// Store writes p as an image. Release metadata is derived first, so a pool
// whose base module is missing or lacks OS_NAME fails before anything is
// written. All content goes to a staging directory next to the root which
// replaces the root only once every file has been written.
func (b *Builder) Store(p *pool.Pool) (img *ExecutableImage, err error) {
	props, err := b.release(p)
	if err != nil {
		return nil, err
	}
	platform := PlatformFor(props[KeyOSName])

	var modules []string
	for _, m := range p.Modules() {
		if len(m.Packages()) > 0 {
			modules = append(modules, m.Name)
		}
	}
	props[KeyModules] = strings.Join(modules, ",")

	plan, err := b.layout(p, platform, modules)
	if err != nil {
		return nil, err
	}
	plan.files = append(plan.files, fileJob{dest: ReleaseFile, source: "release metadata", content: EncodeRelease(props), perm: 0o644})

	parent := filepath.Dir(b.root)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, &WriteError{Path: parent, Cause: err}
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(b.root)+".staging-")
	if err != nil {
		return nil, &WriteError{Path: parent, Cause: err}
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staging) // best-effort cleanup, the image was never promoted
		}
	}()

	if err = b.write(staging, plan); err != nil {
		return nil, err
	}
	if err = promote(staging, b.root, b.opts.replace); err != nil {
		return nil, err
	}

	slog.Debug("image written", "path", b.root, "modules", len(modules), "files", len(plan.files))
	return newExecutableImage(b.root, modules, platform, b.opts.runtime), nil
}

func (b *Builder) release(p *pool.Pool) (map[string]string, error) {
	base, ok := p.Descriptor(b.opts.baseModule)
	if !ok {
		return nil, &ReleaseAttributeError{Module: b.opts.baseModule}
	}
	props, err := releaseProperties(base)
	if err != nil {
		return nil, err
	}
	if e, ok := p.Find("/" + base.Name + "/" + ReleaseFile); ok && e.Category() == archive.CategoryTop {
		extra, err := ParseRelease(e.Bytes())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Path(), err)
		}
		for k, v := range extra {
			props[k] = v
		}
		if props[KeyOSName] == "" {
			return nil, &ReleaseAttributeError{Module: base.Name, Attribute: "os_name"}
		}
	}
	return props, nil
}

func (b *Builder) layout(p *pool.Pool, platform Platform, modules []string) (*layout, error) {
	l := &layout{
		claimed: map[string]string{
			ReleaseFile:   "release metadata",
			ContainerFile: "module container",
		},
		windows: platform.IsWindows(),
	}

	for _, e := range p.Entries() {
		if e.Category() == archive.CategoryClasses && !e.IsLink() {
			l.classes = append(l.classes, e)
			continue
		}
		dest, ok := destination(e, platform)
		if !ok {
			continue
		}
		if err := l.claim(dest, e.Path()); err != nil {
			return nil, err
		}
		if e.IsLink() {
			l.links = append(l.links, linkJob{dest: dest, source: e.Path(), target: e.LinkTarget()})
			continue
		}
		perm := fs.FileMode(0o644)
		if e.Category() == archive.CategoryNativeCmd {
			perm = 0o755
		}
		l.files = append(l.files, fileJob{dest: dest, source: e.Path(), content: e.Bytes(), perm: perm})
	}

	for _, name := range modules {
		d, _ := p.Descriptor(name)
		if !d.Runnable() {
			continue
		}
		for _, script := range platform.Launchers() {
			dest := "bin/" + script.FileName(name)
			text := script.Render(b.opts.runtime, name, d.MainClass)
			if script.name == POSIXScript.name {
				if err := validatePOSIX(dest, text); err != nil {
					return nil, err
				}
			}
			if err := l.claim(dest, "launcher for "+name); err != nil {
				return nil, err
			}
			l.files = append(l.files, fileJob{dest: dest, source: "launcher for " + name, content: []byte(text), perm: 0o755})
		}
	}
	return l, nil
}

func (l *layout) claim(dest, source string) error {
	if l.windows {
		if elem, reserved := osnames.ReservedElement(dest); reserved {
			return &ReservedNameError{Dest: dest, Source: source, Element: elem}
		}
	}
	if first, taken := l.claimed[dest]; taken {
		return &ConflictError{Dest: dest, First: first, Second: source}
	}
	l.claimed[dest] = source
	return nil
}

// destination maps an entry to its image-relative path. Top-level release
// entries are merged into the release file instead of being written.
func destination(e pool.Entry, platform Platform) (string, bool) {
	name := e.Name()
	_, rest, found := strings.Cut(name, "/")
	if !found {
		rest = name
	}
	switch e.Category() {
	case archive.CategoryNativeLib:
		return path.Join(platform.NativeLibDir(rest), rest), true
	case archive.CategoryNativeCmd:
		return path.Join("bin", rest), true
	case archive.CategoryConfig:
		return path.Join("conf", rest), true
	case archive.CategoryTop:
		if name == ReleaseFile {
			return "", false
		}
		return name, true
	case archive.CategoryClasses:
		return name, true
	default:
		if strings.HasPrefix(name, "legal/") {
			return path.Join("legal", e.Module(), rest), true
		}
		return name, true
	}
}

func (b *Builder) write(staging string, l *layout) error {
	g := new(errgroup.Group)
	g.SetLimit(b.opts.parallelism)
	g.Go(func() error { return b.writeContainer(staging, l.classes) })
	for _, job := range l.files {
		g.Go(func() error { return writeFile(staging, job) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Links go last so that targets written above can be checked.
	for _, link := range l.links {
		if err := writeLink(staging, link); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) writeContainer(staging string, classes []pool.Entry) (err error) {
	dest := filepath.Join(staging, filepath.FromSlash(ContainerFile))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &WriteError{Path: ContainerFile, Cause: err}
	}
	f, err := os.Create(dest)
	if err != nil {
		return &WriteError{Path: ContainerFile, Cause: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = &WriteError{Path: ContainerFile, Cause: closeErr}
		}
	}()

	cw := b.opts.container(f)
	for _, e := range classes {
		if err := cw.Add(e.Module()+"/"+e.Name(), e.Reader()); err != nil {
			return &WriteError{Path: ContainerFile, Cause: err}
		}
	}
	if err := cw.Close(); err != nil {
		return &WriteError{Path: ContainerFile, Cause: err}
	}
	return nil
}

func writeFile(staging string, job fileJob) error {
	dest := filepath.Join(staging, filepath.FromSlash(job.dest))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &WriteError{Path: job.dest, Cause: err}
	}
	if err := os.WriteFile(dest, job.content, job.perm); err != nil {
		return &WriteError{Path: job.dest, Cause: err}
	}
	// WriteFile honours the umask; launchers and commands must stay executable.
	if job.perm&0o111 != 0 && runtime.GOOS != "windows" {
		if err := os.Chmod(dest, job.perm); err != nil {
			return &WriteError{Path: job.dest, Cause: err}
		}
	}
	return nil
}

func writeLink(staging string, link linkJob) error {
	target := path.Clean(link.target)
	if path.IsAbs(target) || target == ".." || strings.HasPrefix(target, "../") {
		return &DanglingLinkError{Path: link.dest, Target: link.target}
	}
	targetAbs := filepath.Join(staging, filepath.FromSlash(target))
	if _, err := os.Lstat(targetAbs); err != nil {
		return &DanglingLinkError{Path: link.dest, Target: link.target}
	}

	dest := filepath.Join(staging, filepath.FromSlash(link.dest))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &WriteError{Path: link.dest, Cause: err}
	}
	rel, err := filepath.Rel(filepath.Dir(dest), targetAbs)
	if err != nil {
		return &WriteError{Path: link.dest, Cause: err}
	}
	if err := os.Symlink(rel, dest); err != nil {
		return &WriteError{Path: link.dest, Cause: err}
	}
	return nil
}

// promote moves the staging directory to root, replacing an existing image
// when allowed.
func promote(staging, root string, replace bool) error {
	if _, err := os.Lstat(root); err == nil {
		if !replace {
			return fmt.Errorf("%w: %s", ErrOutputExists, root)
		}
		old := staging + ".old"
		if err := os.Rename(root, old); err != nil {
			return &WriteError{Path: root, Cause: err}
		}
		if err := os.Rename(staging, root); err != nil {
			return errors.Join(&WriteError{Path: root, Cause: err}, os.Rename(old, root))
		}
		if err := os.RemoveAll(old); err != nil {
			slog.Warn("failed to remove previous image", "path", old, "error", err)
		}
		return nil
	}
	if err := os.Rename(staging, root); err != nil {
		return &WriteError{Path: root, Cause: err}
	}
	return nil
}
