// SPDX-License-Identifier: MPL-2.0

package linker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/finder"
	"github.com/modlink/modlink/pkg/image"
	"github.com/modlink/modlink/pkg/plugin"
	"github.com/modlink/modlink/pkg/pool"
	"github.com/modlink/modlink/pkg/resolve"
)

// Result is the outcome of a successful link.
type Result struct {
	Image    *image.ExecutableImage
	Graph    *resolve.Graph
	Warnings []archive.Warning
	// Kept lists the files written to the keep-packaged-modules directory.
	Kept []string
}

// Link runs the whole link task. The context is checked between phases; a
// phase that has started runs to completion.
func Link(ctx context.Context, o Options) (*Result, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	stages, err := plugin.FromConfig(o.Stages, plugin.Env{BaseModule: o.baseModule()})
	if err != nil {
		return nil, fmt.Errorf("failed to configure plugins: %w", err)
	}

	f, err := finder.OfPaths(o.ModulePath...)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Added modules are also the extra set, so they stay visible through a
	// limit even when the limit closure does not reach them.
	g, err := resolve.Resolve(f, o.AddModules, o.LimitModules, o.AddModules)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, warnings, err := pool.Assemble(g)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		slog.Warn("entry skipped", "path", w.Path, "reason", w.Reason)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	builder, err := image.NewBuilder(o.Output, o.builderOptions()...)
	if err != nil {
		return nil, err
	}
	stack, err := plugin.NewStack(builder, stages...)
	if err != nil {
		return nil, err
	}
	img, err := stack.Run(p)
	if err != nil {
		return nil, err
	}
	slog.Info("image linked", "path", img.Home(), "modules", len(g.Names()), "entries", p.Len())

	if len(o.LaunchArgs) > 0 {
		if err := img.StoreLaunchArgs(o.LaunchArgs); err != nil {
			return nil, err
		}
	}

	res := &Result{Image: img, Graph: g, Warnings: warnings}
	if o.KeepPackagedModules != "" {
		if res.Kept, err = keepPackagedModules(g, o.KeepPackagedModules); err != nil {
			return nil, err
		}
	}
	if o.SaveOpts != "" {
		if err := SaveOptions(o.SaveOpts, o.CommandLine); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// PostProcess patches the launchers of the existing image at home with
// args, without relinking.
func PostProcess(ctx context.Context, home string, args []string) (*image.ExecutableImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := image.Open(home)
	if err != nil {
		return nil, err
	}
	if err := img.StoreLaunchArgs(args); err != nil {
		return nil, err
	}
	slog.Info("launchers patched", "path", img.Home(), "modules", len(img.Modules()))
	return img, nil
}

func (o Options) baseModule() string {
	if o.BaseModule == "" {
		return image.DefaultBaseModule
	}
	return o.BaseModule
}

func (o Options) builderOptions() []image.Option {
	opts := []image.Option{
		image.WithBaseModule(o.baseModule()),
		image.WithReplace(o.Replace),
	}
	if o.Runtime != "" {
		opts = append(opts, image.WithRuntime(o.Runtime))
	}
	if o.Parallelism > 0 {
		opts = append(opts, image.WithParallelism(o.Parallelism))
	}
	return opts
}

// keepPackagedModules copies the archive of every selected module into dir.
// Packed and zip modules are copied as they are; exploded directories are
// packed.
func keepPackagedModules(g *resolve.Graph, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	var kept []string
	for _, ref := range g.References() {
		src, kind, err := archiveSource(ref)
		if err != nil {
			return nil, err
		}
		var dst string
		switch kind {
		case archive.KindDirectory:
			dst, err = archive.Pack(src, filepath.Join(dir, ref.Name()+archive.PackedExt))
		case archive.KindPacked, archive.KindZip:
			dst = filepath.Join(dir, filepath.Base(src))
			err = copyFile(src, dst)
		default:
			slog.Warn("module has no archive to keep", "module", ref.Name(), "path", ref.Location())
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to keep module %s: %w", ref.Name(), err)
		}
		kept = append(kept, dst)
	}
	return kept, nil
}

func archiveSource(ref *finder.Reference) (path string, kind archive.Kind, err error) {
	a, err := ref.Open()
	if err != nil {
		return "", "", err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return a.Path(), a.Kind(), nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := in.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}

// SaveOptions writes args to path as one shell-quoted line.
func SaveOptions(path string, args []string) error {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		q, err := syntax.Quote(arg, syntax.LangPOSIX)
		if err != nil {
			return fmt.Errorf("failed to quote %q: %w", arg, err)
		}
		quoted = append(quoted, q)
	}
	if err := os.WriteFile(path, []byte(strings.Join(quoted, " ")+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to save options: %w", err)
	}
	return nil
}
