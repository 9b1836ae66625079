// SPDX-License-Identifier: MPL-2.0

package linker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/modlink/modlink/internal/watch"
)

// Watch links once, then relinks every time a module path location changes
// until ctx is cancelled. Every outcome, failed or not, is passed to report.
//
// Once an image has been written, later links replace it. Keeping packaged
// modules and saving options only happen on the first link.
func Watch(ctx context.Context, o Options, debounce time.Duration, report func(*Result, error)) error {
	if err := o.Validate(); err != nil {
		return err
	}
	output, err := filepath.Abs(o.Output)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	res, err := Link(ctx, o)
	report(res, err)
	linked := err == nil

	relink := func(ctx context.Context, changed []string) error {
		if allUnder(changed, output) {
			return nil
		}
		slog.Info("module path changed, relinking", "changes", len(changed))

		next := o
		next.Replace = o.Replace || linked
		next.KeepPackagedModules = ""
		next.SaveOpts = ""
		res, err := Link(ctx, next)
		if err == nil {
			linked = true
		}
		report(res, err)
		return nil
	}

	w, err := watch.New(watch.Config{
		Roots:    o.ModulePath,
		Debounce: debounce,
		OnChange: relink,
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	return w.Run(ctx)
}

// allUnder reports whether every path is inside dir, which is the case for
// the events caused by writing the image itself.
func allUnder(paths []string, dir string) bool {
	parent := filepath.Dir(dir)
	for _, p := range paths {
		if p == dir || strings.HasPrefix(p, dir+string(filepath.Separator)) {
			continue
		}
		// Staging directories live next to the image.
		if rel, err := filepath.Rel(parent, p); err == nil {
			first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
			if strings.HasPrefix(first, "."+filepath.Base(dir)+".staging-") {
				continue
			}
		}
		return false
	}
	return true
}
