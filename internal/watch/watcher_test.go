// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func startWatcher(t *testing.T, cfg Config) (cancel func() error) {
	t.Helper()

	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	return func() error {
		stop()
		return <-errCh
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// TestWatcherDebounce verifies that rapid events are coalesced into a single
// callback carrying every changed path in sorted order.
func TestWatcherDebounce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var (
		mu        sync.Mutex
		calls     int
		collected []string
	)
	done := make(chan struct{})

	stop := startWatcher(t, Config{
		Roots:    []string{dir},
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			collected = append(collected, changed...)
			if calls == 1 {
				close(done)
			}
			return nil
		},
	})

	for _, name := range []string{"c.jar", "a.jar", "b.jar"} {
		writeFile(t, filepath.Join(dir, name))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	time.Sleep(200 * time.Millisecond)

	if err := stop(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if calls != 1 {
		t.Errorf("expected 1 debounced callback, got %d", calls)
	}
	if !slices.IsSorted(collected) {
		t.Errorf("changed paths not sorted: %v", collected)
	}
	for _, name := range []string{"a.jar", "b.jar", "c.jar"} {
		if !slices.Contains(collected, filepath.Join(dir, name)) {
			t.Errorf("expected %q in changed files, got %v", name, collected)
		}
	}
}

func TestWatcherIgnorePatterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fired := make(chan []string, 10)

	stop := startWatcher(t, Config{
		Roots:    []string{dir},
		Ignore:   []string{"**/*.log"},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})

	writeFile(t, filepath.Join(dir, "build.log"))

	select {
	case changed := <-fired:
		t.Errorf("callback fired for ignored file: %v", changed)
	case <-time.After(500 * time.Millisecond):
	}

	if err := stop(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}

// TestWatcherFileRoot verifies that an archive root reports changes to the
// archive only, not to its siblings.
func TestWatcherFileRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "app.jar")
	writeFile(t, archive)

	fired := make(chan []string, 10)
	stop := startWatcher(t, Config{
		Roots:    []string{archive},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})

	writeFile(t, filepath.Join(dir, "other.jar"))
	select {
	case changed := <-fired:
		t.Fatalf("callback fired for sibling file: %v", changed)
	case <-time.After(300 * time.Millisecond):
	}

	writeFile(t, archive)
	select {
	case changed := <-fired:
		if !slices.Equal(changed, []string{archive}) {
			t.Errorf("changed = %v, want [%s]", changed, archive)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	if err := stop(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}

func TestWatcherMissingRoots(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := New(Config{Roots: []string{filepath.Join(dir, "absent")}})
	if !errors.Is(err, ErrNoRoots) {
		t.Fatalf("New() error = %v, want ErrNoRoots", err)
	}

	w, err := New(Config{Roots: []string{filepath.Join(dir, "absent"), dir}})
	if err != nil {
		t.Fatalf("New() with one existing root: %v", err)
	}
	if len(w.roots) != 1 || w.roots[0].path != dir {
		t.Errorf("roots = %+v, want only %s", w.roots, dir)
	}
	if err := w.fsw.Close(); err != nil {
		t.Logf("close: %v", err)
	}
}

func TestWatcherContextCancel(t *testing.T) {
	t.Parallel()

	w, err := New(Config{Roots: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() returned %v after cancel, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestDefaultIgnores(t *testing.T) {
	t.Parallel()

	w := &Watcher{ignores: DefaultIgnores()}

	tests := []struct {
		path string
		want bool
	}{
		{".git/HEAD", true},
		{"mods/.git/objects/ab", true},
		{"app/module.cue.swp", true},
		{"app/Main.class~", true},
		{".DS_Store", true},
		{"out/.image.staging-123/lib/modules", true},
		{"app/module.cue", false},
		{"app.jar", false},
	}

	for _, tt := range tests {
		if got := w.isIgnored(tt.path); got != tt.want {
			t.Errorf("isIgnored(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	// The returned slice is a copy.
	got := DefaultIgnores()
	got[0] = "mutated"
	if defaultIgnores[0] == "mutated" {
		t.Error("DefaultIgnores() exposed the internal slice")
	}
}

// TestWatcherSkipIfBusy verifies that events arriving during a running
// callback are delivered in a later callback and never overlap.
func TestWatcherSkipIfBusy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var (
		active  atomic.Int32
		overlap atomic.Bool
		calls   atomic.Int32
	)
	first := make(chan struct{})
	second := make(chan struct{})

	stop := startWatcher(t, Config{
		Roots:    []string{dir},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, _ []string) error {
			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			defer active.Add(-1)

			switch calls.Add(1) {
			case 1:
				close(first)
				time.Sleep(300 * time.Millisecond)
			case 2:
				close(second)
			}
			return nil
		},
	})

	writeFile(t, filepath.Join(dir, "one.jar"))
	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first callback")
	}

	writeFile(t, filepath.Join(dir, "two.jar"))
	select {
	case <-second:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for second callback")
	}

	if err := stop(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if overlap.Load() {
		t.Error("callbacks overlapped")
	}
}

func TestWatcherInvalidPattern(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	if _, err := New(Config{Roots: []string{dir}, Patterns: []string{"[invalid"}}); err == nil {
		t.Error("expected error for invalid watch pattern")
	}
	if _, err := New(Config{Roots: []string{dir}, Ignore: []string{"[invalid"}}); err == nil {
		t.Error("expected error for invalid ignore pattern")
	}
}

func TestWatcherDoubleRunError(t *testing.T) {
	t.Parallel()

	w, err := New(Config{Roots: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	if err := w.Run(ctx); err == nil {
		t.Error("second Run() should fail")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("first Run() error: %v", err)
	}
}

func TestWatcherPatternFiltering(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fired := make(chan []string, 10)

	stop := startWatcher(t, Config{
		Roots:    []string{dir},
		Patterns: []string{"**/*.jar", "**/module.cue"},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})

	writeFile(t, filepath.Join(dir, "notes.txt"))
	select {
	case changed := <-fired:
		t.Fatalf("callback fired for non-matching file: %v", changed)
	case <-time.After(300 * time.Millisecond):
	}

	writeFile(t, filepath.Join(dir, "app.jar"))
	select {
	case changed := <-fired:
		if !slices.Contains(changed, filepath.Join(dir, "app.jar")) {
			t.Errorf("changed = %v, want app.jar", changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	if err := stop(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}
