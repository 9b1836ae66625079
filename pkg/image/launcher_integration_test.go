// SPDX-License-Identifier: MPL-2.0

package image

import (
	"context"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"

	"github.com/modlink/modlink/internal/testutil"
	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/descriptor"
	"github.com/modlink/modlink/pkg/pool"
)

const launcherTestImage = "alpine:3.20"

// checkTestcontainersAvailable reports whether a container provider can be
// reached. Provider detection panics on some hosts without an engine.
func checkTestcontainersAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

// echoRuntimePool builds a pool whose runtime binary prints its arguments,
// so running a launcher shows the exact command line it produced.
func echoRuntimePool(t *testing.T) *pool.Pool {
	t.Helper()
	return newPool(t, linuxBase()).
		add(pool.NewEntry("base", "base/lang/Object.class", archive.CategoryClasses, []byte("object"))).
		add(pool.NewEntry("base", "bin/java", archive.CategoryNativeCmd, []byte("#!/bin/sh\necho \"$@\"\n"))).
		module(descriptor.Descriptor{Name: "app", Requires: []string{"base"}, Exports: []string{"app"}, MainClass: "app.Main"}).
		add(pool.NewEntry("app", "app/Main.class", archive.CategoryClasses, []byte("main"))).
		p
}

// copyImage copies every regular file of the image at root to dest inside
// the container, keeping the file modes.
func copyImage(ctx context.Context, t *testing.T, ctr testcontainers.Container, root, dest string) {
	t.Helper()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return ctr.CopyFileToContainer(ctx, path, dest+"/"+filepath.ToSlash(rel), int64(info.Mode().Perm()))
	})
	require.NoError(t, err)
}

func TestLauncher_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !checkTestcontainersAvailable() {
		t.Skip("skipping launcher integration test: testcontainers provider not available")
	}

	sem := testutil.ContainerSemaphore()
	sem <- struct{}{}
	defer func() { <-sem }()

	ctx, cancel := context.WithTimeout(t.Context(), 3*time.Minute)
	defer cancel()

	img, root := store(t, echoRuntimePool(t))
	require.NoError(t, img.StoreLaunchArgs([]string{"-Xmx1g", "-Dgreeting=hello world"}))

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: launcherTestImage,
			Cmd:   []string{"sleep", "300"},
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	copyImage(ctx, t, ctr, root, "/image")

	run := func(t *testing.T, cmd ...string) string {
		t.Helper()
		code, reader, err := ctr.Exec(ctx, cmd, tcexec.Multiplexed())
		require.NoError(t, err)
		out, err := io.ReadAll(reader)
		require.NoError(t, err)
		require.Equal(t, 0, code, "output: %s", out)
		return strings.TrimSpace(string(out))
	}

	t.Run("StoredArgs", func(t *testing.T) {
		out := run(t, "/image/bin/app", "first", "second arg")
		assert.Equal(t, "-Xmx1g -Dgreeting=hello world -m app/app.Main first second arg", out)
	})

	t.Run("ReleaseReadable", func(t *testing.T) {
		out := run(t, "cat", "/image/release")
		assert.Contains(t, out, `MODULES="app,base"`)
	})
}
