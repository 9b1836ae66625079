// SPDX-License-Identifier: MPL-2.0

package linker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modlink/modlink/internal/testutil"
	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/image"
	"github.com/modlink/modlink/pkg/plugin"
	"github.com/modlink/modlink/pkg/resolve"
)

// writeUniverse writes base <- lib <- app plus an unrelated module and
// returns the module directory.
func writeUniverse(t *testing.T) string {
	t.Helper()

	base := testutil.Module("base")
	base.Descriptor.Version = "21.0.2+13"
	base.Descriptor.OSName = "Linux"
	base.Descriptor.OSArch = "amd64"

	app := testutil.Module("app", "lib")
	app.Descriptor.MainClass = "app.Main"
	app.Files["conf/app.properties"] = "k=v"

	return testutil.WriteModules(t, t.TempDir(),
		base,
		testutil.Module("lib", "base"),
		app,
		testutil.Module("other", "base"),
	)
}

func linkOptions(t *testing.T, mods string) Options {
	t.Helper()
	return Options{
		ModulePath: []string{mods},
		AddModules: []string{"app"},
		Output:     filepath.Join(t.TempDir(), "image"),
	}
}

func TestOptions_Validate(t *testing.T) {
	t.Parallel()

	existing := t.TempDir()
	valid := Options{ModulePath: []string{"mods"}, AddModules: []string{"app"}, Output: filepath.Join(existing, "image")}

	tests := []struct {
		name   string
		mutate func(*Options)
		option string
	}{
		{"valid", func(*Options) {}, ""},
		{"no module path", func(o *Options) { o.ModulePath = nil }, "--module-path"},
		{"blank location", func(o *Options) { o.ModulePath = []string{" "} }, "--module-path"},
		{"no roots", func(o *Options) { o.AddModules = nil }, "--add-modules"},
		{"bad root name", func(o *Options) { o.AddModules = []string{"bad name"} }, "--add-modules"},
		{"bad limit name", func(o *Options) { o.LimitModules = []string{"-x"} }, "--limit-modules"},
		{"no output", func(o *Options) { o.Output = "" }, "--output"},
		{"output exists", func(o *Options) { o.Output = existing }, "--output"},
		{"output exists with replace", func(o *Options) { o.Output, o.Replace = existing, true }, ""},
		{"keep dir exists", func(o *Options) { o.KeepPackagedModules = existing }, "--keep-packaged-modules"},
		{"keep dir is output", func(o *Options) { o.KeepPackagedModules = o.Output }, "--keep-packaged-modules"},
		{"negative parallelism", func(o *Options) { o.Parallelism = -1 }, "--parallelism"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			o := valid
			tt.mutate(&o)
			err := o.Validate()
			if tt.option == "" {
				assert.NoError(t, err)
				return
			}
			var optErr *OptionsError
			require.ErrorAs(t, err, &optErr)
			assert.Equal(t, tt.option, optErr.Option)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestSplitModulePath(t *testing.T) {
	t.Parallel()

	sep := string(filepath.ListSeparator)
	assert.Equal(t, []string{"mods", "libs"}, SplitModulePath("mods"+sep+sep+" libs "))
	assert.Nil(t, SplitModulePath(""))
}

func TestSplitModules(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"app", "lib"}, SplitModules("app, ,lib,"))
	assert.Nil(t, SplitModules(""))
}

func TestLink(t *testing.T) {
	t.Parallel()

	o := linkOptions(t, writeUniverse(t))
	res, err := Link(context.Background(), o)
	require.NoError(t, err)

	assert.Equal(t, []string{"app", "base", "lib"}, res.Graph.Names())
	assert.Equal(t, []string{"app", "base", "lib"}, res.Image.Modules())

	props, err := image.ReadRelease(filepath.Join(o.Output, image.ReleaseFile))
	require.NoError(t, err)
	assert.Equal(t, "app,base,lib", props[image.KeyModules])
	assert.Equal(t, "Linux", props[image.KeyOSName])

	assert.FileExists(t, filepath.Join(o.Output, "bin", "app"))
	assert.FileExists(t, filepath.Join(o.Output, "conf", "app.properties"))
	assert.FileExists(t, filepath.Join(o.Output, image.ContainerFile))
	assert.NoFileExists(t, filepath.Join(o.Output, "bin", "lib"), "lib has no main class")
}

func TestLink_LimitModules(t *testing.T) {
	t.Parallel()

	o := linkOptions(t, writeUniverse(t))
	o.AddModules = []string{"other"}
	o.LimitModules = []string{"base"}

	res, err := Link(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "other"}, res.Graph.Names())

	// A root whose requirement lies outside the limit closure fails.
	o = linkOptions(t, writeUniverse(t))
	o.LimitModules = []string{"base"}
	_, err = Link(context.Background(), o)
	var resErr *resolve.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "lib", resErr.Module)
	assert.Equal(t, "app", resErr.RequiredBy)
}

func TestLink_MissingModule(t *testing.T) {
	t.Parallel()

	o := linkOptions(t, writeUniverse(t))
	o.AddModules = []string{"absent"}

	_, err := Link(context.Background(), o)
	require.ErrorIs(t, err, resolve.ErrModuleNotFound)
	assert.NoDirExists(t, o.Output)
}

func TestLink_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := linkOptions(t, writeUniverse(t))
	_, err := Link(ctx, o)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, o.Output)
}

func TestLink_Stages(t *testing.T) {
	t.Parallel()

	o := linkOptions(t, writeUniverse(t))
	o.Stages = []plugin.StageConfig{
		{Name: plugin.StageExcludeFiles, Patterns: []string{"app/conf/**"}},
		{Name: plugin.StageReleaseInfo, Add: map[string]string{"VENDOR": "modlink"}},
	}

	_, err := Link(context.Background(), o)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(o.Output, "conf", "app.properties"))

	props, err := image.ReadRelease(filepath.Join(o.Output, image.ReleaseFile))
	require.NoError(t, err)
	assert.Equal(t, "modlink", props["VENDOR"])
}

func TestLink_BaseReleaseEntry(t *testing.T) {
	t.Parallel()

	base := testutil.Module("base")
	base.Descriptor.Version = "21.0.2+13"
	base.Descriptor.OSName = "Linux"
	base.Descriptor.OSArch = "amd64"
	base.Files[archive.ReleaseEntry] = "IMPLEMENTOR=\"acme\"\nSOURCE=\"git\"\n"
	app := testutil.Module("app", "base")
	app.Descriptor.MainClass = "app.Main"
	mods := testutil.WriteModules(t, t.TempDir(), base, app)

	t.Run("Merged", func(t *testing.T) {
		t.Parallel()

		o := linkOptions(t, mods)
		_, err := Link(context.Background(), o)
		require.NoError(t, err)

		props, err := image.ReadRelease(filepath.Join(o.Output, image.ReleaseFile))
		require.NoError(t, err)
		assert.Equal(t, "acme", props["IMPLEMENTOR"])
		assert.Equal(t, "git", props["SOURCE"])
		assert.Equal(t, "Linux", props[image.KeyOSName])

		zr, err := zip.OpenReader(filepath.Join(o.Output, filepath.FromSlash(image.ContainerFile)))
		require.NoError(t, err)
		defer testutil.DeferClose(t, zr)()
		for _, f := range zr.File {
			assert.NotEqual(t, "base/"+archive.ReleaseEntry, f.Name, "release entry must not be packed as class content")
		}
	})

	t.Run("ReleaseInfoStage", func(t *testing.T) {
		t.Parallel()

		o := linkOptions(t, mods)
		o.Stages = []plugin.StageConfig{
			{Name: plugin.StageReleaseInfo, Add: map[string]string{"VENDOR": "modlink"}, Delete: []string{"SOURCE"}},
		}
		_, err := Link(context.Background(), o)
		require.NoError(t, err)

		props, err := image.ReadRelease(filepath.Join(o.Output, image.ReleaseFile))
		require.NoError(t, err)
		assert.Equal(t, "modlink", props["VENDOR"])
		assert.Equal(t, "acme", props["IMPLEMENTOR"])
		assert.NotContains(t, props, "SOURCE")
	})
}

func TestLink_UnknownStage(t *testing.T) {
	t.Parallel()

	o := linkOptions(t, writeUniverse(t))
	o.Stages = []plugin.StageConfig{{Name: "compress"}}

	_, err := Link(context.Background(), o)
	require.ErrorIs(t, err, plugin.ErrUnknownStage)
	assert.NoDirExists(t, o.Output)
}

func TestLink_LaunchArgs(t *testing.T) {
	t.Parallel()

	o := linkOptions(t, writeUniverse(t))
	o.LaunchArgs = []string{"-Xmx512m"}

	_, err := Link(context.Background(), o)
	require.NoError(t, err)

	launcher := string(testutil.MustReadFile(t, filepath.Join(o.Output, "bin", "app")))
	assert.Contains(t, strings.Split(launcher, "\n"), image.OptionsVar+"=-Xmx512m")
}

func TestLink_KeepPackagedModules(t *testing.T) {
	t.Parallel()

	mods := writeUniverse(t)
	zipped := testutil.Module("zlib", "base")
	zipPath := testutil.WriteZipModule(t, mods, zipped)

	o := linkOptions(t, mods)
	o.AddModules = []string{"app", "zlib"}
	o.KeepPackagedModules = filepath.Join(t.TempDir(), "kept")

	res, err := Link(context.Background(), o)
	require.NoError(t, err)
	require.Len(t, res.Kept, 4)

	for _, name := range []string{"app", "base", "lib"} {
		packed := filepath.Join(o.KeepPackagedModules, name+archive.PackedExt)
		require.FileExists(t, packed)
		a, err := archive.Open(packed)
		require.NoError(t, err)
		d, err := a.Descriptor()
		require.NoError(t, err)
		assert.Equal(t, name, d.Name)
		require.NoError(t, a.Close())
	}
	assert.Equal(t,
		testutil.MustReadFile(t, zipPath),
		testutil.MustReadFile(t, filepath.Join(o.KeepPackagedModules, filepath.Base(zipPath))))
}

func TestLink_SaveOpts(t *testing.T) {
	t.Parallel()

	o := linkOptions(t, writeUniverse(t))
	o.SaveOpts = filepath.Join(t.TempDir(), "link.opts")
	o.CommandLine = []string{"link", "--add-modules", "app", "--launcher-args", "-Dname=a b"}

	_, err := Link(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, "link --add-modules app --launcher-args '-Dname=a b'\n",
		string(testutil.MustReadFile(t, o.SaveOpts)))
}

func TestLink_Replace(t *testing.T) {
	t.Parallel()

	o := linkOptions(t, writeUniverse(t))
	_, err := Link(context.Background(), o)
	require.NoError(t, err)

	_, err = Link(context.Background(), o)
	require.ErrorIs(t, err, ErrInvalidOptions)

	o.Replace = true
	o.AddModules = []string{"other"}
	res, err := Link(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "other"}, res.Image.Modules())
	assert.NoFileExists(t, filepath.Join(o.Output, "bin", "app"))
}

func TestPostProcess(t *testing.T) {
	t.Parallel()

	o := linkOptions(t, writeUniverse(t))
	_, err := Link(context.Background(), o)
	require.NoError(t, err)

	img, err := PostProcess(context.Background(), o.Output, []string{"-ea"})
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "base", "lib"}, img.Modules())

	launcher := string(testutil.MustReadFile(t, filepath.Join(o.Output, "bin", "app")))
	assert.Contains(t, strings.Split(launcher, "\n"), image.OptionsVar+"=-ea")

	_, err = PostProcess(context.Background(), t.TempDir(), []string{"-ea"})
	require.ErrorIs(t, err, image.ErrNotAnImage)
}

func TestAllUnder(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(string(filepath.Separator)+"out", "image")
	staging := filepath.Join(string(filepath.Separator)+"out", ".image.staging-42")

	assert.True(t, allUnder([]string{filepath.Join(dir, "release")}, dir))
	assert.True(t, allUnder([]string{filepath.Join(staging, "lib", "modules"), staging + ".old"}, dir))
	assert.False(t, allUnder([]string{filepath.Join(dir, "release"), filepath.Join(string(filepath.Separator)+"out", "mods", "app")}, dir))
	assert.False(t, allUnder([]string{dir + "2"}, dir))
}

func TestSaveOptions_Error(t *testing.T) {
	t.Parallel()

	err := SaveOptions(filepath.Join(t.TempDir(), "missing", "opts"), []string{"link"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
