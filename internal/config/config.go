// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/modlink/modlink/internal/issue"
	"github.com/modlink/modlink/pkg/cueutil"
	"github.com/modlink/modlink/pkg/plugin"
)

const (
	// AppName is the application name.
	AppName = "modlink"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// LocalConfigFile is the project-local config file checked when the
	// user config file does not exist.
	LocalConfigFile = AppName + "." + ConfigFileExt
	// EnvPrefix prefixes environment variable overrides (MODLINK_OUTPUT,
	// MODLINK_LOG_LEVEL, ...).
	EnvPrefix = "MODLINK"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the modlink configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// Load reads the configuration and reports the file it came from ("" when
// only defaults and environment overrides apply).
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	return loadWithOptions(ctx, opts)
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("output", defaults.Output)
	v.SetDefault("base_module", defaults.BaseModule)
	v.SetDefault("launcher.runtime", defaults.Launcher.Runtime)
	v.SetDefault("fast_path.disabled", defaults.FastPath.Disabled)
	v.SetDefault("log.level", string(defaults.Log.Level))
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// List keys have no default, so bind them for env overrides explicitly.
	for _, key := range []string{"module_path", "launcher.args"} {
		if err := v.BindEnv(key); err != nil {
			return nil, "", fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	path, err := locateConfigFile(opts)
	if err != nil {
		return nil, "", err
	}

	var plugins []plugin.StageConfig
	if path != "" {
		plugins, err = loadCUEIntoViper(v, path)
		if err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Use 'modlink config show' to see the effective configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Plugins = plugins

	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("Check MODLINK_* environment variables as well as the config file").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, path, nil
}

// locateConfigFile returns the config file to load: the explicit path when
// given (which must exist), else the user config file, else ./modlink.cue.
// It returns "" when none exists.
func locateConfigFile(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				WithSuggestion("Use 'modlink config init' to create a default configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
	if err != nil {
		return "", err
	}
	if cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt); fileExists(cuePath) {
		return cuePath, nil
	}

	localPath := LocalConfigFile
	if opts.BaseDir != "" {
		localPath = filepath.Join(opts.BaseDir, LocalConfigFile)
	}
	if fileExists(localPath) {
		return localPath, nil
	}
	return "", nil
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper. The plugin list is decoded directly
// from CUE and returned instead: Viper lowercases map keys, which would
// corrupt release attribute names and host paths.
func loadCUEIntoViper(v *viper.Viper, path string) ([]plugin.StageConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return nil, cueutil.FormatError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueutil.FormatError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return nil, cueutil.FormatError(err, path)
	}

	var plugins []plugin.StageConfig
	if pv := unified.LookupPath(cue.ParsePath("plugins")); pv.Exists() {
		if err := pv.Decode(&plugins); err != nil {
			return nil, cueutil.FormatError(err, path)
		}
	}
	delete(configMap, "plugins")

	if err := v.MergeConfigMap(configMap); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	return plugins, nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes a default config file into dir unless one
// exists, and returns its path.
func CreateDefaultConfig(dir string) (path string, created bool, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	path = filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}

	content, err := GenerateCUE(DefaultConfig())
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}
	return path, true, nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) (string, error) {
	var sb strings.Builder

	sb.WriteString("// modlink configuration file\n")
	sb.WriteString("// Values can be overridden with MODLINK_* environment variables.\n\n")

	if len(cfg.ModulePath) > 0 {
		sb.WriteString("module_path: [\n")
		for _, p := range cfg.ModulePath {
			fmt.Fprintf(&sb, "\t%q,\n", p)
		}
		sb.WriteString("]\n")
	}
	if cfg.Output != "" {
		fmt.Fprintf(&sb, "output: %q\n", cfg.Output)
	}
	fmt.Fprintf(&sb, "base_module: %q\n", cfg.BaseModule)

	sb.WriteString("\nlauncher: {\n")
	fmt.Fprintf(&sb, "\truntime: %q\n", cfg.Launcher.Runtime)
	if len(cfg.Launcher.Args) > 0 {
		args, err := json.Marshal(cfg.Launcher.Args)
		if err != nil {
			return "", fmt.Errorf("failed to encode launcher args: %w", err)
		}
		fmt.Fprintf(&sb, "\targs: %s\n", args)
	}
	sb.WriteString("}\n")

	sb.WriteString("\nfast_path: {\n")
	fmt.Fprintf(&sb, "\tdisabled: %v\n", cfg.FastPath.Disabled)
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	sb.WriteString("}\n")

	sb.WriteString("\nwatch: {\n")
	fmt.Fprintf(&sb, "\tdebounce: %q\n", cfg.Watch.Debounce.String())
	sb.WriteString("}\n")

	if len(cfg.Plugins) > 0 {
		sb.WriteString("\nplugins: [\n")
		for _, p := range cfg.Plugins {
			stage, err := json.Marshal(p)
			if err != nil {
				return "", fmt.Errorf("failed to encode plugin %s: %w", p.Name, err)
			}
			fmt.Fprintf(&sb, "\t%s,\n", stage)
		}
		sb.WriteString("]\n")
	}

	return sb.String(), nil
}
