// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modlink/modlink/pkg/descriptor"
	"github.com/modlink/modlink/pkg/plugin"
)

const (
	// LogLevelDebug logs resolution and build progress.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs the result of each command.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs skipped entries and other recoverable problems only.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs failures only.
	LogLevelError LogLevel = "error"

	// DefaultDebounce is the quiet period the watch mode waits for before
	// relinking.
	DefaultDebounce = 500 * time.Millisecond
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidModulePath is returned when a module path entry is whitespace-only.
	ErrInvalidModulePath = errors.New("invalid module path entry")
	// ErrInvalidLauncherConfig is the sentinel error wrapped by InvalidLauncherConfigError.
	ErrInvalidLauncherConfig = errors.New("invalid launcher config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level of log records printed by the CLI.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidModulePathError is returned for an empty module path entry.
	InvalidModulePathError struct {
		Index int
		Value string
	}

	// InvalidLauncherConfigError aggregates launcher field errors.
	InvalidLauncherConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError aggregates every field error of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config is the modlink configuration.
	Config struct {
		// ModulePath lists the module locations searched by the link command,
		// in order; the first location providing a module wins.
		ModulePath []string `json:"module_path,omitempty" mapstructure:"module_path"`
		// Output is the default image directory.
		Output string `json:"output,omitempty" mapstructure:"output"`
		// BaseModule is the module supplying release information.
		BaseModule string         `json:"base_module,omitempty" mapstructure:"base_module"`
		Launcher   LauncherConfig `json:"launcher" mapstructure:"launcher"`
		FastPath   FastPathConfig `json:"fast_path" mapstructure:"fast_path"`
		Log        LogConfig      `json:"log" mapstructure:"log"`
		// Plugins lists the stages run between pool assembly and image
		// writing, in order.
		Plugins []plugin.StageConfig `json:"plugins,omitempty" mapstructure:"plugins"`
		Watch   WatchConfig          `json:"watch" mapstructure:"watch"`
	}

	// LauncherConfig configures the generated launcher scripts.
	LauncherConfig struct {
		// Runtime is the binary in bin/ the launchers start.
		Runtime string `json:"runtime,omitempty" mapstructure:"runtime"`
		// Args are baked into every launcher after linking.
		Args []string `json:"args,omitempty" mapstructure:"args"`
	}

	// FastPathConfig controls the module table of linked images.
	FastPathConfig struct {
		// Disabled forces reading descriptors from the module container.
		Disabled bool `json:"disabled,omitempty" mapstructure:"disabled"`
	}

	// LogConfig configures logging.
	LogConfig struct {
		Level LogLevel `json:"level,omitempty" mapstructure:"level"`
	}

	// WatchConfig configures the link --watch mode.
	WatchConfig struct {
		Debounce time.Duration `json:"debounce,omitempty" mapstructure:"debounce"`
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseModule: "base",
		Launcher:   LauncherConfig{Runtime: "java"},
		Log:        LogConfig{Level: LogLevelInfo},
		Watch:      WatchConfig{Debounce: DefaultDebounce},
	}
}

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels,
// and a list of validation errors if it is not.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Error implements the error interface.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// Error implements the error interface.
func (e *InvalidModulePathError) Error() string {
	return fmt.Sprintf("invalid module_path[%d] %q: must be non-empty", e.Index, e.Value)
}

// Unwrap returns ErrInvalidModulePath for errors.Is() compatibility.
func (e *InvalidModulePathError) Unwrap() error { return ErrInvalidModulePath }

// IsValid returns whether the launcher configuration is usable.
func (c LauncherConfig) IsValid() (bool, []error) {
	if strings.TrimSpace(c.Runtime) == "" || strings.ContainsAny(c.Runtime, `/\`) {
		return false, []error{&InvalidLauncherConfigError{
			FieldErrors: []error{fmt.Errorf("runtime %q must be a plain file name", c.Runtime)},
		}}
	}
	return true, nil
}

// Error implements the error interface.
func (e *InvalidLauncherConfigError) Error() string {
	return fmt.Sprintf("invalid launcher config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidLauncherConfig for errors.Is() compatibility.
func (e *InvalidLauncherConfigError) Unwrap() error { return ErrInvalidLauncherConfig }

// IsValid returns whether the Config has valid fields.
// It delegates to each field's IsValid method.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	for i, p := range c.ModulePath {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, &InvalidModulePathError{Index: i, Value: p})
		}
	}
	if err := descriptor.ModuleName(c.BaseModule).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("base_module: %w", err))
	}
	if valid, fieldErrs := c.Launcher.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce %s must not be negative", c.Watch.Debounce))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }
