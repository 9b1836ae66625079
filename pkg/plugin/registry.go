// SPDX-License-Identifier: MPL-2.0

package plugin

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrUnknownStage is returned for a stage name with no registered factory.
var ErrUnknownStage = errors.New("unknown plugin stage")

type (
	// StageConfig is the configuration of one stage. Which fields are used
	// depends on the stage.
	StageConfig struct {
		Name string `json:"name" mapstructure:"name"`
		// Patterns are doublestar globs over "<module>/<name>" paths.
		Patterns []string `json:"patterns,omitempty" mapstructure:"patterns"`
		// Add and Delete edit release attributes.
		Add    map[string]string `json:"add,omitempty" mapstructure:"add"`
		Delete []string          `json:"delete,omitempty" mapstructure:"delete"`
		// Files maps host files to image paths.
		Files map[string]string `json:"files,omitempty" mapstructure:"files"`
		// Links maps image paths to link targets.
		Links map[string]string `json:"links,omitempty" mapstructure:"links"`
	}

	// Env carries build-wide settings into stage factories.
	Env struct {
		BaseModule string
	}

	// Factory creates a stage from its configuration.
	Factory func(cfg StageConfig, env Env) (Stage, error)

	// Registry maps stage names to factories.
	Registry struct {
		factories map[string]Factory
	}
)

// Built-in stage names.
const (
	StageExcludeFiles        = "exclude-files"
	StageStripNativeCommands = "strip-native-commands"
	StageOrderResources      = "order-resources"
	StageReleaseInfo         = "release-info"
	StageCopyFiles           = "copy-files"
	StageSymlinks            = "symlinks"
	StageSystemModules       = "system-modules"
)

// NewRegistry returns a registry holding the built-in stages.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(StageExcludeFiles, func(cfg StageConfig, _ Env) (Stage, error) {
		return NewExcludeFiles(cfg.Patterns)
	})
	r.Register(StageStripNativeCommands, func(StageConfig, Env) (Stage, error) {
		return StripNativeCommands(), nil
	})
	r.Register(StageOrderResources, func(cfg StageConfig, _ Env) (Stage, error) {
		return NewOrderResources(cfg.Patterns)
	})
	r.Register(StageReleaseInfo, func(cfg StageConfig, env Env) (Stage, error) {
		return NewReleaseInfo(env.BaseModule, cfg.Add, cfg.Delete), nil
	})
	r.Register(StageCopyFiles, func(cfg StageConfig, env Env) (Stage, error) {
		return NewCopyFiles(env.BaseModule, cfg.Files)
	})
	r.Register(StageSymlinks, func(cfg StageConfig, env Env) (Stage, error) {
		return NewSymlinks(env.BaseModule, cfg.Links)
	})
	r.Register(StageSystemModules, func(_ StageConfig, env Env) (Stage, error) {
		return NewSystemModules(env.BaseModule), nil
	})
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names returns the registered stage names, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.factories))
}

// Build creates one stage per configuration, in order.
func (r *Registry) Build(cfgs []StageConfig, env Env) ([]Stage, error) {
	stages := make([]Stage, 0, len(cfgs))
	for i, cfg := range cfgs {
		f, ok := r.factories[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("plugins[%d]: %w %q (available: %s)", i, ErrUnknownStage, cfg.Name, strings.Join(r.Names(), ", "))
		}
		s, err := f(cfg, env)
		if err != nil {
			return nil, fmt.Errorf("plugins[%d] (%s): %w", i, cfg.Name, err)
		}
		stages = append(stages, s)
	}
	return stages, nil
}

// FromConfig builds stages with the built-in registry.
func FromConfig(cfgs []StageConfig, env Env) ([]Stage, error) {
	return NewRegistry().Build(cfgs, env)
}
