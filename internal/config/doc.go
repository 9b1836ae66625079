// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/modlink/config.cue (or XDG equivalent on Linux,
// ~/Library/Application Support/modlink/config.cue on macOS, %APPDATA%\modlink\config.cue
// on Windows), falling back to ./modlink.cue. Values can be overridden with MODLINK_*
// environment variables. The configuration supplies defaults for the link command:
// module path, output directory, base module, launcher settings, the module table fast
// path, logging, the plugin stages and the watch debounce interval.
//
// Configuration validation is performed against a CUE schema (config_schema.cue) to ensure
// type safety and provide clear error messages for invalid configurations.
package config
