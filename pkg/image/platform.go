// SPDX-License-Identifier: MPL-2.0

package image

import (
	"fmt"
	"path"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// OptionsVar is the launcher variable holding extra runtime options.
const OptionsVar = "MODLINK_OPTIONS"

const (
	platformPOSIX platformKind = iota
	platformWindows
)

type (
	platformKind int

	// Platform is the target platform of an image. It is selected once from
	// the OS_NAME release attribute and decides native library placement,
	// executable names and which launcher scripts are generated.
	Platform struct {
		kind   platformKind
		osName string
	}

	// ScriptSyntax is the launcher dialect of one shell family.
	ScriptSyntax struct {
		name   string
		ext    string
		eol    string
		prefix string
		body   func(runtime, module, main string) []string
		quote  func(args []string) (string, error)
	}
)

var (
	// POSIXScript generates /bin/sh launchers.
	POSIXScript = ScriptSyntax{
		name:   "sh",
		eol:    "\n",
		prefix: OptionsVar + "=",
		body: func(runtime, module, main string) []string {
			return []string{
				"#!/bin/sh",
				OptionsVar + "=",
				"DIR=`dirname $0`",
				fmt.Sprintf(`$DIR/%s $%s -m %s/%s "$@"`, runtime, OptionsVar, module, main),
			}
		},
		quote: quotePOSIX,
	}

	// BatchScript generates Windows .bat launchers.
	BatchScript = ScriptSyntax{
		name:   "batch",
		ext:    ".bat",
		eol:    "\r\n",
		prefix: "set " + OptionsVar + "=",
		body: func(runtime, module, main string) []string {
			return []string{
				"@echo off",
				"set " + OptionsVar + "=",
				"set DIR=%~dp0",
				fmt.Sprintf(`"%%DIR%%\%s" %%%s%% -m %s/%s %%*`, runtime, OptionsVar, module, main),
			}
		},
		quote: func(args []string) (string, error) { return strings.Join(args, " "), nil },
	}

	windowsBinExts = map[string]bool{".dll": true, ".diz": true, ".pdb": true, ".map": true}
)

// PlatformFor selects the platform for an OS_NAME value.
func PlatformFor(osName string) Platform {
	if strings.HasPrefix(strings.ToLower(osName), "windows") {
		return Platform{kind: platformWindows, osName: osName}
	}
	return Platform{kind: platformPOSIX, osName: osName}
}

// IsWindows reports whether the platform is Windows.
func (p Platform) IsWindows() bool { return p.kind == platformWindows }

// String returns the OS name the platform was selected from.
func (p Platform) String() string { return p.osName }

// NativeLibDir returns the image directory for a native library: bin on
// Windows for .dll, .diz, .pdb and .map files, lib otherwise.
func (p Platform) NativeLibDir(name string) string {
	if p.IsWindows() && windowsBinExts[strings.ToLower(path.Ext(name))] {
		return "bin"
	}
	return "lib"
}

// ExecutableName returns the platform file name of an executable.
func (p Platform) ExecutableName(name string) string {
	if p.IsWindows() {
		return name + ".exe"
	}
	return name
}

// Launchers returns the script dialects generated for each runnable module:
// always a POSIX script, plus a batch script for Windows images.
func (p Platform) Launchers() []ScriptSyntax {
	if p.IsWindows() {
		return []ScriptSyntax{POSIXScript, BatchScript}
	}
	return []ScriptSyntax{POSIXScript}
}

// Name returns the dialect name ("sh" or "batch").
func (s ScriptSyntax) Name() string { return s.name }

// FileName returns the launcher file name for module.
func (s ScriptSyntax) FileName(module string) string { return module + s.ext }

// Render returns the launcher text for module. The options line is the only
// line PatchLaunchArgs rewrites.
func (s ScriptSyntax) Render(runtime, module, main string) string {
	return strings.Join(s.body(runtime, module, main), s.eol) + s.eol
}

// patch rewrites the options line of script to carry args. It reports false
// when the script has no options line.
func (s ScriptSyntax) patch(script string, args []string) (string, bool, error) {
	value, err := s.quote(args)
	if err != nil {
		return "", false, err
	}
	lines := strings.SplitAfter(script, "\n")
	for i, line := range lines {
		body := strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(body, s.prefix) {
			continue
		}
		lines[i] = s.prefix + value + line[len(body):]
		return strings.Join(lines, ""), true, nil
	}
	return script, false, nil
}

func quotePOSIX(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	q, err := syntax.Quote(strings.Join(args, " "), syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("cannot quote launch arguments: %w", err)
	}
	return q, nil
}

// validatePOSIX parses a generated script with a POSIX shell parser.
func validatePOSIX(name, script string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(script), name); err != nil {
		return fmt.Errorf("generated launcher %s is not valid sh: %w", name, err)
	}
	return nil
}
