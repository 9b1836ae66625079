// SPDX-License-Identifier: MPL-2.0

package image

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/descriptor"
)

// ReleaseFile is the name of the release metadata file at the image root.
// The base module's own release entry has the same name.
const ReleaseFile = archive.ReleaseEntry

// Release attribute keys.
const (
	KeyOSName             = "OS_NAME"
	KeyOSVersion          = "OS_VERSION"
	KeyOSArch             = "OS_ARCH"
	KeyRuntimeVersion     = "RUNTIME_VERSION"
	KeyRuntimeFullVersion = "RUNTIME_FULL_VERSION"
	KeyModules            = "MODULES"
)

// releaseProperties derives the release attributes from the base module
// descriptor. OS_NAME is mandatory.
func releaseProperties(base *descriptor.Descriptor) (map[string]string, error) {
	if base.OSName == "" {
		return nil, &ReleaseAttributeError{Module: base.Name, Attribute: "os_name"}
	}
	props := map[string]string{KeyOSName: base.OSName}
	if base.OSVersion != "" {
		props[KeyOSVersion] = base.OSVersion
	}
	if base.OSArch != "" {
		props[KeyOSArch] = base.OSArch
	}
	if base.Version != "" {
		props[KeyRuntimeVersion] = numericVersion(base.Version)
		props[KeyRuntimeFullVersion] = base.Version
	}
	return props, nil
}

// numericVersion returns the leading dotted-number part of a version string:
// "21.0.2+13" and "21.0.2-ea" both become "21.0.2".
func numericVersion(v string) string {
	end := 0
	for end < len(v) && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	num := strings.TrimRight(v[:end], ".")
	if num == "" {
		return v
	}
	return num
}

// EncodeRelease renders props as sorted KEY="value" lines, the format
// ParseRelease reads.
func EncodeRelease(props map[string]string) []byte {
	var b bytes.Buffer
	for _, k := range slices.Sorted(maps.Keys(props)) {
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(escapeValue(props[k]))
		b.WriteString("\"\n")
	}
	return b.Bytes()
}

func escapeValue(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`).Replace(v)
}

// ParseRelease decodes KEY="value" lines. The format is a subset of TOML.
func ParseRelease(data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid release data: %w", err)
	}
	props := make(map[string]string, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("invalid release data: %s is not a string", k)
		}
		props[k] = s
	}
	return props, nil
}

// ReadRelease reads and decodes a release file.
func ReadRelease(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	props, err := ParseRelease(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return props, nil
}
