// SPDX-License-Identifier: MPL-2.0

package finder

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/modlink/modlink/pkg/cueutil"
	"github.com/modlink/modlink/pkg/descriptor"
)

// TableFile is the path of the module table relative to an image home.
const TableFile = "lib/modules.table"

//go:embed table_schema.cue
var tableSchema []byte

type (
	// ModuleTable is the pre-computed list of descriptors and digests of
	// the modules linked into an image.
	ModuleTable struct {
		Modules []TableEntry `json:"modules"`
	}

	// TableEntry is one module of a ModuleTable.
	TableEntry struct {
		Descriptor descriptor.Descriptor `json:"descriptor"`
		// Hash is the digest of the module content at link time.
		Hash string `json:"hash,omitempty"`
	}

	// ModuleTableService owns the module table of one image. The table is
	// loaded at most once, on first use; a disabled service never loads it,
	// which forces readers onto the slow path.
	ModuleTableService struct {
		path     string
		disabled bool

		once  sync.Once
		table *ModuleTable
		err   error
	}
)

// NewModuleTableService returns a service for the table at path.
func NewModuleTableService(path string, disabled bool) *ModuleTableService {
	return &ModuleTableService{path: path, disabled: disabled}
}

// Disabled reports whether the fast path is switched off.
func (s *ModuleTableService) Disabled() bool { return s.disabled }

// Table returns the loaded table. It returns (nil, nil) when the service is
// disabled or the table file does not exist.
func (s *ModuleTableService) Table() (*ModuleTable, error) {
	if s.disabled {
		return nil, nil
	}
	s.once.Do(func() {
		s.table, s.err = LoadModuleTable(s.path)
	})
	return s.table, s.err
}

// LoadModuleTable reads and validates the table at path. A missing file
// yields (nil, nil).
func LoadModuleTable(path string) (*ModuleTable, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read module table: %w", err)
	}
	schema := append(descriptor.Schema(), tableSchema...)
	result, err := cueutil.ParseAndDecode[ModuleTable](schema, data, "#ModuleTable", cueutil.WithFilename(path))
	if err != nil {
		return nil, err
	}
	for i := range result.Value.Modules {
		if err := result.Value.Modules[i].Descriptor.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return result.Value, nil
}

// EncodeModuleTable renders t in the format read by LoadModuleTable.
func EncodeModuleTable(t *ModuleTable) ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode module table: %w", err)
	}
	return append(data, '\n'), nil
}
