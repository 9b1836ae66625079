// SPDX-License-Identifier: MPL-2.0

package pool

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/finder"
	"github.com/modlink/modlink/pkg/resolve"
)

// Assemble drains the content of every module of g into a new pool, modules
// in g.Order() and entries in archive order. Each archive is closed as soon
// as its content has been read. Entries the archives skipped are returned as
// warnings.
func Assemble(g *resolve.Graph) (*Pool, []archive.Warning, error) {
	p := New()
	var warnings []archive.Warning
	for _, ref := range g.References() {
		w, err := p.addModule(ref)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read module %s: %w", ref.Name(), err)
		}
		warnings = append(warnings, w...)
	}
	slog.Debug("pool assembled", "modules", g.Len(), "entries", p.Len(), "warnings", len(warnings))
	return p, warnings, nil
}

func (p *Pool) addModule(ref *finder.Reference) (warnings []archive.Warning, err error) {
	a, err := ref.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	entries, err := a.Entries()
	if err != nil {
		return nil, err
	}

	p.AddModule(ref.Descriptor())
	for _, e := range entries {
		content, err := readAll(a, e)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name, err)
		}
		if err := p.Add(NewEntry(ref.Name(), e.Name, e.Category, content)); err != nil {
			return nil, err
		}
	}
	return a.Warnings(), nil
}

func readAll(a archive.Archive, e archive.Entry) (data []byte, err error) {
	rc, err := a.Open(e)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return io.ReadAll(rc)
}
