// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// packEpoch is the modification time stamped on every packed entry so that
// packing the same directory twice yields identical bytes.
var packEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Pack writes the exploded module at srcDir as a packed module. When outPath
// is empty the file is named after the module and placed in the current
// directory. The absolute path of the written file is returned.
//
// Files under native/, bin/, conf/ and legal/ keep their section; all other
// files are placed under classes/.
func Pack(srcDir, outPath string) (packedPath string, err error) {
	src, err := openDir(srcDir)
	if err != nil {
		return "", err
	}
	desc, err := src.Descriptor()
	if err != nil {
		return "", err
	}
	entries, err := src.Entries()
	if err != nil {
		return "", err
	}

	if outPath == "" {
		outPath = desc.Name + PackedExt
	}
	absOut, err := filepath.Abs(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path: %w", err)
	}

	f, err := os.Create(absOut)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", absOut, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(absOut) // best-effort cleanup of a partial file
		}
	}()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		if err = packEntry(zw, src, e); err != nil {
			return "", fmt.Errorf("failed to pack %s: %w", e.Name, err)
		}
	}
	if err = zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish %s: %w", absOut, err)
	}
	return absOut, nil
}

func packEntry(zw *zip.Writer, src *dirArchive, e Entry) (err error) {
	name := e.Name
	if e.Category == CategoryClasses {
		name = sectionClasses + name
	}

	info, err := os.Stat(e.source)
	if err != nil {
		return err
	}
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: packEpoch,
	}
	mode := os.FileMode(0o644)
	if info.Mode()&0o111 != 0 || strings.HasPrefix(name, sectionBin) {
		mode = 0o755
	}
	header.SetMode(mode)

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	rc, err := src.Open(e)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(w, rc)
	return err
}
