// SPDX-License-Identifier: MPL-2.0

package image

import (
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/modlink/modlink/pkg/finder"
)

// ContainerFile is the image-relative path of the packed module container.
const ContainerFile = finder.ContainerFile

// containerEpoch is stamped on every container entry so that identical
// pools produce identical containers.
var containerEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

type (
	// ContainerWriter receives the class content of an image, one entry at a
	// time, under logical paths of the form "<module>/<name>".
	ContainerWriter interface {
		Add(path string, content io.Reader) error
		Close() error
	}

	// ContainerFactory creates a ContainerWriter writing to w.
	ContainerFactory func(w io.Writer) ContainerWriter

	zipContainer struct {
		zw *zip.Writer
	}
)

// NewZipContainer is the default ContainerFactory. It writes a zip with
// deflated entries and fixed timestamps; entries keep the order they are
// added in.
func NewZipContainer(w io.Writer) ContainerWriter {
	return &zipContainer{zw: zip.NewWriter(w)}
}

func (c *zipContainer) Add(path string, content io.Reader) error {
	header := &zip.FileHeader{Name: path, Method: zip.Deflate, Modified: containerEpoch}
	header.SetMode(0o644)
	w, err := c.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s to container: %w", path, err)
	}
	if _, err := io.Copy(w, content); err != nil {
		return fmt.Errorf("failed to add %s to container: %w", path, err)
	}
	return nil
}

func (c *zipContainer) Close() error {
	return c.zw.Close()
}
