// SPDX-License-Identifier: MPL-2.0

package finder

import (
	"fmt"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opencontainers/go-digest"

	"github.com/modlink/modlink/pkg/archive"
)

// defaultHashCacheSize bounds the number of memoised module digests per
// PathFinder.
const defaultHashCacheSize = 256

// Hash returns the digest of the module at location. Files are hashed as
// raw bytes. Exploded directories are hashed over their sorted entries, each
// contributing its name, a NUL byte and its content, so the result does not
// depend on filesystem order or timestamps.
func Hash(location string) (digest.Digest, error) {
	info, err := os.Stat(location)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", location, err)
	}
	if !info.IsDir() {
		return hashFile(location)
	}
	return hashArchive(location)
}

func hashFile(path string) (d digest.Digest, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return digest.Canonical.FromReader(f)
}

func hashArchive(location string) (d digest.Digest, err error) {
	a, err := archive.Open(location)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	entries, err := a.Entries()
	if err != nil {
		return "", err
	}
	digester := digest.Canonical.Digester()
	h := digester.Hash()
	for _, e := range entries {
		if _, err := io.WriteString(h, e.Name+"\x00"); err != nil {
			return "", err
		}
		if err := copyEntry(h, a, e); err != nil {
			return "", err
		}
	}
	return digester.Digest(), nil
}

func copyEntry(w io.Writer, a archive.Archive, e archive.Entry) (err error) {
	rc, err := a.Open(e)
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

// hashCache memoises digests by location.
type hashCache struct {
	cache *lru.Cache[string, digest.Digest]
}

func newHashCache(size int) *hashCache {
	c, err := lru.New[string, digest.Digest](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &hashCache{cache: c}
}

// supplier returns a HashSupplier for location that computes the digest on
// first use.
func (c *hashCache) supplier(location string) HashSupplier {
	return func() (digest.Digest, error) {
		if d, ok := c.cache.Get(location); ok {
			return d, nil
		}
		d, err := Hash(location)
		if err != nil {
			return "", err
		}
		c.cache.Add(location, d)
		return d, nil
	}
}
