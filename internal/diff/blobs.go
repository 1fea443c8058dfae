package diff

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mattjoyce/lantrn/internal/fsutil"
)

// blobStore keeps captured text content addressed by its SHA-256 hash so
// the "before" side of a diff survives the file being rewritten.
type blobStore struct {
	dir string
}

func (b *blobStore) path(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(b.dir, hash)
	}
	return filepath.Join(b.dir, hash[:2], hash)
}

func (b *blobStore) put(hash string, content []byte) error {
	p := b.path(hash)
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	return fsutil.WriteFileAtomic(p, content, 0o644)
}

func (b *blobStore) get(hash string) ([]byte, bool) {
	if hash == "" {
		return nil, false
	}
	data, err := os.ReadFile(b.path(hash))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (b *blobStore) clear() error {
	err := os.RemoveAll(b.dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
