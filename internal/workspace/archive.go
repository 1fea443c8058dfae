package workspace

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ArchiveWorkspace writes a gzipped tarball of workspace id to archivePath.
// Entries are rooted at a directory named after the workspace. It reports
// false, nil when the workspace is unknown or its root is gone.
func (m *Manager) ArchiveWorkspace(ctx context.Context, id, archivePath string) (bool, error) {
	ictx := m.GetWorkspace(id)
	if ictx == nil || !dirExists(ictx.Root) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return false, fmt.Errorf("create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), ".archive-*")
	if err != nil {
		return false, fmt.Errorf("create archive: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := writeTarGz(ctx, tmp, ictx.Root, id); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("archive workspace %q: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpName, archivePath); err != nil {
		return false, fmt.Errorf("rename archive: %w", err)
	}
	m.logger.Info("workspace archived", "workspace_id", id, "archive", archivePath)
	return true, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func writeTarGz(ctx context.Context, w io.Writer, root, base string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == RunLockFile {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() && info.Mode()&fs.ModeSymlink == 0 {
			return nil
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(base, rel))
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		_ = f.Close()
		return err
	})
	if walkErr != nil {
		return walkErr
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
