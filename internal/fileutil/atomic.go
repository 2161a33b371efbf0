// Package fileutil provides the crash-safe file primitives used by the file
// storage backend: atomic replace, optional read, and idempotent remove.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrEmptyPath is returned for an empty path argument.
var ErrEmptyPath = errors.New("path is empty")

// DirPermissions is used for parent directories WriteAtomic has to create.
const DirPermissions fs.FileMode = 0o700

// WriteAtomic replaces path with data. Readers see either the old content or
// the new content, never a torn write: data lands in a synced sibling temp
// file which is then renamed over path.
func WriteAtomic(path string, data []byte, perm fs.FileMode) (err error) {
	if path == "" {
		return ErrEmptyPath
	}
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil { //nolint:gosec // path is built by the storage backend
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	syncDir(dir)
	return nil
}

// syncDir makes a rename durable where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // dir is the parent of a validated path
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// ReadOptional reads path, reporting found=false instead of an error when the
// file does not exist.
func ReadOptional(path string) (data []byte, found bool, err error) {
	if path == "" {
		return nil, false, ErrEmptyPath
	}
	data, err = os.ReadFile(path) //nolint:gosec // path is built by the storage backend
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return data, true, nil
}

// RemoveIfExists deletes path. A missing file is not an error.
func RemoveIfExists(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", filepath.Base(path), err)
	}
	return nil
}
