package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// File stores the blob in a single file, replaced atomically on every save
// (write to a temp file in the same directory, then rename).
type File struct {
	path string
}

var _ Adapter = (*File)(nil)

// NewFile returns an adapter writing to path. The parent directory is created
// with mode 0700 on first save; the file itself is written 0600.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Name() string { return "file" }

// Path returns the file location.
func (f *File) Path() string { return f.path }

func (f *File) Save(ctx context.Context, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return wrapUnavailable(err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return wrapUnavailable(err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return wrapUnavailable(err)
	}
	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		cleanup()
		return wrapUnavailable(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return wrapUnavailable(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return wrapUnavailable(err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return wrapUnavailable(err)
	}
	return nil
}

func (f *File) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapUnavailable(err)
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, wrapUnavailable(err)
	}
	return data, nil
}

func (f *File) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err)
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return wrapUnavailable(err)
	}
	return nil
}
