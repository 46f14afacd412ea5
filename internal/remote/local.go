package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore serves plain filesystem paths and file:// URIs.
type LocalStore struct{}

// NewLocalStore creates a LocalStore.
func NewLocalStore() *LocalStore { return &LocalStore{} }

func localPath(uri string) (string, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return "", err
	}
	if loc.Scheme != SchemeFile {
		return "", fmt.Errorf("not a local path: %q", uri)
	}
	return loc.Key, nil
}

// ObjectExists reports whether the path exists. Directories must be non-empty.
func (s *LocalStore) ObjectExists(_ context.Context, path string) (bool, error) {
	p, err := localPath(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return true, nil
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// DirContains matches pattern against the children of dir rendered with the
// same prefix as dir, directories with a trailing '/'.
func (s *LocalStore) DirContains(_ context.Context, dir, pattern string) (bool, error) {
	p, err := localPath(dir)
	if err != nil {
		return false, err
	}
	entries, err := os.ReadDir(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	base := strings.TrimSuffix(dir, "/")
	for _, e := range entries {
		child := base + "/" + e.Name()
		if e.IsDir() {
			child += "/"
		}
		if strings.Contains(child, pattern) {
			return true, nil
		}
	}
	return false, nil
}

// Open opens a local file.
func (s *LocalStore) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	p, err := localPath(uri)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Create writes to a temporary file beside uri, making parent directories.
// Close renames it into place; Abort removes it and leaves uri untouched.
func (s *LocalStore) Create(_ context.Context, uri string) (io.WriteCloser, error) {
	p, err := localPath(uri)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &localWriter{File: f, path: p}, nil
}

type localWriter struct {
	*os.File
	path string
	done bool
}

func (w *localWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	tmp := w.File.Name()
	if err := w.File.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Abort removes the temporary file.
func (w *localWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	_ = w.File.Close()
	return os.Remove(w.File.Name())
}
