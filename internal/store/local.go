package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/i474232898/gdelt-news-cache/internal/news"
)

// File permission constants for cache operations.
const (
	dirPerm  = 0o750 // rwxr-x---
	filePerm = 0o600 // rw-------
)

// dirStore is a blobStore rooted at a directory.
type dirStore struct {
	root string
}

func (d dirStore) path(name string) string {
	return filepath.Join(d.root, filepath.FromSlash(name))
}

func (d dirStore) read(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(d.path(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// write replaces name atomically through a temp file in the same directory.
func (d dirStore) write(_ context.Context, name string, data []byte) error {
	target := d.path(name)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (d dirStore) namespaces(context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Local stores entries under cacheDir/<hash>/ and datasets under
// dataDir/<hash>/<name>.parquet.
type Local struct {
	objectBackend
	dataDir string
}

var _ news.Backend = (*Local)(nil)

// NewLocal creates both directories if needed.
func NewLocal(cacheDir, dataDir string, logger *slog.Logger) (*Local, error) {
	for _, dir := range []string{cacheDir, dataDir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return &Local{
		objectBackend: newObjectBackend(dirStore{root: cacheDir}, dirStore{root: dataDir}, func(ns, name string) string {
			return path.Join(ns, name+".parquet")
		}, logger),
		dataDir: dataDir,
	}, nil
}

// DatasetPath is where SaveDataset writes name for namespace.
func (l *Local) DatasetPath(namespace, name string) string {
	return filepath.Join(l.dataDir, namespace, name+".parquet")
}
