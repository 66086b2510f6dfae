package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Filesystem keeps objects as files below a root directory.
type Filesystem struct {
	root string
}

func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./archive"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Filesystem{root: root}, nil
}

// Put writes body through a temporary file so readers never see a
// partial object.
func (f *Filesystem) Put(_ context.Context, key string, body []byte) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	path := filepath.Join(f.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("archive %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}
