package coldstorage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FSStore is a local-filesystem ColdStorage backend, content-addressed by
// image id with a two-level directory prefix split to keep any one
// directory from accumulating unbounded entries.
type FSStore struct {
	root string
}

// NewFSStore returns an FSStore rooted at root, creating it if necessary.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) pathFor(imageID string) string {
	prefix := imageID
	if len(prefix) > 4 {
		prefix = imageID[:4]
	}
	dir1, dir2 := prefix, imageID
	if len(prefix) >= 2 {
		dir1, dir2 = prefix[:2], prefix[2:]
	}
	return filepath.Join(s.root, dir1, dir2, imageID)
}

func (s *FSStore) Archive(ctx context.Context, imageID string, data []byte) error {
	path := s.pathFor(imageID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *FSStore) Retrieve(ctx context.Context, imageID string) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(imageID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *FSStore) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	removed := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if isExpired(info.ModTime(), retentionDays) {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			removed++
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return removed, nil
	}
	return removed, err
}

var _ ColdStorage = (*FSStore)(nil)
