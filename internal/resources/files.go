package resources

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps one PDF per record under a fixed root.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Root() string { return s.root }

// Path is the location of the file backing id.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.root, id+".pdf")
}

// Write stores data for id and returns the path written.
func (s *FileStore) Write(id string, data []byte) (string, error) {
	path := s.Path(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return path, nil
}

func (s *FileStore) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Remove deletes path. It reports false with no error when the file is
// already gone.
func (s *FileStore) Remove(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
