package staging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// stagedFile is the mirror file inside the staging directory.
const stagedFile = "staged.json"

// fileStore keeps the mirror as a JSON file:
//
//	<staging_dir>/
//	  staged.json    (the current batch)
type fileStore struct {
	dir string
}

func newFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &fileStore{dir: dir}, nil
}

func (f *fileStore) path() string {
	return filepath.Join(f.dir, stagedFile)
}

func (f *fileStore) Load() (*stagedBatch, error) {
	data, err := os.ReadFile(f.path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", stagedFile, err)
	}

	var b stagedBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", stagedFile, err)
	}
	return &b, nil
}

// Save writes the batch to a temp file and renames it over the mirror.
func (f *fileStore) Save(b *stagedBatch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, ".staged-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (f *fileStore) Clear() error {
	if err := os.Remove(f.path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", stagedFile, err)
	}
	return nil
}
