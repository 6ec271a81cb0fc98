package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
)

// FileStore writes one JSON document per key under a directory, sharded
// by the first two key characters. Writes go through a temp file and a
// rename so readers never see a partial entry.
type FileStore struct {
	dir string
}

// NewFile creates the directory if needed and returns a FileStore.
func NewFile(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "file: create %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	shard := "00"
	if len(key) >= 2 {
		shard = key[:2]
	}
	return filepath.Join(s.dir, shard, filepath.Base(key)+".json")
}

func (s *FileStore) Get(_ context.Context, key string) (*Entry, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "file: read %s", key)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrapf(err, "file: decode %s", key)
	}
	return &e, nil
}

func (s *FileStore) Put(_ context.Context, key string, e Entry, _ time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "file: encode entry")
	}

	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return eris.Wrap(err, "file: create shard")
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return eris.Wrap(err, "file: create temp")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "file: write temp")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "file: close temp")
	}
	return eris.Wrapf(os.Rename(tmp.Name(), target), "file: commit %s", key)
}

func (s *FileStore) Close() error { return nil }
