// Package backup implements the shadow-copy layer: redundant copies of
// critical entities in independent key/value storage, recovery when primary
// load paths come back empty, and the one-time migration completion flags.
package backup

import (
	"errors"
	"fmt"
	"path"

	"github.com/hack-pad/hackpadfs"
)

// ShadowStore is a flat key/value store over a hackpadfs filesystem, one
// file per key. It is deliberately independent of both database engines so
// it survives a corrupted primary store.
type ShadowStore struct {
	fs  hackpadfs.FS
	dir string
}

// NewShadowStore creates the backing directory if needed.
func NewShadowStore(fs hackpadfs.FS, dir string) (*ShadowStore, error) {
	if dir != "" && dir != "." {
		if err := hackpadfs.MkdirAll(fs, dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create backup directory %s: %w", dir, err)
		}
	}
	return &ShadowStore{fs: fs, dir: dir}, nil
}

func (s *ShadowStore) keyPath(key string) string {
	if s.dir == "" || s.dir == "." {
		return key
	}
	return path.Join(s.dir, key)
}

// Get returns the raw value and whether the key exists.
func (s *ShadowStore) Get(key string) ([]byte, bool, error) {
	content, err := hackpadfs.ReadFile(s.fs, s.keyPath(key))
	if err != nil {
		if errors.Is(err, hackpadfs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read backup key %s: %w", key, err)
	}
	return content, true, nil
}

// Set writes the value for a key.
func (s *ShadowStore) Set(key string, value []byte) error {
	if err := hackpadfs.WriteFullFile(s.fs, s.keyPath(key), value, 0644); err != nil {
		return fmt.Errorf("failed to write backup key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *ShadowStore) Delete(key string) error {
	err := hackpadfs.Remove(s.fs, s.keyPath(key))
	if err != nil && !errors.Is(err, hackpadfs.ErrNotExist) {
		return fmt.Errorf("failed to delete backup key %s: %w", key, err)
	}
	return nil
}

// GetFlag reads a string flag, satisfying the migration flag contract.
func (s *ShadowStore) GetFlag(key string) (string, bool, error) {
	value, ok, err := s.Get(key)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(value), true, nil
}

// SetFlag writes a string flag.
func (s *ShadowStore) SetFlag(key, value string) error {
	return s.Set(key, []byte(value))
}
