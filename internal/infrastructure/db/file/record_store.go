// Package file stores the user record set in a single delimited text file.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
	"github.com/vamosfrotas/fleet-access/internal/infrastructure/db/codec"
)

const filePerm = 0o600

// RecordStore reads and atomically replaces one file. Several processes may
// point at the same path; their writes are not coordinated and the last
// rename wins.
type RecordStore struct {
	path string
}

var _ ports.RecordStore = (*RecordStore)(nil)

func NewRecordStore(path string) *RecordStore {
	return &RecordStore{path: path}
}

// Load returns the persisted set. A missing file is an empty set.
func (s *RecordStore) Load(_ context.Context) ([]domain.User, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrStoreUnavailable, s.path, err)
	}
	return codec.Decode(data)
}

// ReplaceAll writes users to a temporary file beside the target, syncs it and
// renames it into place, so readers see either the old set or the new one.
func (s *RecordStore) ReplaceAll(_ context.Context, users []domain.User) error {
	data, err := codec.Encode(users)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	done := false
	defer func() {
		if !done {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp, filePerm); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}

	done = true
	return nil
}
