package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/onnwee/match-tender/crypto"
)

// FileStore keeps the registry in a single JSON file that is rewritten wholesale on
// every Save. Writes go to a temp file in the same directory and are renamed into
// place, so a crash mid-write leaves the previous snapshot intact.
type FileStore struct {
	Path string
	// Sealer, when set, encrypts the file contents at rest.
	Sealer crypto.Sealer
}

// NewFileStore returns a FileStore for path. sealer may be nil.
func NewFileStore(path string, sealer crypto.Sealer) *FileStore {
	return &FileStore{Path: path, Sealer: sealer}
}

// Load reads the file. A missing file is an empty registry.
func (s *FileStore) Load(_ context.Context) ([]User, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("registry file not found; starting empty", slog.String("path", s.Path), slog.String("component", "registry"))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	if s.Sealer != nil {
		if b, err = s.Sealer.Open(b); err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", s.Path, err)
		}
	}
	var users []User
	if err := json.Unmarshal(b, &users); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return users, nil
}

// Save writes users as the new file contents.
func (s *FileStore) Save(_ context.Context, users []User) error {
	if users == nil {
		users = []User{}
	}
	b, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if s.Sealer != nil {
		if b, err = s.Sealer.Seal(b); err != nil {
			return fmt.Errorf("encrypt registry: %w", err)
		}
	}
	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			slog.Warn("failed to remove temp registry file", slog.String("path", tmpName), slog.Any("err", rmErr))
		}
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", s.Path, err)
	}
	return nil
}
