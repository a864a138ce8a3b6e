package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// LocalStorage implements the Storage interface on the local filesystem.
// It stands in for the channel during development and manual testing.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, vaulterr.New(vaulterr.IOError, "local_storage", fmt.Errorf("failed to create storage directory: %w", err))
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Put stores obj under a fresh random id. The object becomes visible only
// once fully written.
func (s *LocalStorage) Put(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", vaulterr.New(vaulterr.Canceled, "local_put", err)
	}

	id := uuid.NewString()
	tmp, err := os.CreateTemp(s.basePath, ".incoming-*")
	if err != nil {
		return "", vaulterr.New(vaulterr.IOError, "local_put", err)
	}

	_, err = io.Copy(tmp, obj.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", vaulterr.New(vaulterr.IOError, "local_put", fmt.Errorf("failed to write object: %w", err))
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.basePath, id)); err != nil {
		os.Remove(tmp.Name())
		return "", vaulterr.New(vaulterr.IOError, "local_put", err)
	}
	return id, nil
}

// Get copies the object stored under id into w.
func (s *LocalStorage) Get(ctx context.Context, id string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, vaulterr.New(vaulterr.Canceled, "local_get", err)
	}
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return 0, vaulterr.Errorf(vaulterr.RemoteNotFound, "local_get", "object not found: %q", id)
	}

	file, err := os.Open(filepath.Join(s.basePath, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, vaulterr.Errorf(vaulterr.RemoteNotFound, "local_get", "object not found: %s", id)
		}
		return 0, vaulterr.New(vaulterr.IOError, "local_get", err)
	}
	defer file.Close()

	n, err := io.Copy(w, file)
	if err != nil {
		return n, vaulterr.New(vaulterr.IOError, "local_get", err)
	}
	return n, nil
}

// Delete removes an object. Missing objects are not an error.
func (s *LocalStorage) Delete(id string) error {
	err := os.Remove(filepath.Join(s.basePath, id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return vaulterr.New(vaulterr.IOError, "local_delete", err)
	}
	return nil
}

// Close is a no-op.
func (s *LocalStorage) Close() error {
	return nil
}
