package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage implements BlobStore on a local directory. Used for
// development and tests; objects are served under publicURL when set.
type LocalStorage struct {
	root      string
	publicURL string
}

// NewLocalStorage creates the root directory and its tmp area.
func NewLocalStorage(root, publicURL string) (*LocalStorage, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("local storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, ".tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStorage{root: abs, publicURL: strings.TrimSuffix(publicURL, "/")}, nil
}

// Put writes to a temp file and renames it into place so readers never see partial objects.
func (l *LocalStorage) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst, err := l.pathFromKey(key)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Join(l.root, ".tmp"), "put-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return l.GetURL(key), nil
}

// Get reads the object stored under key.
func (l *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return data, err
}

// Locate finds the object whose name is imageID followed by an extension.
func (l *LocalStorage) Locate(ctx context.Context, imageID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := l.pathFromKey(imageID); err != nil {
		return "", err
	}
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return "", err
	}
	prefix := imageID + "."
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), prefix) {
			return e.Name(), nil
		}
	}
	return "", fmt.Errorf("%w: image %s", ErrObjectNotFound, imageID)
}

// PresignGet has no signing scheme locally; it returns the public address.
func (l *LocalStorage) PresignGet(ctx context.Context, key string, _ time.Duration) (string, error) {
	if _, err := l.pathFromKey(key); err != nil {
		return "", err
	}
	return l.GetURL(key), ctx.Err()
}

// GetURL returns the public URL of key, or a file:// URL without one.
func (l *LocalStorage) GetURL(key string) string {
	if l.publicURL != "" {
		return l.publicURL + "/" + key
	}
	return "file://" + filepath.ToSlash(filepath.Join(l.root, key))
}

// Exists checks if an object exists
func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := l.pathFromKey(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// pathFromKey accepts only flat object names inside the root.
func (l *LocalStorage) pathFromKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("object key is required")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." || strings.HasPrefix(key, ".tmp") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.root, key), nil
}
