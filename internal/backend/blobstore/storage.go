package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrExists is returned when an upload without Overwrite targets an occupied path.
	ErrExists = errors.New("object already exists")
	// ErrNotFound is returned when no object is stored at a path.
	ErrNotFound = errors.New("object not found")
)

// UploadOptions controls a single upload.
type UploadOptions struct {
	Overwrite   bool
	ContentType string
}

// Storage persists binaries under slash-separated paths and exposes them by URL.
type Storage interface {
	Name() string
	Upload(ctx context.Context, path string, data []byte, opts UploadOptions) error
	// PublicURL returns the durable, externally reachable location of path.
	PublicURL(path string) string
	Download(ctx context.Context, path string) ([]byte, error)
	Close() error
}

// StorageFactory creates a storage driver from configuration parameters
type StorageFactory func(params map[string]any) (Storage, error)

// StorageConfig represents a storage driver selection with its parameters
type StorageConfig struct {
	Driver string         `yaml:"driver"`
	Params map[string]any `yaml:"params"`
}

// CleanPath normalizes an object path and rejects paths escaping the store root.
func CleanPath(p string) (string, error) {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return "", fmt.Errorf("object path is required")
	}
	cleaned := path.Clean("/" + trimmed)
	if cleaned == "/" || strings.Contains(trimmed, "..") {
		return "", fmt.Errorf("invalid object path: %q", p)
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

// mediaURL builds the location served by the media route for locally stored objects.
func mediaURL(publicBase, objectPath string) string {
	return strings.TrimRight(publicBase, "/") + "/media/" + objectPath
}
