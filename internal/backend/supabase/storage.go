package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/snapframe/internal/backend/blobstore"
	storage "github.com/supabase-community/storage-go"
)

const uploadCacheControl = "3600"

func (c *Client) Name() string {
	return "supabase"
}

// Upload stores data in the configured bucket.
func (c *Client) Upload(ctx context.Context, path string, data []byte, opts blobstore.UploadOptions) error {
	key, err := blobstore.CleanPath(path)
	if err != nil {
		return err
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	cacheControl := uploadCacheControl
	upsert := opts.Overwrite

	err = c.call(ctx, "upload", func() error {
		c.objectsMu.Lock()
		defer c.objectsMu.Unlock()
		_, err := c.objects.UploadFile(c.bucket, key, bytes.NewReader(data), storage.FileOptions{
			CacheControl: &cacheControl,
			ContentType:  &contentType,
			Upsert:       &upsert,
		})
		return err
	})
	if err != nil {
		if isStorageError(err, http.StatusConflict, "already exists", "duplicate") {
			return fmt.Errorf("%w: %s", blobstore.ErrExists, key)
		}
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// isStorageError matches a storage error by status, or by message when the
// backend only reports the status in its body text.
func isStorageError(err error, status int, phrases ...string) bool {
	var storageErr *storage.StorageError
	if !errors.As(err, &storageErr) {
		return false
	}
	if storageErr.Status == status {
		return true
	}
	msg := strings.ToLower(storageErr.Message)
	for _, phrase := range phrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// PublicURL returns the bucket's public object location.
func (c *Client) PublicURL(path string) string {
	key, err := blobstore.CleanPath(path)
	if err != nil {
		key = path
	}
	return c.objects.GetPublicUrl(c.bucket, key).SignedURL
}

func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	key, err := blobstore.CleanPath(path)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = c.call(ctx, "download", func() error {
		c.objectsMu.Lock()
		defer c.objectsMu.Unlock()
		var err error
		data, err = c.objects.DownloadFile(c.bucket, key)
		return err
	})
	if err != nil {
		if isStorageError(err, http.StatusNotFound, "not found") {
			return nil, fmt.Errorf("%w: %s", blobstore.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return data, nil
}

func newStorage(params map[string]any) (blobstore.Storage, error) {
	if err := blobstore.ValidateRequiredParams(params, []string{"endpoint", "apiKey"}); err != nil {
		return nil, err
	}
	return NewClient(Config{
		Endpoint: blobstore.GetStringParam(params, "endpoint", ""),
		APIKey:   blobstore.GetStringParam(params, "apiKey", ""),
		Bucket:   blobstore.GetStringParam(params, "bucket", DefaultBucket),
		Timeout:  time.Duration(blobstore.GetIntParam(params, "timeoutSeconds", 0)) * time.Second,
	})
}

func init() {
	if err := blobstore.DefaultRegistry.Register("supabase", newStorage); err != nil {
		panic(err)
	}
}
