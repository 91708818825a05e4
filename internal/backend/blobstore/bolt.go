package blobstore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const blobBucket = "blobs"

// BoltStorage keeps binaries in a single BoltDB file and serves them through the media route.
type BoltStorage struct {
	db         *bbolt.DB
	publicBase string
}

// OpenBolt opens a BoltDB-backed store at the provided path.
func OpenBolt(path, publicBase string) (*BoltStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open blob db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(blobBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create blob bucket: %w", err)
	}

	return &BoltStorage{db: db, publicBase: publicBase}, nil
}

func newBoltStorage(params map[string]any) (Storage, error) {
	if err := ValidateRequiredParams(params, []string{"path"}); err != nil {
		return nil, err
	}
	return OpenBolt(GetStringParam(params, "path", ""), GetStringParam(params, "publicBaseUrl", ""))
}

func (s *BoltStorage) Name() string {
	return "bolt"
}

func (s *BoltStorage) Upload(ctx context.Context, path string, data []byte, opts UploadOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	key, err := CleanPath(path)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(blobBucket))
		if bucket == nil {
			return fmt.Errorf("blob bucket is missing")
		}
		if !opts.Overwrite && bucket.Get([]byte(key)) != nil {
			return fmt.Errorf("%w: %s", ErrExists, key)
		}
		return bucket.Put([]byte(key), data)
	})
}

func (s *BoltStorage) PublicURL(path string) string {
	key, err := CleanPath(path)
	if err != nil {
		key = path
	}
	return mediaURL(s.publicBase, key)
}

func (s *BoltStorage) Download(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	key, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(blobBucket))
		if bucket == nil {
			return fmt.Errorf("blob bucket is missing")
		}
		value := bucket.Get([]byte(key))
		if value == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		// value is only valid inside the transaction
		data = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close closes the underlying BoltDB database.
func (s *BoltStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func init() {
	if err := DefaultRegistry.Register("bolt", newBoltStorage); err != nil {
		panic(err)
	}
}
