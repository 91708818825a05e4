package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "snapframe:blob:"

// RedisStorage keeps binaries in Redis so several kiosks can share one media host.
type RedisStorage struct {
	client     *redis.Client
	prefix     string
	publicBase string
}

func NewRedisStorage(client *redis.Client, prefix, publicBase string) *RedisStorage {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisStorage{client: client, prefix: prefix, publicBase: publicBase}
}

func newRedisStorage(params map[string]any) (Storage, error) {
	if err := ValidateRequiredParams(params, []string{"addr"}); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     GetStringParam(params, "addr", ""),
		Password: GetStringParam(params, "password", ""),
		DB:       GetIntParam(params, "db", 0),
	})
	return NewRedisStorage(client, GetStringParam(params, "keyPrefix", ""), GetStringParam(params, "publicBaseUrl", "")), nil
}

func (s *RedisStorage) Name() string {
	return "redis"
}

func (s *RedisStorage) Upload(ctx context.Context, path string, data []byte, opts UploadOptions) error {
	key, err := CleanPath(path)
	if err != nil {
		return err
	}
	if opts.Overwrite {
		if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to store blob %s: %w", key, err)
		}
		return nil
	}

	stored, err := s.client.SetNX(ctx, s.prefix+key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store blob %s: %w", key, err)
	}
	if !stored {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}
	return nil
}

func (s *RedisStorage) PublicURL(path string) string {
	key, err := CleanPath(path)
	if err != nil {
		key = path
	}
	return mediaURL(s.publicBase, key)
}

func (s *RedisStorage) Download(ctx context.Context, path string) ([]byte, error) {
	key, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load blob %s: %w", key, err)
	}
	return data, nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}

func init() {
	if err := DefaultRegistry.Register("redis", newRedisStorage); err != nil {
		panic(err)
	}
}
