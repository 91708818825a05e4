package blobstore

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStorage(client, "", "https://media.example.com")
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStorage_UploadAndDownload(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()
	data := []byte{0x89, 'P', 'N', 'G'}

	if err := store.Upload(ctx, "photos/p.png", data, UploadOptions{ContentType: "image/png"}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !mr.Exists(defaultRedisKeyPrefix + "photos/p.png") {
		t.Fatalf("expected key to be stored with the default prefix")
	}
	got, err := store.Download(ctx, "photos/p.png")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("expected %v, got %v", data, got)
	}
}

func TestRedisStorage_UploadWithoutOverwriteRejectsExisting(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()

	if err := store.Upload(ctx, "photos/p.png", []byte("a"), UploadOptions{}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := store.Upload(ctx, "photos/p.png", []byte("b"), UploadOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if err := store.Upload(ctx, "photos/p.png", []byte("c"), UploadOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite upload: %v", err)
	}
	got, _ := store.Download(ctx, "photos/p.png")
	if string(got) != "c" {
		t.Fatalf("expected overwritten content, got %q", got)
	}
}

func TestRedisStorage_DownloadMissing(t *testing.T) {
	store, _ := newTestRedis(t)
	if _, err := store.Download(context.Background(), "photos/none.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStorage_ServerDown(t *testing.T) {
	store, mr := newTestRedis(t)
	mr.Close()
	err := store.Upload(context.Background(), "photos/p.png", []byte("a"), UploadOptions{})
	if err == nil || errors.Is(err, ErrExists) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestRedisStorage_PublicURL(t *testing.T) {
	store, _ := newTestRedis(t)
	want := "https://media.example.com/media/photos/p.png"
	if got := store.PublicURL("photos/p.png"); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
