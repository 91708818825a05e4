package publisher

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jo-hoe/snapframe/internal/backend/blobstore"
	"github.com/jo-hoe/snapframe/internal/backend/composer"
	"github.com/jo-hoe/snapframe/internal/backend/database"
)

type uploadCall struct {
	path string
	data []byte
	opts blobstore.UploadOptions
}

type fakeStorage struct {
	mu      sync.Mutex
	uploads []uploadCall
	err     error
}

func (s *fakeStorage) Upload(ctx context.Context, path string, data []byte, opts blobstore.UploadOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, uploadCall{path: path, data: data, opts: opts})
	return s.err
}

func (s *fakeStorage) PublicURL(path string) string {
	return "https://cdn.example.com/" + path
}

type fakeRecords struct {
	mu      sync.Mutex
	inserts []database.PhotoInsert
	err     error
}

func (r *fakeRecords) Insert(ctx context.Context, photo database.PhotoInsert) (*database.PublishedRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts = append(r.inserts, photo)
	if r.err != nil {
		return nil, r.err
	}
	return &database.PublishedRecord{
		ID:               "rec-1",
		BinaryLocation:   photo.ImageURL,
		DownloadLocation: photo.DownloadURL,
		CreatedAt:        time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		FileName:         photo.FileName,
		FileSizeBytes:    photo.FileSize,
		MimeType:         photo.MimeType,
	}, nil
}

func testComposite(size int) *composer.CompositeImage {
	return &composer.CompositeImage{
		Data:     bytes.Repeat([]byte{0xAB}, size),
		MimeType: "image/png",
		Format:   composer.FormatPNG,
		Width:    1080,
		Height:   1920,
	}
}

func newTestPublisher(storage *fakeStorage, records *fakeRecords) *Publisher {
	p := New(storage, records, "https://kiosk.example.com")
	p.now = func() time.Time { return time.UnixMilli(1_700_000_000_123) }
	return p
}

func TestPublish_SingleUploadAndInsert(t *testing.T) {
	storage := &fakeStorage{}
	records := &fakeRecords{}
	p := newTestPublisher(storage, records)

	record, err := p.Publish(context.Background(), testComposite(500))
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if len(storage.uploads) != 1 {
		t.Fatalf("Expected exactly 1 upload, got %d", len(storage.uploads))
	}
	if len(records.inserts) != 1 {
		t.Fatalf("Expected exactly 1 insert, got %d", len(records.inserts))
	}
	if record.FileSizeBytes != 500 {
		t.Errorf("Expected FileSizeBytes 500, got %d", record.FileSizeBytes)
	}

	upload := storage.uploads[0]
	if upload.opts.Overwrite {
		t.Error("Expected upload without overwrite")
	}
	if upload.opts.ContentType != "image/png" {
		t.Errorf("Expected content type image/png, got %s", upload.opts.ContentType)
	}
	if !strings.HasPrefix(upload.path, "photos/photo-1700000000123-") {
		t.Errorf("Unexpected upload path %s", upload.path)
	}

	insert := records.inserts[0]
	if insert.ImageURL != "https://cdn.example.com/"+upload.path || insert.DownloadURL != insert.ImageURL {
		t.Errorf("Expected record to point at the uploaded binary, got %+v", insert)
	}
	if insert.QRCodeURL != database.PendingCodeLocation {
		t.Errorf("Expected placeholder code location, got %s", insert.QRCodeURL)
	}
	if record.RetrievalLocation != "https://kiosk.example.com/retrieve?id=rec-1" {
		t.Errorf("Unexpected retrieval location %s", record.RetrievalLocation)
	}
}

func TestPublish_UploadFailureSkipsInsert(t *testing.T) {
	storage := &fakeStorage{err: errors.New("bucket unavailable")}
	records := &fakeRecords{}
	p := newTestPublisher(storage, records)

	_, err := p.Publish(context.Background(), testComposite(10))
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("Expected *UploadError, got %T: %v", err, err)
	}
	if len(records.inserts) != 0 {
		t.Errorf("Expected no metadata write after upload failure, got %d", len(records.inserts))
	}
}

func TestPublish_PersistFailureReportsOrphan(t *testing.T) {
	storage := &fakeStorage{}
	records := &fakeRecords{err: errors.New("constraint violation")}
	p := newTestPublisher(storage, records)

	_, err := p.Publish(context.Background(), testComposite(10))
	var persistErr *PersistError
	if !errors.As(err, &persistErr) {
		t.Fatalf("Expected *PersistError, got %T: %v", err, err)
	}
	if persistErr.Path != storage.uploads[0].path {
		t.Errorf("Expected orphan path %s, got %s", storage.uploads[0].path, persistErr.Path)
	}
	if len(storage.uploads) != 1 {
		t.Errorf("Expected the binary to stay uploaded once, got %d uploads", len(storage.uploads))
	}
}

func TestPublish_EmptyComposite(t *testing.T) {
	storage := &fakeStorage{}
	p := newTestPublisher(storage, &fakeRecords{})
	_, err := p.Publish(context.Background(), &composer.CompositeImage{})
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("Expected *UploadError, got %v", err)
	}
	if len(storage.uploads) != 0 {
		t.Errorf("Expected no upload for empty composite")
	}
}

func TestPublish_NoDeduplication(t *testing.T) {
	storage := &fakeStorage{}
	records := &fakeRecords{}
	p := newTestPublisher(storage, records)
	composite := testComposite(20)

	for i := 0; i < 2; i++ {
		if _, err := p.Publish(context.Background(), composite); err != nil {
			t.Fatalf("Publish #%d error: %v", i+1, err)
		}
	}
	if len(storage.uploads) != 2 || len(records.inserts) != 2 {
		t.Fatalf("Expected every call to publish, got %d uploads / %d inserts", len(storage.uploads), len(records.inserts))
	}
	if storage.uploads[0].path == storage.uploads[1].path {
		t.Errorf("Expected distinct file names, both were %s", storage.uploads[0].path)
	}
}

func TestFileName(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	fixed := func() string { return "0a1b2c" }

	tests := []struct {
		ext  string
		want string
	}{
		{"png", "photo-1700000000123-0a1b2c.png"},
		{".jpg", "photo-1700000000123-0a1b2c.jpg"},
		{"", "photo-1700000000123-0a1b2c.png"},
	}
	for _, tt := range tests {
		if name := FileName(now, fixed, tt.ext); name != tt.want {
			t.Errorf("FileName(%q) = %q, want %s", tt.ext, name, tt.want)
		}
	}
}

func TestNewSuffix_SixBase36Characters(t *testing.T) {
	pattern := regexp.MustCompile(`^photo-5-[0-9a-z]{6}\.png$`)
	suffix := NewSuffix()
	seen := make(map[string]bool)
	for range 50 {
		name := FileName(time.UnixMilli(5), suffix, "png")
		if !pattern.MatchString(name) {
			t.Fatalf("FileName = %q does not match expected format", name)
		}
		seen[name] = true
	}
	if len(seen) < 45 {
		t.Errorf("Expected random suffixes, got only %d distinct names out of 50", len(seen))
	}
}
