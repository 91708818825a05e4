package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/pkg/idgen"
	"github.com/jo-hoe/snapframe/internal/backend/blobstore"
	"github.com/jo-hoe/snapframe/internal/backend/composer"
	"github.com/jo-hoe/snapframe/internal/backend/database"
	"github.com/jo-hoe/snapframe/internal/common"
)

// BinaryStore is the part of blob storage the publisher writes to.
type BinaryStore interface {
	Upload(ctx context.Context, path string, data []byte, opts blobstore.UploadOptions) error
	PublicURL(path string) string
}

// RecordWriter is the part of the record store the publisher writes to.
type RecordWriter interface {
	Insert(ctx context.Context, photo database.PhotoInsert) (*database.PublishedRecord, error)
}

// Publisher persists a composite: binary first, then its metadata record.
// It keeps no state between calls and does not deduplicate.
type Publisher struct {
	storage BinaryStore
	records RecordWriter
	origin  string

	now       func() time.Time
	newSuffix idgen.Generator
}

func New(storage BinaryStore, records RecordWriter, origin string) *Publisher {
	return &Publisher{
		storage: storage,
		records: records,
		origin:  origin,
		now:       time.Now,
		newSuffix: NewSuffix(),
	}
}

func (p *Publisher) Publish(ctx context.Context, composite *composer.CompositeImage) (*database.PublishedRecord, error) {
	if composite == nil || len(composite.Data) == 0 {
		return nil, &UploadError{Err: fmt.Errorf("composite is empty")}
	}
	start := time.Now()

	name := FileName(p.now(), p.newSuffix, composite.Format.Extension())
	path := PathPrefix + name

	err := p.storage.Upload(ctx, path, composite.Data, blobstore.UploadOptions{
		Overwrite:   false,
		ContentType: composite.MimeType,
	})
	if err != nil {
		slog.Error("Publisher: failed to upload composite", "path", path, "error", err)
		return nil, &UploadError{Path: path, Err: err}
	}
	location := p.storage.PublicURL(path)

	record, err := p.records.Insert(ctx, database.PhotoInsert{
		ImageURL:    location,
		DownloadURL: location,
		QRCodeURL:   database.PendingCodeLocation,
		FileName:    name,
		FileSize:    int64(len(composite.Data)),
		MimeType:    composite.MimeType,
	})
	if err != nil {
		// No rollback: the uploaded binary stays behind as an orphan.
		slog.Error("Publisher: failed to persist record, binary orphaned",
			"path", path,
			"location", location,
			"error", err)
		return nil, &PersistError{Path: path, BinaryLocation: location, Err: err}
	}

	record.RetrievalLocation = common.RetrievalURL(p.origin, record.ID)

	slog.Info("Publisher: photo published",
		"id", record.ID,
		"path", path,
		"size_bytes", record.FileSizeBytes,
		"duration_ms", time.Since(start).Milliseconds())
	return record, nil
}
