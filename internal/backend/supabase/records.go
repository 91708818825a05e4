package supabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jo-hoe/snapframe/internal/backend/database"
	"github.com/supabase-community/postgrest-go"
)

const (
	// invalidTextRepresentation is the postgres code returned when an id is not a valid uuid.
	invalidTextRepresentation = "22P02"
	// noSingleRow is returned when a single-object read matches no row.
	noSingleRow = "PGRST116"
)

type photoRow struct {
	ID          string    `json:"id"`
	ImageURL    string    `json:"image_url"`
	DownloadURL string    `json:"download_url"`
	QRCodeURL   string    `json:"qr_code_url"`
	CreatedAt   time.Time `json:"created_at"`
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size"`
	MimeType    string    `json:"mime_type"`
}

type photoInsertRow struct {
	ImageURL    string `json:"image_url"`
	DownloadURL string `json:"download_url"`
	QRCodeURL   string `json:"qr_code_url"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	MimeType    string `json:"mime_type"`
}

func (r photoRow) toRecord() *database.PublishedRecord {
	return &database.PublishedRecord{
		ID:               r.ID,
		BinaryLocation:   r.ImageURL,
		DownloadLocation: r.DownloadURL,
		CreatedAt:        r.CreatedAt.UTC(),
		FileName:         r.FileName,
		FileSizeBytes:    r.FileSize,
		MimeType:         r.MimeType,
	}
}

// CreateDatabase is a no-op; the hosted table is provisioned with the project.
func (c *Client) CreateDatabase(ctx context.Context) error {
	return nil
}

// DoesDatabaseExist reports whether the photos table answers a minimal query.
func (c *Client) DoesDatabaseExist(ctx context.Context) bool {
	err := c.call(ctx, "check table", func() error {
		_, _, err := c.rest.From(c.table).Select("id", "", false).Limit(1, "").Execute()
		return err
	})
	return err == nil
}

func (c *Client) Insert(ctx context.Context, photo database.PhotoInsert) (*database.PublishedRecord, error) {
	row := photoInsertRow{
		ImageURL:    photo.ImageURL,
		DownloadURL: photo.DownloadURL,
		QRCodeURL:   photo.QRCodeURL,
		FileName:    photo.FileName,
		FileSize:    photo.FileSize,
		MimeType:    photo.MimeType,
	}
	var rows []photoRow
	err := c.call(ctx, "insert", func() error {
		_, err := c.rest.From(c.table).Insert(row, false, "", "representation", "").ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert photo record: %w", restError(err))
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("failed to insert photo record: expected 1 row in response, got %d", len(rows))
	}
	return rows[0].toRecord(), nil
}

// SelectByID returns nil when no row matches, including ids that are not uuids.
func (c *Client) SelectByID(ctx context.Context, id string) (*database.PublishedRecord, error) {
	var row photoRow
	err := c.call(ctx, "select by id", func() error {
		_, err := c.rest.From(c.table).Select("*", "", false).Eq("id", id).Single().ExecuteTo(&row)
		return err
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(restError(err), &apiErr) && (apiErr.Code == noSingleRow || apiErr.Code == invalidTextRepresentation) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select photo %s: %w", id, restError(err))
	}
	return row.toRecord(), nil
}

func (c *Client) SelectRecent(ctx context.Context, limit int) ([]*database.PublishedRecord, error) {
	var rows []photoRow
	err := c.call(ctx, "select recent", func() error {
		query := c.rest.From(c.table).Select("*", "", false).Order("created_at", &postgrest.OrderOpts{Ascending: false})
		if limit > 0 {
			query = query.Limit(limit, "")
		}
		_, err := query.ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select recent photos: %w", restError(err))
	}
	records := make([]*database.PublishedRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}
