package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator"
	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
	validate         *validator.Validate
	now              func() time.Time
}

func NewSQLiteDatabase(connectionString string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
		validate:         validator.New(),
		now:              time.Now,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		image_url TEXT NOT NULL,
		download_url TEXT NOT NULL,
		qr_code_url TEXT,
		created_at INTEGER NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		mime_type TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create photos table: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS photos_created_at ON photos (created_at DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create photos index: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist(ctx context.Context) bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	err := s.db.PingContext(ctx)
	return err == nil
}

func (s *SQLiteDatabase) Insert(ctx context.Context, photo PhotoInsert) (*PublishedRecord, error) {
	if err := s.validate.Struct(photo); err != nil {
		return nil, fmt.Errorf("invalid photo record: %w", err)
	}
	id, err := generateID()
	if err != nil {
		return nil, err
	}
	createdAt := s.now().UTC().Truncate(time.Millisecond)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO photos (id, image_url, download_url, qr_code_url, created_at, file_name, file_size, mime_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, photo.ImageURL, photo.DownloadURL, photo.QRCodeURL, createdAt.UnixMilli(),
		photo.FileName, photo.FileSize, photo.MimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to insert photo record: %w", err)
	}

	return &PublishedRecord{
		ID:               id,
		BinaryLocation:   photo.ImageURL,
		DownloadLocation: photo.DownloadURL,
		CreatedAt:        createdAt,
		FileName:         photo.FileName,
		FileSizeBytes:    photo.FileSize,
		MimeType:         photo.MimeType,
	}, nil
}

const selectColumns = "id, image_url, download_url, created_at, file_name, file_size, mime_type"

func (s *SQLiteDatabase) SelectByID(ctx context.Context, id string) (*PublishedRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM photos WHERE id = ?", id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select photo %s: %w", id, err)
	}
	return record, nil
}

func (s *SQLiteDatabase) SelectRecent(ctx context.Context, limit int) ([]*PublishedRecord, error) {
	query := "SELECT " + selectColumns + " FROM photos ORDER BY created_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select recent photos: %w", err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	records := make([]*PublishedRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate photo rows: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*PublishedRecord, error) {
	var record PublishedRecord
	var createdAtMillis int64
	if err := row.Scan(&record.ID, &record.BinaryLocation, &record.DownloadLocation, &createdAtMillis,
		&record.FileName, &record.FileSizeBytes, &record.MimeType); err != nil {
		return nil, err
	}
	record.CreatedAt = time.UnixMilli(createdAtMillis).UTC()
	return &record, nil
}
