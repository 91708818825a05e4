package database

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that require a record to exist.
var ErrNotFound = errors.New("record not found")

// PendingCodeLocation is written to the retrieval-code column at insert time.
// The code itself is derived from the record id afterwards and never stored.
const PendingCodeLocation = "pending"

// PhotoInsert is the metadata written once per published photo.
type PhotoInsert struct {
	ImageURL    string `validate:"required"`
	DownloadURL string `validate:"required"`
	QRCodeURL   string
	FileName    string `validate:"required"`
	FileSize    int64  `validate:"gte=0"`
	MimeType    string `validate:"required"`
}

// PublishedRecord is the durable photo record. It is immutable once created.
type PublishedRecord struct {
	ID                string    `json:"id" db:"id"`
	BinaryLocation    string    `json:"imageUrl" db:"image_url"`
	DownloadLocation  string    `json:"downloadUrl" db:"download_url"`
	RetrievalLocation string    `json:"retrievalCodeUrl"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
	FileName          string    `json:"fileName" db:"file_name"`
	FileSizeBytes     int64     `json:"fileSizeBytes" db:"file_size"`
	MimeType          string    `json:"mimeType" db:"mime_type"`
}
