package database

import "context"

type RecordStore interface {
	CreateDatabase(ctx context.Context) error
	DoesDatabaseExist(ctx context.Context) bool
	Close() error

	// Insert writes a new photo record and returns it with the store-assigned id and creation time.
	Insert(ctx context.Context, photo PhotoInsert) (*PublishedRecord, error)
	// SelectByID returns nil without an error when no record has the given id.
	SelectByID(ctx context.Context, id string) (*PublishedRecord, error)
	// SelectRecent returns records newest first. A limit <= 0 returns all records.
	SelectRecent(ctx context.Context, limit int) ([]*PublishedRecord, error)
}
