package database

import (
	"context"
	"fmt"
	"log/slog"
)

// NewDatabase opens a record store for the given driver and ensures its schema exists.
func NewDatabase(ctx context.Context, databaseType, connectionString string) (RecordStore, error) {
	var store RecordStore
	switch databaseType {
	case "sqlite":
		db, err := NewSQLiteDatabase(connectionString)
		if err != nil {
			return nil, err
		}
		store = db
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}

	// Ensure database schema exists (idempotent), important for in-memory SQLite
	slog.Info("Database: initializing schema", "driver", databaseType)
	if err := store.CreateDatabase(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return store, nil
}
