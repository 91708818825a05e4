package database

import (
	"fmt"

	"github.com/google/uuid"
)

// generateID returns a time-ordered UUIDv7 so ids sort roughly by creation.
func generateID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate record id: %w", err)
	}
	return id.String(), nil
}
