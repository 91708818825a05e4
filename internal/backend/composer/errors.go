package composer

import (
	"errors"
	"fmt"
)

var (
	// ErrAssetTimeout marks a brand asset that did not load within the timeout budget.
	ErrAssetTimeout = errors.New("brand asset load timed out")
	// ErrAssetDecode marks a brand asset that could not be fetched or decoded.
	ErrAssetDecode = errors.New("brand asset could not be decoded")
	// ErrSourceTooLarge marks a source whose declared dimensions exceed the pixel budget.
	ErrSourceTooLarge = errors.New("source image too large")
)

// SourceDecodeError is returned when the captured source image cannot be decoded.
// It is the only error Compose returns for bad input; the caller must retake.
type SourceDecodeError struct {
	Err error
}

func (e *SourceDecodeError) Error() string {
	return fmt.Sprintf("failed to decode source image: %v", e.Err)
}

func (e *SourceDecodeError) Unwrap() error {
	return e.Err
}
