package publisher

import "fmt"

// UploadError means the binary never reached storage. No metadata was written.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// PersistError means the binary was uploaded but its metadata record was not written.
// The binary at Path is left in place as an orphan.
type PersistError struct {
	Path           string
	BinaryLocation string
	Err            error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist record for %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
