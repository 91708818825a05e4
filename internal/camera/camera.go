package camera

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied is returned when access to the camera was refused.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrNoFrame is returned when the feed has not produced a frame yet.
	ErrNoFrame = errors.New("no frame available")
	// ErrReleased is returned after the camera has been released.
	ErrReleased = errors.New("camera released")
)

// CaptureFrame is one still pulled from the live feed. It belongs to the session
// that captured it and is dropped on retake or when the session ends.
type CaptureFrame struct {
	Data       []byte
	MimeType   string
	CapturedAt time.Time
}

// Camera is the live feed a kiosk session captures from.
type Camera interface {
	// RequestAccess blocks until access is granted or refused.
	RequestAccess(ctx context.Context) error
	// Capture pulls a single frame at the current instant.
	Capture(ctx context.Context) (*CaptureFrame, error)
	// Release stops the feed. It is safe to call more than once.
	Release()
}
