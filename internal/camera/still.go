package camera

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

// StillCamera serves the contents of an image file as its only frame. The kiosk
// CLI uses it to push a photo through the pipeline without a browser.
type StillCamera struct {
	Path string

	released atomic.Bool
	now      func() time.Time
}

func NewStillCamera(path string) *StillCamera {
	return &StillCamera{Path: path, now: time.Now}
}

func (c *StillCamera) RequestAccess(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(c.Path); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	c.released.Store(false)
	return nil
}

func (c *StillCamera) Capture(ctx context.Context) (*CaptureFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.released.Load() {
		return nil, ErrReleased
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame from %s: %w", c.Path, err)
	}
	if len(data) == 0 {
		return nil, ErrNoFrame
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	return &CaptureFrame{
		Data:       data,
		MimeType:   http.DetectContentType(data),
		CapturedAt: now(),
	}, nil
}

func (c *StillCamera) Release() {
	c.released.Store(true)
}
