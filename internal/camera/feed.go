package camera

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// MaxFrameBytes bounds a single pushed frame.
const MaxFrameBytes = 16 << 20

// FeedCamera holds the latest frame pushed by the kiosk browser. The browser also
// answers the permission prompt, so RequestAccess waits for SetPermission.
type FeedCamera struct {
	answers chan bool

	mu       sync.Mutex
	latest   *CaptureFrame
	released bool
	now      func() time.Time
}

func NewFeedCamera() *FeedCamera {
	return &FeedCamera{
		answers: make(chan bool, 1),
		now:     time.Now,
	}
}

// SetPermission answers the pending (or next) access request. A newer answer
// replaces one that nobody has consumed yet.
func (c *FeedCamera) SetPermission(granted bool) {
	select {
	case <-c.answers:
	default:
	}
	select {
	case c.answers <- granted:
	default:
	}
}

func (c *FeedCamera) RequestAccess(ctx context.Context) error {
	select {
	case granted := <-c.answers:
		if !granted {
			return ErrPermissionDenied
		}
		c.mu.Lock()
		c.released = false
		c.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushFrame replaces the latest frame of the feed.
func (c *FeedCamera) PushFrame(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("frame is empty")
	}
	if len(data) > MaxFrameBytes {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d", len(data), MaxFrameBytes)
	}
	frame := &CaptureFrame{
		Data:       append([]byte(nil), data...),
		MimeType:   http.DetectContentType(data),
		CapturedAt: c.now(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}
	c.latest = frame
	return nil
}

func (c *FeedCamera) Capture(ctx context.Context) (*CaptureFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, ErrReleased
	}
	if c.latest == nil {
		return nil, ErrNoFrame
	}
	frame := *c.latest
	frame.CapturedAt = c.now()
	return &frame, nil
}

func (c *FeedCamera) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	c.latest = nil
}
