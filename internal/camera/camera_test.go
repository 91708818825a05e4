package camera

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestStillCamera_CaptureReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := os.WriteFile(path, pngHeader, 0o600); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	cam := NewStillCamera(path)

	if err := cam.RequestAccess(context.Background()); err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}
	frame, err := cam.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !bytes.Equal(frame.Data, pngHeader) {
		t.Errorf("unexpected frame data %q", frame.Data)
	}
	if frame.MimeType != "image/png" {
		t.Errorf("expected image/png, got %s", frame.MimeType)
	}

	cam.Release()
	if _, err := cam.Capture(context.Background()); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased after release, got %v", err)
	}
}

func TestStillCamera_MissingFileDeniesAccess(t *testing.T) {
	cam := NewStillCamera(filepath.Join(t.TempDir(), "missing.png"))
	if err := cam.RequestAccess(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestFeedCamera_PermissionAnswers(t *testing.T) {
	cam := NewFeedCamera()

	cam.SetPermission(false)
	if err := cam.RequestAccess(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cam.RequestAccess(context.Background()) }()
	cam.SetPermission(true)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected grant, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RequestAccess did not return after SetPermission")
	}
}

func TestFeedCamera_LatestAnswerWins(t *testing.T) {
	cam := NewFeedCamera()
	cam.SetPermission(false)
	cam.SetPermission(true)
	if err := cam.RequestAccess(context.Background()); err != nil {
		t.Fatalf("expected the newer grant to win, got %v", err)
	}
}

func TestFeedCamera_RequestAccessHonoursContext(t *testing.T) {
	cam := NewFeedCamera()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := cam.RequestAccess(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestFeedCamera_CaptureReturnsLatestFrame(t *testing.T) {
	cam := NewFeedCamera()
	if _, err := cam.Capture(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame before any push, got %v", err)
	}

	if err := cam.PushFrame([]byte("first")); err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	if err := cam.PushFrame([]byte("second")); err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	frame, err := cam.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if string(frame.Data) != "second" {
		t.Errorf("expected latest frame, got %q", frame.Data)
	}
}

func TestFeedCamera_PushValidation(t *testing.T) {
	cam := NewFeedCamera()
	if err := cam.PushFrame(nil); err == nil {
		t.Error("expected error for empty frame")
	}
	if err := cam.PushFrame(make([]byte, MaxFrameBytes+1)); err == nil {
		t.Error("expected error for oversized frame")
	}
	cam.Release()
	if err := cam.PushFrame([]byte("x")); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased, got %v", err)
	}
}
