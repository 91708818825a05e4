package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/snapframe/internal/camera"
	"github.com/jo-hoe/snapframe/internal/common"
	"github.com/jo-hoe/snapframe/internal/core"
	"github.com/labstack/echo/v4"
)

const testOrigin = "https://kiosk.example.com"

func newTestServer(t *testing.T) (*echo.Echo, *core.CoreService) {
	t.Helper()
	config := core.DefaultServiceConfig()
	config.Origin = testOrigin
	config.Composition.Width = 216
	config.Composition.Height = 384
	config.Composition.AssetTimeout = 50 * time.Millisecond
	config.Session.CountdownFrom = 0
	config.Session.TickInterval = time.Millisecond
	config.Storage.Params = map[string]any{
		"path":          filepath.Join(t.TempDir(), "blobs.db"),
		"publicBaseUrl": testOrigin,
	}
	config.Database.ConnectionString = ":memory:"

	svc, err := core.NewCoreService(context.Background(), &config, nil)
	if err != nil {
		t.Fatalf("NewCoreService error: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	e := echo.New()
	e.Validator = common.NewEchoValidator()
	NewFrontendService(svc).SetRoutes(e)
	return e, svc
}

func publishTestPhoto(t *testing.T, svc *core.CoreService) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for i := range img.Pix {
		img.Pix[i] = 0x7f
	}
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "capture.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := svc.Shoot(ctx, camera.NewStillCamera(path))
	if err != nil {
		t.Fatalf("Shoot error: %v", err)
	}
	return snap.Record.ID
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRetrieve(t *testing.T) {
	e, svc := newTestServer(t)
	id := publishTestPhoto(t, svc)
	record, err := svc.PublishedPhoto(context.Background(), id)
	if err != nil {
		t.Fatalf("PublishedPhoto error: %v", err)
	}

	tests := []struct {
		name     string
		target   string
		status   int
		location string
	}{
		{"Known id redirects to the binary", "/retrieve?id=" + id, http.StatusFound, record.DownloadLocation},
		{"Direct url redirects", "/retrieve?url=https%3A%2F%2Fcdn.example.com%2Fa.png", http.StatusFound, "https://cdn.example.com/a.png"},
		{"Unknown id", "/retrieve?id=0190b6a0-0000-7000-8000-000000000000", http.StatusNotFound, ""},
		{"Missing parameters", "/retrieve", http.StatusBadRequest, ""},
		{"Non-http url", "/retrieve?url=javascript:alert(1)", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(e, tt.target)
			if rec.Code != tt.status {
				t.Fatalf("Expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.location != "" && rec.Header().Get("Location") != tt.location {
				t.Errorf("Expected Location %s, got %s", tt.location, rec.Header().Get("Location"))
			}
			if tt.status >= 400 {
				var body errorResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
					t.Errorf("Expected JSON error body, got %q", rec.Body.String())
				}
			}
		})
	}
}

func TestMediaServesPublishedBinary(t *testing.T) {
	e, svc := newTestServer(t)
	id := publishTestPhoto(t, svc)
	record, _ := svc.PublishedPhoto(context.Background(), id)

	rec := get(e, strings.TrimPrefix(record.BinaryLocation, testOrigin))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	if int64(rec.Body.Len()) != record.FileSizeBytes {
		t.Errorf("Expected %d bytes, got %d", record.FileSizeBytes, rec.Body.Len())
	}

	if rec := get(e, "/media/photos/missing.png"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing media, got %d", rec.Code)
	}
}

func TestAdminPhotos(t *testing.T) {
	e, svc := newTestServer(t)
	id := publishTestPhoto(t, svc)

	rec := get(e, "/api/admin/photos")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		Photos []struct {
			ID               string `json:"id"`
			RetrievalCodeURL string `json:"retrievalCodeUrl"`
		} `json:"photos"`
		Returned int `json:"returned"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Returned != 1 || body.Photos[0].ID != id {
		t.Fatalf("Expected the published photo, got %+v", body)
	}
	if body.Photos[0].RetrievalCodeURL != testOrigin+"/retrieve?id="+id {
		t.Errorf("Unexpected retrieval url %s", body.Photos[0].RetrievalCodeURL)
	}

	rec = get(e, "/api/admin/photos?q=no-such-photo")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Returned != 0 {
		t.Errorf("Expected empty search result, got %s", rec.Body.String())
	}

	if rec := get(e, "/api/admin/photos?from=yesterday"); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestAdminStats(t *testing.T) {
	e, svc := newTestServer(t)
	publishTestPhoto(t, svc)

	rec := get(e, "/api/admin/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var stats core.PhotoStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 1 || stats.Today != 1 || len(stats.Daily) != 7 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestAdminExport(t *testing.T) {
	e, svc := newTestServer(t)
	id := publishTestPhoto(t, svc)

	rec := get(e, "/api/admin/export")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != mimeCSV {
		t.Errorf("Expected %s, got %s", mimeCSV, ct)
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.HasPrefix(disposition, `attachment; filename="photos-`) || !strings.HasSuffix(disposition, `.csv"`) {
		t.Errorf("Unexpected Content-Disposition %s", disposition)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], `"`+id+`",`) {
		t.Errorf("Expected quoted id first, got %s", lines[1])
	}
}

func TestLivenessAndHealth(t *testing.T) {
	e, _ := newTestServer(t)
	if rec := get(e, "/probe"); rec.Code != http.StatusOK {
		t.Errorf("Expected liveness 200, got %d", rec.Code)
	}
	if rec := get(e, "/api/admin/health"); rec.Code != http.StatusOK {
		t.Errorf("Expected health 200 for local drivers, got %d: %s", rec.Code, rec.Body.String())
	}
}
