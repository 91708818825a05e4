package composer

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="64" height="32" viewBox="0 0 64 32">
	<rect x="0" y="0" width="64" height="32" fill="#ff0000"/>
</svg>`

func TestDecodeAsset_SVGKeepsDeclaredAspect(t *testing.T) {
	img, err := decodeAsset([]byte(testSVG))
	if err != nil {
		t.Fatalf("decodeAsset() error: %v", err)
	}
	if img.Bounds().Dx() != svgRasterSize || img.Bounds().Dy() != svgRasterSize/2 {
		t.Errorf("Expected %dx%d raster, got %v", svgRasterSize, svgRasterSize/2, img.Bounds())
	}
	cx, cy := img.Bounds().Dx()/2, img.Bounds().Dy()/2
	r, _, _, a := img.At(cx, cy).RGBA()
	if r>>8 != 255 || a>>8 != 255 {
		t.Errorf("Expected opaque red centre pixel, got %v", img.At(cx, cy))
	}
}

func TestDecodeAsset_SVGRasterSizeIsBounded(t *testing.T) {
	tests := []struct {
		name  string
		svg   string
		wantW int
		wantH int
	}{
		{
			name:  "Huge declared size",
			svg:   `<svg xmlns="http://www.w3.org/2000/svg" width="200000" height="100000"><rect width="200000" height="100000"/></svg>`,
			wantW: svgRasterSize,
			wantH: svgRasterSize / 2,
		},
		{
			name:  "ViewBox only",
			svg:   `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><circle cx="5" cy="5" r="4"/></svg>`,
			wantW: svgRasterSize,
			wantH: svgRasterSize,
		},
		{
			name:  "No size at all",
			svg:   `<svg xmlns="http://www.w3.org/2000/svg"><circle cx="5" cy="5" r="4"/></svg>`,
			wantW: svgRasterSize,
			wantH: svgRasterSize,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := decodeAsset([]byte(tt.svg))
			if err != nil {
				t.Fatalf("decodeAsset() error: %v", err)
			}
			if img.Bounds().Dx() != tt.wantW || img.Bounds().Dy() != tt.wantH {
				t.Errorf("Expected %dx%d raster, got %v", tt.wantW, tt.wantH, img.Bounds())
			}
		})
	}
}

func TestDecodeAsset_Raster(t *testing.T) {
	data := encodeTestPNG(t, solidImage(12, 7, color.White))
	img, err := decodeAsset(data)
	if err != nil {
		t.Fatalf("decodeAsset() error: %v", err)
	}
	if img.Bounds().Dx() != 12 || img.Bounds().Dy() != 7 {
		t.Errorf("Expected 12x7, got %v", img.Bounds())
	}
}

func TestDecodeAsset_Invalid(t *testing.T) {
	for _, data := range []string{"garbage", `<svg xmlns="http://www.w3.org/2000/svg"></svg>`} {
		if _, err := decodeAsset([]byte(data)); err == nil {
			t.Errorf("Expected error for undecodable asset %q", data)
		}
	}
}

func TestFileAsset_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.svg")
	if err := os.WriteFile(path, []byte(testSVG), 0o600); err != nil {
		t.Fatalf("failed to write asset: %v", err)
	}
	img, err := (&FileAsset{Path: path}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if img.Bounds().Dx() != 64 {
		t.Errorf("Expected width 64, got %d", img.Bounds().Dx())
	}

	if _, err := (&FileAsset{Path: filepath.Join(t.TempDir(), "missing.svg")}).Load(context.Background()); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestHTTPAsset_Load(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/logo.svg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write([]byte(testSVG))
	}))
	defer server.Close()

	img, err := (&HTTPAsset{URL: server.URL + "/logo.svg"}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if img.Bounds().Dy() != 32 {
		t.Errorf("Expected height 32, got %d", img.Bounds().Dy())
	}

	if _, err := (&HTTPAsset{URL: server.URL + "/missing.svg"}).Load(context.Background()); err == nil {
		t.Error("Expected error for 404 asset")
	}
}

func TestSharedAsset_DecodesOnce(t *testing.T) {
	inner := &staticAsset{img: solidImage(4, 4, color.White)}
	shared := NewSharedAsset(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := shared.Load(context.Background()); err != nil {
				t.Errorf("Load() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := shared.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if calls := inner.calls.Load(); calls < 1 || calls > 8 {
		t.Errorf("Expected between 1 and 8 inner loads, got %d", calls)
	}
	before := inner.calls.Load()
	for i := 0; i < 3; i++ {
		_, _ = shared.Load(context.Background())
	}
	if inner.calls.Load() != before {
		t.Errorf("Expected cached asset to be reused, inner loads went from %d to %d", before, inner.calls.Load())
	}
}

func TestNewAssetSource_PicksLoader(t *testing.T) {
	src := NewAssetSource("https://example.com/logo.svg").(*SharedAsset)
	if _, ok := src.source.(*HTTPAsset); !ok {
		t.Errorf("Expected HTTPAsset for https location, got %T", src.source)
	}
	src = NewAssetSource("/srv/logo.svg").(*SharedAsset)
	if _, ok := src.source.(*FileAsset); !ok {
		t.Errorf("Expected FileAsset for path location, got %T", src.source)
	}
}

func TestResultSlot_FirstWriterWins(t *testing.T) {
	slot := newResultSlot[int]()
	if !slot.settle(1) {
		t.Fatal("Expected first settle to win")
	}
	if slot.settle(2) {
		t.Fatal("Expected second settle to lose")
	}
	got, err := slot.wait(context.Background())
	if err != nil {
		t.Fatalf("wait() error: %v", err)
	}
	if got != 1 {
		t.Errorf("Expected first value 1, got %d", got)
	}
}

func TestRaceAsset_TimeoutWinsOverSlowAsset(t *testing.T) {
	slot, stop := raceAsset(context.Background(), blockingAsset{}, 10*time.Millisecond)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := slot.wait(ctx)
	if err != nil {
		t.Fatalf("wait() error: %v", err)
	}
	if !errors.Is(outcome.err, ErrAssetTimeout) {
		t.Errorf("Expected ErrAssetTimeout, got %v", outcome.err)
	}
}

func TestRaceAsset_AssetWinsBeforeTimeout(t *testing.T) {
	slot, stop := raceAsset(context.Background(), &staticAsset{img: solidImage(2, 2, color.White)}, time.Minute)
	defer stop()

	outcome, err := slot.wait(context.Background())
	if err != nil {
		t.Fatalf("wait() error: %v", err)
	}
	if outcome.err != nil || outcome.img == nil {
		t.Errorf("Expected decoded asset, got err=%v img=%v", outcome.err, outcome.img)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#e5e5e5", color.RGBA{0xe5, 0xe5, 0xe5, 0xff}, false},
		{"404040", color.RGBA{0x40, 0x40, 0x40, 0xff}, false},
		{"#fff", color.RGBA{0xff, 0xff, 0xff, 0xff}, false},
		{"#12345", color.RGBA{}, true},
		{"#zzzzzz", color.RGBA{}, true},
	}
	for _, tt := range tests {
		got, err := ParseHexColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHexColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
