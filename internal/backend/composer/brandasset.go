package composer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// svgRasterSize is the longer side SVG assets are rasterized at. The result is
	// contain-fit into the much smaller asset box afterwards.
	svgRasterSize = 512
	// maxAssetPixels bounds raster assets by their declared dimensions.
	maxAssetPixels = 16_000_000
)

// AssetSource loads the branding overlay.
type AssetSource interface {
	Load(ctx context.Context) (image.Image, error)
}

// FileAsset reads the brand asset from the local filesystem.
type FileAsset struct {
	Path string
}

func (a *FileAsset) Load(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read brand asset %s: %w", a.Path, err)
	}
	return decodeAsset(data)
}

// HTTPAsset fetches the brand asset from an http(s) location.
type HTTPAsset struct {
	URL    string
	Client *http.Client
}

func (a *HTTPAsset) Load(ctx context.Context) (image.Image, error) {
	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build brand asset request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch brand asset %s: %w", a.URL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch brand asset %s: status %d", a.URL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read brand asset body: %w", err)
	}
	return decodeAsset(data)
}

// SharedAsset decodes the underlying source once and hands the same read-only
// image to every session afterwards. Failed loads are not cached.
type SharedAsset struct {
	source AssetSource

	mu  sync.Mutex
	img image.Image
}

func NewSharedAsset(source AssetSource) *SharedAsset {
	return &SharedAsset{source: source}
}

func (a *SharedAsset) Load(ctx context.Context) (image.Image, error) {
	a.mu.Lock()
	cached := a.img
	a.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	img, err := a.source.Load(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.img == nil {
		a.img = img
	}
	return a.img, nil
}

// NewAssetSource picks a loader for the configured location and wraps it for sharing.
func NewAssetSource(location string) AssetSource {
	lower := strings.ToLower(location)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return NewSharedAsset(&HTTPAsset{URL: location})
	}
	return NewSharedAsset(&FileAsset{Path: location})
}

func decodeAsset(data []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		// No registered raster format matched; vector assets are the only other kind.
		return rasterizeSVG(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode brand asset: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxAssetPixels {
		return nil, fmt.Errorf("brand asset %dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxAssetPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode brand asset: %w", err)
	}
	slog.Debug("Composer: decoded raster brand asset",
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())
	return img, nil
}

// rasterizeSVG renders a vector asset onto a transparent canvas whose longer side
// is svgRasterSize, keeping the aspect ratio of the declared viewBox or size.
func rasterizeSVG(data []byte) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG brand asset: %w", err)
	}
	if len(icon.SVGPaths) == 0 {
		return nil, errors.New("brand asset is neither a known raster format nor a drawable SVG")
	}

	w, h := svgRasterBounds(icon.ViewBox.W, icon.ViewBox.H)
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := newCanvas(w, h, color.Transparent)
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)

	slog.Debug("Composer: rasterized SVG brand asset",
		"declared_width", icon.ViewBox.W,
		"declared_height", icon.ViewBox.H,
		"width", w,
		"height", h)
	return dst, nil
}

// svgRasterBounds scales a declared vector size so its longer side is svgRasterSize.
// Sizes that are missing or not finite render square.
func svgRasterBounds(declaredW, declaredH float64) (int, int) {
	usable := func(v float64) bool { return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) }
	if !usable(declaredW) || !usable(declaredH) {
		return svgRasterSize, svgRasterSize
	}
	scale := svgRasterSize / math.Max(declaredW, declaredH)
	w := max(1, int(math.Round(declaredW*scale)))
	h := max(1, int(math.Round(declaredH*scale)))
	return w, h
}
