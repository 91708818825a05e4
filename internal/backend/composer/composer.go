package composer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log/slog"
	"time"
)

const (
	// DefaultAssetTimeout bounds how long a composition waits for the brand asset.
	DefaultAssetTimeout = 3 * time.Second
	// DefaultMaxSourcePixels admits sources up to 48 megapixels.
	DefaultMaxSourcePixels = 48_000_000
)

// Format is the raster encoding of a composite.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// ParseFormat validates a configured output format. Empty selects PNG.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (must be 'png' or 'jpeg')", name)
	}
}

func (f Format) MimeType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return "png"
}

// Branding records which render path produced a composite.
type Branding string

const (
	BrandingAsset    Branding = "asset"
	BrandingWordmark Branding = "wordmark"
)

// CompositeImage is the encoded branded output. It is never mutated after creation.
type CompositeImage struct {
	Data     []byte
	MimeType string
	Format   Format
	Width    int
	Height   int
	Branding Branding
}

// Options holds everything a composition needs apart from its inputs.
type Options struct {
	Canvas       image.Point
	Style        FrameStyle
	Format       Format
	JPEGQuality  int
	Resampler    Resampler
	AssetTimeout time.Duration
	// MaxSourcePixels caps the declared width*height of a source before it is decoded.
	MaxSourcePixels int
}

// DefaultOptions returns a portrait 1080x1920 PNG composition with the stock frame.
func DefaultOptions() Options {
	return Options{
		Canvas:          image.Pt(1080, 1920),
		Style:           DefaultFrameStyle(),
		Format:          FormatPNG,
		JPEGQuality:     90,
		Resampler:       ResamplerBilinear,
		AssetTimeout:    DefaultAssetTimeout,
		MaxSourcePixels: DefaultMaxSourcePixels,
	}
}

func (o Options) validate() error {
	if o.Canvas.X <= 0 || o.Canvas.Y <= 0 {
		return fmt.Errorf("canvas dimensions must be positive, got %dx%d", o.Canvas.X, o.Canvas.Y)
	}
	if o.AssetTimeout <= 0 {
		return fmt.Errorf("asset timeout must be positive, got %s", o.AssetTimeout)
	}
	if o.MaxSourcePixels <= 0 {
		return fmt.Errorf("max source pixels must be positive, got %d", o.MaxSourcePixels)
	}
	if o.Format == FormatJPEG && (o.JPEGQuality < 1 || o.JPEGQuality > 100) {
		return fmt.Errorf("jpeg quality must be within 1..100, got %d", o.JPEGQuality)
	}
	return o.Style.validate(o.Canvas)
}

// Composer renders captured frames onto the branded canvas.
type Composer struct {
	asset AssetSource
	opts  Options
}

func New(asset AssetSource, opts Options) (*Composer, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid composer options: %w", err)
	}
	return &Composer{asset: asset, opts: opts}, nil
}

// Options returns the composition settings in use.
func (c *Composer) Options() Options {
	return c.opts
}

// Compose renders source with the configured asset and options.
func (c *Composer) Compose(ctx context.Context, source []byte) (*CompositeImage, error) {
	return Compose(ctx, source, c.asset, c.opts)
}

// Compose produces one branded composite from an encoded source image.
// Only an undecodable source is an input error; a missing or slow brand asset
// switches to the wordmark rendering instead of failing.
func Compose(ctx context.Context, source []byte, asset AssetSource, opts Options) (*CompositeImage, error) {
	start := time.Now()

	// The asset race starts first so its budget overlaps the source decode.
	race, stopRace := raceAsset(ctx, asset, opts.AssetTimeout)
	defer stopRace()

	canvas := newCanvas(opts.Canvas.X, opts.Canvas.Y, color.Black)

	if err := checkSourceSize(source, opts.MaxSourcePixels); err != nil {
		slog.Error("Composer: rejected source image", "error", err, "input_size_bytes", len(source))
		return nil, &SourceDecodeError{Err: err}
	}

	src, format, err := image.Decode(bytes.NewReader(source))
	if err != nil {
		slog.Error("Composer: failed to decode source image", "error", err, "input_size_bytes", len(source))
		return nil, &SourceDecodeError{Err: err}
	}
	if src.Bounds().Empty() {
		return nil, &SourceDecodeError{Err: errors.New("source image has no pixels")}
	}
	slog.Debug("Composer: decoded source image",
		"format", format,
		"width", src.Bounds().Dx(),
		"height", src.Bounds().Dy())

	placement := CoverFit(src.Bounds().Size(), opts.Canvas)
	drawCover(canvas, src, placement, opts.Resampler)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcome, err := race.wait(ctx)
	if err != nil {
		return nil, err
	}

	caption, err := newFace(false, opts.Style.CaptionSize)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = caption.Close()
	}()

	branding := BrandingAsset
	drawBands(canvas, opts.Style, caption)
	if outcome.err == nil {
		drawAsset(canvas, opts.Style, outcome.img)
	} else {
		slog.Warn("Composer: brand asset unavailable, rendering wordmark", "reason", outcome.err)
		wordmark, err := newFace(true, opts.Style.WordmarkSize)
		if err != nil {
			return nil, err
		}
		drawWordmark(canvas, opts.Style, wordmark)
		_ = wordmark.Close()
		branding = BrandingWordmark
	}

	data, err := encode(canvas, opts)
	if err != nil {
		slog.Error("Composer: failed to encode composite", "error", err)
		return nil, fmt.Errorf("failed to encode composite: %w", err)
	}

	slog.Debug("Composer: composition complete",
		"branding", string(branding),
		"output_size_bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds())

	return &CompositeImage{
		Data:     data,
		MimeType: opts.Format.MimeType(),
		Format:   opts.Format,
		Width:    opts.Canvas.X,
		Height:   opts.Canvas.Y,
		Branding: branding,
	}, nil
}

// checkSourceSize reads only the image header, so oversized sources are refused
// before any pixel memory is allocated.
func checkSourceSize(source []byte, maxPixels int) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(source))
	if err != nil {
		return err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return errors.New("source image has no pixels")
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrSourceTooLarge, cfg.Width, cfg.Height, maxPixels)
	}
	return nil
}

func encode(img image.Image, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	bb := img.Bounds()
	// rough heuristic: 1 byte per pixel
	buf.Grow(bb.Dx() * bb.Dy())
	switch opts.Format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
			return nil, err
		}
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
