package composer

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// FrameStyle describes the branded band layout drawn over the photo.
type FrameStyle struct {
	TopBandHeight        int
	BottomBandHeight     int
	BandColor            color.RGBA
	TextColor            color.RGBA
	Margin               int
	AssetSize            int
	TopBaseline          int
	BottomBaselineOffset int
	Caption              string
	CaptionSize          float64
	Wordmark             string
	WordmarkSize         float64
}

// DefaultFrameStyle returns the stock kiosk frame.
func DefaultFrameStyle() FrameStyle {
	return FrameStyle{
		TopBandHeight:        160,
		BottomBandHeight:     80,
		BandColor:            color.RGBA{0xe5, 0xe5, 0xe5, 0xff},
		TextColor:            color.RGBA{0x40, 0x40, 0x40, 0xff},
		Margin:               20,
		AssetSize:            120,
		TopBaseline:          110,
		BottomBaselineOffset: 30,
		Caption:              "we make tech simple_",
		CaptionSize:          32,
		Wordmark:             "NEX LAB",
		WordmarkSize:         32,
	}
}

func (s FrameStyle) validate(canvas image.Point) error {
	if s.TopBandHeight < 0 || s.BottomBandHeight < 0 {
		return fmt.Errorf("band heights must not be negative")
	}
	if s.TopBandHeight+s.BottomBandHeight > canvas.Y {
		return fmt.Errorf("bands (%d+%d) exceed canvas height %d", s.TopBandHeight, s.BottomBandHeight, canvas.Y)
	}
	if s.AssetSize <= 0 {
		return fmt.Errorf("asset size must be positive, got %d", s.AssetSize)
	}
	if s.CaptionSize <= 0 || s.WordmarkSize <= 0 {
		return fmt.Errorf("font sizes must be positive")
	}
	return nil
}

// AssetBox is the region of the top band reserved for the brand asset or wordmark.
func (s FrameStyle) AssetBox() image.Rectangle {
	return image.Rect(s.Margin, s.Margin, s.Margin+s.AssetSize, s.Margin+s.AssetSize)
}

// ParseHexColor parses "#rrggbb" or "#rgb" into an opaque color.
func ParseHexColor(value string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q: expected #rrggbb", value)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", value, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

var (
	regularFont = sync.OnceValues(func() (*opentype.Font, error) { return opentype.Parse(goregular.TTF) })
	boldFont    = sync.OnceValues(func() (*opentype.Font, error) { return opentype.Parse(gobold.TTF) })
)

// newFace builds a face for one render. Faces are not safe for concurrent use,
// so every composition gets its own.
func newFace(bold bool, size float64) (font.Face, error) {
	load := regularFont
	if bold {
		load = boldFont
	}
	f, err := load()
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

type textAlign int

const (
	alignLeft textAlign = iota
	alignCenter
	alignRight
)

// drawText draws text with its anchor at (x, baseline) like a canvas fillText call.
func drawText(dst draw.Image, face font.Face, c color.Color, text string, x, baseline int, align textAlign) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	width := d.MeasureString(text).Round()
	switch align {
	case alignCenter:
		x -= width / 2
	case alignRight:
		x -= width
	}
	d.Dot = fixed.P(x, baseline)
	d.DrawString(text)
}

func fillRect(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// drawBands paints both bands and the captions shared by every render path.
func drawBands(dst *image.RGBA, style FrameStyle, caption font.Face) {
	b := dst.Bounds()
	fillRect(dst, image.Rect(0, 0, b.Dx(), style.TopBandHeight), style.BandColor)
	fillRect(dst, image.Rect(0, b.Dy()-style.BottomBandHeight, b.Dx(), b.Dy()), style.BandColor)

	drawText(dst, caption, style.TextColor, style.Caption, b.Dx()-style.Margin, style.TopBaseline, alignRight)
	drawText(dst, caption, style.TextColor, style.Caption, b.Dx()/2, b.Dy()-style.BottomBaselineOffset, alignCenter)
}

// drawAsset scales the brand asset into the asset box, preserving its aspect ratio.
func drawAsset(dst *image.RGBA, style FrameStyle, asset image.Image) {
	box := style.AssetBox()
	ab := asset.Bounds()
	if ab.Empty() {
		return
	}
	scale := float64(box.Dx()) / float64(ab.Dx())
	if s := float64(box.Dy()) / float64(ab.Dy()); s < scale {
		scale = s
	}
	w := int(float64(ab.Dx()) * scale)
	h := int(float64(ab.Dy()) * scale)
	x := box.Min.X + (box.Dx()-w)/2
	y := box.Min.Y + (box.Dy()-h)/2
	xdraw.CatmullRom.Scale(dst, image.Rect(x, y, x+w, y+h), asset, ab, xdraw.Over, nil)
}

// drawWordmark renders the bold text wordmark in place of the asset.
func drawWordmark(dst *image.RGBA, style FrameStyle, face font.Face) {
	drawText(dst, face, style.TextColor, style.Wordmark, style.Margin, style.TopBaseline, alignLeft)
}

func newCanvas(w, h int, bg color.Color) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	return dst
}
