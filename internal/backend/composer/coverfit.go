package composer

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Resampler selects the interpolation used to scale the source onto the canvas.
type Resampler string

const (
	ResamplerNearest    Resampler = "nearest"
	ResamplerBilinear   Resampler = "bilinear"
	ResamplerCatmullRom Resampler = "catmullrom"
)

// ParseResampler validates a configured resampler name. Empty selects bilinear.
func ParseResampler(name string) (Resampler, error) {
	switch Resampler(name) {
	case "":
		return ResamplerBilinear, nil
	case ResamplerNearest, ResamplerBilinear, ResamplerCatmullRom:
		return Resampler(name), nil
	default:
		return "", fmt.Errorf("invalid resampler: %s (must be 'nearest', 'bilinear' or 'catmullrom')", name)
	}
}

// CoverFit returns the rectangle, in canvas coordinates, that a source of the given
// size must be scaled into so that it covers the whole canvas without distortion.
// The rectangle may extend past the canvas on one axis; that overflow is cropped.
func CoverFit(src, canvas image.Point) image.Rectangle {
	if src.X <= 0 || src.Y <= 0 || canvas.X <= 0 || canvas.Y <= 0 {
		return image.Rectangle{}
	}
	srcAspect := float64(src.X) / float64(src.Y)
	canvasAspect := float64(canvas.X) / float64(canvas.Y)

	if srcAspect > canvasAspect {
		// Source is relatively wider: match canvas height, centre horizontally.
		h := canvas.Y
		w := int(math.Round(float64(h) * srcAspect))
		if w < canvas.X {
			w = canvas.X
		}
		x := (canvas.X - w) / 2
		return image.Rect(x, 0, x+w, h)
	}

	// Source is relatively taller (or equal): match canvas width, centre vertically.
	w := canvas.X
	h := int(math.Round(float64(w) / srcAspect))
	if h < canvas.Y {
		h = canvas.Y
	}
	y := (canvas.Y - h) / 2
	return image.Rect(0, y, w, y+h)
}

// drawCover scales src into placement on dst; pixels outside dst are clipped.
func drawCover(dst *image.RGBA, src image.Image, placement image.Rectangle, resampler Resampler) {
	slog.Debug("Composer: drawing cover-fit source",
		"source_width", src.Bounds().Dx(),
		"source_height", src.Bounds().Dy(),
		"placement", placement.String(),
		"resampler", string(resampler))

	switch resampler {
	case ResamplerNearest:
		drawScaledNearest(dst, src, placement)
	case ResamplerCatmullRom:
		xdraw.CatmullRom.Scale(dst, placement, src, src.Bounds(), xdraw.Src, nil)
	default:
		xdraw.BiLinear.Scale(dst, placement, src, src.Bounds(), xdraw.Src, nil)
	}
}

// drawScaledNearest maps every visible canvas pixel back to its nearest source pixel.
// Rows are processed in parallel; each worker writes disjoint rows of dst.
func drawScaledNearest(dst *image.RGBA, src image.Image, placement image.Rectangle) {
	visible := placement.Intersect(dst.Bounds())
	if visible.Empty() {
		return
	}
	sb := src.Bounds()
	xMap, yMap := buildIndexMaps(sb.Dx(), sb.Dy(), placement.Dx(), placement.Dy())

	parallelFor(visible.Dy(), func(row int) {
		y := visible.Min.Y + row
		srcY := sb.Min.Y + yMap[y-placement.Min.Y]
		for x := visible.Min.X; x < visible.Max.X; x++ {
			srcX := sb.Min.X + xMap[x-placement.Min.X]
			dst.Set(x, y, src.At(srcX, srcY))
		}
	})
}

func buildIndexMaps(originalWidth, originalHeight, scaledWidth, scaledHeight int) ([]int, []int) {
	xMap := make([]int, scaledWidth)
	yMap := make([]int, scaledHeight)
	for x := 0; x < scaledWidth; x++ {
		xMap[x] = int(float64(x) * float64(originalWidth) / float64(scaledWidth))
		if xMap[x] >= originalWidth {
			xMap[x] = originalWidth - 1
		}
	}
	for y := 0; y < scaledHeight; y++ {
		yMap[y] = int(float64(y) * float64(originalHeight) / float64(scaledHeight))
		if yMap[y] >= originalHeight {
			yMap[y] = originalHeight - 1
		}
	}
	return xMap, yMap
}
