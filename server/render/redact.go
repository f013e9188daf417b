// Package render mutates frame buffers: it applies the configured redaction
// style to tracked regions and draws the operator debug overlay.
package render

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"

	"github.com/Danvdl/SecureStudio/server/geometry"
)

// Style selects how a redacted region is obscured.
type Style string

const (
	StylePixelate Style = "pixelate"
	StyleGaussian Style = "gaussian"
	StyleSolid    Style = "solid"
)

func (s Style) Valid() bool {
	switch s {
	case StylePixelate, StyleGaussian, StyleSolid:
		return true
	}
	return false
}

// pixelateCells is the number of mosaic cells per axis.
const pixelateCells = 10

// gaussianKernel is the base blur kernel size, clamped odd and no larger
// than the region's smaller dimension.
const gaussianKernel = 51

// PaddedRegion grows the track box by ratio per side, clamps it to the frame
// and converts it to pixel coordinates. ok is false when the clamped region
// has no area, in which case redaction is skipped for that track.
func PaddedRegion(b geometry.Box, ratio float64, bounds image.Rectangle) (image.Rectangle, bool) {
	padded := b.Pad(ratio).Clamp(float64(bounds.Dx()), float64(bounds.Dy()))
	if padded.Degenerate() {
		return image.Rectangle{}, false
	}
	rect := image.Rect(int(padded.X1), int(padded.Y1), int(padded.X2), int(padded.Y2))
	rect = rect.Intersect(bounds)
	if rect.Empty() {
		return image.Rectangle{}, false
	}
	return rect, true
}

// Redact obscures rect on the frame in place using the given style.
func Redact(frame *image.RGBA, rect image.Rectangle, style Style) {
	switch style {
	case StyleSolid:
		draw.Draw(frame, rect, image.NewUniform(color.Black), image.Point{}, draw.Src)
	case StyleGaussian:
		gaussian(frame, rect)
	default:
		pixelate(frame, rect)
	}
}

// pixelate replaces the region with a blocky mosaic: downscale with linear
// interpolation, upscale back with nearest-neighbor.
func pixelate(frame *image.RGBA, rect image.Rectangle) {
	region := frame.SubImage(rect)
	smallW := max(1, rect.Dx()/pixelateCells)
	smallH := max(1, rect.Dy()/pixelateCells)

	small := imaging.Resize(region, smallW, smallH, imaging.Linear)
	mosaic := imaging.Resize(small, rect.Dx(), rect.Dy(), imaging.NearestNeighbor)
	draw.Draw(frame, rect, mosaic, image.Point{}, draw.Src)
}

func gaussian(frame *image.RGBA, rect image.Rectangle) {
	ksize := gaussianKernel
	if m := min(rect.Dx(), rect.Dy()); m < ksize {
		ksize = m | 1
	}
	if ksize <= 1 {
		return
	}

	region := frame.SubImage(rect)
	blurred := imaging.Blur(region, float64(ksize)/6)
	draw.Draw(frame, rect, blurred, image.Point{}, draw.Src)
}
