package render

import (
	"image"

	"github.com/fogleman/gg"
)

// Overlay draws track outlines and labels onto the debug frame so an
// operator can verify what is being redacted before trusting the output.
type Overlay struct {
	ctx *gg.Context
}

// NewOverlay wraps the debug frame buffer; drawing mutates it in place.
func NewOverlay(debug *image.RGBA) *Overlay {
	ctx := gg.NewContextForRGBA(debug)
	ctx.SetRGB(1, 0, 0)
	ctx.SetLineWidth(2)
	return &Overlay{ctx: ctx}
}

// Mark outlines rect and writes the label at its top-left corner.
func (o *Overlay) Mark(rect image.Rectangle, label string) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	o.ctx.DrawRectangle(x, y, float64(rect.Dx()), float64(rect.Dy()))
	o.ctx.Stroke()

	if label == "" {
		return
	}
	labelY := y - 4
	if labelY < 12 {
		// Keep the label on-frame for boxes touching the top edge.
		labelY = y + 14
	}
	o.ctx.DrawString(label, x, labelY)
}
