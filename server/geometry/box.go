package geometry

import "math"

// Box is an axis-aligned bounding box in frame pixel coordinates.
// A well-formed box has X1 < X2 and Y1 < Y2.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func NewBox(x1, y1, x2, y2 float64) Box {
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func (b Box) Width() float64 {
	return b.X2 - b.X1
}

func (b Box) Height() float64 {
	return b.Y2 - b.Y1
}

func (b Box) Area() float64 {
	if b.Degenerate() {
		return 0
	}
	return b.Width() * b.Height()
}

func (b Box) CenterX() float64 {
	return (b.X1 + b.X2) / 2
}

func (b Box) CenterY() float64 {
	return (b.Y1 + b.Y2) / 2
}

// Degenerate reports whether the box has no positive extent on either axis.
func (b Box) Degenerate() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

// Clamp restricts the box to the frame rectangle [0,width] x [0,height].
// The result may be degenerate if the box lies entirely outside the frame.
func (b Box) Clamp(width, height float64) Box {
	return Box{
		X1: math.Max(0, math.Min(b.X1, width)),
		Y1: math.Max(0, math.Min(b.Y1, height)),
		X2: math.Max(0, math.Min(b.X2, width)),
		Y2: math.Max(0, math.Min(b.Y2, height)),
	}
}

// Pad grows the box by ratio of its own size on each side. A ratio of 0.15
// adds 15% of the width to the left and right and 15% of the height to the
// top and bottom.
func (b Box) Pad(ratio float64) Box {
	padX := b.Width() * ratio
	padY := b.Height() * ratio
	return Box{
		X1: b.X1 - padX,
		Y1: b.Y1 - padY,
		X2: b.X2 + padX,
		Y2: b.Y2 + padY,
	}
}

// CenteredOn returns a box of the same size as b whose center is (cx, cy).
func (b Box) CenteredOn(cx, cy float64) Box {
	halfW := b.Width() / 2
	halfH := b.Height() / 2
	return Box{
		X1: cx - halfW,
		Y1: cy - halfH,
		X2: cx + halfW,
		Y2: cy + halfH,
	}
}

// Intersection returns the overlapping region of two boxes. If the boxes do
// not overlap the result is degenerate.
func (a Box) Intersection(b Box) Box {
	return Box{
		X1: math.Max(a.X1, b.X1),
		Y1: math.Max(a.Y1, b.Y1),
		X2: math.Min(a.X2, b.X2),
		Y2: math.Min(a.Y2, b.Y2),
	}
}

// IoU computes intersection-over-union between two boxes, in [0,1].
// Non-overlapping boxes score 0, identical boxes score 1.
func IoU(a, b Box) float64 {
	inter := a.Intersection(b)
	if inter.Degenerate() {
		return 0
	}
	interArea := inter.Area()
	union := a.Area() + b.Area() - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}
