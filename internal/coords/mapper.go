// Package coords converts bounding boxes between the recognizer's image space
// (origin top-left, Y down) and the destination display space (origin
// bottom-left, Y up). It is the only place the vertical flip is applied.
package coords

// Rect is an axis-aligned box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsEmpty reports whether the rect has non-positive dimensions.
func (r Rect) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Union returns the smallest rect containing both r and o. Empty rects are ignored.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	minX, minY := min(r.X, o.X), min(r.Y, o.Y)
	maxX := max(r.X+r.Width, o.X+o.Width)
	maxY := max(r.Y+r.Height, o.Y+o.Height)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Map converts rect from a srcW x srcH image to a dstW x dstH display whose
// origin is the bottom-left corner. A non-positive source dimension maps with
// a scale of 1 on that axis.
func Map(rect Rect, srcW, srcH, dstW, dstH float64) Rect {
	scaleX, scaleY := 1.0, 1.0
	if srcW > 0 {
		scaleX = dstW / srcW
	}
	if srcH > 0 {
		scaleY = dstH / srcH
	}
	return Rect{
		X:      rect.X * scaleX,
		Y:      dstH - (rect.Y * scaleY) - (rect.Height * scaleY),
		Width:  rect.Width * scaleX,
		Height: rect.Height * scaleY,
	}
}

// MapAll maps every rect, preserving order.
func MapAll(rects []Rect, srcW, srcH, dstW, dstH float64) []Rect {
	out := make([]Rect, len(rects))
	for i, r := range rects {
		out[i] = Map(r, srcW, srcH, dstW, dstH)
	}
	return out
}
