package core

import "math"

// Rect is an axis-aligned rectangle in normalized device coordinates
// ([-1,1] on both axes). A rect with Max <= Min on either axis is empty.
type Rect struct {
	MinX, MinY float32
	MaxX, MaxY float32
}

// NDCRect covers the whole viewport.
var NDCRect = Rect{MinX: -1, MinY: -1, MaxX: 1, MaxY: 1}

// EmptyRect is the canonical zero-area rectangle.
var EmptyRect = Rect{}

func (r Rect) Width() float32  { return r.MaxX - r.MinX }
func (r Rect) Height() float32 { return r.MaxY - r.MinY }

// IsEmpty reports whether r covers no area.
func (r Rect) IsEmpty() bool {
	return !(r.MaxX > r.MinX) || !(r.MaxY > r.MinY)
}

// Area returns the covered area, 0 for empty rects.
func (r Rect) Area() float32 {
	if r.IsEmpty() {
		return 0
	}
	return r.Width() * r.Height()
}

// Intersection returns the overlap of a and b. Disjoint inputs yield
// EmptyRect rather than a rect with negative extent.
func Intersection(a, b Rect) Rect {
	out := Rect{
		MinX: max(a.MinX, b.MinX),
		MinY: max(a.MinY, b.MinY),
		MaxX: min(a.MaxX, b.MaxX),
		MaxY: min(a.MaxY, b.MaxY),
	}
	if out.IsEmpty() {
		return EmptyRect
	}
	return out
}

// Union returns the smallest rect containing both a and b.
// Empty inputs are ignored.
func Union(a, b Rect) Rect {
	switch {
	case a.IsEmpty():
		return b
	case b.IsEmpty():
		return a
	}
	return Rect{
		MinX: min(a.MinX, b.MinX),
		MinY: min(a.MinY, b.MinY),
		MaxX: max(a.MaxX, b.MaxX),
		MaxY: max(a.MaxY, b.MaxY),
	}
}

// ToPixels maps r onto a viewport in window pixels. The result is rounded
// outwards so partially covered pixels are included, and clamped to the
// viewport.
func (r Rect) ToPixels(vp RectI) RectI {
	if r.IsEmpty() || vp.Empty() {
		return RectI{}
	}
	r = Intersection(r, NDCRect)
	if r.IsEmpty() {
		return RectI{}
	}
	toX := func(x float32) float64 { return float64(vp.X) + (float64(x)+1)*0.5*float64(vp.W) }
	toY := func(y float32) float64 { return float64(vp.Y) + (float64(y)+1)*0.5*float64(vp.H) }

	x0 := int32(math.Floor(toX(r.MinX)))
	y0 := int32(math.Floor(toY(r.MinY)))
	x1 := int32(math.Ceil(toX(r.MaxX)))
	y1 := int32(math.Ceil(toY(r.MaxY)))
	return RectI{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}.Clip(vp)
}

// RectI is a rectangle in window pixels with the origin at the bottom left.
type RectI struct {
	X, Y, W, H int32
}

func (r RectI) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Clip returns the part of r inside bounds.
func (r RectI) Clip(bounds RectI) RectI {
	x0 := max(r.X, bounds.X)
	y0 := max(r.Y, bounds.Y)
	x1 := min(r.X+r.W, bounds.X+bounds.W)
	y1 := min(r.Y+r.H, bounds.Y+bounds.H)
	if x1 <= x0 || y1 <= y0 {
		return RectI{}
	}
	return RectI{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Contains reports whether pixel (x, y) lies inside r.
func (r RectI) Contains(x, y int32) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}
