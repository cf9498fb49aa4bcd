package core

import "github.com/go-gl/mathgl/mgl32"

type Color struct {
	R, G, B, A float32
}

var (
	ColorWhite = Color{1, 1, 1, 1}
	ColorBlack = Color{0, 0, 0, 1}
	ColorClear = Color{0, 0, 0, 0}
	ColorRed   = Color{1, 0, 0, 1}
	ColorGreen = Color{0, 1, 0, 1}
	ColorBlue  = Color{0, 0, 1, 1}
)

// NewColor builds an opaque colour from linear RGB.
func NewColor(r, g, b float32) Color {
	return Color{R: r, G: g, B: b, A: 1}
}

func (c Color) Vec3() mgl32.Vec3 { return mgl32.Vec3{c.R, c.G, c.B} }
func (c Color) Vec4() mgl32.Vec4 { return mgl32.Vec4{c.R, c.G, c.B, c.A} }

// Scale multiplies the RGB channels by s and keeps alpha.
func (c Color) Scale(s float32) Color {
	return Color{R: c.R * s, G: c.G * s, B: c.B * s, A: c.A}
}

// Vertex is the interleaved layout uploaded for every mesh.
// Attribute locations: 0 position, 1 normal, 2 uv, 3 color.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
	Color    Color
}

type MeshData struct {
	Vertices []Vertex
	Indices  []uint32
}
