package scene_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/scene"
)

func TestPrimitives(t *testing.T) {
	tests := []struct {
		name      string
		mesh      *scene.Mesh
		vertices  int
		triangles int
		min, max  mgl32.Vec3
	}{
		{"quad", scene.CreateQuad(), 4, 2, mgl32.Vec3{-0.5, -0.5, 0}, mgl32.Vec3{0.5, 0.5, 0}},
		{"cube", scene.CreateCube(2), 24, 12, mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}},
		{"plane", scene.CreatePlane(4, 2, 2), 9, 8, mgl32.Vec3{-2, 0, -1}, mgl32.Vec3{2, 0, 1}},
		{"sphere", scene.CreateSphere(1, 8, 4), 9 * 5, 8 * 4 * 2, mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}},
		{"torus", scene.CreateTorus(2, 0.5, 8, 4), 9 * 5, 8 * 4 * 2, mgl32.Vec3{-2.5, -0.5, -2.5}, mgl32.Vec3{2.5, 0.5, 2.5}},
		{"cylinder", scene.CreateCylinder(1, 2, 8), 2*9 + 2*10, 8*2 + 2*8, mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.mesh
			if len(m.Vertices) != tt.vertices {
				t.Errorf("vertices = %d, want %d", len(m.Vertices), tt.vertices)
			}
			if got := m.TriangleCount(); got != tt.triangles {
				t.Errorf("triangles = %d, want %d", got, tt.triangles)
			}
			if !vecNear(m.LocalAABB.Min, tt.min) || !vecNear(m.LocalAABB.Max, tt.max) {
				t.Errorf("bounds = %v..%v, want %v..%v", m.LocalAABB.Min, m.LocalAABB.Max, tt.min, tt.max)
			}
			for i, idx := range m.Indices {
				if int(idx) >= len(m.Vertices) {
					t.Fatalf("index %d = %d out of range", i, idx)
				}
			}
			for i, v := range m.Vertices {
				if l := v.Normal.Len(); l < 0.999 || l > 1.001 {
					t.Fatalf("vertex %d normal length %v", i, l)
				}
			}
		})
	}
}

// Every cube face must wind counter-clockwise seen from outside.
func TestCubeWinding(t *testing.T) {
	m := scene.CreateCube(1)
	for i := 0; i < len(m.Indices); i += 3 {
		a := m.Vertices[m.Indices[i]]
		b := m.Vertices[m.Indices[i+1]]
		c := m.Vertices[m.Indices[i+2]]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		if n.Dot(a.Normal) <= 0 {
			t.Fatalf("triangle %d faces inward", i/3)
		}
	}
}

func TestAABBCenter(t *testing.T) {
	b := scene.AABB{Min: mgl32.Vec3{-1, 0, 2}, Max: mgl32.Vec3{3, 4, 4}}
	if got := b.Center(); got != (mgl32.Vec3{1, 2, 3}) {
		t.Errorf("Center() = %v", got)
	}
}
