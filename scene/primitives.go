package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
)

var primitiveColor = core.Color{R: 0.8, G: 0.8, B: 0.8, A: 1}

func vertex(pos, normal mgl32.Vec3, u, v float32) core.Vertex {
	return core.Vertex{Position: pos, Normal: normal, UV: mgl32.Vec2{u, v}, Color: primitiveColor}
}

// gridIndices triangulates a (cols+1)×(rows+1) vertex grid laid out row by row.
func gridIndices(cols, rows int, base uint32) []uint32 {
	indices := make([]uint32, 0, cols*rows*6)
	stride := uint32(cols + 1)
	for r := range rows {
		for c := range cols {
			i := base + uint32(r)*stride + uint32(c)
			indices = append(indices, i, i+stride, i+1, i+1, i+stride, i+stride+1)
		}
	}
	return indices
}

// CreateQuad is a unit quad in the XY plane facing +Z.
func CreateQuad() *Mesh {
	n := mgl32.Vec3{0, 0, 1}
	vertices := []core.Vertex{
		vertex(mgl32.Vec3{-0.5, -0.5, 0}, n, 0, 0),
		vertex(mgl32.Vec3{0.5, -0.5, 0}, n, 1, 0),
		vertex(mgl32.Vec3{0.5, 0.5, 0}, n, 1, 1),
		vertex(mgl32.Vec3{-0.5, 0.5, 0}, n, 0, 1),
	}
	return NewMeshFromData("Quad", vertices, []uint32{0, 1, 2, 2, 3, 0})
}

// CreateCube builds a cube of the given edge length with one flat-shaded
// quad per face.
func CreateCube(size float32) *Mesh {
	s := size / 2
	faces := []struct{ normal, u, v mgl32.Vec3 }{
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
	}

	vertices := make([]core.Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, f := range faces {
		base := uint32(len(vertices))
		c := f.normal.Mul(s)
		for _, corner := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := c.Add(f.u.Mul(corner[0] * s)).Add(f.v.Mul(corner[1] * s))
			vertices = append(vertices, vertex(p, f.normal, (corner[0]+1)/2, (corner[1]+1)/2))
		}
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}
	return NewMeshFromData("Cube", vertices, indices)
}

// CreateSphere generates a UV sphere.
func CreateSphere(radius float32, segments, rings int) *Mesh {
	segments = max(segments, 3)
	rings = max(rings, 2)

	var vertices []core.Vertex
	for ring := 0; ring <= rings; ring++ {
		phi := float64(ring) * math.Pi / float64(rings)
		for seg := 0; seg <= segments; seg++ {
			theta := float64(seg) * 2 * math.Pi / float64(segments)
			n := mgl32.Vec3{
				float32(math.Sin(phi) * math.Cos(theta)),
				float32(math.Cos(phi)),
				float32(math.Sin(phi) * math.Sin(theta)),
			}
			vertices = append(vertices, vertex(n.Mul(radius), n,
				float32(seg)/float32(segments), float32(ring)/float32(rings)))
		}
	}
	return NewMeshFromData("Sphere", vertices, gridIndices(segments, rings, 0))
}

// CreatePlane generates a flat plane in XZ facing +Y.
func CreatePlane(width, depth float32, subdivisions int) *Mesh {
	subdivisions = max(subdivisions, 1)
	up := mgl32.Vec3{0, 1, 0}

	var vertices []core.Vertex
	for z := 0; z <= subdivisions; z++ {
		for x := 0; x <= subdivisions; x++ {
			u := float32(x) / float32(subdivisions)
			v := float32(z) / float32(subdivisions)
			p := mgl32.Vec3{(u - 0.5) * width, 0, (v - 0.5) * depth}
			vertices = append(vertices, vertex(p, up, u, v))
		}
	}
	return NewMeshFromData("Plane", vertices, gridIndices(subdivisions, subdivisions, 0))
}

// CreateTorus generates a torus around the Y axis.
func CreateTorus(majorRadius, minorRadius float32, majorSegments, minorSegments int) *Mesh {
	majorSegments = max(majorSegments, 3)
	minorSegments = max(minorSegments, 3)

	var vertices []core.Vertex
	for i := 0; i <= majorSegments; i++ {
		theta := float64(i) * 2 * math.Pi / float64(majorSegments)
		ct, st := float32(math.Cos(theta)), float32(math.Sin(theta))
		for j := 0; j <= minorSegments; j++ {
			phi := float64(j) * 2 * math.Pi / float64(minorSegments)
			cp, sp := float32(math.Cos(phi)), float32(math.Sin(phi))

			ring := majorRadius + minorRadius*cp
			p := mgl32.Vec3{ring * ct, minorRadius * sp, ring * st}
			n := mgl32.Vec3{cp * ct, sp, cp * st}
			vertices = append(vertices, vertex(p, n,
				float32(i)/float32(majorSegments), float32(j)/float32(minorSegments)))
		}
	}
	return NewMeshFromData("Torus", vertices, gridIndices(minorSegments, majorSegments, 0))
}

// CreateCylinder generates a capped cylinder centred on the origin.
func CreateCylinder(radius, height float32, segments int) *Mesh {
	segments = max(segments, 3)
	h := height / 2

	var vertices []core.Vertex
	// Side: two rows of segments+1 vertices, bottom then top.
	for row := range 2 {
		y := -h + float32(row)*height
		for i := 0; i <= segments; i++ {
			theta := float64(i) * 2 * math.Pi / float64(segments)
			n := mgl32.Vec3{float32(math.Cos(theta)), 0, float32(math.Sin(theta))}
			p := mgl32.Vec3{n[0] * radius, y, n[2] * radius}
			vertices = append(vertices, vertex(p, n, float32(i)/float32(segments), float32(row)))
		}
	}
	indices := gridIndices(segments, 1, 0)

	for _, capY := range []float32{h, -h} {
		n := mgl32.Vec3{0, 1, 0}
		if capY < 0 {
			n = mgl32.Vec3{0, -1, 0}
		}
		center := uint32(len(vertices))
		vertices = append(vertices, vertex(mgl32.Vec3{0, capY, 0}, n, 0.5, 0.5))
		for i := 0; i <= segments; i++ {
			theta := float64(i) * 2 * math.Pi / float64(segments)
			c, s := float32(math.Cos(theta)), float32(math.Sin(theta))
			vertices = append(vertices, vertex(mgl32.Vec3{c * radius, capY, s * radius}, n, c*0.5+0.5, s*0.5+0.5))
		}
		for i := range uint32(segments) {
			a, b := center+1+i, center+2+i
			if capY > 0 {
				indices = append(indices, center, b, a)
			} else {
				indices = append(indices, center, a, b)
			}
		}
	}
	return NewMeshFromData("Cylinder", vertices, indices)
}
