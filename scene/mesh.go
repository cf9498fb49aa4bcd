package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/gpu"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max mgl32.Vec3
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl32.Vec3 { return b.Min.Add(b.Max).Mul(0.5) }

// Mesh holds CPU-side vertex/index data and, once uploaded, its device handle.
type Mesh struct {
	Name     string
	Vertices []core.Vertex
	Indices  []uint32

	// Local-space bounds, computed by NewMeshFromData.
	LocalAABB AABB

	// Material the mesh was authored with, used by nodes that have none.
	Material *Material

	// ID is set by Upload.
	ID gpu.MeshID
}

// NewMeshFromData builds a Mesh and pre-computes its local-space AABB.
func NewMeshFromData(name string, vertices []core.Vertex, indices []uint32) *Mesh {
	m := &Mesh{
		Name:     name,
		Vertices: vertices,
		Indices:  indices,
	}
	if len(vertices) > 0 {
		m.LocalAABB = computeLocalAABB(vertices)
	}
	return m
}

func computeLocalAABB(vertices []core.Vertex) AABB {
	b := AABB{Min: vertices[0].Position, Max: vertices[0].Position}
	for _, v := range vertices[1:] {
		for i := range 3 {
			b.Min[i] = min(b.Min[i], v.Position[i])
			b.Max[i] = max(b.Max[i], v.Position[i])
		}
	}
	return b
}

// TriangleCount is the number of indexed triangles, or vertices/3 for
// non-indexed meshes.
func (m *Mesh) TriangleCount() int {
	if len(m.Indices) > 0 {
		return len(m.Indices) / 3
	}
	return len(m.Vertices) / 3
}

// Upload creates the device mesh. Uploading twice is a no-op.
func (m *Mesh) Upload(dev gpu.Device) error {
	if m.ID != 0 {
		return nil
	}
	id, err := dev.NewMesh(core.MeshData{Vertices: m.Vertices, Indices: m.Indices})
	if err != nil {
		return fmt.Errorf("upload mesh %q: %w", m.Name, err)
	}
	m.ID = id
	return nil
}

// Release frees the device mesh. CPU data is kept so the mesh can be
// uploaded again.
func (m *Mesh) Release(dev gpu.Device) {
	if m.ID == 0 {
		return
	}
	dev.DeleteMesh(m.ID)
	m.ID = 0
}
