// Package scene is the scene graph handed to the renderer: nodes with
// meshes and materials, lights attached to nodes, and a camera.
package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/deferred"
	"render-engine/gpu"
)

// Scene manages a collection of nodes, their lights and the active camera.
// It implements deferred.FrameSource.
type Scene struct {
	Root   *Node
	Camera *Camera
	lights []*deferred.Light
}

var (
	_ deferred.FrameSource = (*Scene)(nil)
	_ deferred.Renderable  = (*Node)(nil)
	_ deferred.Transformer = (*Node)(nil)
)

func NewScene() *Scene {
	return &Scene{Root: NewNode("Root")}
}

func (s *Scene) SetCamera(camera *Camera) {
	s.Camera = camera
}

func (s *Scene) AddNode(node *Node) {
	s.Root.AddChild(node)
}

func (s *Scene) RemoveNode(node *Node) {
	s.Root.RemoveChild(node)
}

// AddLight registers l. Lights are shaded in the order they were added.
func (s *Scene) AddLight(l *deferred.Light) {
	s.lights = append(s.lights, l)
}

func (s *Scene) RemoveLight(l *deferred.Light) {
	for i, x := range s.lights {
		if x == l {
			s.lights = append(s.lights[:i], s.lights[i+1:]...)
			return
		}
	}
}

// Lights returns the registered lights in order.
func (s *Scene) Lights() []*deferred.Light { return s.lights }

// Renderables returns every node with geometry, depth first. Visibility is
// left to the passes.
func (s *Scene) Renderables() []deferred.Renderable {
	var out []deferred.Renderable
	s.Root.Traverse(func(n *Node) {
		if n.Geometry != nil {
			out = append(out, n)
		}
	})
	return out
}

// Upload creates device meshes and textures for every node and builds each
// node's draw material with program. Nodes without a material use their
// mesh's, then DefaultMaterial. It is safe to call again after adding nodes.
func (s *Scene) Upload(dev gpu.Device, program *gpu.Program) error {
	var errs []error
	s.Root.Traverse(func(n *Node) {
		if n.Geometry == nil {
			return
		}
		if err := n.Geometry.Upload(dev); err != nil {
			errs = append(errs, err)
			return
		}
		mat := n.Material
		if mat == nil {
			mat = n.Geometry.Material
		}
		if mat == nil {
			mat = DefaultMaterial()
		}
		if tex := mat.AlbedoTexture; tex != nil {
			if err := tex.Upload(dev); err != nil {
				errs = append(errs, fmt.Errorf("node %q: %w", n.Name, err))
			}
		}
		n.drawMaterial = mat.build(program)
	})
	return errors.Join(errs...)
}

// Release frees every device mesh and texture the scene uploaded.
func (s *Scene) Release(dev gpu.Device) {
	s.Root.Traverse(func(n *Node) {
		if n.Geometry != nil {
			n.Geometry.Release(dev)
		}
		for _, m := range []*Material{n.Material, meshMaterial(n.Geometry)} {
			if m != nil && m.AlbedoTexture != nil {
				m.AlbedoTexture.Release(dev)
			}
		}
		n.drawMaterial = nil
	})
}

func meshMaterial(m *Mesh) *Material {
	if m == nil {
		return nil
	}
	return m.Material
}

// Stats returns the number of drawable nodes and their triangles.
func (s *Scene) Stats() (nodes, triangles int) {
	s.Root.Traverse(func(n *Node) {
		if n.Geometry != nil && n.ActiveRecursively() {
			nodes++
			triangles += n.Geometry.TriangleCount()
		}
	})
	return nodes, triangles
}

// NewLightNode creates a node placed at pos and facing dir, attaches a light
// of the given kind to it and adds both to the scene.
func (s *Scene) NewLightNode(name string, kind deferred.LightKind, pos, dir mgl32.Vec3) (*Node, *deferred.Light) {
	n := NewNode(name)
	n.SetPosition(pos)
	s.AddNode(n)
	if dir.Len() > 0 {
		n.LookAt(pos.Add(dir), mgl32.Vec3{0, 1, 0})
	}

	var l *deferred.Light
	switch kind {
	case deferred.LightPoint:
		l = deferred.NewPointLight(n, 10)
	case deferred.LightSpot:
		l = deferred.NewSpotLight(n, 10, mgl32.DegToRad(30))
	default:
		l = deferred.NewDirectionalLight(n)
	}
	s.AddLight(l)
	return n, l
}
