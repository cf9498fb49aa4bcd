package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"render-engine/deferred"
	"render-engine/gpu"
)

// Node is an object in the scene graph. A node with Geometry is drawn by the
// deferred passes; any node can own a light.
type Node struct {
	Name      string
	Transform Transform
	Parent    *Node
	Children  []*Node
	Geometry  *Mesh
	Material  *Material
	Visible   bool
	Shadows   bool // casts shadows
	ID        uint32

	// Set by Scene.Upload from Material.
	drawMaterial *deferred.Material

	worldMatrixDirty bool
	worldMatrix      mgl32.Mat4
}

var nodeIDCounter uint32

func NewNode(name string) *Node {
	nodeIDCounter++
	return &Node{
		Name:             name,
		Transform:        NewTransform(),
		Visible:          true,
		Shadows:          true,
		ID:               nodeIDCounter,
		worldMatrixDirty: true,
	}
}

func (n *Node) AddChild(child *Node) {
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	child.Parent = n
	n.Children = append(n.Children, child)
	child.MarkWorldMatrixDirty()
}

func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.Parent = nil
			child.MarkWorldMatrixDirty()
			return
		}
	}
}

func (n *Node) WorldMatrix() mgl32.Mat4 {
	if n.worldMatrixDirty {
		local := n.Transform.Matrix()
		if n.Parent != nil {
			n.worldMatrix = n.Parent.WorldMatrix().Mul4(local)
		} else {
			n.worldMatrix = local
		}
		n.worldMatrixDirty = false
	}
	return n.worldMatrix
}

func (n *Node) MarkWorldMatrixDirty() {
	n.worldMatrixDirty = true
	for _, child := range n.Children {
		child.MarkWorldMatrixDirty()
	}
}

func (n *Node) SetPosition(pos mgl32.Vec3) {
	n.Transform.Position = pos
	n.MarkWorldMatrixDirty()
}

func (n *Node) SetRotation(rot mgl32.Quat) {
	n.Transform.Rotation = rot
	n.MarkWorldMatrixDirty()
}

func (n *Node) SetScale(scale mgl32.Vec3) {
	n.Transform.Scale = scale
	n.MarkWorldMatrixDirty()
}

func (n *Node) Translate(delta mgl32.Vec3) {
	n.Transform.Position = n.Transform.Position.Add(delta)
	n.MarkWorldMatrixDirty()
}

// Rotate applies a rotation of angle radians about axis on top of the
// current one.
func (n *Node) Rotate(axis mgl32.Vec3, angle float32) {
	r := mgl32.QuatRotate(angle, axis.Normalize())
	n.Transform.Rotation = n.Transform.Rotation.Mul(r).Normalize()
	n.MarkWorldMatrixDirty()
}

// LookAt turns the node so its forward axis points at target. The parent's
// rotation is ignored.
func (n *Node) LookAt(target, up mgl32.Vec3) {
	f := target.Sub(n.WorldPosition())
	if f.Len() < 1e-6 {
		return
	}
	f = f.Normalize()
	r := f.Cross(up)
	if r.Len() < 1e-6 {
		// up is parallel to the view direction
		r = f.Cross(mgl32.Vec3{0, 0, 1})
	}
	r = r.Normalize()
	u := r.Cross(f)
	basis := mgl32.Mat3FromCols(r, u, f.Mul(-1))
	n.SetRotation(mgl32.Mat4ToQuat(basis.Mat4()).Normalize())
}

// WorldPosition is the node's origin in world space.
func (n *Node) WorldPosition() mgl32.Vec3 {
	return n.WorldMatrix().Col(3).Vec3()
}

// Forward is the node's normalized world-space -Z axis.
func (n *Node) Forward() mgl32.Vec3 {
	f := n.WorldMatrix().Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3()
	if f.Len() == 0 {
		return mgl32.Vec3{0, 0, -1}
	}
	return f.Normalize()
}

// ActiveRecursively reports whether the node and all its ancestors are visible.
func (n *Node) ActiveRecursively() bool {
	for p := n; p != nil; p = p.Parent {
		if !p.Visible {
			return false
		}
	}
	return true
}

func (n *Node) CastsShadows() bool { return n.Shadows }

// ActiveMaterial is the material built for this node by Scene.Upload, or nil
// before upload.
func (n *Node) ActiveMaterial() *deferred.Material { return n.drawMaterial }

func (n *Node) ModelMatrix() mgl32.Mat4 { return n.WorldMatrix() }

// Mesh returns the uploaded mesh handle, or 0 before upload.
func (n *Node) Mesh() gpu.MeshID {
	if n.Geometry == nil {
		return 0
	}
	return n.Geometry.ID
}

// Traverse visits the node and its descendants depth first.
func (n *Node) Traverse(callback func(*Node)) {
	callback(n)
	for _, child := range n.Children {
		child.Traverse(callback)
	}
}

// Find finds a node by name
func (n *Node) Find(name string) *Node {
	if n.Name == name {
		return n
	}
	for _, child := range n.Children {
		if found := child.Find(name); found != nil {
			return found
		}
	}
	return nil
}
