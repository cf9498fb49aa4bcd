package scene

import "github.com/go-gl/mathgl/mgl32"

// Transform is a node's placement relative to its parent.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func NewTransform() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Matrix composes translation * rotation * scale.
func (t Transform) Matrix() mgl32.Mat4 {
	translation := mgl32.Translate3D(t.Position[0], t.Position[1], t.Position[2])
	scale := mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2])
	return translation.Mul4(t.Rotation.Mat4()).Mul4(scale)
}

// Forward is local -Z rotated into the parent's space.
func (t Transform) Forward() mgl32.Vec3 { return t.Rotation.Rotate(mgl32.Vec3{0, 0, -1}) }
func (t Transform) Right() mgl32.Vec3   { return t.Rotation.Rotate(mgl32.Vec3{1, 0, 0}) }
func (t Transform) Up() mgl32.Vec3      { return t.Rotation.Rotate(mgl32.Vec3{0, 1, 0}) }
