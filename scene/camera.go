package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/deferred"
)

// Camera is a perspective camera looking from Position at Target.
type Camera struct {
	Position  mgl32.Vec3
	Target    mgl32.Vec3
	Up        mgl32.Vec3
	FOV       float32 // vertical, radians
	NearPlane float32
	FarPlane  float32
}

func NewCamera(fov, nearPlane, farPlane float32) *Camera {
	return &Camera{
		Target:    mgl32.Vec3{0, 0, -1},
		Up:        mgl32.Vec3{0, 1, 0},
		FOV:       fov,
		NearPlane: nearPlane,
		FarPlane:  farPlane,
	}
}

func (c *Camera) SetPosition(pos mgl32.Vec3) { c.Position = pos }

func (c *Camera) LookAt(target, up mgl32.Vec3) {
	c.Target = target
	c.Up = up
}

// Translate moves the camera and its target together.
func (c *Camera) Translate(delta mgl32.Vec3) {
	c.Position = c.Position.Add(delta)
	c.Target = c.Target.Add(delta)
}

func (c *Camera) Forward() mgl32.Vec3 { return c.Target.Sub(c.Position).Normalize() }

func (c *Camera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Target, c.Up)
}

func (c *Camera) ProjectionMatrix(aspect float32) mgl32.Mat4 {
	return mgl32.Perspective(c.FOV, aspect, c.NearPlane, c.FarPlane)
}

// FrameView returns the matrices the deferred passes render with.
func (c *Camera) FrameView(aspect float32) deferred.View {
	return deferred.View{
		View:       c.ViewMatrix(),
		Projection: c.ProjectionMatrix(aspect),
		Position:   c.Position,
		Near:       c.NearPlane,
		Far:        c.FarPlane,
	}
}

// OrbitCamera circles Target at Distance, steered by yaw and pitch.
type OrbitCamera struct {
	Camera
	Distance float32
	Yaw      float32
	Pitch    float32
}

func NewOrbitCamera(target mgl32.Vec3, distance, fov float32) *OrbitCamera {
	c := &OrbitCamera{
		Camera:   *NewCamera(fov, 0.1, 1000),
		Distance: distance,
		Pitch:    0.3,
	}
	c.Target = target
	c.UpdatePosition()
	return c
}

func (c *OrbitCamera) UpdatePosition() {
	c.Pitch = mgl32.Clamp(c.Pitch, -1.5, 1.5)

	cosPitch := float32(math.Cos(float64(c.Pitch)))
	sinPitch := float32(math.Sin(float64(c.Pitch)))
	cosYaw := float32(math.Cos(float64(c.Yaw)))
	sinYaw := float32(math.Sin(float64(c.Yaw)))

	offset := mgl32.Vec3{
		c.Distance * cosPitch * sinYaw,
		c.Distance * sinPitch,
		c.Distance * cosPitch * cosYaw,
	}
	c.Position = c.Target.Add(offset)
}

func (c *OrbitCamera) Orbit(deltaYaw, deltaPitch float32) {
	c.Yaw += deltaYaw
	c.Pitch += deltaPitch
	c.UpdatePosition()
}

func (c *OrbitCamera) Zoom(delta float32) {
	c.Distance = max(c.Distance+delta, 0.1)
	c.UpdatePosition()
}
