package deferred

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/gpu"
)

type LightKind uint8

const (
	LightDirectional LightKind = iota
	LightPoint
	LightSpot
)

func (k LightKind) String() string {
	switch k {
	case LightDirectional:
		return "directional"
	case LightPoint:
		return "point"
	case LightSpot:
		return "spot"
	}
	return "unknown"
}

// ShadowTarget is the shape of the texture a light renders its shadow into.
type ShadowTarget uint8

const (
	ShadowTarget2D ShadowTarget = iota
	ShadowTargetCube
)

// ShadowTarget returns the shadow map shape lights of kind k use.
func (k LightKind) ShadowTarget() ShadowTarget {
	if k == LightPoint {
		return ShadowTargetCube
	}
	return ShadowTarget2D
}

// Default shadow clip planes, as fractions of the light's Range.
const (
	DefaultShadowNear = 0.05
	DefaultShadowFar  = 1.0
)

// PCF filter half-width bounds, in shadow-map texels.
const (
	DefaultShadowSoftness = 1
	MaxShadowSoftness     = 64
)

// Light describes one light source. Position and direction come from Owner;
// the light does not own it.
type Light struct {
	Kind    LightKind
	Owner   Transformer
	Enabled bool

	Color     core.Color
	Intensity float32
	// Range is the world-space reach of point and spot lights and the depth
	// of a directional light's shadow volume.
	Range float32
	// SpotAngle is the half-angle of a spot cone in radians.
	SpotAngle float32
	// ShadowExtent is the half-size of a directional light's shadow volume.
	ShadowExtent float32

	CastShadows bool
	ShadowBias  float32
	// ShadowSoftness is the PCF filter half-width in shadow-map texels,
	// 0..MaxShadowSoftness. Zero gives hard edges.
	ShadowSoftness         uint
	ShadowExponentConstant float32
	ShadowMapSize          int
	ShadowNear             float32
	ShadowFar              float32

	// ScreenProgram shades the light in screen space. When nil the pass uses
	// its built-in program for Kind.
	ScreenProgram *gpu.Program
	// ShadowProgram renders shadow casters. When nil shadows are skipped.
	ShadowProgram *gpu.Program
}

func newLight(kind LightKind, owner Transformer) *Light {
	return &Light{
		Kind:                   kind,
		Owner:                  owner,
		Enabled:                true,
		Color:                  core.ColorWhite,
		Intensity:              1,
		Range:                  10,
		SpotAngle:              math.Pi / 4,
		ShadowExtent:           20,
		ShadowBias:             0.005,
		ShadowSoftness:         DefaultShadowSoftness,
		ShadowExponentConstant: 80,
		ShadowMapSize:          1024,
		ShadowNear:             DefaultShadowNear,
		ShadowFar:              DefaultShadowFar,
	}
}

func NewDirectionalLight(owner Transformer) *Light {
	l := newLight(LightDirectional, owner)
	l.Range = 50
	return l
}

func NewPointLight(owner Transformer, rng float32) *Light {
	l := newLight(LightPoint, owner)
	l.Range = rng
	return l
}

func NewSpotLight(owner Transformer, rng, halfAngle float32) *Light {
	l := newLight(LightSpot, owner)
	l.Range = rng
	l.SpotAngle = halfAngle
	return l
}

// Position is the owner's world position, or the origin without an owner.
func (l *Light) Position() mgl32.Vec3 {
	if l.Owner == nil {
		return mgl32.Vec3{}
	}
	return l.Owner.WorldPosition()
}

// Forward is the owner's facing, or -Z without an owner.
func (l *Light) Forward() mgl32.Vec3 {
	if l.Owner == nil {
		return mgl32.Vec3{0, 0, -1}
	}
	f := l.Owner.Forward()
	if f.Len() == 0 {
		return mgl32.Vec3{0, 0, -1}
	}
	return f.Normalize()
}

func (l *Light) effectiveIntensity() float32 { return max(l.Intensity, 0) }

// ShadowPlanes returns the shadow near and far distances in world units.
func (l *Light) ShadowPlanes() (near, far float32) {
	rng := max(l.Range, 1e-3)
	near = max(l.ShadowNear, 1e-4) * rng
	far = max(l.ShadowFar*rng, near*2)
	return near, far
}

var cubeFaces = [6]struct{ dir, up mgl32.Vec3 }{
	{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}},
	{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, -1}},
	{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, -1, 0}},
}

// ShadowViews returns the views the shadow map is rendered from: one for 2D
// targets, six (in +X,-X,+Y,-Y,+Z,-Z order) for cube targets.
func (l *Light) ShadowViews() []View {
	pos := l.Position()
	near, far := l.ShadowPlanes()

	if l.Kind.ShadowTarget() == ShadowTargetCube {
		proj := mgl32.Perspective(mgl32.DegToRad(90), 1, near, far)
		views := make([]View, 0, 6)
		for _, f := range cubeFaces {
			views = append(views, View{
				View:       mgl32.LookAtV(pos, pos.Add(f.dir), f.up),
				Projection: proj,
				Position:   pos,
				Near:       near,
				Far:        far,
			})
		}
		return views
	}

	fwd := l.Forward()
	up := mgl32.Vec3{0, 1, 0}
	if abs32(fwd.Y()) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	var proj mgl32.Mat4
	if l.Kind == LightSpot {
		proj = mgl32.Perspective(2*l.SpotAngle, 1, near, far)
	} else {
		e := l.ShadowExtent
		proj = mgl32.Ortho(-e, e, -e, e, near, far)
	}
	return []View{{
		View:       mgl32.LookAtV(pos, pos.Add(fwd), up),
		Projection: proj,
		Position:   pos,
		Near:       near,
		Far:        far,
	}}
}

// ScreenRect is the NDC rectangle the light can affect from cam. Directional
// lights cover the screen. Point and spot lights cover the projected bounds
// of their range sphere: the whole screen when the sphere crosses the near
// plane, nothing when it lies behind it.
func (l *Light) ScreenRect(cam View) core.Rect {
	if l.Kind == LightDirectional {
		return core.NDCRect
	}
	r := max(l.Range, 0)
	c := cam.View.Mul4x1(l.Position().Vec4(1)).Vec3()

	near := cam.Near
	if near <= 0 {
		near = 1e-3
	}
	switch {
	case c.Z()-r >= -near:
		return core.EmptyRect
	case c.Z()+r > -near:
		return core.NDCRect
	}

	out := core.Rect{MinX: math.MaxFloat32, MinY: math.MaxFloat32, MaxX: -math.MaxFloat32, MaxY: -math.MaxFloat32}
	for i := range 8 {
		corner := mgl32.Vec3{
			c.X() + r*sign(i&1),
			c.Y() + r*sign(i&2),
			c.Z() + r*sign(i&4),
		}
		clip := cam.Projection.Mul4x1(corner.Vec4(1))
		if clip.W() <= 0 {
			return core.NDCRect
		}
		x, y := clip.X()/clip.W(), clip.Y()/clip.W()
		out.MinX = min(out.MinX, x)
		out.MinY = min(out.MinY, y)
		out.MaxX = max(out.MaxX, x)
		out.MaxY = max(out.MaxY, y)
	}
	return core.Intersection(out, core.NDCRect)
}

func sign(bit int) float32 {
	if bit != 0 {
		return 1
	}
	return -1
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
