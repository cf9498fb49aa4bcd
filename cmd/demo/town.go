package main

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/deferred"
	"render-engine/renderer"
	"render-engine/scene"
)

// town is the demo scene: a square with a fountain, four buildings, trees
// and street lamps.
type town struct {
	scene   *scene.Scene
	sunNode *scene.Node
	sun     *deferred.Light
	lamps   []*deferred.Light
	spinner *scene.Node
}

func buildTown(re *renderer.RenderEngine) *town {
	s := scene.NewScene()
	t := &town{scene: s}

	matGround := scene.NewMaterial("Ground", core.Color{R: 0.62, G: 0.58, B: 0.52, A: 1})
	matStone := scene.NewMaterial("Stone", core.Color{R: 0.58, G: 0.55, B: 0.50, A: 1})
	matBrick := scene.NewMaterial("Brick", core.Color{R: 0.70, G: 0.43, B: 0.30, A: 1})
	matPlaster := scene.NewMaterial("Plaster", core.Color{R: 0.90, G: 0.87, B: 0.78, A: 1})
	matRoof := scene.NewMaterial("Roof", core.Color{R: 0.32, G: 0.30, B: 0.28, A: 1})
	matTrunk := scene.NewMaterial("Trunk", core.Color{R: 0.42, G: 0.28, B: 0.13, A: 1})
	matLeaves := scene.NewMaterial("Leaves", core.Color{R: 0.12, G: 0.42, B: 0.15, A: 1})
	matMarble := scene.NewPBRMaterial("Marble", core.Color{R: 0.92, G: 0.90, B: 0.86, A: 1}, 0, 0.25)
	matMetal := scene.NewPBRMaterial("Metal", core.Color{R: 0.14, G: 0.14, B: 0.12, A: 1}, 0.95, 0.15)
	matGold := scene.NewPBRMaterial("Gold", core.Color{R: 1.0, G: 0.78, B: 0.34, A: 1}, 1, 0.3)

	// Water is see-through and drawn after lighting.
	matWater := scene.NewPBRMaterial("Water", core.Color{R: 0.28, G: 0.52, B: 0.72, A: 0.6}, 0, 0.08)
	matWater.Overlay = true

	matLamp := scene.NewMaterial("LampGlow", core.Color{R: 1.0, G: 0.85, B: 0.45, A: 1})
	matLamp.Unlit = true

	add := func(name string, mesh *scene.Mesh, mat *scene.Material, pos mgl32.Vec3) *scene.Node {
		n := scene.NewNode(name)
		n.Geometry = mesh
		n.Material = mat
		n.SetPosition(pos)
		s.AddNode(n)
		return n
	}
	box := func(name string, pos mgl32.Vec3, sx, sy, sz float32, mat *scene.Material) {
		add(name, scene.CreateCube(1), mat, pos).SetScale(mgl32.Vec3{sx, sy, sz})
	}

	add("Ground", scene.CreatePlane(80, 80, 8), matGround, mgl32.Vec3{})

	box("Bldg_NW", mgl32.Vec3{-15, 4.5, -15}, 9, 9, 9, matStone)
	box("Bldg_NW_roof", mgl32.Vec3{-15, 9.5, -15}, 10, 1, 10, matRoof)
	box("Bldg_NE", mgl32.Vec3{16, 3.5, -15}, 12, 7, 10, matBrick)
	box("Bldg_NE_roof", mgl32.Vec3{16, 7.5, -15}, 13, 1, 11, matRoof)
	box("Bldg_SW", mgl32.Vec3{-15, 3, 16}, 8, 6, 8, matPlaster)
	box("Bldg_SW_roof", mgl32.Vec3{-15, 6.5, 16}, 9, 1, 9, matRoof)
	box("Bldg_SE", mgl32.Vec3{16, 2.5, 16}, 14, 5, 8, matStone)
	box("Bldg_SE_roof", mgl32.Vec3{16, 5.5, 16}, 15, 1, 9, matRoof)
	for i, x := range []float32{-10, 10} {
		box(fmt.Sprintf("Wall_%d", i), mgl32.Vec3{x, 0.5, 0}, 0.5, 1, 18, matStone)
	}

	// Fountain
	add("Fountain_Base", scene.CreateCylinder(3.4, 0.4, 24), matMarble, mgl32.Vec3{0, 0.2, 0})
	add("Fountain_Bowl", scene.CreateCylinder(3.0, 0.6, 24), matMarble, mgl32.Vec3{0, 0.7, 0})
	add("Fountain_Water", scene.CreateCylinder(2.7, 0.12, 24), matWater, mgl32.Vec3{0, 1.02, 0}).Shadows = false
	add("Fountain_Pillar", scene.CreateCylinder(0.38, 2.8, 16), matMarble, mgl32.Vec3{0, 1.4, 0})
	add("Fountain_Top", scene.CreateSphere(0.5, 16, 8), matMarble, mgl32.Vec3{0, 3.1, 0})
	t.spinner = add("Fountain_Ring", scene.CreateTorus(0.9, 0.12, 32, 12), matGold, mgl32.Vec3{0, 3.1, 0})

	trees := []mgl32.Vec3{
		{-8, 0, -5}, {8, 0, -6},
		{-9, 0, 6}, {9, 0, 5},
		{-6, 0, -11}, {7, 0, -10},
	}
	for i, p := range trees {
		add(fmt.Sprintf("Trunk%d", i), scene.CreateCylinder(0.22, 2.2, 8), matTrunk, mgl32.Vec3{p.X(), 1.1, p.Z()})
		add(fmt.Sprintf("Canopy%d", i), scene.CreateSphere(1.5, 16, 8), matLeaves, mgl32.Vec3{p.X(), 3.2, p.Z()})
	}

	lamps := []mgl32.Vec3{
		{-5.5, 0, -5.5},
		{5.5, 0, -5.5},
		{-5.5, 0, 5.5},
		{5.5, 0, 5.5},
	}
	for i, p := range lamps {
		add(fmt.Sprintf("LampPole%d", i), scene.CreateCylinder(0.09, 4.8, 8), matMetal, mgl32.Vec3{p.X(), 2.4, p.Z()})
		add(fmt.Sprintf("LampCap%d", i), scene.CreateSphere(0.28, 12, 6), matLamp, mgl32.Vec3{p.X(), 4.9, p.Z()}).Shadows = false

		_, l := s.NewLightNode(fmt.Sprintf("Lamp%d", i), deferred.LightPoint, mgl32.Vec3{p.X(), 4.5, p.Z()}, mgl32.Vec3{})
		l.Color = core.Color{R: 1.0, G: 0.78, B: 0.35, A: 1}
		l.Intensity = 3
		l.Range = 14
		l.CastShadows = true
		l.ShadowMapSize = 512
		t.lamps = append(t.lamps, l)
	}

	// Market spot light over the SE hall entrance.
	_, spot := s.NewLightNode("MarketSpot", deferred.LightSpot, mgl32.Vec3{12, 6, 10}, mgl32.Vec3{0, -1, 0.4})
	spot.Color = core.Color{R: 0.85, G: 0.9, B: 1, A: 1}
	spot.Intensity = 4
	spot.Range = 16
	spot.SpotAngle = mgl32.DegToRad(28)
	spot.CastShadows = true

	t.sunNode, t.sun = s.NewLightNode("Sun", deferred.LightDirectional, mgl32.Vec3{0, 30, 0}, mgl32.Vec3{0.55, -0.75, -0.35})
	t.sun.ShadowExtent = 30
	t.sun.Range = 80
	t.sun.ShadowMapSize = 2048

	for _, l := range s.Lights() {
		l.ShadowProgram = re.ShadowProgram(l.Kind)
	}
	return t
}

// spin turns the fountain ring.
func (t *town) spin(dt float32) {
	if t.spinner != nil {
		t.spinner.Rotate(mgl32.Vec3{0, 1, 0}, dt*0.8)
	}
}
