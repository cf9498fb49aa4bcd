package scene_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/deferred"
	"render-engine/gpu"
	"render-engine/internal/softgpu"
	"render-engine/scene"
)

func newGeometryProgram(t *testing.T, dev *softgpu.Device) *gpu.Program {
	t.Helper()
	src, _ := deferred.Source(deferred.ProgramGeometry)
	dev.Register(deferred.ProgramGeometry, softgpu.Shader{Uniforms: softgpu.ParseUniforms(src.Vertex, src.Fragment)})
	p, err := gpu.NewProgram(dev, src)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSceneRenderablesDepthFirst(t *testing.T) {
	s := scene.NewScene()
	a := scene.NewNode("a")
	a.Geometry = scene.CreateCube(1)
	b := scene.NewNode("b") // no geometry
	c := scene.NewNode("c")
	c.Geometry = scene.CreateQuad()
	d := scene.NewNode("d")
	d.Geometry = scene.CreateSphere(1, 8, 4)
	s.AddNode(a)
	s.AddNode(b)
	b.AddChild(c)
	s.AddNode(d)

	got := s.Renderables()
	want := []*scene.Node{a, c, d}
	if len(got) != len(want) {
		t.Fatalf("got %d renderables, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("renderable %d = %v, want %s", i, got[i], want[i].Name)
		}
	}
}

func TestSceneLights(t *testing.T) {
	s := scene.NewScene()
	_, sun := s.NewLightNode("sun", deferred.LightDirectional, mgl32.Vec3{0, 10, 0}, mgl32.Vec3{0, -1, 0})
	lampNode, lamp := s.NewLightNode("lamp", deferred.LightPoint, mgl32.Vec3{2, 1, 0}, mgl32.Vec3{})
	_, spot := s.NewLightNode("spot", deferred.LightSpot, mgl32.Vec3{0, 3, 3}, mgl32.Vec3{0, -1, -1})

	lights := s.Lights()
	if len(lights) != 3 || lights[0] != sun || lights[1] != lamp || lights[2] != spot {
		t.Fatalf("lights out of insertion order: %v", lights)
	}
	if got := sun.Forward(); !vecNear(got, mgl32.Vec3{0, -1, 0}) {
		t.Errorf("sun forward = %v", got)
	}
	if got := spot.Forward(); !vecNear(got, mgl32.Vec3{0, -1, -1}.Normalize()) {
		t.Errorf("spot forward = %v", got)
	}
	if got := lamp.Position(); !vecNear(got, mgl32.Vec3{2, 1, 0}) {
		t.Errorf("lamp position = %v", got)
	}
	if s.Root.Find("lamp") != lampNode {
		t.Error("light node not attached to the scene")
	}

	s.RemoveLight(lamp)
	if got := s.Lights(); len(got) != 2 || got[1] != spot {
		t.Errorf("after remove: %v", got)
	}
}

func TestSceneUploadBuildsMaterials(t *testing.T) {
	dev := softgpu.New(8, 8)
	prog := newGeometryProgram(t, dev)
	s := scene.NewScene()

	glassMesh := scene.CreateQuad()
	glassMesh.Material = scene.NewMaterial("glass", core.Color{R: 0.2, G: 0.4, B: 1, A: 0.5})
	glassMesh.Material.Overlay = true

	plain := scene.NewNode("plain")
	plain.Geometry = scene.CreateCube(1)
	metal := scene.NewNode("metal")
	metal.Geometry = scene.CreateCube(1)
	metal.Material = scene.NewPBRMaterial("metal", core.NewColor(0.9, 0.9, 0.9), 1, 0.2)
	glass := scene.NewNode("glass")
	glass.Geometry = glassMesh
	sky := scene.NewNode("sky")
	sky.Geometry = scene.CreateSphere(50, 8, 4)
	sky.Material = scene.NewMaterial("sky", core.NewColor(0.5, 0.7, 1))
	sky.Material.Unlit = true
	for _, n := range []*scene.Node{plain, metal, glass, sky} {
		s.AddNode(n)
	}

	if err := s.Upload(dev, prog); err != nil {
		t.Fatal(err)
	}

	for _, n := range []*scene.Node{plain, metal, glass, sky} {
		if n.Mesh() == 0 {
			t.Errorf("%s: mesh not uploaded", n.Name)
		}
		if m := n.ActiveMaterial(); m == nil || m.Program != prog {
			t.Errorf("%s: material not built with the geometry program", n.Name)
		}
	}
	if m := plain.ActiveMaterial(); m.Albedo != core.ColorWhite || !m.ReceivesLighting {
		t.Errorf("plain falls back to the default material, got %+v", m)
	}
	if m := metal.ActiveMaterial(); m.Metalness != 1 || m.Roughness != 0.2 {
		t.Errorf("metal = %+v", m)
	}
	if m := glass.ActiveMaterial(); m.RenderPass != deferred.RenderPassOverlay || m.Albedo.A != 0.5 {
		t.Errorf("glass should use the mesh's overlay material, got %+v", m)
	}
	if deferred.IsSceneRenderable(glass) || deferred.IsShadowCaster(glass) {
		t.Error("overlay node must not be drawn or cast in the scene pass")
	}
	if sky.ActiveMaterial().ReceivesLighting {
		t.Error("unlit material receives lighting")
	}

	// A second upload keeps existing handles.
	id := plain.Mesh()
	if err := s.Upload(dev, prog); err != nil {
		t.Fatal(err)
	}
	if plain.Mesh() != id {
		t.Error("upload is not idempotent")
	}

	s.Release(dev)
	if plain.Mesh() != 0 || plain.ActiveMaterial() != nil {
		t.Error("release left handles behind")
	}
}

func TestSceneUploadTexture(t *testing.T) {
	dev := softgpu.New(8, 8)
	prog := newGeometryProgram(t, dev)
	s := scene.NewScene()

	// Two rows: red on top, blue underneath.
	tex := &scene.Texture{Name: "stripes", Width: 1, Height: 2, Pixels: []byte{255, 0, 0, 255, 0, 0, 255, 255}}
	mat := scene.DefaultMaterial()
	mat.AlbedoTexture = tex
	n := scene.NewNode("textured")
	n.Geometry = scene.CreateQuad()
	n.Material = mat
	s.AddNode(n)

	if err := s.Upload(dev, prog); err != nil {
		t.Fatal(err)
	}
	if tex.ID == 0 || n.ActiveMaterial().AlbedoMap != tex.ID {
		t.Fatalf("albedo map = %d, texture id = %d", n.ActiveMaterial().AlbedoMap, tex.ID)
	}
	desc, _ := dev.TextureDesc(tex.ID)
	if desc.Wrap != gpu.WrapRepeat || desc.Format != gpu.FormatRGBA8 {
		t.Errorf("texture desc = %+v", desc)
	}
	// Row 0 on the device is the bottom of the image.
	if got := dev.Pixel(tex.ID, 0, 0); got != (mgl32.Vec4{0, 0, 1, 1}) {
		t.Errorf("bottom texel = %v, want blue", got)
	}
	if got := dev.Pixel(tex.ID, 0, 1); got != (mgl32.Vec4{1, 0, 0, 1}) {
		t.Errorf("top texel = %v, want red", got)
	}

	s.Release(dev)
	if tex.ID != 0 {
		t.Error("texture not released")
	}
	if textures, _, _ := dev.Live(); textures != 0 {
		t.Errorf("%d textures still live", textures)
	}
}

func TestSceneUploadReportsEmptyMesh(t *testing.T) {
	dev := softgpu.New(8, 8)
	prog := newGeometryProgram(t, dev)
	s := scene.NewScene()
	bad := scene.NewNode("bad")
	bad.Geometry = scene.NewMeshFromData("empty", nil, nil)
	good := scene.NewNode("good")
	good.Geometry = scene.CreateQuad()
	s.AddNode(bad)
	s.AddNode(good)

	if err := s.Upload(dev, prog); err == nil {
		t.Fatal("expected an error for the empty mesh")
	}
	if good.Mesh() == 0 {
		t.Error("one bad mesh must not stop the others uploading")
	}
}

func TestSceneStats(t *testing.T) {
	s := scene.NewScene()
	cube := scene.NewNode("cube")
	cube.Geometry = scene.CreateCube(1)
	hidden := scene.NewNode("hidden")
	hidden.Geometry = scene.CreateCube(1)
	hidden.Visible = false
	s.AddNode(cube)
	s.AddNode(hidden)

	nodes, tris := s.Stats()
	if nodes != 1 || tris != 12 {
		t.Errorf("Stats() = %d nodes, %d triangles, want 1, 12", nodes, tris)
	}
}
