package scene

import (
	"fmt"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"render-engine/core"
)

const extMaterialsUnlit = "KHR_materials_unlit"

// GLTFResult holds the nodes loaded from a .glb / .gltf file. Textures are
// reachable through the nodes' materials and are uploaded by Scene.Upload.
type GLTFResult struct {
	Roots    []*Node // top-level nodes; add each with scene.AddNode(n)
	Textures []*Texture
}

// LoadGLTF opens a .glb or .gltf file and converts it into a node hierarchy.
// Geometry, base-colour factors and textures, metallic-roughness factors,
// the unlit extension and blended alpha mode are imported. A primitive or
// image that fails to load is skipped with a warning.
func LoadGLTF(path string) (*GLTFResult, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gltf open %q: %w", path, err)
	}
	return convertGLTF(doc, filepath.Dir(path))
}

func convertGLTF(doc *gltf.Document, dir string) (*GLTFResult, error) {
	log := core.Logger().With("loader", "gltf")
	result := &GLTFResult{}

	textures := make([]*Texture, len(doc.Textures))
	for i, gt := range doc.Textures {
		if gt.Source == nil || *gt.Source >= len(doc.Images) {
			continue
		}
		tex, err := loadGLTFImage(doc, *gt.Source, dir)
		if err != nil {
			log.Warn("image skipped", "image", *gt.Source, "err", err)
			continue
		}
		if tex != nil {
			textures[i] = tex
			result.Textures = append(result.Textures, tex)
		}
	}

	materials := make([]*Material, len(doc.Materials))
	for i, gm := range doc.Materials {
		materials[i] = convertGLTFMaterial(gm, textures)
	}

	meshPrims := make([][]*Mesh, len(doc.Meshes))
	for mi, gm := range doc.Meshes {
		for pi, prim := range gm.Primitives {
			m, err := loadGLTFPrimitive(doc, gm.Name, pi, prim)
			if err != nil {
				log.Warn("primitive skipped", "mesh", mi, "primitive", pi, "err", err)
				continue
			}
			if prim.Material != nil && *prim.Material < len(materials) {
				m.Material = materials[*prim.Material]
			}
			meshPrims[mi] = append(meshPrims[mi], m)
		}
	}

	nodes := make([]*Node, len(doc.Nodes))
	for i, gn := range doc.Nodes {
		name := gn.Name
		if name == "" {
			name = fmt.Sprintf("node_%d", i)
		}
		n := NewNode(name)

		t := gn.TranslationOrDefault()
		n.SetPosition(mgl32.Vec3{float32(t[0]), float32(t[1]), float32(t[2])})
		s := gn.ScaleOrDefault()
		n.SetScale(mgl32.Vec3{float32(s[0]), float32(s[1]), float32(s[2])})
		r := gn.RotationOrDefault() // x, y, z, w
		n.SetRotation(mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}})

		if gn.Mesh != nil && *gn.Mesh < len(meshPrims) {
			prims := meshPrims[*gn.Mesh]
			if len(prims) == 1 {
				n.Geometry = prims[0]
			} else {
				for pi, p := range prims {
					child := NewNode(fmt.Sprintf("%s_prim%d", name, pi))
					child.Geometry = p
					n.AddChild(child)
				}
			}
		}
		nodes[i] = n
	}

	hasParent := make([]bool, len(nodes))
	for i, gn := range doc.Nodes {
		for _, c := range gn.Children {
			if c < len(nodes) {
				nodes[i].AddChild(nodes[c])
				hasParent[c] = true
			}
		}
	}

	if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
		for _, idx := range doc.Scenes[*doc.Scene].Nodes {
			if idx < len(nodes) {
				result.Roots = append(result.Roots, nodes[idx])
			}
		}
	} else {
		for i, n := range nodes {
			if !hasParent[i] {
				result.Roots = append(result.Roots, n)
			}
		}
	}
	return result, nil
}

func convertGLTFMaterial(gm *gltf.Material, textures []*Texture) *Material {
	mat := DefaultMaterial()
	mat.Name = gm.Name
	if pbr := gm.PBRMetallicRoughness; pbr != nil {
		cf := pbr.BaseColorFactorOrDefault()
		mat.Albedo = core.Color{R: float32(cf[0]), G: float32(cf[1]), B: float32(cf[2]), A: float32(cf[3])}
		mat.Metallic = float32(pbr.MetallicFactorOrDefault())
		mat.Roughness = float32(pbr.RoughnessFactorOrDefault())
		if bt := pbr.BaseColorTexture; bt != nil && bt.Index < len(textures) {
			mat.AlbedoTexture = textures[bt.Index]
		}
	}
	if _, ok := gm.Extensions[extMaterialsUnlit]; ok {
		mat.Unlit = true
	}
	mat.Overlay = gm.AlphaMode == gltf.AlphaBlend
	return mat
}

func loadGLTFImage(doc *gltf.Document, idx int, dir string) (*Texture, error) {
	img := doc.Images[idx]
	name := img.Name
	if name == "" {
		name = fmt.Sprintf("gltf_img_%d", idx)
	}
	switch {
	case img.BufferView != nil:
		raw, err := modeler.ReadBufferView(doc, doc.BufferViews[*img.BufferView])
		if err != nil {
			return nil, fmt.Errorf("buffer view: %w", err)
		}
		return DecodeTexture(name, raw)
	case img.IsEmbeddedResource():
		raw, err := img.MarshalData()
		if err != nil {
			return nil, fmt.Errorf("embedded data: %w", err)
		}
		return DecodeTexture(name, raw)
	case img.URI != "":
		return LoadTexture(filepath.Join(dir, img.URI))
	}
	return nil, nil
}

// loadGLTFPrimitive converts one triangle primitive into a Mesh.
func loadGLTFPrimitive(doc *gltf.Document, meshName string, primIdx int, prim *gltf.Primitive) (*Mesh, error) {
	if prim.Mode != gltf.PrimitiveTriangles {
		return nil, fmt.Errorf("unsupported primitive mode %v", prim.Mode)
	}
	name := fmt.Sprintf("%s_p%d", meshName, primIdx)
	if meshName == "" {
		name = fmt.Sprintf("prim_%d", primIdx)
	}

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	var normals [][3]float32
	var uvs [][2]float32
	var colors [][4]uint8
	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		normals, _ = modeler.ReadNormal(doc, doc.Accessors[idx], nil)
	}
	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		uvs, _ = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil)
	}
	if idx, ok := prim.Attributes[gltf.COLOR_0]; ok {
		colors, _ = modeler.ReadColor(doc, doc.Accessors[idx], nil)
	}

	verts := make([]core.Vertex, len(positions))
	for i, p := range positions {
		v := core.Vertex{
			Position: mgl32.Vec3(p),
			Normal:   mgl32.Vec3{0, 1, 0},
			Color:    core.ColorWhite,
		}
		if i < len(normals) {
			v.Normal = mgl32.Vec3(normals[i])
		}
		if i < len(uvs) {
			// glTF puts the UV origin at the top-left of the image.
			v.UV = mgl32.Vec2{uvs[i][0], 1 - uvs[i][1]}
		}
		if i < len(colors) {
			c := colors[i]
			v.Color = core.Color{R: float32(c[0]) / 255, G: float32(c[1]) / 255, B: float32(c[2]) / 255, A: float32(c[3]) / 255}
		}
		verts[i] = v
	}

	var indices []uint32
	if prim.Indices != nil {
		indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return nil, fmt.Errorf("indices: %w", err)
		}
	}
	return NewMeshFromData(name, verts, indices), nil
}
