package scene

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
)

type objRef struct{ v, vt, vn int } // 0-based, -1 when absent

type objGroup struct {
	name    string
	matName string
	tris    [][3]objRef
}

// LoadOBJ parses a Wavefront .obj file and returns one Mesh per object or
// group. A material library referenced with mtllib is loaded relative to
// the file.
func LoadOBJ(path string) ([]*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open obj %q: %w", path, err)
	}
	defer f.Close()

	dir := filepath.Dir(path)
	meshes, err := ParseOBJ(f, func(lib string) (map[string]*Material, error) {
		mf, err := os.Open(filepath.Join(dir, lib))
		if err != nil {
			return nil, err
		}
		defer mf.Close()
		return ParseMTL(mf, dir)
	})
	if err != nil {
		return nil, fmt.Errorf("obj %q: %w", path, err)
	}
	return meshes, nil
}

// ParseOBJ reads OBJ data from r. mtllib, if non-nil, resolves material
// library names; a library that fails to load is skipped with a warning.
// Polygons are fan-triangulated and faces without normals get
// area-weighted smooth normals.
func ParseOBJ(r io.Reader, mtllib func(name string) (map[string]*Material, error)) ([]*Mesh, error) {
	var (
		positions []mgl32.Vec3
		normals   []mgl32.Vec3
		uvs       []mgl32.Vec2
		groups    []*objGroup
	)
	materials := map[string]*Material{}
	cur := &objGroup{name: "default"}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			if v, ok := parseFloats(fields[1:], 3); ok {
				positions = append(positions, mgl32.Vec3{v[0], v[1], v[2]})
			}
		case "vn":
			if v, ok := parseFloats(fields[1:], 3); ok {
				normals = append(normals, mgl32.Vec3{v[0], v[1], v[2]})
			}
		case "vt":
			if v, ok := parseFloats(fields[1:], 2); ok {
				uvs = append(uvs, mgl32.Vec2{v[0], v[1]})
			}
		case "o", "g":
			if len(cur.tris) > 0 {
				groups = append(groups, cur)
			}
			name := "default"
			if len(fields) > 1 {
				name = fields[1]
			}
			cur = &objGroup{name: name, matName: cur.matName}
		case "usemtl":
			if len(fields) > 1 {
				cur.matName = fields[1]
			}
		case "mtllib":
			if len(fields) < 2 || mtllib == nil {
				continue
			}
			loaded, err := mtllib(fields[1])
			if err != nil {
				core.Logger().Warn("obj: material library skipped", "lib", fields[1], "err", err)
				continue
			}
			for k, v := range loaded {
				materials[k] = v
			}
		case "f":
			if len(fields) < 4 {
				continue
			}
			refs := make([]objRef, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				refs = append(refs, parseFaceRef(tok, len(positions), len(uvs), len(normals)))
			}
			for i := 1; i+1 < len(refs); i++ {
				cur.tris = append(cur.tris, [3]objRef{refs[0], refs[i], refs[i+1]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if len(cur.tris) > 0 {
		groups = append(groups, cur)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no geometry found")
	}

	meshes := make([]*Mesh, 0, len(groups))
	for _, g := range groups {
		m := buildOBJMesh(g, positions, normals, uvs)
		if mat, ok := materials[g.matName]; ok {
			m.Material = mat
		}
		meshes = append(meshes, m)
	}
	return meshes, nil
}

func parseFloats(fields []string, n int) ([]float32, bool) {
	if len(fields) < n {
		return nil, false
	}
	out := make([]float32, n)
	for i := range n {
		v, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, false
		}
		out[i] = float32(v)
	}
	return out, true
}

// parseFaceRef parses "v", "v/vt", "v//vn" or "v/vt/vn". Negative indices
// count back from the most recent element.
func parseFaceRef(tok string, nv, nvt, nvn int) objRef {
	idx := func(s string, count int) int {
		n, err := strconv.Atoi(s)
		switch {
		case err != nil || n == 0:
			return -1
		case n < 0:
			return count + n
		}
		return n - 1
	}
	ref := objRef{-1, -1, -1}
	parts := strings.Split(tok, "/")
	ref.v = idx(parts[0], nv)
	if len(parts) > 1 {
		ref.vt = idx(parts[1], nvt)
	}
	if len(parts) > 2 {
		ref.vn = idx(parts[2], nvn)
	}
	return ref
}

// buildOBJMesh deduplicates identical position/uv/normal triples.
func buildOBJMesh(g *objGroup, positions, normals []mgl32.Vec3, uvs []mgl32.Vec2) *Mesh {
	seen := map[objRef]uint32{}
	var vertices []core.Vertex
	var indices []uint32
	missingNormals := false

	for _, tri := range g.tris {
		for _, ref := range tri {
			if idx, ok := seen[ref]; ok {
				indices = append(indices, idx)
				continue
			}
			v := core.Vertex{Color: core.ColorWhite}
			if ref.v >= 0 && ref.v < len(positions) {
				v.Position = positions[ref.v]
			}
			if ref.vt >= 0 && ref.vt < len(uvs) {
				v.UV = uvs[ref.vt]
			}
			if ref.vn >= 0 && ref.vn < len(normals) {
				v.Normal = normals[ref.vn]
			} else {
				missingNormals = true
			}
			idx := uint32(len(vertices))
			vertices = append(vertices, v)
			seen[ref] = idx
			indices = append(indices, idx)
		}
	}
	if missingNormals {
		smoothNormals(vertices, indices)
	}
	return NewMeshFromData(g.name, vertices, indices)
}

// smoothNormals writes area-weighted vertex normals.
func smoothNormals(vertices []core.Vertex, indices []uint32) {
	acc := make([]mgl32.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		p0 := vertices[a].Position
		n := vertices[b].Position.Sub(p0).Cross(vertices[c].Position.Sub(p0))
		acc[a] = acc[a].Add(n)
		acc[b] = acc[b].Add(n)
		acc[c] = acc[c].Add(n)
	}
	for i := range vertices {
		if acc[i].Len() > 0 {
			vertices[i].Normal = acc[i].Normalize()
		} else {
			vertices[i].Normal = mgl32.Vec3{0, 1, 0}
		}
	}
}

// ParseMTL reads a material library. Textures are resolved relative to dir.
// Kd sets albedo, Ns maps to roughness, d/Tr below one marks the material
// as an overlay, illum 0 makes it unlit and map_Kd loads the albedo texture.
func ParseMTL(r io.Reader, dir string) (map[string]*Material, error) {
	mats := map[string]*Material{}
	var cur *Material

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if fields[0] == "newmtl" {
			if len(fields) > 1 {
				cur = DefaultMaterial()
				cur.Name = fields[1]
				mats[cur.Name] = cur
			}
			continue
		}
		if cur == nil {
			continue
		}
		switch fields[0] {
		case "Kd":
			if v, ok := parseFloats(fields[1:], 3); ok {
				cur.Albedo = core.Color{R: v[0], G: v[1], B: v[2], A: cur.Albedo.A}
			}
		case "Ns":
			if v, ok := parseFloats(fields[1:], 1); ok {
				// Phong exponent 0..1000 to roughness 1..0.
				cur.Roughness = mgl32.Clamp(1-float32(math.Sqrt(float64(v[0])/1000)), 0, 1)
			}
		case "d", "Tr":
			if v, ok := parseFloats(fields[1:], 1); ok {
				alpha := v[0]
				if fields[0] == "Tr" {
					alpha = 1 - alpha
				}
				cur.Albedo.A = alpha
				cur.Overlay = alpha < 1
			}
		case "illum":
			cur.Unlit = len(fields) > 1 && fields[1] == "0"
		case "map_Kd":
			if len(fields) < 2 {
				continue
			}
			tex, err := LoadTexture(filepath.Join(dir, fields[len(fields)-1]))
			if err != nil {
				core.Logger().Warn("mtl: texture skipped", "material", cur.Name, "err", err)
				continue
			}
			cur.AlbedoTexture = tex
		}
	}
	return mats, scanner.Err()
}
