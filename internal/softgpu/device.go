// Package softgpu implements gpu.Device on the CPU. Fragment programs are Go
// functions registered by name; full-screen draws run them for every covered
// pixel while mesh draws are only recorded. It exists so the pipeline can be
// exercised headless.
package softgpu

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/gpu"
)

// FragmentFunc shades one pixel. It reads uniforms and textures through f and
// writes outputs with f.Out.
type FragmentFunc func(f *Fragment)

// Shader is a program implementation: the uniforms it declares and the
// function run per fragment. Fragment may be nil for programs only used with
// DrawMesh.
type Shader struct {
	Uniforms []string
	Fragment FragmentFunc
}

// DrawKind tells full-screen draws from mesh draws in the log.
type DrawKind uint8

const (
	DrawFullscreen DrawKind = iota
	DrawMesh
)

// DrawCall is one recorded draw.
type DrawCall struct {
	Kind        DrawKind
	Program     string
	Framebuffer gpu.FramebufferID
	DrawBuffers []gpu.Attachment
	Viewport    gpu.ViewportState
	Blend       gpu.BlendState
	Mesh        gpu.MeshID
	// Model is the B_Model uniform at draw time, if the program has one.
	Model mgl32.Mat4
}

// CopyCall is one recorded CopyAttachment.
type CopyCall struct {
	Framebuffer gpu.FramebufferID
	Src, Dst    gpu.Attachment
	Rect        core.RectI
}

type texture struct {
	desc  gpu.TextureDesc
	faces [][]float32
}

func (t *texture) alloc(w, h int) {
	t.desc.Width, t.desc.Height = w, h
	n := 1
	if t.desc.Target == gpu.TextureCube {
		n = 6
		t.desc.Height = w
	}
	t.faces = make([][]float32, n)
	for i := range t.faces {
		t.faces[i] = make([]float32, 4*t.desc.Width*t.desc.Height)
	}
}

type binding struct {
	tex  gpu.TextureID
	face int
}

type framebuffer struct {
	attachments map[gpu.Attachment]binding
	drawBuffers []gpu.Attachment
}

type program struct {
	name     string
	shader   Shader
	uniforms []string
	values   map[int32]any
}

// Device is a CPU gpu.Device.
type Device struct {
	shaders map[string]Shader
	nextID  uint32

	textures     map[gpu.TextureID]*texture
	framebuffers map[gpu.FramebufferID]*framebuffer
	programs     map[gpu.ProgramID]*program
	meshes       map[gpu.MeshID]core.MeshData

	fb       gpu.FramebufferID
	prog     gpu.ProgramID
	viewport gpu.ViewportState
	blend    gpu.BlendState
	depth    gpu.DepthState
	units    map[int]gpu.TextureID

	err error

	Draws  []DrawCall
	Copies []CopyCall
	Clears int
}

// New creates a device whose default framebuffer is width×height with a
// single RGBA32F colour attachment.
func New(width, height int) *Device {
	d := &Device{
		shaders:      make(map[string]Shader),
		textures:     make(map[gpu.TextureID]*texture),
		framebuffers: make(map[gpu.FramebufferID]*framebuffer),
		programs:     make(map[gpu.ProgramID]*program),
		meshes:       make(map[gpu.MeshID]core.MeshData),
		units:        make(map[int]gpu.TextureID),
		blend:        gpu.NoBlend,
		depth:        gpu.DepthState{Mask: true, Func: gpu.DepthLess},
	}
	back, _ := d.NewTexture(gpu.TextureDesc{Format: gpu.FormatRGBA32F, Width: width, Height: height})
	d.framebuffers[gpu.DefaultFramebuffer] = &framebuffer{
		attachments: map[gpu.Attachment]binding{gpu.Color0: {tex: back}},
		drawBuffers: []gpu.Attachment{gpu.Color0},
	}
	d.viewport = gpu.ViewportState{Viewport: core.RectI{W: int32(width), H: int32(height)}}
	return d
}

// Register makes a program named name linkable.
func (d *Device) Register(name string, s Shader) {
	d.shaders[name] = s
}

// RegisterAll registers every shader in m.
func (d *Device) RegisterAll(m map[string]Shader) {
	for name, s := range m {
		d.Register(name, s)
	}
}

// LoseContext makes every later Err call report gpu.ErrContextLost.
func (d *Device) LoseContext() {
	d.err = gpu.ErrContextLost
}

// ResetLog clears the recorded draws, copies and clears.
func (d *Device) ResetLog() {
	d.Draws, d.Copies, d.Clears = nil, nil, 0
}

// DrawsWith returns the recorded draws made with the named program.
func (d *Device) DrawsWith(name string) []DrawCall {
	var out []DrawCall
	for _, dc := range d.Draws {
		if dc.Program == name {
			out = append(out, dc)
		}
	}
	return out
}

// BackBuffer returns the default framebuffer's colour texture.
func (d *Device) BackBuffer() gpu.TextureID {
	return d.framebuffers[gpu.DefaultFramebuffer].attachments[gpu.Color0].tex
}

// Pixel returns texel (x, y) of face 0 of tex.
func (d *Device) Pixel(tex gpu.TextureID, x, y int) mgl32.Vec4 {
	t := d.textures[tex]
	if t == nil || x < 0 || y < 0 || x >= t.desc.Width || y >= t.desc.Height {
		return mgl32.Vec4{}
	}
	i := 4 * (y*t.desc.Width + x)
	px := t.faces[0]
	return mgl32.Vec4{px[i], px[i+1], px[i+2], px[i+3]}
}

// Fill sets every texel of face 0 of tex to v.
func (d *Device) Fill(tex gpu.TextureID, v mgl32.Vec4) {
	t := d.textures[tex]
	if t == nil {
		return
	}
	px := t.faces[0]
	for i := 0; i < len(px); i += 4 {
		copy(px[i:i+4], v[:])
	}
}

// SetPixel sets texel (x, y) of face 0 of tex.
func (d *Device) SetPixel(tex gpu.TextureID, x, y int, v mgl32.Vec4) {
	t := d.textures[tex]
	if t == nil || x < 0 || y < 0 || x >= t.desc.Width || y >= t.desc.Height {
		return
	}
	i := 4 * (y*t.desc.Width + x)
	copy(t.faces[0][i:i+4], v[:])
}

// TextureDesc returns the description tex was created with, at its current size.
func (d *Device) TextureDesc(tex gpu.TextureID) (gpu.TextureDesc, bool) {
	t, ok := d.textures[tex]
	if !ok {
		return gpu.TextureDesc{}, false
	}
	return t.desc, true
}

// Live reports how many textures, framebuffers and programs are allocated,
// not counting the default framebuffer and its back buffer.
func (d *Device) Live() (textures, framebuffers, programs int) {
	return len(d.textures) - 1, len(d.framebuffers) - 1, len(d.programs)
}

func (d *Device) id() uint32 {
	d.nextID++
	return d.nextID
}

func (d *Device) NewTexture(desc gpu.TextureDesc) (gpu.TextureID, error) {
	if desc.Width <= 0 || (desc.Target == gpu.Texture2D && desc.Height <= 0) {
		return 0, fmt.Errorf("softgpu: invalid texture size %dx%d", desc.Width, desc.Height)
	}
	t := &texture{desc: desc}
	t.alloc(desc.Width, desc.Height)
	id := gpu.TextureID(d.id())
	d.textures[id] = t
	return id, nil
}

func (d *Device) ResizeTexture(tex gpu.TextureID, width, height int) {
	if t := d.textures[tex]; t != nil {
		t.alloc(width, height)
	}
}

func (d *Device) UploadTexture(tex gpu.TextureID, width, height int, rgba []float32) {
	t := d.textures[tex]
	if t == nil {
		return
	}
	t.alloc(width, height)
	copy(t.faces[0], rgba)
}

func (d *Device) ReadTexture(tex gpu.TextureID) (int, int, []float32) {
	t := d.textures[tex]
	if t == nil {
		return 0, 0, nil
	}
	return t.desc.Width, t.desc.Height, slices.Clone(t.faces[0])
}

func (d *Device) TextureSize(tex gpu.TextureID) (int, int) {
	t := d.textures[tex]
	if t == nil {
		return 0, 0
	}
	return t.desc.Width, t.desc.Height
}

func (d *Device) DeleteTexture(tex gpu.TextureID) {
	delete(d.textures, tex)
	for u, bound := range d.units {
		if bound == tex {
			delete(d.units, u)
		}
	}
}

func (d *Device) NewFramebuffer() (gpu.FramebufferID, error) {
	id := gpu.FramebufferID(d.id())
	d.framebuffers[id] = &framebuffer{
		attachments: make(map[gpu.Attachment]binding),
		drawBuffers: []gpu.Attachment{gpu.Color0},
	}
	return id, nil
}

func (d *Device) AttachTexture(att gpu.Attachment, tex gpu.TextureID, face int) {
	fb := d.framebuffers[d.fb]
	if fb == nil || d.fb == gpu.DefaultFramebuffer {
		return
	}
	fb.attachments[att] = binding{tex: tex, face: face}
}

func (d *Device) CheckFramebuffer() error {
	fb := d.framebuffers[d.fb]
	if fb == nil {
		return fmt.Errorf("softgpu: framebuffer %d: %w", d.fb, gpu.ErrFramebufferIncomplete)
	}
	if d.fb == gpu.DefaultFramebuffer {
		return nil
	}
	if len(fb.attachments) == 0 {
		return fmt.Errorf("softgpu: framebuffer %d has no attachments: %w", d.fb, gpu.ErrFramebufferIncomplete)
	}
	w, h := -1, -1
	for att, b := range fb.attachments {
		t := d.textures[b.tex]
		if t == nil {
			return fmt.Errorf("softgpu: %s references deleted texture: %w", att, gpu.ErrFramebufferIncomplete)
		}
		if att == gpu.DepthStencil && !t.desc.Format.IsDepth() {
			return fmt.Errorf("softgpu: %s is not a depth format: %w", att, gpu.ErrFramebufferIncomplete)
		}
		if w < 0 {
			w, h = t.desc.Width, t.desc.Height
		} else if w != t.desc.Width || h != t.desc.Height {
			return fmt.Errorf("softgpu: attachment sizes differ: %w", gpu.ErrFramebufferIncomplete)
		}
	}
	return nil
}

func (d *Device) DeleteFramebuffer(id gpu.FramebufferID) {
	if id == gpu.DefaultFramebuffer {
		return
	}
	delete(d.framebuffers, id)
	if d.fb == id {
		d.fb = gpu.DefaultFramebuffer
	}
}

func (d *Device) NewProgram(src gpu.ProgramSource) (gpu.ProgramID, error) {
	s, ok := d.shaders[src.Name]
	if !ok {
		return 0, fmt.Errorf("softgpu: no shader registered as %q: %w", src.Name, gpu.ErrLinkFailed)
	}
	id := gpu.ProgramID(d.id())
	d.programs[id] = &program{
		name:     src.Name,
		shader:   s,
		uniforms: slices.Clone(s.Uniforms),
		values:   make(map[int32]any),
	}
	return id, nil
}

func (d *Device) DeleteProgram(p gpu.ProgramID) {
	delete(d.programs, p)
	if d.prog == p {
		d.prog = 0
	}
}

func (d *Device) UniformLocation(p gpu.ProgramID, name string) int32 {
	prog := d.programs[p]
	if prog == nil {
		return -1
	}
	return int32(slices.Index(prog.uniforms, name))
}

func (d *Device) NewMesh(data core.MeshData) (gpu.MeshID, error) {
	if len(data.Vertices) == 0 {
		return 0, fmt.Errorf("softgpu: empty mesh")
	}
	id := gpu.MeshID(d.id())
	d.meshes[id] = data
	return id, nil
}

func (d *Device) DeleteMesh(m gpu.MeshID) { delete(d.meshes, m) }

func (d *Device) setUniform(p gpu.ProgramID, loc int32, v any) {
	prog := d.programs[p]
	if prog == nil || loc < 0 || int(loc) >= len(prog.uniforms) {
		return
	}
	prog.values[loc] = v
}

func (d *Device) ProgramUniform1i(p gpu.ProgramID, loc int32, v int32) {
	d.setUniform(p, loc, v)
}

func (d *Device) ProgramUniform1f(p gpu.ProgramID, loc int32, v float32) {
	d.setUniform(p, loc, v)
}

func (d *Device) ProgramUniform2f(p gpu.ProgramID, loc int32, v mgl32.Vec2) {
	d.setUniform(p, loc, v)
}

func (d *Device) ProgramUniform3f(p gpu.ProgramID, loc int32, v mgl32.Vec3) {
	d.setUniform(p, loc, v)
}

func (d *Device) ProgramUniform4f(p gpu.ProgramID, loc int32, v mgl32.Vec4) {
	d.setUniform(p, loc, v)
}

func (d *Device) ProgramUniform1fv(p gpu.ProgramID, loc int32, v []float32) {
	d.setUniform(p, loc, slices.Clone(v))
}

func (d *Device) ProgramUniform3fv(p gpu.ProgramID, loc int32, v []mgl32.Vec3) {
	d.setUniform(p, loc, slices.Clone(v))
}

func (d *Device) ProgramUniformMatrix4f(p gpu.ProgramID, loc int32, m mgl32.Mat4) {
	d.setUniform(p, loc, m)
}

func (d *Device) BindTexture(unit int, tex gpu.TextureID) {
	if tex == 0 {
		delete(d.units, unit)
		return
	}
	d.units[unit] = tex
}

func (d *Device) BindFramebuffer(fb gpu.FramebufferID) {
	if _, ok := d.framebuffers[fb]; !ok {
		d.fb = gpu.DefaultFramebuffer
		return
	}
	d.fb = fb
}

func (d *Device) Framebuffer() gpu.FramebufferID   { return d.fb }
func (d *Device) UseProgram(p gpu.ProgramID)       { d.prog = p }
func (d *Device) Program() gpu.ProgramID           { return d.prog }
func (d *Device) SetViewport(vs gpu.ViewportState) { d.viewport = vs }
func (d *Device) Viewport() gpu.ViewportState      { return d.viewport }
func (d *Device) SetBlend(b gpu.BlendState)        { d.blend = b }
func (d *Device) Blend() gpu.BlendState            { return d.blend }
func (d *Device) SetDepth(s gpu.DepthState)        { d.depth = s }
func (d *Device) Depth() gpu.DepthState            { return d.depth }

func (d *Device) SetDrawBuffers(atts []gpu.Attachment) {
	if fb := d.framebuffers[d.fb]; fb != nil {
		fb.drawBuffers = slices.Clone(atts)
	}
}

func (d *Device) DrawBuffers() []gpu.Attachment {
	if fb := d.framebuffers[d.fb]; fb != nil {
		return slices.Clone(fb.drawBuffers)
	}
	return nil
}

func (d *Device) Err() error { return d.err }

var uniformDecl = regexp.MustCompile(`(?m)^\s*uniform\s+\w+\s+(\w+)`)

// ParseUniforms lists the uniforms declared in GLSL sources, in order of
// first declaration, so a Shader can mirror a real program's interface.
func ParseUniforms(sources ...string) []string {
	var names []string
	for _, src := range sources {
		for _, m := range uniformDecl.FindAllStringSubmatch(src, -1) {
			if !slices.Contains(names, m[1]) {
				names = append(names, m[1])
			}
		}
	}
	return names
}
