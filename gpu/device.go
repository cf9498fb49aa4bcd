// Package gpu defines the graphics device contract the deferred pipeline is
// written against, plus the state-stack, framebuffer and program helpers
// layered on top of it.
//
// Handles are plain integers the way OpenGL names are: zero means "none" for
// textures and programs and "the default framebuffer" for framebuffers.
package gpu

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
)

type (
	TextureID     uint32
	FramebufferID uint32
	ProgramID     uint32
	MeshID        uint32
)

// DefaultFramebuffer is the window's back buffer.
const DefaultFramebuffer FramebufferID = 0

var (
	ErrFramebufferIncomplete = errors.New("framebuffer incomplete")
	ErrLinkFailed            = errors.New("shader program link failed")
	ErrContextLost           = errors.New("graphics context lost")
)

// Attachment names a framebuffer slot.
type Attachment uint8

const (
	Color0 Attachment = iota
	Color1
	Color2
	Color3
	Color4
	Color5
	Color6
	Color7
	DepthStencil
)

// MaxColorAttachments is the number of Color slots.
const MaxColorAttachments = 8

func (a Attachment) IsColor() bool { return a < DepthStencil }

func (a Attachment) String() string {
	if a == DepthStencil {
		return "DepthStencil"
	}
	return "Color" + string(rune('0'+a))
}

type TextureFormat uint8

const (
	FormatRGBA8 TextureFormat = iota
	FormatRGB10A2
	FormatRGBA16F
	FormatRGBA32F
	FormatDepth24Stencil8
	FormatDepth32F
)

func (f TextureFormat) IsDepth() bool {
	return f == FormatDepth24Stencil8 || f == FormatDepth32F
}

type TextureTarget uint8

const (
	Texture2D TextureTarget = iota
	TextureCube
)

type FilterMode uint8

const (
	FilterNearest FilterMode = iota
	FilterBilinear
)

type WrapMode uint8

const (
	WrapClampToEdge WrapMode = iota
	WrapRepeat
	WrapClampToBorder
)

// TextureDesc describes a texture allocation. Cube textures are square:
// Height is ignored and every face is Width×Width.
type TextureDesc struct {
	Target TextureTarget
	Format TextureFormat
	Width  int
	Height int
	Filter FilterMode
	Wrap   WrapMode
	// DepthCompare enables hardware shadow comparison on depth textures.
	DepthCompare bool
}

type BlendFactor uint8

const (
	BlendZero BlendFactor = iota
	BlendOne
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
	BlendDstColor
)

// BlendState is the blend aspect of the pipeline state.
type BlendState struct {
	Enabled bool
	Src     BlendFactor
	Dst     BlendFactor
}

// AdditiveBlend adds the fragment to the destination (ONE, ONE).
var AdditiveBlend = BlendState{Enabled: true, Src: BlendOne, Dst: BlendOne}

// NoBlend replaces the destination.
var NoBlend = BlendState{Enabled: false, Src: BlendOne, Dst: BlendZero}

type DepthFunc uint8

const (
	DepthLess DepthFunc = iota
	DepthLessEqual
	DepthAlways
)

// DepthState is the depth aspect of the pipeline state.
type DepthState struct {
	Test bool
	Mask bool
	Func DepthFunc
}

// ViewportState is the viewport rectangle plus the scissor clip applied on
// top of it. Both are saved and restored together.
type ViewportState struct {
	Viewport core.RectI
	Scissor  bool
	Clip     core.RectI
}

// ClearMask selects which attachments Clear touches.
type ClearMask uint8

const (
	ClearColor ClearMask = 1 << iota
	ClearDepth
	ClearStencil
)

// ProgramSource is the input to NewProgram. Name identifies the program in
// diagnostics and lets non-GLSL devices resolve their own implementation.
type ProgramSource struct {
	Name     string
	Vertex   string
	Fragment string
}

// Device is the graphics API the pipeline drives. Every call happens on the
// goroutine that owns the context; implementations are not safe for
// concurrent use.
type Device interface {
	// Resources.
	NewTexture(desc TextureDesc) (TextureID, error)
	ResizeTexture(tex TextureID, width, height int)
	// UploadTexture replaces the whole level-0 image with RGBA float data.
	UploadTexture(tex TextureID, width, height int, rgba []float32)
	// ReadTexture returns the level-0 image as RGBA floats (face 0 for cubes).
	ReadTexture(tex TextureID) (width, height int, rgba []float32)
	TextureSize(tex TextureID) (width, height int)
	DeleteTexture(tex TextureID)

	NewFramebuffer() (FramebufferID, error)
	// AttachTexture attaches tex to the bound framebuffer. For cube textures
	// face selects the cube face (0..5); it is ignored for 2D textures.
	AttachTexture(att Attachment, tex TextureID, face int)
	// CheckFramebuffer validates the bound framebuffer.
	CheckFramebuffer() error
	DeleteFramebuffer(fb FramebufferID)

	NewProgram(src ProgramSource) (ProgramID, error)
	DeleteProgram(p ProgramID)
	// UniformLocation returns -1 when the program does not declare name.
	UniformLocation(p ProgramID, name string) int32

	NewMesh(data core.MeshData) (MeshID, error)
	DeleteMesh(m MeshID)

	// Uniforms are written straight into the program object, so the program
	// does not need to be bound.
	ProgramUniform1i(p ProgramID, loc int32, v int32)
	ProgramUniform1f(p ProgramID, loc int32, v float32)
	ProgramUniform2f(p ProgramID, loc int32, v mgl32.Vec2)
	ProgramUniform3f(p ProgramID, loc int32, v mgl32.Vec3)
	ProgramUniform4f(p ProgramID, loc int32, v mgl32.Vec4)
	ProgramUniform1fv(p ProgramID, loc int32, v []float32)
	ProgramUniform3fv(p ProgramID, loc int32, v []mgl32.Vec3)
	ProgramUniformMatrix4f(p ProgramID, loc int32, m mgl32.Mat4)

	BindTexture(unit int, tex TextureID)

	// Pipeline state. Every setter has a matching getter so the state stack
	// can snapshot it.
	BindFramebuffer(fb FramebufferID)
	Framebuffer() FramebufferID
	UseProgram(p ProgramID)
	Program() ProgramID
	SetViewport(vs ViewportState)
	Viewport() ViewportState
	SetBlend(b BlendState)
	Blend() BlendState
	SetDepth(d DepthState)
	Depth() DepthState
	// SetDrawBuffers selects the colour attachments of the bound framebuffer
	// that receive fragment outputs 0..n-1.
	SetDrawBuffers(atts []Attachment)
	DrawBuffers() []Attachment

	// Clear clears the current draw buffers (and depth/stencil) inside the
	// scissor clip if one is active.
	Clear(mask ClearMask, color core.Color, depth float32)
	// CopyAttachment copies rect from src to dst within the bound framebuffer.
	// The draw-buffer set is left untouched.
	CopyAttachment(src, dst Attachment, rect core.RectI)
	// DrawFullscreen draws one viewport-covering triangle with the bound program.
	DrawFullscreen()
	DrawMesh(m MeshID)

	// Err reports a fatal device condition (context loss, out of memory).
	Err() error
}
