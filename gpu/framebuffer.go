package gpu

import (
	"fmt"
	"slices"
)

// Framebuffer owns a framebuffer object and every texture attached to it.
// All attachments share one size.
type Framebuffer struct {
	dev    Device
	id     FramebufferID
	width  int
	height int

	textures map[Attachment]TextureID
	descs    map[Attachment]TextureDesc
	order    []Attachment
}

func NewFramebuffer(dev Device, width, height int) (*Framebuffer, error) {
	id, err := dev.NewFramebuffer()
	if err != nil {
		return nil, fmt.Errorf("create framebuffer: %w", err)
	}
	return &Framebuffer{
		dev:      dev,
		id:       id,
		width:    max(width, 1),
		height:   max(height, 1),
		textures: make(map[Attachment]TextureID),
		descs:    make(map[Attachment]TextureDesc),
	}, nil
}

func (f *Framebuffer) ID() FramebufferID { return f.id }
func (f *Framebuffer) Size() (int, int)  { return f.width, f.height }
func (f *Framebuffer) Device() Device    { return f.dev }
func (f *Framebuffer) Bind()             { f.dev.BindFramebuffer(f.id) }
func (f *Framebuffer) Bound() bool       { return f.dev.Framebuffer() == f.id }

func (f *Framebuffer) Attachments() []Attachment { return slices.Clone(f.order) }

// Texture returns the texture in slot att, or 0 when the slot is empty.
func (f *Framebuffer) Texture(att Attachment) TextureID { return f.textures[att] }

// AddAttachment allocates a texture described by desc at the framebuffer's
// size and attaches it to att. Width and Height in desc are ignored. The
// framebuffer binding is left as it was.
func (f *Framebuffer) AddAttachment(att Attachment, desc TextureDesc) (TextureID, error) {
	if _, ok := f.textures[att]; ok {
		return 0, fmt.Errorf("framebuffer %d: attachment %s already set", f.id, att)
	}
	desc.Width, desc.Height = f.width, f.height
	tex, err := f.dev.NewTexture(desc)
	if err != nil {
		return 0, fmt.Errorf("framebuffer %d: %s texture: %w", f.id, att, err)
	}
	f.withBound(func() { f.dev.AttachTexture(att, tex, 0) })
	f.textures[att] = tex
	f.descs[att] = desc
	f.order = append(f.order, att)
	return tex, nil
}

// AttachFace re-attaches face of the cube texture in slot att.
func (f *Framebuffer) AttachFace(att Attachment, face int) {
	tex, ok := f.textures[att]
	if !ok {
		return
	}
	f.withBound(func() { f.dev.AttachTexture(att, tex, face) })
}

// Check validates completeness. The returned error wraps ErrFramebufferIncomplete.
func (f *Framebuffer) Check() error {
	var err error
	f.withBound(func() { err = f.dev.CheckFramebuffer() })
	if err != nil {
		return fmt.Errorf("framebuffer %d: %w", f.id, err)
	}
	return nil
}

// SetDrawBuffers binds the framebuffer and selects atts as its draw buffers.
// The caller owns the framebuffer binding; push AspectFramebuffer first to
// keep it scoped.
func (f *Framebuffer) SetDrawBuffers(atts ...Attachment) {
	f.Bind()
	f.dev.SetDrawBuffers(atts)
}

// Resize reallocates every attachment at the new size. Contents are lost.
func (f *Framebuffer) Resize(width, height int) {
	width, height = max(width, 1), max(height, 1)
	if width == f.width && height == f.height {
		return
	}
	f.width, f.height = width, height
	for _, att := range f.order {
		f.dev.ResizeTexture(f.textures[att], width, height)
	}
}

// Release deletes the framebuffer and all of its textures.
func (f *Framebuffer) Release() {
	if f.id == DefaultFramebuffer && len(f.textures) == 0 {
		return
	}
	for _, att := range f.order {
		f.dev.DeleteTexture(f.textures[att])
	}
	f.dev.DeleteFramebuffer(f.id)
	f.textures = map[Attachment]TextureID{}
	f.descs = map[Attachment]TextureDesc{}
	f.order = nil
	f.id = DefaultFramebuffer
}

func (f *Framebuffer) withBound(fn func()) {
	prev := f.dev.Framebuffer()
	if prev != f.id {
		f.dev.BindFramebuffer(f.id)
	}
	fn()
	if prev != f.id {
		f.dev.BindFramebuffer(prev)
	}
}
