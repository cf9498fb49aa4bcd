package scene

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"render-engine/gpu"
)

// Texture holds CPU-side pixel data for a 2D texture.
type Texture struct {
	Name   string
	Width  int
	Height int
	// Pixels in RGBA8 format (4 bytes per pixel, row-major, top-to-bottom).
	Pixels []byte

	// ID is set by Upload.
	ID gpu.TextureID
}

// LoadTexture reads a PNG or JPEG file from disk.
func LoadTexture(path string) (*Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open texture %q: %w", path, err)
	}
	defer f.Close()
	return decodeTexture(path, f)
}

// DecodeTexture decodes PNG or JPEG bytes.
func DecodeTexture(name string, data []byte) (*Texture, error) {
	return decodeTexture(name, bytes.NewReader(data))
}

func decodeTexture(name string, r io.Reader) (*Texture, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode texture %q: %w", name, err)
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &Texture{
		Name:   name,
		Width:  b.Dx(),
		Height: b.Dy(),
		Pixels: rgba.Pix,
	}, nil
}

// NewSolidTexture creates a 1x1 texture with the given RGBA color values (0–255).
func NewSolidTexture(name string, r, g, b, a uint8) *Texture {
	return &Texture{
		Name:   name,
		Width:  1,
		Height: 1,
		Pixels: []byte{r, g, b, a},
	}
}

// Upload creates the device texture. Rows are flipped so that UV (0,0) is
// the bottom-left of the image. Uploading twice is a no-op.
func (t *Texture) Upload(dev gpu.Device) error {
	if t.ID != 0 {
		return nil
	}
	id, err := dev.NewTexture(gpu.TextureDesc{
		Format: gpu.FormatRGBA8,
		Width:  t.Width,
		Height: t.Height,
		Filter: gpu.FilterBilinear,
		Wrap:   gpu.WrapRepeat,
	})
	if err != nil {
		return fmt.Errorf("upload texture %q: %w", t.Name, err)
	}
	dev.UploadTexture(id, t.Width, t.Height, t.floats())
	t.ID = id
	return nil
}

func (t *Texture) floats() []float32 {
	out := make([]float32, 4*t.Width*t.Height)
	stride := 4 * t.Width
	for y := range t.Height {
		src := t.Pixels[y*stride : (y+1)*stride]
		dst := out[(t.Height-1-y)*stride:]
		for i, b := range src {
			dst[i] = float32(b) / 255
		}
	}
	return out
}

func (t *Texture) Release(dev gpu.Device) {
	if t.ID == 0 {
		return
	}
	dev.DeleteTexture(t.ID)
	t.ID = 0
}
