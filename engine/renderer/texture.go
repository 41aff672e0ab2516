package renderer

import (
	"fmt"
	"image"

	"github.com/spaghettifunk/shaderpixel/engine/assets/loaders"
	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// DefaultTextureName names the 1x1 white texture bound to shaders that
// sample a texture the object does not have.
const DefaultTextureName = "default"

// TextureLoader uploads image files as mipmapped textures. Textures are
// loaded once at startup and never reloaded.
type TextureLoader struct {
	Uploader metadata.TextureUploader
	Images   loaders.TextureLoader
}

func NewTextureLoader(uploader metadata.TextureUploader) *TextureLoader {
	return &TextureLoader{
		Uploader: uploader,
		Images:   loaders.TextureLoader{FlipY: true},
	}
}

// Load decodes path and uploads it with a full mip chain. The chain is
// blitted on the device when it supports linear filtering of the format,
// otherwise every level is scaled here and uploaded.
func (tl *TextureLoader) Load(path string) (metadata.Texture, error) {
	img, err := tl.Images.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", path, core.ErrTextureLoad, err)
	}
	desc := Describe(path, img, tl.Uploader.SupportsLinearBlit())
	tex, err := tl.Uploader.CreateTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", path, core.ErrTextureLoad, err)
	}
	core.LogDebug("texture %s loaded (%dx%d, %d mips)", path, desc.Width, desc.Height, desc.MipLevels)
	return tex, nil
}

// Describe builds the upload of img. Without device blits the levels are
// generated on the CPU.
func Describe(name string, img *image.RGBA, deviceMips bool) metadata.TextureDesc {
	w, h := uint32(img.Rect.Dx()), uint32(img.Rect.Dy())
	levels := loaders.MipLevels(w, h)
	desc := metadata.TextureDesc{
		Name:      name,
		Width:     w,
		Height:    h,
		MipLevels: levels,
		Levels:    [][]byte{tightPixels(img)},
	}
	if deviceMips || levels == 1 {
		return desc
	}
	desc.Levels = desc.Levels[:0]
	for _, level := range loaders.MipChain(img, levels) {
		desc.Levels = append(desc.Levels, tightPixels(level))
	}
	return desc
}

// DefaultTexture uploads the 1x1 white texture.
func DefaultTexture(uploader metadata.TextureUploader) (metadata.Texture, error) {
	return uploader.CreateTexture(metadata.TextureDesc{
		Name:      DefaultTextureName,
		Width:     1,
		Height:    1,
		MipLevels: 1,
		Levels:    [][]byte{{0xff, 0xff, 0xff, 0xff}},
	})
}

func tightPixels(img *image.RGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if img.Stride == 4*w && img.Rect.Min == (image.Point{}) {
		return img.Pix[:4*w*h]
	}
	out := make([]byte, 0, 4*w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		out = append(out, img.Pix[off:off+4*w]...)
	}
	return out
}
