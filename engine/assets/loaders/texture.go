package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// TextureLoader decodes png, jpeg, bmp, tiff and webp files into RGBA8.
type TextureLoader struct {
	// FlipY stores the bottom row first.
	FlipY bool
}

// Load decodes path into a tightly packed RGBA image.
func (tl *TextureLoader) Load(path string) (*image.RGBA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%s image %s is empty", format, path)
	}

	rgba := ToRGBA(img)
	if tl.FlipY {
		FlipVertical(rgba)
	}
	return rgba, nil
}

// ToRGBA copies img into an RGBA image with origin (0, 0) and no row padding.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// FlipVertical mirrors img top to bottom in place.
func FlipVertical(img *image.RGBA) {
	h := img.Bounds().Dy()
	row := img.Bounds().Dx() * 4
	tmp := make([]byte, row)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : y*img.Stride+row]
		bottom := img.Pix[(h-1-y)*img.Stride : (h-1-y)*img.Stride+row]
		copy(tmp, top)
		copy(top, bottom)
		copy(bottom, tmp)
	}
}

// MipLevels is floor(log2(min(width, height))) + 1.
func MipLevels(width, height uint32) uint32 {
	m := min(width, height)
	if m == 0 {
		return 1
	}
	return uint32(bits.Len32(m))
}

// MipChain returns levels images starting with base, each half the size of
// the previous one, filtered bilinearly.
func MipChain(base *image.RGBA, levels uint32) []*image.RGBA {
	chain := []*image.RGBA{base}
	w, h := base.Bounds().Dx(), base.Bounds().Dy()
	for i := uint32(1); i < levels; i++ {
		w, h = max(1, w/2), max(1, h/2)
		prev := chain[len(chain)-1]
		next := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(next, next.Bounds(), prev, prev.Bounds(), draw.Src, nil)
		chain = append(chain, next)
	}
	return chain
}
