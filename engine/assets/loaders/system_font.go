package loaders

import (
	"fmt"
	"image"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

const (
	// FirstPrintable and LastPrintable bound the baked character range.
	FirstPrintable = ' '
	LastPrintable  = '~'

	atlasColumns = 16
)

// SystemFontLoader rasterizes TrueType and OpenType fonts into an atlas.
// Collections use their first font.
type SystemFontLoader struct {
	// Size is the em size in pixels.
	Size float64
}

func (fl *SystemFontLoader) Load(path string) (*Font, *image.RGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	coll, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, nil, fmt.Errorf("font %s: %w", path, err)
	}
	if coll.NumFonts() == 0 {
		return nil, nil, fmt.Errorf("font %s: empty collection", path)
	}
	f, err := coll.Font(0)
	if err != nil {
		return nil, nil, fmt.Errorf("font %s: %w", path, err)
	}
	size := fl.Size
	if size <= 0 {
		size = 16
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, nil, fmt.Errorf("font %s: %w", path, err)
	}
	defer face.Close()

	name, err := f.Name(nil, sfnt.NameIDFamily)
	if err != nil {
		name = path
	}
	out, atlas := BakeFace(name, face, FirstPrintable, LastPrintable)
	out.Size = int(size)
	return out, atlas, nil
}

type bakedGlyph struct {
	r       rune
	bounds  fixed.Rectangle26_6
	advance fixed.Int26_6
	w, h    int
}

// BakeFace draws the runes first to last of face into a white atlas with
// coverage in alpha, one cell per glyph. Runes the face lacks are skipped.
func BakeFace(name string, face font.Face, first, last rune) (*Font, *image.RGBA) {
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()

	var glyphs []bakedGlyph
	cellW, cellH := 1, 1
	for r := first; r <= last; r++ {
		b, adv, ok := face.GlyphBounds(r)
		if !ok {
			continue
		}
		g := bakedGlyph{
			r:       r,
			bounds:  b,
			advance: adv,
			w:       b.Max.X.Ceil() - b.Min.X.Floor(),
			h:       b.Max.Y.Ceil() - b.Min.Y.Floor(),
		}
		cellW = max(cellW, g.w+1)
		cellH = max(cellH, g.h+1)
		glyphs = append(glyphs, g)
	}

	rows := max((len(glyphs)+atlasColumns-1)/atlasColumns, 1)
	atlas := image.NewRGBA(image.Rect(0, 0, atlasColumns*cellW, rows*cellH))
	out := &Font{
		Face:        name,
		Size:        metrics.Height.Ceil(),
		LineHeight:  metrics.Height.Ceil() + 2,
		Baseline:    ascent,
		AtlasWidth:  atlas.Rect.Dx(),
		AtlasHeight: atlas.Rect.Dy(),
		Glyphs:      make(map[rune]Glyph, len(glyphs)),
		Kernings:    map[KerningPair]int{},
	}

	d := &font.Drawer{Dst: atlas, Src: image.White, Face: face}
	for i, g := range glyphs {
		x, y := (i%atlasColumns)*cellW, (i/atlasColumns)*cellH
		// put the top left of the glyph bounds on the cell corner
		d.Dot = fixed.P(x-g.bounds.Min.X.Floor(), y-g.bounds.Min.Y.Floor())
		d.DrawString(string(g.r))
		out.Glyphs[g.r] = Glyph{
			Codepoint: g.r,
			X:         x,
			Y:         y,
			Width:     g.w,
			Height:    g.h,
			XOffset:   g.bounds.Min.X.Floor(),
			YOffset:   ascent + g.bounds.Min.Y.Floor(),
			XAdvance:  g.advance.Round(),
		}
	}
	for _, a := range glyphs {
		for _, b := range glyphs {
			if k := face.Kern(a.r, b.r).Round(); k != 0 {
				out.Kernings[KerningPair{First: a.r, Second: b.r}] = k
			}
		}
	}
	return out, atlas
}
