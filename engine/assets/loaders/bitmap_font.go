package loaders

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fzipp/bmfont"
)

// Glyph is the atlas rectangle and placement of one character.
type Glyph struct {
	Codepoint rune
	X, Y      int
	Width     int
	Height    int
	XOffset   int
	YOffset   int
	XAdvance  int
	Page      int
}

type KerningPair struct {
	First, Second rune
}

// Font is an AngelCode bitmap font with its atlas page files.
type Font struct {
	Face        string
	Size        int
	LineHeight  int
	Baseline    int
	AtlasWidth  int
	AtlasHeight int
	Glyphs      map[rune]Glyph
	Kernings    map[KerningPair]int
	// Pages holds the page image paths indexed by page id.
	Pages []string
}

// Kerning returns the advance adjustment between a and b.
func (f *Font) Kerning(a, b rune) int {
	return f.Kernings[KerningPair{First: a, Second: b}]
}

// BitmapFontLoader reads .fnt descriptors through bmfont. Page paths are
// resolved relative to the descriptor.
type BitmapFontLoader struct{}

func (fl *BitmapFontLoader) Load(path string) (*Font, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, fmt.Errorf("bitmap font %s: %w", path, err)
	}
	d := font.Descriptor

	out := &Font{
		Face:        d.Info.Face,
		Size:        int(d.Info.Size),
		LineHeight:  int(d.Common.LineHeight),
		Baseline:    int(d.Common.Base),
		AtlasWidth:  int(d.Common.ScaleW),
		AtlasHeight: int(d.Common.ScaleH),
		Glyphs:      make(map[rune]Glyph, len(d.Chars)),
		Kernings:    make(map[KerningPair]int, len(d.Kerning)),
	}

	type page struct {
		id   int
		file string
	}
	var pages []page
	for _, p := range d.Pages {
		pages = append(pages, page{id: int(p.ID), file: p.File})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].id < pages[j].id })
	dir := filepath.Dir(path)
	for _, p := range pages {
		out.Pages = append(out.Pages, filepath.Join(dir, p.file))
	}

	for _, g := range d.Chars {
		out.Glyphs[rune(g.ID)] = Glyph{
			Codepoint: rune(g.ID),
			X:         int(g.X),
			Y:         int(g.Y),
			Width:     int(g.Width),
			Height:    int(g.Height),
			XOffset:   int(g.XOffset),
			YOffset:   int(g.YOffset),
			XAdvance:  int(g.XAdvance),
			Page:      int(g.Page),
		}
	}
	for p, k := range d.Kerning {
		out.Kernings[KerningPair{First: rune(p.First), Second: rune(p.Second)}] = int(k.Amount)
	}
	return out, nil
}
