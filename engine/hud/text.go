package hud

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/assets/loaders"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// LoadFont reads a BMFont descriptor. Only glyphs of the first page are
// drawn.
func LoadFont(path string) (*loaders.Font, error) {
	var fl loaders.BitmapFontLoader
	return fl.Load(path)
}

// Layout builds one textured quad per visible glyph. Positions are pixels
// with the origin at the top left of the first line and y growing down.
// Runes missing from the font are drawn as '?' when the font has it.
func Layout(font *loaders.Font, lines []string, origin mgl32.Vec2, scale float32) *metadata.Mesh {
	mesh := &metadata.Mesh{Name: "hud"}
	if font == nil || font.AtlasWidth == 0 || font.AtlasHeight == 0 {
		return mesh
	}
	aw, ah := float32(font.AtlasWidth), float32(font.AtlasHeight)

	y := origin.Y()
	for _, line := range lines {
		x := origin.X()
		prev := rune(-1)
		for _, r := range line {
			g, ok := font.Glyphs[r]
			if !ok {
				if g, ok = font.Glyphs['?']; !ok {
					continue
				}
				r = '?'
			}
			if prev >= 0 {
				x += float32(font.Kerning(prev, r)) * scale
			}
			prev = r

			if g.Width > 0 && g.Height > 0 && g.Page == 0 {
				x0 := x + float32(g.XOffset)*scale
				y0 := y + float32(g.YOffset)*scale
				x1 := x0 + float32(g.Width)*scale
				y1 := y0 + float32(g.Height)*scale
				u0, v0 := float32(g.X)/aw, float32(g.Y)/ah
				u1, v1 := float32(g.X+g.Width)/aw, float32(g.Y+g.Height)/ah

				base := uint32(len(mesh.Vertices))
				mesh.Vertices = append(mesh.Vertices,
					metadata.Vertex{Position: mgl32.Vec3{x0, y0, 0}, TexCoord: mgl32.Vec2{u0, v0}},
					metadata.Vertex{Position: mgl32.Vec3{x1, y0, 0}, TexCoord: mgl32.Vec2{u1, v0}},
					metadata.Vertex{Position: mgl32.Vec3{x1, y1, 0}, TexCoord: mgl32.Vec2{u1, v1}},
					metadata.Vertex{Position: mgl32.Vec3{x0, y1, 0}, TexCoord: mgl32.Vec2{u0, v1}},
				)
				mesh.Indices = append(mesh.Indices, base, base+1, base+2, base+2, base+3, base)
			}
			x += float32(g.XAdvance) * scale
		}
		y += float32(font.LineHeight) * scale
	}
	return mesh
}

// Projection maps pixel coordinates of extent to Vulkan clip space, where
// y points down.
func Projection(extent metadata.Extent) mgl32.Mat4 {
	return mgl32.Ortho(0, float32(extent.Width), 0, float32(extent.Height), -1, 1)
}
