package hud

import (
	"image"

	"golang.org/x/image/font/basicfont"

	"github.com/spaghettifunk/shaderpixel/engine/assets/loaders"
)

// BuiltinFont bakes the basicfont 7x13 face. It is used when no font file
// is configured.
func BuiltinFont() (*loaders.Font, *image.RGBA) {
	return loaders.BakeFace("basicfont 7x13", basicfont.Face7x13, loaders.FirstPrintable, loaders.LastPrintable)
}
