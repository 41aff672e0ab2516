package renderer

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/math"
)

// mirrorUniforms derives the uniforms of the mirror pass: the view reflected
// by the mirror plane and a projection whose near plane is the mirror, so
// nothing between the reflected eye and the mirror is drawn. Without a
// mirror the pass sees the scene unchanged.
func mirrorUniforms(scene FrameUniforms, mirror *mgl32.Mat4) FrameUniforms {
	if mirror == nil {
		return scene
	}
	out := scene
	out.View, out.Proj = math.MirrorView(scene.View, scene.Proj, *mirror)
	return out
}
