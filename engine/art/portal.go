package art

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/math"
)

// portalEpsilon widens the portal rectangle so a crossing exactly on an
// edge still counts.
const portalEpsilon = 1e-4

// CrossesRect reports whether the segment from p0 to p1 passes through the
// rectangle spanning [-half.X, half.X] x [-half.Y, half.Y] of the local
// z = 0 plane of matrix. A segment that only touches the plane at p1 does
// not cross, so standing on the portal toggles once.
func CrossesRect(p0, p1 mgl32.Vec3, matrix mgl32.Mat4, half mgl32.Vec2) bool {
	dir := p1.Sub(p0)
	normal := math.TransformVector(math.NormalMatrix(matrix), mgl32.Vec3{0, 0, 1})
	origin := math.TransformPoint(matrix, mgl32.Vec3{})

	dot := normal.Dot(dir)
	if gomath.Abs(float64(dot)) < 1e-8 {
		// parallel to the plane or not moving
		return false
	}
	fac := -normal.Dot(p0.Sub(origin)) / dot
	if fac < 0 || fac >= 1 {
		return false
	}
	hit := p0.Add(dir.Mul(fac))

	local := math.TransformPoint(matrix.Inv(), hit)
	return gomath.Abs(float64(local.X())) <= float64(half.X())+portalEpsilon &&
		gomath.Abs(float64(local.Y())) <= float64(half.Y())+portalEpsilon
}
