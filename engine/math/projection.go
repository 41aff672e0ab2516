package math

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// Perspective returns a right-handed projection for Vulkan clip space: depth
// maps [near, far] to [0, 1] and clip y points down.
func Perspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1 / gomath.Tan(float64(fovy)/2))
	var m mgl32.Mat4
	m.Set(0, 0, f/aspect)
	m.Set(1, 1, -f)
	m.Set(2, 2, far/(near-far))
	m.Set(2, 3, near*far/(near-far))
	m.Set(3, 2, -1)
	return m
}

// ObliqueNearPlane replaces the near plane of proj with plane, given in view
// space as (n, d) with n·p + d = 0 on the plane and the kept half space
// positive. The far plane is tilted as little as possible.
func ObliqueNearPlane(proj mgl32.Mat4, plane mgl32.Vec4) mgl32.Mat4 {
	inv := proj.Inv()
	clip := inv.Transpose().Mul4x1(plane)
	q := inv.Mul4x1(mgl32.Vec4{Sign(clip.X()), Sign(clip.Y()), 1, 1})
	d := plane.Dot(q)
	if gomath.Abs(float64(d)) < 1e-12 {
		return proj
	}
	out := proj
	out.SetRow(2, plane.Mul(1/d))
	return out
}

// ReflectionMatrix mirrors points across the plane through point with the
// given normal.
func ReflectionMatrix(point, normal mgl32.Vec3) mgl32.Mat4 {
	n := normal.Normalize()
	d := point.Dot(n)
	m := mgl32.Ident4()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, m.At(r, c)-2*n[r]*n[c])
		}
		m.Set(r, 3, 2*d*n[r])
	}
	return m
}

// PlaneOf returns the world position and unit normal of the local z = 0
// plane of model, whose local normal is +z.
func PlaneOf(model mgl32.Mat4) (mgl32.Vec3, mgl32.Vec3) {
	point := TransformPoint(model, mgl32.Vec3{})
	normal := TransformVector(NormalMatrix(model), mgl32.Vec3{0, 0, 1}).Normalize()
	return point, normal
}

// ViewPlane expresses a world plane in the space of view. The result keeps
// the half space that does not contain the eye.
func ViewPlane(view mgl32.Mat4, point, normal mgl32.Vec3) mgl32.Vec4 {
	p := TransformPoint(view, point)
	n := TransformVector(NormalMatrix(view), normal).Normalize()
	plane := n.Vec4(-n.Dot(p))
	if plane.W() > 0 {
		plane = plane.Mul(-1)
	}
	return plane
}

// MirrorView returns the view reflected by the mirror plane of mirrorModel
// and an oblique projection that clips everything between the reflected eye
// and the mirror.
func MirrorView(view, proj, mirrorModel mgl32.Mat4) (mgl32.Mat4, mgl32.Mat4) {
	point, normal := PlaneOf(mirrorModel)
	reflected := view.Mul4(ReflectionMatrix(point, normal))
	clip := ViewPlane(reflected, point, normal)
	return reflected, ObliqueNearPlane(proj, clip)
}
