package math

import (
	gomath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

const eps = 1e-4

func ndcDepth(proj mgl32.Mat4, p mgl32.Vec3) float32 {
	c := proj.Mul4x1(p.Vec4(1))
	return c.Z() / c.W()
}

func TestClampAndSign(t *testing.T) {
	assert.Equal(t, 3, Clamp(7, 0, 3))
	assert.Equal(t, 0, Clamp(-1, 0, 3))
	assert.Equal(t, float32(1.5), Clamp(float32(1.5), 0, 3))
	assert.Equal(t, float32(-1), Sign(float32(-0.2)))
	assert.Equal(t, 0, Sign(0))
	assert.Equal(t, int32(1), Sign(int32(9)))
}

func TestFromScaleRotationTranslation(t *testing.T) {
	m := FromScaleRotationTranslation(mgl32.Vec3{2, 2, 2}, mgl32.DegToRad(90), mgl32.Vec3{1, 2, 3})
	got := TransformPoint(m, mgl32.Vec3{1, 0, 0})
	assert.True(t, got.ApproxEqualThreshold(mgl32.Vec3{1, 2, 1}, eps), "got %v", got)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, Translation(m))
	assert.InDelta(t, 14.0, DistanceSqr(m, mgl32.Vec3{}), eps)

	v := TransformVector(m, mgl32.Vec3{0, 1, 0})
	assert.True(t, v.ApproxEqualThreshold(mgl32.Vec3{0, 2, 0}, eps))
}

func TestNormalMatrixNonUniformScale(t *testing.T) {
	m := mgl32.Scale3D(4, 1, 1)
	// Plane x = y in local space keeps being perpendicular to its surface.
	n := TransformVector(NormalMatrix(m), mgl32.Vec3{1, -1, 0}).Normalize()
	tangent := TransformVector(m, mgl32.Vec3{1, 1, 0})
	assert.InDelta(t, 0, n.Dot(tangent), eps)
}

func TestPerspectiveDepthRange(t *testing.T) {
	p := Perspective(mgl32.DegToRad(75), 4.0/3.0, 0.1, 100)
	assert.InDelta(t, 0, ndcDepth(p, mgl32.Vec3{0, 0, -0.1}), eps)
	assert.InDelta(t, 1, ndcDepth(p, mgl32.Vec3{0, 0, -100}), eps)

	c := p.Mul4x1(mgl32.Vec4{0, 1, -1, 1})
	assert.Less(t, c.Y(), float32(0), "clip y points down")
}

func TestObliqueNearPlaneIsNoOpAtNearPlane(t *testing.T) {
	near, far := float32(0.5), float32(50)
	p := Perspective(mgl32.DegToRad(60), 1, near, far)
	plane := mgl32.Vec4{0, 0, -1, -near}
	o := ObliqueNearPlane(p, plane)

	for i := 0; i < 16; i++ {
		assert.InDelta(t, p[i], o[i], 1e-3, "element %d", i)
	}
	onPlane := mgl32.Vec3{0.1, -0.2, -near}
	assert.InDelta(t, ndcDepth(p, onPlane), ndcDepth(o, onPlane), eps)
}

func TestObliqueNearPlaneClipsAtPlane(t *testing.T) {
	p := Perspective(mgl32.DegToRad(60), 1, 0.1, 100)
	n := mgl32.Vec3{0.3, 0.2, -1}.Normalize()
	point := mgl32.Vec3{0, 0, -2}
	plane := n.Vec4(-n.Dot(point))
	o := ObliqueNearPlane(p, plane)

	// a point on the plane, found by moving along x and solving for z
	x, y := float32(0.4), float32(-0.1)
	z := -(n.X()*x + n.Y()*y + plane.W()) / n.Z()
	assert.InDelta(t, 0, ndcDepth(o, mgl32.Vec3{x, y, z}), eps)

	beyond := mgl32.Vec3{0, 0, -10}
	assert.Greater(t, ndcDepth(o, beyond), float32(0))
	before := mgl32.Vec3{0, 0, -1}
	assert.Less(t, ndcDepth(o, before), float32(0))
}

func TestReflectionMatrix(t *testing.T) {
	r := ReflectionMatrix(mgl32.Vec3{1, 0, 0}, mgl32.Vec3{2, 0, 0})
	got := TransformPoint(r, mgl32.Vec3{3, 2, 1})
	assert.True(t, got.ApproxEqualThreshold(mgl32.Vec3{-1, 2, 1}, eps), "got %v", got)
	assert.True(t, r.Mul4(r).ApproxEqualThreshold(mgl32.Ident4(), eps))
}

func TestViewPlaneClipsEyeSide(t *testing.T) {
	plane := ViewPlane(mgl32.Ident4(), mgl32.Vec3{0, 0, -2}, mgl32.Vec3{0, 0, 1})
	assert.True(t, plane.ApproxEqualThreshold(mgl32.Vec4{0, 0, -1, -2}, eps), "got %v", plane)
	assert.Less(t, plane.W(), float32(0))
}

func TestMirrorView(t *testing.T) {
	mirror := mgl32.Translate3D(0, 0, -5)
	proj := Perspective(mgl32.DegToRad(75), 1, 0.1, 100)
	view, oblique := MirrorView(mgl32.Ident4(), proj, mirror)

	eye := TransformPoint(view.Inv(), mgl32.Vec3{})
	assert.True(t, eye.ApproxEqualThreshold(mgl32.Vec3{0, 0, -10}, eps), "eye %v", eye)

	onMirror := TransformPoint(view, mgl32.Vec3{1, 1, -5})
	assert.True(t, onMirror.ApproxEqualThreshold(mgl32.Vec3{1, 1, -5}, eps))
	assert.InDelta(t, 0, ndcDepth(oblique, onMirror), eps)

	between := TransformPoint(view, mgl32.Vec3{0, 0, -7})
	assert.Less(t, ndcDepth(oblique, between), float32(0))
	assert.False(t, gomath.IsNaN(float64(ndcDepth(oblique, mgl32.Vec3{0, 0, -50}))))
}

func screenArea(m mgl32.Mat4, a, b, c mgl32.Vec3) float32 {
	ndc := func(p mgl32.Vec3) mgl32.Vec2 {
		v := m.Mul4x1(p.Vec4(1))
		return mgl32.Vec2{v.X() / v.W(), v.Y() / v.W()}
	}
	pa, pb, pc := ndc(a), ndc(b), ndc(c)
	e1, e2 := pb.Sub(pa), pc.Sub(pa)
	return e1.X()*e2.Y() - e1.Y()*e2.X()
}

func TestMirrorViewReversesWinding(t *testing.T) {
	proj := Perspective(mgl32.DegToRad(75), 1, 0.1, 100)
	mirror := mgl32.Translate3D(0, 0, -5)
	mview, mproj := MirrorView(mgl32.Ident4(), proj, mirror)

	// a camera standing where the reflected eye is, looking back at the mirror
	behind := mgl32.LookAtV(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})

	a, b, c := mgl32.Vec3{0, 0, -3}, mgl32.Vec3{1, 0, -3}, mgl32.Vec3{0, 1, -3}
	reflected := screenArea(mproj.Mul4(mview), a, b, c)
	direct := screenArea(proj.Mul4(behind), a, b, c)
	assert.NotZero(t, direct)
	assert.InDelta(t, -direct, reflected, 1e-4)
}
