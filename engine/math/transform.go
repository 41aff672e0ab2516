package math

import (
	"github.com/go-gl/mathgl/mgl32"
)

// FromScaleRotationTranslation builds T * Ry(yaw) * S.
func FromScaleRotationTranslation(scale mgl32.Vec3, yaw float32, translation mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Translate3D(translation.X(), translation.Y(), translation.Z()).
		Mul4(mgl32.HomogRotate3DY(yaw)).
		Mul4(mgl32.Scale3D(scale.X(), scale.Y(), scale.Z()))
}

// Translation returns the translation column of m.
func Translation(m mgl32.Mat4) mgl32.Vec3 {
	return m.Col(3).Vec3()
}

// TransformPoint applies m to p with w = 1.
func TransformPoint(m mgl32.Mat4, p mgl32.Vec3) mgl32.Vec3 {
	return m.Mul4x1(p.Vec4(1)).Vec3()
}

// TransformVector applies m to v with w = 0.
func TransformVector(m mgl32.Mat4, v mgl32.Vec3) mgl32.Vec3 {
	return m.Mul4x1(v.Vec4(0)).Vec3()
}

// NormalMatrix returns the inverse transpose of m, used to carry plane
// normals through non-uniform scale.
func NormalMatrix(m mgl32.Mat4) mgl32.Mat4 {
	return m.Inv().Transpose()
}

// DistanceSqr is the squared distance between the translation of m and p.
func DistanceSqr(m mgl32.Mat4, p mgl32.Vec3) float32 {
	d := Translation(m).Sub(p)
	return d.Dot(d)
}
