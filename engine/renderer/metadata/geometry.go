package metadata

import "github.com/go-gl/mathgl/mgl32"

/**
 * @brief The attributes packed per vertex in a vertex buffer.
 */
type VertexLayout int

const (
	/** @brief vec3 position. */
	VertexLayoutPos VertexLayout = iota
	/** @brief vec3 position, vec3 normal. */
	VertexLayoutPosNorm
	/** @brief vec3 position, vec2 texture coordinate. */
	VertexLayoutPosUV
)

// Floats is the number of float32 values in one vertex.
func (l VertexLayout) Floats() int {
	switch l {
	case VertexLayoutPosNorm:
		return 6
	case VertexLayoutPosUV:
		return 5
	}
	return 3
}

// Stride is the size of one vertex in bytes.
func (l VertexLayout) Stride() uint32 {
	return uint32(l.Floats()) * 4
}

func (l VertexLayout) String() string {
	switch l {
	case VertexLayoutPosNorm:
		return "pos_norm"
	case VertexLayoutPosUV:
		return "pos_uv"
	}
	return "pos"
}

/** @brief A deduplicated mesh vertex as produced by the mesh reader. */
type Vertex struct {
	Position mgl32.Vec3
	TexCoord mgl32.Vec2
	Normal   mgl32.Vec3
}

/** @brief Indexed triangle mesh in CPU memory. */
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

/** @brief Axis-aligned bounding box. */
type Extents3D struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

func (e Extents3D) Center() mgl32.Vec3 {
	return e.Min.Add(e.Max).Mul(0.5)
}

func (e Extents3D) Size() mgl32.Vec3 {
	return e.Max.Sub(e.Min)
}
