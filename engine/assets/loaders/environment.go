package loaders

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// EnvironmentMeshName names the generated gallery mesh.
const EnvironmentMeshName = "environment"

// Wall is an axis aligned block standing on the floor. Start is the corner
// with the smaller x and z.
type Wall struct {
	Start  mgl32.Vec2
	End    mgl32.Vec2
	Height float32
}

// Environment describes the gallery room: a floor rectangle, unit cube
// podests given by their minimum xz corner and walls.
type Environment struct {
	FloorStart mgl32.Vec2
	FloorEnd   mgl32.Vec2
	Podests    []mgl32.Vec2
	Walls      []Wall
}

// DefaultEnvironment is the room the default scene is laid out in.
func DefaultEnvironment() Environment {
	return Environment{
		FloorStart: mgl32.Vec2{-10, -10},
		FloorEnd:   mgl32.Vec2{8.2, 4.2},
		Podests: []mgl32.Vec2{
			{-3, -1}, {2, -1},
			{-3, -6}, {2, -6},
		},
		Walls: []Wall{
			{Start: mgl32.Vec2{6, -9}, End: mgl32.Vec2{6.2, 0}, Height: 3},
		},
	}
}

type meshBuilder struct {
	mesh *metadata.Mesh
}

// quad adds the face a, b, c, d with the normal of its winding.
func (mb *meshBuilder) quad(a, b, c, d mgl32.Vec3) {
	n := b.Sub(a).Cross(c.Sub(a)).Normalize()
	base := uint32(len(mb.mesh.Vertices))
	for _, p := range []mgl32.Vec3{a, b, c, d} {
		mb.mesh.Vertices = append(mb.mesh.Vertices, metadata.Vertex{Position: p, Normal: n})
	}
	mb.mesh.Indices = append(mb.mesh.Indices, base, base+1, base+2, base, base+2, base+3)
}

// surface tiles the rectangle spanned from start along dirX and dirY into
// unit cells, the last row and column taking the remainder. The faces point
// along dirY x dirX.
func (mb *meshBuilder) surface(start mgl32.Vec3, lenX, lenY float32, dirX, dirY mgl32.Vec3) {
	if lenX <= 0 || lenY <= 0 {
		return
	}
	steps := func(length float32) []float32 {
		out := []float32{0}
		for s := float32(1); s < length; s++ {
			out = append(out, s)
		}
		return append(out, length)
	}
	xs, ys := steps(lenX), steps(lenY)
	at := func(x, y float32) mgl32.Vec3 {
		return start.Add(dirX.Mul(x)).Add(dirY.Mul(y))
	}
	for j := 0; j+1 < len(ys); j++ {
		for i := 0; i+1 < len(xs); i++ {
			mb.quad(at(xs[i], ys[j]), at(xs[i], ys[j+1]), at(xs[i+1], ys[j+1]), at(xs[i+1], ys[j]))
		}
	}
}

// GenerateEnvironment builds the room mesh with per face normals.
func GenerateEnvironment(env Environment) *metadata.Mesh {
	mb := &meshBuilder{mesh: &metadata.Mesh{Name: EnvironmentMeshName}}
	x := mgl32.Vec3{1, 0, 0}
	y := mgl32.Vec3{0, 1, 0}
	z := mgl32.Vec3{0, 0, 1}

	size := env.FloorEnd.Sub(env.FloorStart)
	mb.surface(mgl32.Vec3{env.FloorStart.X(), 0, env.FloorStart.Y()}, size.X(), size.Y(), x, z)

	for _, p := range env.Podests {
		at := func(dx, dy, dz float32) mgl32.Vec3 {
			return mgl32.Vec3{p.X() + dx, dy, p.Y() + dz}
		}
		mb.quad(at(0, 1, 0), at(0, 1, 1), at(1, 1, 1), at(1, 1, 0)) // top
		mb.quad(at(0, 0, 0), at(0, 1, 0), at(1, 1, 0), at(1, 0, 0)) // -z
		mb.quad(at(1, 0, 0), at(1, 1, 0), at(1, 1, 1), at(1, 0, 1)) // +x
		mb.quad(at(1, 0, 1), at(1, 1, 1), at(0, 1, 1), at(0, 0, 1)) // +z
		mb.quad(at(0, 0, 1), at(0, 1, 1), at(0, 1, 0), at(0, 0, 0)) // -x
	}

	for _, w := range env.Walls {
		sx, sz, ex, ez := w.Start.X(), w.Start.Y(), w.End.X(), w.End.Y()
		dx, dz := ex-sx, ez-sz
		mb.surface(mgl32.Vec3{sx, 0, sz}, dx, w.Height, x, y)
		mb.surface(mgl32.Vec3{ex, 0, sz}, dz, w.Height, z, y)
		mb.surface(mgl32.Vec3{ex, 0, ez}, dx, w.Height, x.Mul(-1), y)
		mb.surface(mgl32.Vec3{sx, 0, ez}, dz, w.Height, z.Mul(-1), y)
	}
	return mb.mesh
}
