package geometry

import (
	"encoding/binary"
	"fmt"
	gomath "math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// Geometry is an immutable vertex and index buffer pair. It is shared by
// every pipeline drawing the same mesh with the same layout and scale, and
// lives as long as the Store that built it.
type Geometry struct {
	Name        string
	Layout      metadata.VertexLayout
	Scale       mgl32.Vec3
	Vertices    metadata.Buffer
	Indices     metadata.Buffer
	VertexCount uint32
	IndexCount  uint32
	// Extents is the bounding box of the scaled positions.
	Extents metadata.Extents3D
}

type cacheKey struct {
	mesh   string
	layout metadata.VertexLayout
	scale  mgl32.Vec3
}

// Store uploads each distinct (mesh, layout, scale) combination once.
type Store struct {
	mu        sync.Mutex
	allocator metadata.BufferAllocator
	cache     map[cacheKey]*Geometry
}

func NewStore(allocator metadata.BufferAllocator) *Store {
	return &Store{
		allocator: allocator,
		cache:     make(map[cacheKey]*Geometry),
	}
}

// Load returns the geometry of mesh packed with layout, with positions
// multiplied by scale. Normals are copied as is, so they are only correct
// for uniform scales.
func (s *Store) Load(mesh *metadata.Mesh, layout metadata.VertexLayout, scale mgl32.Vec3) (*Geometry, error) {
	if mesh == nil || len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
		name := "<nil>"
		if mesh != nil {
			name = mesh.Name
		}
		return nil, fmt.Errorf("mesh %s: %w", name, core.ErrGeometryEmpty)
	}

	key := cacheKey{mesh: mesh.Name, layout: layout, scale: scale}
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.cache[key]; ok {
		return g, nil
	}

	data, extents := Pack(mesh, layout, scale)
	vb, err := s.allocator.CreateVertexBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("mesh %s vertex buffer: %w", mesh.Name, err)
	}
	ib, err := s.allocator.CreateIndexBuffer(mesh.Indices)
	if err != nil {
		vb.Destroy()
		return nil, fmt.Errorf("mesh %s index buffer: %w", mesh.Name, err)
	}

	g := &Geometry{
		Name:        mesh.Name,
		Layout:      layout,
		Scale:       scale,
		Vertices:    vb,
		Indices:     ib,
		VertexCount: uint32(len(mesh.Vertices)),
		IndexCount:  uint32(len(mesh.Indices)),
		Extents:     extents,
	}
	s.cache[key] = g
	core.LogDebug("geometry %s uploaded (%s, %d vertices, %d indices)", mesh.Name, layout, g.VertexCount, g.IndexCount)
	return g, nil
}

// Len is the number of uploaded geometries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// Destroy releases every buffer. Callers must ensure the device is idle.
func (s *Store) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, g := range s.cache {
		g.Vertices.Destroy()
		g.Indices.Destroy()
		delete(s.cache, k)
	}
}

// Pack interleaves the attributes of layout as little-endian float32 and
// returns the bounding box of the scaled positions.
func Pack(mesh *metadata.Mesh, layout metadata.VertexLayout, scale mgl32.Vec3) ([]byte, metadata.Extents3D) {
	out := make([]byte, 0, len(mesh.Vertices)*int(layout.Stride()))
	put := func(vs ...float32) {
		for _, v := range vs {
			out = binary.LittleEndian.AppendUint32(out, gomath.Float32bits(v))
		}
	}

	var ext metadata.Extents3D
	for i, v := range mesh.Vertices {
		p := mgl32.Vec3{v.Position.X() * scale.X(), v.Position.Y() * scale.Y(), v.Position.Z() * scale.Z()}
		if i == 0 {
			ext.Min, ext.Max = p, p
		}
		for a := 0; a < 3; a++ {
			ext.Min[a] = min(ext.Min[a], p[a])
			ext.Max[a] = max(ext.Max[a], p[a])
		}

		put(p[:]...)
		switch layout {
		case metadata.VertexLayoutPosNorm:
			put(v.Normal[:]...)
		case metadata.VertexLayoutPosUV:
			put(v.TexCoord[:]...)
		}
	}
	return out, ext
}
