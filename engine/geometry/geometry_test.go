package geometry

import (
	"encoding/binary"
	"errors"
	gomath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

type fakeBuffer struct {
	size      uint64
	destroyed bool
}

func (b *fakeBuffer) Size() uint64 { return b.size }
func (b *fakeBuffer) Destroy()     { b.destroyed = true }

type fakeAllocator struct {
	vertexUploads int
	failIndex     bool
	buffers       []*fakeBuffer
}

func (a *fakeAllocator) CreateVertexBuffer(data []byte) (metadata.Buffer, error) {
	a.vertexUploads++
	b := &fakeBuffer{size: uint64(len(data))}
	a.buffers = append(a.buffers, b)
	return b, nil
}

func (a *fakeAllocator) CreateIndexBuffer(indices []uint32) (metadata.Buffer, error) {
	if a.failIndex {
		return nil, errors.New("out of device memory")
	}
	b := &fakeBuffer{size: uint64(len(indices) * 4)}
	a.buffers = append(a.buffers, b)
	return b, nil
}

func triangle() *metadata.Mesh {
	return &metadata.Mesh{
		Name: "triangle",
		Vertices: []metadata.Vertex{
			{Position: mgl32.Vec3{-1, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{1, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{0, 2, 0.5}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0.5, 1}},
		},
		Indices: []uint32{0, 1, 2},
	}
}

func floatAt(data []byte, i int) float32 {
	return gomath.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
}

func TestPackScalesPositionsOnly(t *testing.T) {
	data, ext := Pack(triangle(), metadata.VertexLayoutPosNorm, mgl32.Vec3{2, 3, 4})
	require.Len(t, data, 3*6*4)

	// second vertex: position (2,0,0), normal untouched
	assert.Equal(t, float32(2), floatAt(data, 6))
	assert.Equal(t, float32(0), floatAt(data, 7))
	assert.Equal(t, float32(1), floatAt(data, 11))

	assert.Equal(t, mgl32.Vec3{-2, 0, 0}, ext.Min)
	assert.Equal(t, mgl32.Vec3{2, 6, 2}, ext.Max)
}

func TestPackLayouts(t *testing.T) {
	mesh := triangle()
	for _, layout := range []metadata.VertexLayout{metadata.VertexLayoutPos, metadata.VertexLayoutPosNorm, metadata.VertexLayoutPosUV} {
		data, _ := Pack(mesh, layout, mgl32.Vec3{1, 1, 1})
		assert.Len(t, data, len(mesh.Vertices)*int(layout.Stride()), layout.String())
	}
	data, _ := Pack(mesh, metadata.VertexLayoutPosUV, mgl32.Vec3{1, 1, 1})
	assert.Equal(t, float32(0.5), floatAt(data, 13))
}

func TestStoreCachesByMeshLayoutAndScale(t *testing.T) {
	alloc := &fakeAllocator{}
	s := NewStore(alloc)
	mesh := triangle()

	a, err := s.Load(mesh, metadata.VertexLayoutPos, mgl32.Vec3{1, 1, 1})
	require.NoError(t, err)
	b, err := s.Load(mesh, metadata.VertexLayoutPos, mgl32.Vec3{1, 1, 1})
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, uint32(3), a.IndexCount)

	_, err = s.Load(mesh, metadata.VertexLayoutPos, mgl32.Vec3{1, 1.5, 0.5})
	require.NoError(t, err)
	_, err = s.Load(mesh, metadata.VertexLayoutPosNorm, mgl32.Vec3{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 3, alloc.vertexUploads)
	assert.Equal(t, 3, s.Len())

	s.Destroy()
	for _, buf := range alloc.buffers {
		assert.True(t, buf.destroyed)
	}
	assert.Zero(t, s.Len())
}

func TestStoreRejectsEmptyMesh(t *testing.T) {
	s := NewStore(&fakeAllocator{})
	_, err := s.Load(&metadata.Mesh{Name: "empty"}, metadata.VertexLayoutPos, mgl32.Vec3{1, 1, 1})
	assert.ErrorIs(t, err, core.ErrGeometryEmpty)
	_, err = s.Load(nil, metadata.VertexLayoutPos, mgl32.Vec3{1, 1, 1})
	assert.ErrorIs(t, err, core.ErrGeometryEmpty)
}

func TestStoreReleasesVertexBufferOnIndexFailure(t *testing.T) {
	alloc := &fakeAllocator{failIndex: true}
	s := NewStore(alloc)
	_, err := s.Load(triangle(), metadata.VertexLayoutPos, mgl32.Vec3{1, 1, 1})
	require.Error(t, err)
	require.Len(t, alloc.buffers, 1)
	assert.True(t, alloc.buffers[0].destroyed)
	assert.Zero(t, s.Len())
}
