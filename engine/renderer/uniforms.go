package renderer

import (
	"encoding/binary"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/shader"
)

const (
	// VertexUniformSize is the std140 size of the vertex stage block:
	// model, view and projection matrices.
	VertexUniformSize = 3 * 64
	// FragmentUniformSize is the std140 size of the fragment stage block:
	// light position, two vec4 of options and time padded to 16 bytes.
	FragmentUniformSize = 16 + 32 + 16
	// OptionSlots is the number of packed option floats an object exposes.
	OptionSlots = 8
)

var identity = mgl32.Ident4()

// ObjectData is the per-frame state of one art object as seen by its
// pipelines.
type ObjectData struct {
	Matrix          mgl32.Mat4
	DistToCameraSqr float32
	LightPos        mgl32.Vec4
	Options         [OptionSlots]float32
	InsidePortal    bool
}

// ObjectState is what the update layer hands the frame engine for each art
// object every frame, indexed like the art objects.
type ObjectState struct {
	Data    ObjectData
	Enabled bool
	// Vertex and Fragment replace the shaders of the scene pipeline of the
	// object when set.
	Vertex   *shader.Handle
	Fragment *shader.Handle
}

// FrameUniforms are the values shared by every pipeline of one pass.
type FrameUniforms struct {
	View     mgl32.Mat4
	Proj     mgl32.Mat4
	Time     float32
	LightPos mgl32.Vec4
}

type vertexBlock struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

func (b vertexBlock) bytes() []byte {
	out := make([]byte, 0, VertexUniformSize)
	out = appendMat4(out, b.Model)
	out = appendMat4(out, b.View)
	return appendMat4(out, b.Proj)
}

type fragmentBlock struct {
	LightPos mgl32.Vec4
	Options  [OptionSlots]float32
	Time     float32
}

func (b fragmentBlock) bytes() []byte {
	out := make([]byte, 0, FragmentUniformSize)
	out = appendFloats(out, b.LightPos[:]...)
	out = appendFloats(out, b.Options[:]...)
	out = appendFloats(out, b.Time, 0, 0, 0)
	return out
}

// mgl32 matrices are column major like std140 mat4.
func appendMat4(out []byte, m mgl32.Mat4) []byte {
	return appendFloats(out, m[:]...)
}

func appendFloats(out []byte, values ...float32) []byte {
	for _, v := range values {
		out = binary.LittleEndian.AppendUint32(out, gomath.Float32bits(v))
	}
	return out
}
