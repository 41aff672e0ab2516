package components

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

/** @brief Where the camera starts and returns to on reset. */
var StartPosition = mgl32.Vec3{0, 1.5, 3}

/** @brief Units per second at zero scroll. */
const moveSpeed float32 = 2

/**
 * @brief A first person camera. In walk mode movement stays on the
 * horizontal plane, in fly mode it follows the view direction.
 */
type Camera struct {
	Position mgl32.Vec3
	/** @brief Rotation around y in radians. */
	Yaw float32
	/** @brief Rotation around x in radians. Not clamped. */
	Pitch float32
	Fly   bool
}

/** @brief The keys held during one update. */
type MoveKeys struct {
	Forward, Backward bool
	Left, Right       bool
	Up, Down          bool
}

func NewCamera() *Camera {
	c := &Camera{}
	c.Reset()
	return c
}

// Reset returns to the start position looking down -z. The fly mode is kept.
func (c *Camera) Reset() {
	c.Position = StartPosition
	c.Yaw = 0
	c.Pitch = 0
}

// Rotate turns the camera by a cursor drag given as fractions of the
// window size. A drag across the whole window turns half a circle.
func (c *Camera) Rotate(xRatio, yRatio float32) {
	c.Yaw += xRatio * gomath.Pi
	c.Pitch += yRatio * gomath.Pi
}

// Move translates the camera for keys held during delta seconds.
func (c *Camera) Move(keys MoveKeys, delta float32) {
	t := mgl32.Vec4{
		axis(keys.Left, keys.Right),
		axis(keys.Down, keys.Up),
		axis(keys.Forward, keys.Backward),
		0,
	}.Mul(delta * moveSpeed)

	rot := mgl32.HomogRotate3DY(-c.Yaw)
	if c.Fly {
		rot = rot.Mul4(mgl32.HomogRotate3DX(-c.Pitch))
	}
	c.Position = c.Position.Add(rot.Mul4x1(t.Mul(-1)).Vec3())
}

func axis(pos, neg bool) float32 {
	var v float32
	if pos {
		v++
	}
	if neg {
		v--
	}
	return v
}

// View is rotX(pitch) * rotY(yaw) * translate(-position).
func (c *Camera) View() mgl32.Mat4 {
	return mgl32.HomogRotate3DX(c.Pitch).
		Mul4(mgl32.HomogRotate3DY(c.Yaw)).
		Mul4(mgl32.Translate3D(-c.Position.X(), -c.Position.Y(), -c.Position.Z()))
}

// SpeedScale is the movement multiplier for the accumulated scroll lines.
func SpeedScale(scrollLines float64) float32 {
	return float32(gomath.Exp(0.4 * scrollLines))
}

// Update applies one frame of input: left drag rotates, WASD with space and
// left shift move, left control toggles fly mode and L resets the camera
// together with the scroll speed.
func (c *Camera) Update(in *core.InputState, elapsed float64, extent metadata.Extent) {
	if in.WasKeyPressed(core.KEY_LCONTROL) {
		c.Fly = !c.Fly
		core.LogDebug("camera fly mode: %t", c.Fly)
	}
	if in.WasKeyPressed(core.KEY_L) {
		c.Reset()
		in.ScrollLines = 0
	}

	if !extent.IsZero() {
		dx, dy := in.Drag()
		c.Rotate(float32(dx)/float32(extent.Width), float32(dy)/float32(extent.Height))
	}

	c.Move(MoveKeys{
		Forward:  in.IsKeyDown(core.KEY_W),
		Backward: in.IsKeyDown(core.KEY_S),
		Left:     in.IsKeyDown(core.KEY_A),
		Right:    in.IsKeyDown(core.KEY_D),
		Up:       in.IsKeyDown(core.KEY_SPACE),
		Down:     in.IsKeyDown(core.KEY_LSHIFT),
	}, float32(elapsed)*SpeedScale(in.ScrollLines))
}
