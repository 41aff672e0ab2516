package art

import (
	"fmt"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/math"
	"github.com/spaghettifunk/shaderpixel/engine/renderer"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// Role marks the objects the layer treats specially. At most one object
// holds each role.
type Role int

const (
	RoleNone Role = iota
	RoleMirror
	RolePortal
	RolePortalBox
)

func (r Role) String() string {
	switch r {
	case RoleMirror:
		return "mirror"
	case RolePortal:
		return "portal"
	case RolePortalBox:
		return "portal_box"
	}
	return ""
}

func parseRole(s string) (Role, error) {
	for _, r := range []Role{RoleNone, RoleMirror, RolePortal, RolePortalBox} {
		if r.String() == s {
			return r, nil
		}
	}
	return RoleNone, fmt.Errorf("unknown role %q", s)
}

// Strategy is the per frame behavior of an object. The set is closed.
type Strategy int

const (
	// StrategyStatic keeps the initial transform.
	StrategyStatic Strategy = iota
	// StrategySkybox rotates around y with the skybox angle and always
	// sorts farthest.
	StrategySkybox
	// StrategyPortal toggles the inside state when the camera walks
	// through the portal rectangle.
	StrategyPortal
	// StrategyPlayer follows the camera.
	StrategyPlayer
	// StrategyPortalBox always sorts nearest.
	StrategyPortalBox
)

func (s Strategy) String() string {
	switch s {
	case StrategySkybox:
		return "skybox"
	case StrategyPortal:
		return "portal"
	case StrategyPlayer:
		return "player"
	case StrategyPortalBox:
		return "portal_box"
	}
	return "static"
}

func parseStrategy(s string) (Strategy, error) {
	if s == "" {
		return StrategyStatic, nil
	}
	for _, st := range []Strategy{StrategyStatic, StrategySkybox, StrategyPortal, StrategyPlayer, StrategyPortalBox} {
		if st.String() == s {
			return st, nil
		}
	}
	return StrategyStatic, fmt.Errorf("unknown update strategy %q", s)
}

// Object is one art piece of the gallery: what to draw and its live state.
type Object struct {
	Name     string
	Model    string
	Layout   metadata.VertexLayout
	Vertex   string
	Fragment string
	// Texture is empty for untextured objects.
	Texture        string
	ContainerScale mgl32.Vec3
	CullMode       metadata.FaceCullMode
	DepthTest      bool
	// Enabled is the configured visibility; the layer may hide an enabled
	// object for a frame but never shows a disabled one, portal box aside.
	Enabled  bool
	Role     Role
	Strategy Strategy
	// PortalExtents are the half sizes of the portal rectangle.
	PortalExtents mgl32.Vec2
	Options       []Option

	// Base is the transform from the scene description.
	Base            mgl32.Mat4
	Matrix          mgl32.Mat4
	DistToCameraSqr float32
	LightPos        mgl32.Vec4
	Packed          [renderer.OptionSlots]float32
	InsidePortal    bool

	visible bool
}

// HasOptions reports whether the object shows up in the options panel.
func (o *Object) HasOptions() bool {
	return len(o.Options) > 0
}

// Position is the translation of the current matrix.
func (o *Object) Position() mgl32.Vec3 {
	return math.Translation(o.Matrix)
}

// Visible is the visibility decided by the last update.
func (o *Object) Visible() bool {
	return o.visible
}

// UpdateContext is the camera and time input of one update.
type UpdateContext struct {
	// Time is the seconds since start.
	Time float32
	// Delta is the seconds since the previous update.
	Delta float32
	// SkyboxAngle is the accumulated skybox rotation in radians.
	SkyboxAngle float32
	// PrevPosition and Position are the camera positions of the previous
	// and this frame.
	PrevPosition mgl32.Vec3
	Position     mgl32.Vec3
	Yaw          float32
	Pitch        float32
	LightPos     mgl32.Vec4
}

// playerOffset places the player model below and in front of the eye.
var playerOffset = math.FromScaleRotationTranslation(mgl32.Vec3{0.4, 0.4, 0.4}, mgl32.DegToRad(90), mgl32.Vec3{0, -1, 1})

// update recomputes the camera distance and then applies the strategy,
// which may override it.
func (o *Object) update(ctx UpdateContext) {
	o.LightPos = ctx.LightPos
	o.DistToCameraSqr = math.DistanceSqr(o.Matrix, ctx.Position)

	switch o.Strategy {
	case StrategySkybox:
		o.Matrix = o.Base.Mul4(mgl32.HomogRotate3DY(ctx.SkyboxAngle))
		o.DistToCameraSqr = gomath.MaxFloat32
	case StrategyPortal:
		if CrossesRect(ctx.PrevPosition, ctx.Position, o.Matrix, o.PortalExtents) {
			o.InsidePortal = !o.InsidePortal
		}
	case StrategyPlayer:
		p := ctx.Position
		o.Matrix = mgl32.Translate3D(p.X(), p.Y(), p.Z()).
			Mul4(mgl32.HomogRotate3DY(-ctx.Yaw)).
			Mul4(playerOffset)
		o.DistToCameraSqr = 0
	case StrategyPortalBox:
		o.DistToCameraSqr = -1
	}
}

// State is the view of the object the frame engine consumes.
func (o *Object) State() renderer.ObjectState {
	return renderer.ObjectState{
		Data: renderer.ObjectData{
			Matrix:          o.Matrix,
			DistToCameraSqr: o.DistToCameraSqr,
			LightPos:        o.LightPos,
			Options:         o.Packed,
			InsidePortal:    o.InsidePortal,
		},
		Enabled: o.visible,
	}
}
