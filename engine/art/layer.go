package art

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer"
)

// NearRadiusSqr is the squared distance within which an object with options
// is offered in the options panel.
const NearRadiusSqr = 1.5 * 1.5

// Layer runs the per frame update of every art object and derives the
// portal, mirror and nearest object state from it.
type Layer struct {
	objects []*Object

	portal    int
	portalBox int
	mirror    int

	inside bool
}

// NewLayer packs the initial options and finds the special objects.
func NewLayer(objects []*Object) (*Layer, error) {
	l := &Layer{objects: objects, portal: -1, portalBox: -1, mirror: -1}
	for i, o := range objects {
		o.Matrix = o.Base
		o.Packed = Pack(o.Name, o.Options)
		o.visible = o.Enabled
		var slot *int
		switch o.Role {
		case RoleMirror:
			slot = &l.mirror
		case RolePortal:
			slot = &l.portal
		case RolePortalBox:
			slot = &l.portalBox
		default:
			continue
		}
		if *slot >= 0 {
			return nil, fmt.Errorf("objects %s and %s both have the %s role", objects[*slot].Name, o.Name, o.Role)
		}
		*slot = i
	}
	return l, nil
}

func (l *Layer) Objects() []*Object {
	return l.objects
}

// InsidePortal reports whether the camera is inside the portal chamber.
func (l *Layer) InsidePortal() bool {
	return l.inside
}

// Update advances every object, then applies the portal state: inside the
// chamber the portal box takes over the portal's transform and options and
// everything farther than the portal is hidden.
func (l *Layer) Update(ctx UpdateContext) {
	for _, o := range l.objects {
		o.update(ctx)
		o.visible = o.Enabled
	}
	if l.portal < 0 {
		return
	}

	portal := l.objects[l.portal]
	if portal.InsidePortal != l.inside {
		l.inside = portal.InsidePortal
		core.LogInfo("camera went %s the portal", map[bool]string{true: "into", false: "out of"}[l.inside])
	}
	if l.portalBox < 0 {
		return
	}
	box := l.objects[l.portalBox]
	box.InsidePortal = l.inside
	box.visible = l.inside
	if !l.inside {
		return
	}
	box.Matrix = portal.Matrix
	box.Packed = portal.Packed
	for i, o := range l.objects {
		if i == l.portalBox || i == l.portal {
			continue
		}
		if o.DistToCameraSqr > portal.DistToCameraSqr {
			o.visible = false
		}
	}
}

// ShaderSource returns the index of the object whose shaders object i
// draws with. The portal box borrows the portal's while inside.
func (l *Layer) ShaderSource(i int) int {
	if i == l.portalBox && l.inside && l.portal >= 0 {
		return l.portal
	}
	return i
}

// States returns the frame engine view of every object, in object order.
func (l *Layer) States() []renderer.ObjectState {
	out := make([]renderer.ObjectState, len(l.objects))
	for i, o := range l.objects {
		out[i] = o.State()
	}
	return out
}

// Nearest returns the index of the closest visible object with options
// within NearRadiusSqr, or -1. The portal box is never offered, its
// options belong to the portal.
func (l *Layer) Nearest() int {
	best := -1
	for i, o := range l.objects {
		if i == l.portalBox || !o.visible || !o.HasOptions() || o.DistToCameraSqr > NearRadiusSqr {
			continue
		}
		if best < 0 || o.DistToCameraSqr < l.objects[best].DistToCameraSqr {
			best = i
		}
	}
	return best
}

// ApplyOptions re-packs the options of object i after an edit.
func (l *Layer) ApplyOptions(i int) {
	if i < 0 || i >= len(l.objects) {
		return
	}
	o := l.objects[i]
	o.Packed = Pack(o.Name, o.Options)
	if i == l.portal && l.inside && l.portalBox >= 0 {
		l.objects[l.portalBox].Packed = o.Packed
	}
}

// MirrorMatrix is the live transform of the mirror, nil without a visible
// mirror.
func (l *Layer) MirrorMatrix() *mgl32.Mat4 {
	if l.mirror < 0 || !l.objects[l.mirror].visible {
		return nil
	}
	m := l.objects[l.mirror].Matrix
	return &m
}

// Mirror is the index of the mirror object, -1 without one.
func (l *Layer) Mirror() int {
	return l.mirror
}

// PortalBox is the index of the portal box, -1 without one.
func (l *Layer) PortalBox() int {
	return l.portalBox
}
