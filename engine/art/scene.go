package art

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/shaderpixel/engine/math"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

type optionDesc struct {
	Label   string   `toml:"label"`
	Kind    string   `toml:"kind"`
	Checked bool     `toml:"checked"`
	Value   float32  `toml:"value"`
	Min     float32  `toml:"min"`
	Max     float32  `toml:"max"`
	Log     bool     `toml:"log"`
	Width   *float32 `toml:"width"`
	Color   [3]uint8 `toml:"color"`
}

type objectDesc struct {
	Name     string `toml:"name"`
	Model    string `toml:"model"`
	Layout   string `toml:"layout"`
	Vertex   string `toml:"vertex"`
	Fragment string `toml:"fragment"`
	Texture  string `toml:"texture"`

	Scale          *[3]float32 `toml:"scale"`
	Yaw            float32     `toml:"yaw"`
	Translation    [3]float32  `toml:"translation"`
	ContainerScale *[3]float32 `toml:"container_scale"`
	// Instances repeats the object at each translation, numbering the names.
	Instances [][3]float32 `toml:"instances"`

	Enabled   *bool  `toml:"enabled"`
	DepthTest *bool  `toml:"depth_test"`
	Cull      string `toml:"cull"`
	Role      string `toml:"role"`
	Update    string `toml:"update"`

	PortalExtents *[2]float32 `toml:"portal_extents"`

	Options []optionDesc `toml:"option"`
}

type sceneDesc struct {
	Objects []objectDesc `toml:"object"`
}

// LoadScene reads the art objects of a scene description file.
func LoadScene(path string) ([]*Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	objects, err := ParseScene(data)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	return objects, nil
}

// ParseScene decodes a scene description. Unknown keys are rejected.
func ParseScene(data []byte) ([]*Object, error) {
	var desc sceneDesc
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&desc); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return nil, err
	}

	var objects []*Object
	for _, d := range desc.Objects {
		built, err := d.build()
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", d.Name, err)
		}
		objects = append(objects, built...)
	}
	return objects, nil
}

func vec3(v *[3]float32, def mgl32.Vec3) mgl32.Vec3 {
	if v == nil {
		return def
	}
	return mgl32.Vec3(*v)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func parseLayout(s string) (metadata.VertexLayout, error) {
	for _, l := range []metadata.VertexLayout{metadata.VertexLayoutPos, metadata.VertexLayoutPosNorm, metadata.VertexLayoutPosUV} {
		if l.String() == s {
			return l, nil
		}
	}
	return metadata.VertexLayoutPosNorm, fmt.Errorf("unknown vertex layout %q", s)
}

func parseCull(s string) (metadata.FaceCullMode, error) {
	switch s {
	case "", "back":
		return metadata.FaceCullModeBack, nil
	case "none":
		return metadata.FaceCullModeNone, nil
	case "front":
		return metadata.FaceCullModeFront, nil
	case "front_and_back":
		return metadata.FaceCullModeFrontAndBack, nil
	}
	return metadata.FaceCullModeBack, fmt.Errorf("unknown cull mode %q", s)
}

func (d objectDesc) build() ([]*Object, error) {
	if d.Name == "" {
		return nil, errors.New("missing name")
	}
	if d.Model == "" || d.Vertex == "" || d.Fragment == "" {
		return nil, errors.New("model, vertex and fragment are required")
	}
	layoutName := d.Layout
	if layoutName == "" {
		layoutName = metadata.VertexLayoutPosNorm.String()
	}
	layout, err := parseLayout(layoutName)
	if err != nil {
		return nil, err
	}
	cull, err := parseCull(d.Cull)
	if err != nil {
		return nil, err
	}
	role, err := parseRole(d.Role)
	if err != nil {
		return nil, err
	}
	strategy, err := parseStrategy(d.Update)
	if err != nil {
		return nil, err
	}
	options := make([]Option, 0, len(d.Options))
	for _, od := range d.Options {
		opt, err := od.build()
		if err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	if role != RoleNone && len(d.Instances) > 0 {
		return nil, fmt.Errorf("the %s role cannot be instanced", role)
	}

	extents := mgl32.Vec2{1, 1}
	if d.PortalExtents != nil {
		extents = mgl32.Vec2(*d.PortalExtents)
	}
	scale := vec3(d.Scale, mgl32.Vec3{1, 1, 1})
	yaw := mgl32.DegToRad(d.Yaw)

	translations := d.Instances
	if len(translations) == 0 {
		translations = [][3]float32{d.Translation}
	}
	out := make([]*Object, 0, len(translations))
	for i, t := range translations {
		name := d.Name
		if len(d.Instances) > 0 {
			name = fmt.Sprintf("%s %2d", d.Name, i)
		}
		out = append(out, &Object{
			Name:           name,
			Model:          d.Model,
			Layout:         layout,
			Vertex:         d.Vertex,
			Fragment:       d.Fragment,
			Texture:        d.Texture,
			ContainerScale: vec3(d.ContainerScale, mgl32.Vec3{1, 1, 1}),
			CullMode:       cull,
			DepthTest:      boolOr(d.DepthTest, true),
			Enabled:        boolOr(d.Enabled, true),
			Role:           role,
			Strategy:       strategy,
			PortalExtents:  extents,
			Options:        append([]Option(nil), options...),
			Base:           math.FromScaleRotationTranslation(scale, yaw, mgl32.Vec3(t)),
		})
	}
	return out, nil
}

func (od optionDesc) build() (Option, error) {
	if od.Label == "" {
		return Option{}, errors.New("option without label")
	}
	kind, err := parseOptionKind(od.Kind)
	if err != nil {
		return Option{}, fmt.Errorf("option %q: %w", od.Label, err)
	}
	opt := Option{
		Label:   od.Label,
		Kind:    kind,
		Checked: od.Checked,
		Value:   od.Value,
		Min:     od.Min,
		Max:     od.Max,
		Log:     od.Log,
		Color:   od.Color,
	}
	if kind == OptionStroke {
		opt.Width = 1
		if od.Width != nil {
			opt.Width = *od.Width
		}
		if opt.Width < 0 {
			return Option{}, fmt.Errorf("option %q: negative stroke width %g", od.Label, opt.Width)
		}
	}
	if kind == OptionFloat || kind == OptionInt {
		if opt.Min > opt.Max {
			return Option{}, fmt.Errorf("option %q: min %g above max %g", od.Label, od.Min, od.Max)
		}
		if opt.Value < opt.Min || opt.Value > opt.Max {
			return Option{}, fmt.Errorf("option %q: value %g outside [%g, %g]", od.Label, od.Value, od.Min, od.Max)
		}
		if opt.Log && opt.Min <= 0 {
			return Option{}, fmt.Errorf("option %q: logarithmic slider needs a positive min", od.Label)
		}
	}
	return opt, nil
}
