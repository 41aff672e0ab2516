package art

import (
	gomath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/shaderpixel/engine/math"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

func TestCrossesRect(t *testing.T) {
	half := mgl32.Vec2{1, 2}
	id := mgl32.Ident4()

	assert.True(t, CrossesRect(mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 0, 1}, id, half))
	assert.True(t, CrossesRect(mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 0, -1}, id, half), "either direction")
	assert.False(t, CrossesRect(mgl32.Vec3{5, 5, -1}, mgl32.Vec3{5, 5, 1}, id, half), "outside the rectangle")
	assert.False(t, CrossesRect(mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 0, 2}, id, half), "one side of the plane")
	assert.False(t, CrossesRect(mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 1}, id, half), "parallel to the plane")
	assert.False(t, CrossesRect(mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 0, 1}, id, half), "not moving")
	assert.True(t, CrossesRect(mgl32.Vec3{0.99, 1.99, -1}, mgl32.Vec3{0.99, 1.99, 1}, id, half), "inside the corner")
}

func TestCrossesRectTransformed(t *testing.T) {
	// rotated 90 degrees: the plane normal points along x
	m := math.FromScaleRotationTranslation(mgl32.Vec3{2, 1, 1}, mgl32.DegToRad(90), mgl32.Vec3{6, 1.5, 2})
	half := mgl32.Vec2{1, 1}

	assert.True(t, CrossesRect(mgl32.Vec3{5, 1.5, 2}, mgl32.Vec3{7, 1.5, 2}, m, half))
	// local x is scaled by 2, so 1.5 away along world z is still inside
	assert.True(t, CrossesRect(mgl32.Vec3{5, 1.5, 3.5}, mgl32.Vec3{7, 1.5, 3.5}, m, half))
	assert.False(t, CrossesRect(mgl32.Vec3{5, 1.5, 4.5}, mgl32.Vec3{7, 1.5, 4.5}, m, half))
	assert.False(t, CrossesRect(mgl32.Vec3{6, 0, 0}, mgl32.Vec3{6, 3, 0}, m, half))
}

func TestPack(t *testing.T) {
	packed := Pack("test", []Option{
		{Label: "a", Kind: OptionCheckbox, Checked: true},
		{Label: "b", Kind: OptionFloat, Value: 0.5},
		{Label: "c", Kind: OptionInt, Value: 3},
		{Label: "d", Kind: OptionStroke, Width: 2, Color: [3]uint8{255, 0, 51}},
		{Label: "e", Kind: OptionCheckbox},
	})
	want := []float32{1, 0.5, 3, 1, 0, 0.2, 0, 0}
	for i, w := range want {
		assert.InDelta(t, w, packed[i], 1e-6, "slot %d", i)
	}
}

func TestPackDropsOverflow(t *testing.T) {
	options := make([]Option, 0, 10)
	for i := 0; i < 7; i++ {
		options = append(options, Option{Label: "f", Kind: OptionFloat, Value: float32(i + 1)})
	}
	options = append(options, Option{Label: "color", Kind: OptionStroke, Width: 1, Color: [3]uint8{255, 255, 255}})
	packed := Pack("test", options)
	assert.Equal(t, float32(7), packed[6])
	assert.Equal(t, float32(0), packed[7], "a color needs three slots")
}

func TestOptionStep(t *testing.T) {
	i := Option{Kind: OptionInt, Value: 9, Min: 0, Max: 10}
	i.Step(1)
	i.Step(1)
	assert.Equal(t, float32(10), i.Value)

	f := Option{Kind: OptionFloat, Value: 0, Min: 0, Max: 10}
	f.Step(1)
	assert.InDelta(t, 0.1, f.Value, 1e-6)
	f.Step(-1)
	f.Step(-1)
	assert.Equal(t, float32(0), f.Value)

	l := Option{Kind: OptionFloat, Value: 1e-4, Min: 1e-6, Max: 1e-3, Log: true}
	l.Step(1)
	assert.InDelta(t, 1.1e-4, l.Value, 1e-9)

	c := Option{Kind: OptionCheckbox}
	c.Step(-1)
	assert.True(t, c.Checked)

	col := Option{Kind: OptionStroke, Width: 1, Color: [3]uint8{250, 10, 100}}
	col.Step(1)
	assert.Equal(t, [3]uint8{255, 26, 116}, col.Color)
}

func object(name string, pos mgl32.Vec3) *Object {
	return &Object{
		Name:    name,
		Enabled: true,
		Base:    mgl32.Translate3D(pos.X(), pos.Y(), pos.Z()),
	}
}

func TestLayerDistances(t *testing.T) {
	near := object("near", mgl32.Vec3{0, 0, 1})
	sky := object("sky", mgl32.Vec3{})
	sky.Strategy = StrategySkybox
	player := object("player", mgl32.Vec3{})
	player.Strategy = StrategyPlayer

	l, err := NewLayer([]*Object{near, sky, player})
	require.NoError(t, err)
	l.Update(UpdateContext{Position: mgl32.Vec3{0, 1.5, 3}})

	assert.InDelta(t, 2.25+4, near.DistToCameraSqr, 1e-5)
	assert.Equal(t, float32(gomath.MaxFloat32), sky.DistToCameraSqr)
	assert.Equal(t, float32(0), player.DistToCameraSqr)

	pos := player.Position()
	assert.InDelta(t, 0, pos.X(), 1e-5)
	assert.InDelta(t, 0.5, pos.Y(), 1e-5)
	assert.InDelta(t, 4, pos.Z(), 1e-5)
}

func TestLayerPortal(t *testing.T) {
	portal := object("portal", mgl32.Vec3{})
	portal.Role = RolePortal
	portal.Strategy = StrategyPortal
	portal.PortalExtents = mgl32.Vec2{1, 2}
	portal.Options = []Option{{Label: "Invert", Kind: OptionCheckbox, Checked: true}}
	box := object("box", mgl32.Vec3{})
	box.Role = RolePortalBox
	box.Strategy = StrategyPortalBox
	box.Enabled = false
	far := object("far", mgl32.Vec3{0, 0, 10})
	close := object("close", mgl32.Vec3{0, 0, 1.5})

	l, err := NewLayer([]*Object{portal, box, far, close})
	require.NoError(t, err)

	l.Update(UpdateContext{PrevPosition: mgl32.Vec3{0, 0, -2}, Position: mgl32.Vec3{0, 0, -1}})
	assert.False(t, l.InsidePortal())
	assert.False(t, box.Visible())
	assert.True(t, far.Visible())

	l.Update(UpdateContext{PrevPosition: mgl32.Vec3{0, 0, -1}, Position: mgl32.Vec3{0, 0, 1}})
	require.True(t, l.InsidePortal())
	assert.True(t, box.Visible())
	assert.True(t, box.InsidePortal)
	assert.Equal(t, float32(-1), box.DistToCameraSqr)
	assert.Equal(t, portal.Packed, box.Packed)
	assert.Equal(t, 0, l.ShaderSource(1), "the box draws with the portal shaders")
	assert.False(t, far.Visible(), "farther than the portal")
	assert.True(t, close.Visible())
	assert.True(t, portal.Visible())

	// stepping back out
	l.Update(UpdateContext{PrevPosition: mgl32.Vec3{0, 0, 1}, Position: mgl32.Vec3{0, 0, -1}})
	assert.False(t, l.InsidePortal())
	assert.False(t, box.Visible())
	assert.True(t, far.Visible())
	assert.Equal(t, 1, l.ShaderSource(1))
}

func TestLayerRejectsDuplicateRoles(t *testing.T) {
	a := object("a", mgl32.Vec3{})
	a.Role = RoleMirror
	b := object("b", mgl32.Vec3{})
	b.Role = RoleMirror
	_, err := NewLayer([]*Object{a, b})
	assert.Error(t, err)
}

func TestLayerNearest(t *testing.T) {
	opts := []Option{{Label: "Speed", Kind: OptionFloat, Value: 1, Max: 2}}
	a := object("a", mgl32.Vec3{0, 0, 1})
	a.Options = opts
	b := object("b", mgl32.Vec3{0, 0, 0.5})
	b.Options = opts
	plain := object("plain", mgl32.Vec3{0, 0, 0.1})
	hidden := object("hidden", mgl32.Vec3{0, 0, 0.2})
	hidden.Options = opts
	hidden.Enabled = false

	l, err := NewLayer([]*Object{a, b, plain, hidden})
	require.NoError(t, err)

	l.Update(UpdateContext{Position: mgl32.Vec3{}})
	assert.Equal(t, 1, l.Nearest())

	l.Update(UpdateContext{Position: mgl32.Vec3{0, 0, 2}})
	assert.Equal(t, 0, l.Nearest(), "a is at distance 1, b at 1.5")

	l.Update(UpdateContext{Position: mgl32.Vec3{0, 0, 5}})
	assert.Equal(t, -1, l.Nearest())
}

func TestLayerApplyOptions(t *testing.T) {
	a := object("a", mgl32.Vec3{})
	a.Options = []Option{{Label: "Depth", Kind: OptionInt, Value: 4, Min: 1, Max: 10}}
	l, err := NewLayer([]*Object{a})
	require.NoError(t, err)
	assert.Equal(t, float32(4), l.States()[0].Data.Options[0])

	a.Options[0].Step(1)
	l.ApplyOptions(0)
	assert.Equal(t, float32(5), l.States()[0].Data.Options[0])
}

func TestLayerMirrorMatrix(t *testing.T) {
	l, err := NewLayer([]*Object{object("a", mgl32.Vec3{})})
	require.NoError(t, err)
	assert.Nil(t, l.MirrorMatrix())

	m := object("mirror", mgl32.Vec3{-6, 1, -6})
	m.Role = RoleMirror
	l, err = NewLayer([]*Object{m})
	require.NoError(t, err)
	l.Update(UpdateContext{})
	require.NotNil(t, l.MirrorMatrix())
	assert.Equal(t, m.Matrix, *l.MirrorMatrix())

	m.Enabled = false
	l.Update(UpdateContext{})
	assert.Nil(t, l.MirrorMatrix())
}

const testScene = `
[[object]]
name = "Mandelbrot"
model = "assets/models/square.obj"
layout = "pos_uv"
vertex = "assets/shaders/art2d.vert"
fragment = "assets/shaders/mandelbrot.frag"
scale = [0.5, 0.5, 0.5]
yaw = 90.0
translation = [5.99, 1.5, -1.5]

[[object]]
name = "Pillar"
model = "assets/models/cube.obj"
vertex = "assets/shaders/art3d.vert"
fragment = "assets/shaders/pillar.frag"
instances = [[-2.5, 0.5, -10.5], [2.5, 0.5, -10.5]]

[[object]]
name = "Portal"
model = "assets/models/cube_inside.obj"
vertex = "assets/shaders/art3d.vert"
fragment = "assets/shaders/portal.frag"
role = "portal"
update = "portal"
depth_test = false
cull = "none"
portal_extents = [0.5, 0.75]

  [[object.option]]
  label = "Ball number"
  kind = "i32"
  value = 5.0
  min = 1.0
  max = 100.0

  [[object.option]]
  label = "Stroke"
  kind = "stroke"
  width = 2.5
  color = [255, 76, 76]
`

func TestParseScene(t *testing.T) {
	objects, err := ParseScene([]byte(testScene))
	require.NoError(t, err)
	require.Len(t, objects, 4)

	m := objects[0]
	assert.Equal(t, metadata.VertexLayoutPosUV, m.Layout)
	assert.True(t, m.Enabled)
	assert.True(t, m.DepthTest)
	assert.Equal(t, metadata.FaceCullModeBack, m.CullMode)
	assert.InDelta(t, 5.99, math.Translation(m.Base).X(), 1e-5)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, m.ContainerScale)

	assert.Equal(t, "Pillar  0", objects[1].Name)
	assert.Equal(t, "Pillar  1", objects[2].Name)
	assert.Equal(t, metadata.VertexLayoutPosNorm, objects[1].Layout)
	assert.InDelta(t, 2.5, math.Translation(objects[2].Base).X(), 1e-5)

	p := objects[3]
	assert.Equal(t, RolePortal, p.Role)
	assert.Equal(t, StrategyPortal, p.Strategy)
	assert.False(t, p.DepthTest)
	assert.Equal(t, metadata.FaceCullModeNone, p.CullMode)
	assert.Equal(t, mgl32.Vec2{0.5, 0.75}, p.PortalExtents)
	require.Len(t, p.Options, 2)
	assert.Equal(t, OptionInt, p.Options[0].Kind)
	assert.Equal(t, OptionStroke, p.Options[1].Kind)
	assert.Equal(t, float32(2.5), p.Options[1].Width)
	assert.Equal(t, [3]uint8{255, 76, 76}, p.Options[1].Color)
	assert.Equal(t, "Stroke: 2.5 #ff4c4c", p.Options[1].String())
}

func TestStrokeWidthDefaults(t *testing.T) {
	objects, err := ParseScene([]byte(`
[[object]]
name = "a"
model = "m"
vertex = "v"
fragment = "f"
  [[object.option]]
  label = "Outline"
  kind = "stroke"
  color = [0, 0, 255]
`))
	require.NoError(t, err)
	stroke := objects[0].Options[0]
	assert.Equal(t, float32(1), stroke.Width)
	assert.Equal(t, 3, stroke.Slots())

	// the width is shown but never packed
	packed := Pack("a", []Option{stroke})
	assert.Equal(t, []float32{0, 0, 1, 0}, packed[:4])
}

func TestParseSceneErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "[[object]]\nname = \"a\"\nbogus = 1\n",
		"missing shaders":  "[[object]]\nname = \"a\"\nmodel = \"m.obj\"\n",
		"unknown strategy": "[[object]]\nname = \"a\"\nmodel = \"m\"\nvertex = \"v\"\nfragment = \"f\"\nupdate = \"spin\"\n",
		"negative stroke width": `
[[object]]
name = "a"
model = "m"
vertex = "v"
fragment = "f"
  [[object.option]]
  label = "x"
  kind = "stroke"
  width = -1.0
`,
		"value out of range": `
[[object]]
name = "a"
model = "m"
vertex = "v"
fragment = "f"
  [[object.option]]
  label = "x"
  kind = "f32"
  value = 5.0
  max = 1.0
`,
	}
	for name, scene := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScene([]byte(scene))
			assert.Error(t, err)
		})
	}
}
