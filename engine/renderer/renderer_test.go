package renderer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	gomath "math"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/math"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
	"github.com/spaghettifunk/shaderpixel/engine/shader"
)

var testExtent = metadata.Extent{Width: 800, Height: 600}

func newTestEngine(t *testing.T, images int) (*FrameEngine, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice(images)
	e, err := New(dev, Options{Extent: testExtent, PresentMode: metadata.PresentModeFifo})
	require.NoError(t, err)
	t.Cleanup(e.Destroy)
	return e, dev
}

func addArt(t *testing.T, e *FrameEngine, name string, art int) *Pipeline {
	t.Helper()
	vert, frag := staticShaders([]uint32{0}, []uint32{1})
	p, err := e.AddPipeline(PipelineConfig{
		Name:      name,
		Vertex:    vert,
		Fragment:  frag,
		Geometry:  testGeometry(),
		Subpass:   metadata.SubpassScene,
		CullMode:  metadata.FaceCullModeBack,
		DepthTest: true,
		Enabled:   true,
		Art:       art,
	})
	require.NoError(t, err)
	return p
}

func objectsAt(dists ...float32) []ObjectState {
	out := make([]ObjectState, len(dists))
	for i, d := range dists {
		out[i] = ObjectState{Enabled: true, Data: ObjectData{Matrix: mgl32.Ident4(), DistToCameraSqr: d}}
	}
	return out
}

func names(e *FrameEngine) []string {
	var out []string
	for _, i := range e.Order() {
		out = append(out, e.Pipelines()[i].Name())
	}
	return out
}

func TestVisibilityOrderDescendingAndStable(t *testing.T) {
	pipelines := []*Pipeline{{art: NoArt}, {art: 0}, {art: 1}, {art: 2}, {art: 3}}
	objects := objectsAt(1, 5, 10, 5)

	order := VisibilityOrder(pipelines, objects)
	assert.Equal(t, []int{0, 3, 2, 4, 1}, order)
	assert.Equal(t, order, VisibilityOrder(pipelines, objects))
}

func TestVisibilityOrderForcedDistances(t *testing.T) {
	pipelines := []*Pipeline{{art: NoArt}, {art: 0}, {art: 1}, {art: 2}}
	objects := objectsAt(-1, gomath.MaxFloat32, 3)

	assert.Equal(t, []int{0, 2, 3, 1}, VisibilityOrder(pipelines, objects))
}

func TestDrawOrdersByDistance(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	addArt(t, e, "env", NoArt)
	addArt(t, e, "a", 0)
	addArt(t, e, "b", 1)
	addArt(t, e, "c", 2)

	recreate, err := e.Draw(FrameInput{Objects: objectsAt(1, 5, 10)})
	require.NoError(t, err)
	assert.False(t, recreate)
	assert.Equal(t, []string{"env", "c", "b", "a"}, names(e))
	scene := dev.swapchain().commands(0, metadata.SubpassScene)
	assert.Equal(t, []string{"env", "c", "b", "a"}, scene.draws)

	_, err = e.Draw(FrameInput{Objects: objectsAt(10, 1, 5)})
	require.NoError(t, err)
	assert.Equal(t, []string{"env", "a", "c", "b"}, names(e))
	scene = dev.swapchain().commands(1, metadata.SubpassScene)
	assert.Equal(t, []string{"env", "a", "c", "b"}, scene.draws)
}

func TestDrawRecordsOnlyWhenGraphChanges(t *testing.T) {
	e, dev := newTestEngine(t, 1)
	addArt(t, e, "a", 0)
	objects := objectsAt(2)

	for i := 0; i < 3; i++ {
		_, err := e.Draw(FrameInput{Objects: objects})
		require.NoError(t, err)
	}
	scene := dev.swapchain().commands(0, metadata.SubpassScene)
	assert.Equal(t, 1, scene.begins)

	objects[0].Enabled = false
	_, err := e.Draw(FrameInput{Objects: objects})
	require.NoError(t, err)
	assert.Equal(t, 2, scene.begins)
	assert.Empty(t, scene.draws)
}

func TestDrawWaitsOnTheFenceOfTheAcquiredImage(t *testing.T) {
	e, dev := newTestEngine(t, 3)
	addArt(t, e, "a", 0)

	for i := 0; i < 3; i++ {
		_, err := e.Draw(FrameInput{Objects: objectsAt(1)})
		require.NoError(t, err)
	}
	assert.Empty(t, dev.fenceWaits)

	_, err := e.Draw(FrameInput{Objects: objectsAt(1)})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, dev.fenceWaits)

	_, err = e.Draw(FrameInput{Objects: objectsAt(1)})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, dev.fenceWaits)
	assert.Equal(t, []uint32{0, 1, 2, 0, 1}, dev.swapchain().submitted)
}

func TestDrawOutOfDateAtAcquire(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	addArt(t, e, "a", 0)
	sc := dev.swapchain()

	sc.acquireErr = fmt.Errorf("acquire: %w", core.ErrSwapchainOutOfDate)
	recreate, err := e.Draw(FrameInput{Objects: objectsAt(1)})
	require.NoError(t, err)
	assert.True(t, recreate)
	assert.Empty(t, sc.submitted)

	sc.acquireErr = core.ErrDeviceLost
	recreate, err = e.Draw(FrameInput{Objects: objectsAt(1)})
	assert.False(t, recreate)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
}

func TestDrawOutOfDateAtPresent(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	addArt(t, e, "a", 0)
	sc := dev.swapchain()
	sc.submitErr = core.ErrSwapchainOutOfDate

	recreate, err := e.Draw(FrameInput{Objects: objectsAt(1)})
	require.NoError(t, err)
	assert.True(t, recreate)
	assert.Equal(t, []uint32{0}, sc.submitted)
	assert.NotNil(t, e.fences[0])
}

func TestDrawSkipsPipelinesWithoutModules(t *testing.T) {
	e, dev := newTestEngine(t, 1)
	addArt(t, e, "a", 0)
	pending := shader.NewHandle(nil, "pending.frag", metadata.ShaderStageFragment)
	vert, _ := staticShaders([]uint32{0}, nil)
	p, err := e.AddPipeline(PipelineConfig{
		Name:     "pending",
		Vertex:   vert,
		Fragment: pending,
		Geometry: testGeometry(),
		Subpass:  metadata.SubpassScene,
		Enabled:  true,
		Art:      1,
	})
	require.NoError(t, err)
	assert.False(t, p.Ready())

	_, err = e.Draw(FrameInput{Objects: objectsAt(1, 2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, dev.swapchain().commands(0, metadata.SubpassScene).draws)
}

func TestRecreateRejectsZeroExtent(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	before := len(dev.swapchains)

	err := e.Recreate(metadata.Extent{Width: 0, Height: 600}, metadata.PresentModeFifo)
	assert.ErrorIs(t, err, core.ErrZeroExtent)
	assert.Len(t, dev.swapchains, before)
	assert.False(t, dev.swapchain().destroyed)
}

func TestRecreateRebuildsEverything(t *testing.T) {
	e, dev := newTestEngine(t, 3)
	addArt(t, e, "a", 0)
	_, err := e.Draw(FrameInput{Objects: objectsAt(1)})
	require.NoError(t, err)
	old := dev.swapchain()

	extent := metadata.Extent{Width: 1024, Height: 768}
	require.NoError(t, e.Recreate(extent, metadata.PresentModeMailbox))

	sc := dev.swapchain()
	assert.NotSame(t, old, sc)
	assert.True(t, old.destroyed)
	assert.Len(t, sc.Framebuffers(), sc.ImageCount())
	for i := 0; i < sc.ImageCount(); i++ {
		assert.True(t, e.Stale(uint32(i)))
	}
	assert.Equal(t, metadata.PresentModeMailbox, e.PresentMode())

	built := dev.built("a")
	require.Len(t, built, 1)
	assert.Equal(t, extent, built[0].desc.Viewport)
}

func TestSetPresentMode(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	dev.modes = []metadata.PresentMode{metadata.PresentModeFifo, metadata.PresentModeImmediate}

	assert.Error(t, e.SetPresentMode(metadata.PresentModeMailbox))
	require.NoError(t, e.SetPresentMode(metadata.PresentModeImmediate))
	assert.Equal(t, metadata.PresentModeImmediate, dev.swapchain().PresentMode())
}

func TestPipelineBindings(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	vert, frag := staticShaders([]uint32{0}, []uint32{1, 2, 3})
	p, err := e.AddPipeline(PipelineConfig{
		Name: "mirror-surface", Vertex: vert, Fragment: frag,
		Geometry: testGeometry(), Subpass: metadata.SubpassScene, Enabled: true, Art: NoArt,
	})
	require.NoError(t, err)
	require.True(t, p.Ready())

	set := dev.sets[len(dev.sets)-1]
	require.Len(t, set.writes, 4)
	assert.NotNil(t, set.writes[2].Texture)
	assert.Equal(t, DefaultTextureName, set.writes[2].Texture.Name())
	assert.Equal(t, metadata.Attachment(dev.swapchain().mirror), set.writes[3].Attachment)
}

func TestPipelineMissingBinding(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	vert, frag := staticShaders([]uint32{0}, []uint32{1, 3})
	p, err := e.AddPipeline(PipelineConfig{
		Name: "reflected", Vertex: vert, Fragment: frag,
		Geometry: testGeometry(), Subpass: metadata.SubpassMirror, Enabled: true, Art: NoArt,
	})
	require.NoError(t, err)
	assert.False(t, p.Ready())
	assert.ErrorIs(t, p.Err(), core.ErrMissingBinding)
	assert.False(t, p.Stale())
}

func TestPipelineSetShadersComparesIdentity(t *testing.T) {
	e, dev := newTestEngine(t, 1)
	p := addArt(t, e, "portal", 0)
	vert, frag := p.Shaders()
	assert.False(t, p.SetShaders(vert, frag))

	donorVert, donorFrag := staticShaders([]uint32{0}, []uint32{1})
	objects := objectsAt(1)
	objects[0].Vertex, objects[0].Fragment = donorVert, donorFrag
	before := len(dev.objects)
	_, err := e.Draw(FrameInput{Objects: objects})
	require.NoError(t, err)
	assert.Len(t, dev.objects, before+1)
	assert.True(t, dev.objects[before-1].destroyed)

	_, err = e.Draw(FrameInput{Objects: objects})
	require.NoError(t, err)
	assert.Len(t, dev.objects, before+1)
}

func TestWriteUniformsLayout(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	p := addArt(t, e, "a", 0)
	objects := objectsAt(1)
	objects[0].Data.Options = [OptionSlots]float32{1, 2, 3, 4, 5, 6, 7, 8}
	objects[0].Data.LightPos = mgl32.Vec4{9, 10, 11, 1}

	view := mgl32.Translate3D(1, 2, 3)
	_, err := e.Draw(FrameInput{View: view, Proj: mgl32.Ident4(), Time: 2.5, Objects: objects})
	require.NoError(t, err)

	vu := p.vertUniforms[0].(*fakeUniform)
	fu := p.fragUniforms[0].(*fakeUniform)
	require.Len(t, vu.data, VertexUniformSize)
	require.Len(t, fu.data, FragmentUniformSize)

	at := func(b []byte, i int) float32 {
		return gomath.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	// view translation lives in column 3
	assert.Equal(t, float32(1), at(vu.data, 16+12))
	assert.Equal(t, float32(9), at(fu.data, 0))
	assert.Equal(t, float32(1), at(fu.data, 4))
	assert.Equal(t, float32(8), at(fu.data, 11))
	assert.Equal(t, float32(2.5), at(fu.data, 12))
}

func TestWriteUniformsBusy(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	p := addArt(t, e, "a", 0)
	p.fragUniforms[0].(*fakeUniform).busy = true

	err := p.WriteUniforms(0, FrameUniforms{}, nil)
	assert.ErrorIs(t, err, core.ErrUniformBusy)
	assert.Error(t, p.WriteUniforms(4, FrameUniforms{}, nil))

	// a busy buffer does not stop the frame
	_, err = e.Draw(FrameInput{Objects: objectsAt(1)})
	assert.NoError(t, err)
}

func TestMirrorPassUsesReflectedView(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	vert, frag := staticShaders([]uint32{0}, []uint32{1})
	p, err := e.AddPipeline(PipelineConfig{
		Name: "env-reflected", Vertex: vert, Fragment: frag, Geometry: testGeometry(),
		Subpass: metadata.SubpassMirror, CullMode: metadata.FaceCullModeFront, Enabled: true, Art: NoArt,
	})
	require.NoError(t, err)

	view := mgl32.Translate3D(0, -1.5, -3)
	proj := math.Perspective(mgl32.DegToRad(75), 4.0/3.0, 0.01, 200)
	mirror := mgl32.Translate3D(0, 1, -6)
	_, err = e.Draw(FrameInput{View: view, Proj: proj, Mirror: &mirror})
	require.NoError(t, err)

	wantView, wantProj := math.MirrorView(view, proj, mirror)
	got := p.vertUniforms[0].(*fakeUniform).data
	var expected []byte
	expected = appendMat4(expected, mgl32.Ident4())
	expected = appendMat4(expected, wantView)
	expected = appendMat4(expected, wantProj)
	assert.Equal(t, expected, got)
}

func TestOverlayReceivesUISecondary(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	var frames []UIFrame
	_, err := e.Draw(FrameInput{UI: func(f UIFrame) (metadata.CommandBuffer, error) {
		frames = append(frames, f)
		return f.Commands, nil
	}})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, testExtent, frames[0].Extent)
	assert.Equal(t, dev.swapchain().lastUI, frames[0].Commands)

	_, err = e.Draw(FrameInput{UI: func(UIFrame) (metadata.CommandBuffer, error) {
		return nil, errors.New("boom")
	}})
	assert.Error(t, err)
}

func TestFailedRecordStillPresentsAcquiredImage(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	addArt(t, e, "a", 0)
	sc := dev.swapchain()
	scene0 := sc.commands(0, metadata.SubpassScene)
	scene0.beginErr = errors.New("boom")

	outOfDate, err := e.Draw(FrameInput{Objects: objectsAt(1)})
	assert.Error(t, err)
	assert.False(t, outOfDate)
	assert.Equal(t, []uint32{0}, sc.submitted)
	assert.Nil(t, sc.lastCmds.Scene)
	assert.Nil(t, sc.lastCmds.UI)
	assert.True(t, e.Stale(0))

	scene0.beginErr = nil
	for i := 0; i < 2; i++ {
		_, err = e.Draw(FrameInput{Objects: objectsAt(1)})
		require.NoError(t, err)
	}
	assert.Equal(t, []uint32{0, 1, 0}, sc.submitted)
	assert.Equal(t, scene0, sc.lastCmds.Scene)
	assert.Equal(t, []string{"a"}, scene0.draws)
	assert.False(t, e.Stale(0))
}

func TestHotReloadBuildsWhenCompiled(t *testing.T) {
	svc, err := shader.NewService(shader.CompilerFunc(func(ctx context.Context, path string, stage metadata.ShaderStage) (*metadata.ShaderModule, error) {
		bindings := []uint32{0}
		if stage == metadata.ShaderStageFragment {
			bindings = []uint32{1}
		}
		return &metadata.ShaderModule{Stage: stage, Bindings: bindings}, nil
	}), 0)
	require.NoError(t, err)
	defer svc.Shutdown()

	dir := t.TempDir()
	vert := shader.NewHandle(svc, filepath.Join(dir, "art.vert"), metadata.ShaderStageVertex)
	frag := shader.NewHandle(svc, filepath.Join(dir, "art.frag"), metadata.ShaderStageFragment)

	e, dev := newTestEngine(t, 1)
	p, err := e.AddPipeline(PipelineConfig{
		Name: "hot", Vertex: vert, Fragment: frag, Geometry: testGeometry(),
		Subpass: metadata.SubpassScene, Enabled: true, Art: 0,
	})
	require.NoError(t, err)
	assert.False(t, p.Ready())

	require.Eventually(t, func() bool {
		_, err := e.Draw(FrameInput{Objects: objectsAt(1)})
		return err == nil && p.Ready()
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, dev.built("hot"), 1)

	// a new module of one stage rebuilds the pipeline once
	frag.MarkDirty()
	require.Eventually(t, func() bool {
		_, err := e.Draw(FrameInput{Objects: objectsAt(1)})
		return err == nil && frag.Generation() == 2 && !p.Stale()
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, dev.built("hot"), 1)
	assert.Len(t, dev.objects, 2)
}

func TestDescribeTexture(t *testing.T) {
	img := image4x4()
	desc := Describe("checker", img, true)
	assert.Equal(t, uint32(3), desc.MipLevels)
	require.Len(t, desc.Levels, 1)
	assert.Len(t, desc.Levels[0], 64)

	desc = Describe("checker", img, false)
	require.Len(t, desc.Levels, 3)
	assert.Len(t, desc.Levels[1], 16)
	assert.Len(t, desc.Levels[2], 4)
}

func TestTextureLoaderMissingFile(t *testing.T) {
	dev := newFakeDevice(1)
	_, err := NewTextureLoader(dev).Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, core.ErrTextureLoad)
	assert.Empty(t, dev.textures)
}

func image4x4() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}
