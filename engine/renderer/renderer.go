package renderer

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// UIFrame is handed to the overlay once per frame. Commands is the
// secondary buffer allocated for the UI subpass of Image.
type UIFrame struct {
	Image    uint32
	Extent   metadata.Extent
	Commands metadata.CommandBuffer
}

// UIFunc records the overlay and returns the buffer to execute in the UI
// subpass, usually UIFrame.Commands.
type UIFunc func(frame UIFrame) (metadata.CommandBuffer, error)

// FrameInput is everything one Draw consumes.
type FrameInput struct {
	View     mgl32.Mat4
	Proj     mgl32.Mat4
	Time     float32
	LightPos mgl32.Vec4
	// Objects is indexed by the Art index of the pipelines.
	Objects []ObjectState
	// Mirror is the model matrix of the mirror surface, nil without one.
	Mirror *mgl32.Mat4
	UI     UIFunc
}

type Options struct {
	Extent      metadata.Extent
	PresentMode metadata.PresentMode
	ClearColor  [4]float32
}

// FrameEngine owns the swapchain and the ordered pipelines, and draws one
// frame per Draw call: maintain pipelines, sort them, upload uniforms,
// re-record stale command buffers, submit and present.
//
// Secondary command buffers are cached per swapchain image and tagged with
// the graph generation they were recorded at. Any change of the graph
// bumps the generation; an image re-records only after its own fence
// signaled, so frames on other images keep overlapping.
type FrameEngine struct {
	device     metadata.Device
	swapchain  metadata.Swapchain
	mode       metadata.PresentMode
	clearColor [4]float32
	fallback   metadata.Texture

	pipelines []*Pipeline
	order     []int

	fences     []metadata.Fence
	recorded   []uint64
	generation uint64
}

// New creates the swapchain for opts.Extent and the fallback texture.
func New(device metadata.Device, opts Options) (*FrameEngine, error) {
	fallback, err := DefaultTexture(device)
	if err != nil {
		return nil, fmt.Errorf("default texture: %w", err)
	}
	e := &FrameEngine{
		device:     device,
		mode:       opts.PresentMode,
		clearColor: opts.ClearColor,
		fallback:   fallback,
		generation: 1,
	}
	if err := e.Recreate(opts.Extent, opts.PresentMode); err != nil {
		fallback.Destroy()
		return nil, err
	}
	return e, nil
}

// Target is what pipelines are currently built against.
func (e *FrameEngine) Target() Target {
	return Target{
		Viewport: e.swapchain.Extent(),
		Frames:   e.swapchain.ImageCount(),
		Mirror:   e.swapchain.MirrorAttachment(),
	}
}

// AddPipeline registers a pipeline drawn from the next frame on. A config
// without texture binds the 1x1 white fallback.
func (e *FrameEngine) AddPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Texture == nil {
		cfg.Texture = e.fallback
	}
	p, err := NewPipeline(e.device, cfg, e.Target())
	if err != nil {
		return nil, err
	}
	e.pipelines = append(e.pipelines, p)
	e.generation++
	return p, nil
}

// Pipelines returns the registered pipelines in registration order.
func (e *FrameEngine) Pipelines() []*Pipeline {
	return e.pipelines
}

// Order is the draw order of the last frame, as pipeline indices.
func (e *FrameEngine) Order() []int {
	return e.order
}

func (e *FrameEngine) Swapchain() metadata.Swapchain {
	return e.swapchain
}

func (e *FrameEngine) PresentMode() metadata.PresentMode {
	return e.mode
}

// Generation counts graph changes. Command buffers recorded at an older
// generation are re-recorded before use.
func (e *FrameEngine) Generation() uint64 {
	return e.generation
}

// Stale reports whether the command buffers of image must be re-recorded.
func (e *FrameEngine) Stale(image uint32) bool {
	return int(image) >= len(e.recorded) || e.recorded[image] != e.generation
}

// SetPresentMode recreates the swapchain with mode when the surface
// supports it.
func (e *FrameEngine) SetPresentMode(mode metadata.PresentMode) error {
	supported := false
	for _, m := range e.device.SupportedPresentModes() {
		if m == mode {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("present mode %s is not supported", mode)
	}
	if mode == e.mode {
		return nil
	}
	return e.Recreate(e.swapchain.Extent(), mode)
}

// Recreate rebuilds the swapchain with every extent dependent attachment
// and framebuffer, retargets every pipeline and marks every cached command
// buffer stale. A zero extent is rejected without touching anything.
func (e *FrameEngine) Recreate(extent metadata.Extent, mode metadata.PresentMode) error {
	if extent.IsZero() {
		return fmt.Errorf("recreate %dx%d: %w", extent.Width, extent.Height, core.ErrZeroExtent)
	}
	if err := e.device.WaitIdle(); err != nil {
		return fmt.Errorf("recreate: %w", err)
	}
	e.destroyFences()

	old := e.swapchain
	sc, err := e.device.CreateSwapchain(extent, mode, old)
	if err != nil {
		return fmt.Errorf("swapchain %dx%d: %w", extent.Width, extent.Height, err)
	}
	if old != nil {
		old.Destroy()
	}
	e.swapchain = sc
	e.mode = sc.PresentMode()
	e.fences = make([]metadata.Fence, sc.ImageCount())
	e.recorded = make([]uint64, sc.ImageCount())
	e.generation++

	target := e.Target()
	for _, p := range e.pipelines {
		if _, err := p.Update(target); err != nil {
			if p.Err() != nil {
				// build failures leave the pipeline undrawn
				core.LogWarn("pipeline %s: %s", p.Name(), err)
				continue
			}
			return err
		}
	}
	e.releaseRetired()
	core.LogInfo("swapchain recreated: %dx%d, %s, %d images", extent.Width, extent.Height, e.mode, sc.ImageCount())
	return nil
}

// Draw renders one frame. It reports true when the swapchain is out of date
// and must be recreated before the next frame; that is not an error.
func (e *FrameEngine) Draw(in FrameInput) (bool, error) {
	if e.swapchain == nil {
		return true, nil
	}

	if e.maintain(in.Objects) {
		e.generation++
	}
	order := VisibilityOrder(e.pipelines, in.Objects)
	if !sameOrder(order, e.order) {
		e.order = order
		e.generation++
	}

	image, err := e.swapchain.Acquire()
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire: %w", err)
	}

	// the only blocking wait: the previous submission to this image
	if f := e.fences[image]; f != nil {
		if err := f.Wait(); err != nil {
			return false, fmt.Errorf("fence of image %d: %w", image, err)
		}
		f.Destroy()
		e.fences[image] = nil
	}

	e.writeUniforms(int(image), in)

	cmds, recordErr := e.commands(image, in.UI)
	if recordErr != nil {
		// the acquired image still has to be submitted and presented, or its
		// semaphore stays signaled and the image is never handed back
		cmds = metadata.FrameCommands{ClearColor: e.clearColor}
	}
	fence, err := e.swapchain.Submit(image, cmds)
	if fence != nil {
		e.fences[image] = fence
	}
	outOfDate := errors.Is(err, core.ErrSwapchainOutOfDate)
	if recordErr != nil {
		return outOfDate, recordErr
	}
	if outOfDate {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("submit: %w", err)
	}
	return false, nil
}

// commands records what is stale for image and returns the secondaries of
// the frame.
func (e *FrameEngine) commands(image uint32, ui UIFunc) (metadata.FrameCommands, error) {
	if e.Stale(image) {
		if err := e.record(image); err != nil {
			return metadata.FrameCommands{}, err
		}
	}
	uiCmds, err := e.recordUI(image, ui)
	if err != nil {
		return metadata.FrameCommands{}, err
	}
	return metadata.FrameCommands{
		Mirror:     e.swapchain.Secondary(image, metadata.SubpassMirror),
		Scene:      e.swapchain.Secondary(image, metadata.SubpassScene),
		UI:         uiCmds,
		ClearColor: e.clearColor,
	}, nil
}

// maintain applies object state to the pipelines, reloads shaders and
// rebuilds what is stale. It reports whether the graph changed.
func (e *FrameEngine) maintain(objects []ObjectState) bool {
	dirty := false
	target := e.Target()
	for _, p := range e.pipelines {
		if a := p.Art(); a >= 0 && a < len(objects) {
			obj := objects[a]
			if p.SetEnabled(obj.Enabled) {
				dirty = true
			}
			if p.Subpass() == metadata.SubpassScene && p.SetShaders(obj.Vertex, obj.Fragment) {
				dirty = true
			}
		}
		if !p.ReloadShaders(false) && !p.Stale() {
			continue
		}
		rebuilt, err := p.Update(target)
		if err != nil {
			core.LogError("pipeline %s: %s", p.Name(), err)
			continue
		}
		if rebuilt {
			dirty = true
		}
	}
	e.releaseRetired()
	return dirty
}

func (e *FrameEngine) releaseRetired() {
	retired := false
	for _, p := range e.pipelines {
		if p.HasRetired() {
			retired = true
			break
		}
	}
	if !retired {
		return
	}
	if err := e.device.WaitIdle(); err != nil {
		core.LogError("wait idle: %s", err)
		return
	}
	for _, p := range e.pipelines {
		p.ReleaseRetired()
	}
}

func (e *FrameEngine) writeUniforms(frame int, in FrameInput) {
	scene := FrameUniforms{View: in.View, Proj: in.Proj, Time: in.Time, LightPos: in.LightPos}
	mirror := mirrorUniforms(scene, in.Mirror)
	for _, i := range e.order {
		p := e.pipelines[i]
		if !p.Ready() || !p.Enabled() {
			continue
		}
		var data *ObjectData
		if a := p.Art(); a >= 0 && a < len(in.Objects) {
			data = &in.Objects[a].Data
		}
		var err error
		switch p.Subpass() {
		case metadata.SubpassMirror:
			err = p.WriteUniforms(frame, mirror, data)
		case metadata.SubpassScene:
			err = p.WriteUniforms(frame, scene, data)
		}
		if err != nil {
			core.LogWarn("%s", err)
		}
	}
}

// record re-records the mirror and scene secondaries of image in draw order.
func (e *FrameEngine) record(image uint32) error {
	for _, subpass := range []metadata.Subpass{metadata.SubpassMirror, metadata.SubpassScene} {
		cb := e.swapchain.Secondary(image, subpass)
		if err := cb.Begin(); err != nil {
			return fmt.Errorf("record %s of image %d: %w", subpass, image, err)
		}
		for _, i := range e.order {
			p := e.pipelines[i]
			if p.Subpass() == subpass {
				p.Record(cb, int(image))
			}
		}
		if err := cb.End(); err != nil {
			return fmt.Errorf("record %s of image %d: %w", subpass, image, err)
		}
	}
	e.recorded[image] = e.generation
	return nil
}

func (e *FrameEngine) recordUI(image uint32, ui UIFunc) (metadata.CommandBuffer, error) {
	cb := e.swapchain.Secondary(image, metadata.SubpassUI)
	if ui == nil {
		if err := cb.Begin(); err != nil {
			return nil, err
		}
		return cb, cb.End()
	}
	out, err := ui(UIFrame{Image: image, Extent: e.swapchain.Extent(), Commands: cb})
	if err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}
	return out, nil
}

func (e *FrameEngine) destroyFences() {
	for i, f := range e.fences {
		if f != nil {
			f.Destroy()
			e.fences[i] = nil
		}
	}
}

// Destroy waits for the device and releases the swapchain and every
// pipeline.
func (e *FrameEngine) Destroy() {
	if err := e.device.WaitIdle(); err != nil {
		core.LogError("wait idle: %s", err)
	}
	e.destroyFences()
	for _, p := range e.pipelines {
		p.Destroy()
	}
	e.pipelines = nil
	if e.swapchain != nil {
		e.swapchain.Destroy()
		e.swapchain = nil
	}
	if e.fallback != nil {
		e.fallback.Destroy()
		e.fallback = nil
	}
}
