package renderer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/geometry"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
	"github.com/spaghettifunk/shaderpixel/engine/shader"
)

// NoArt marks a pipeline that draws no art object, such as the environment.
const NoArt = -1

// PipelineConfig describes what a pipeline draws and how.
type PipelineConfig struct {
	Name     string
	Vertex   *shader.Handle
	Fragment *shader.Handle
	// Geometry may be nil for pipelines that bind their own buffers with
	// DrawWith; Layout is used then.
	Geometry *geometry.Geometry
	Layout   metadata.VertexLayout
	// Texture is bound at BindingTexture when the shaders sample it.
	Texture   metadata.Texture
	Subpass   metadata.Subpass
	CullMode  metadata.FaceCullMode
	DepthTest bool
	Enabled   bool
	// Art indexes the object state the pipeline draws, NoArt for none.
	Art int
}

// Target is what every pipeline is built against. It changes with each
// swapchain recreation.
type Target struct {
	Viewport metadata.Extent
	// Frames is the number of swapchain images, one descriptor set and one
	// uniform buffer pair each.
	Frames int
	// Mirror is the feedback image of the mirror pass.
	Mirror metadata.Attachment
}

type retiredObject struct {
	object metadata.DevicePipeline
	sets   []metadata.DescriptorSet
}

// Pipeline couples a shader pair, a geometry and per-frame uniforms into a
// device pipeline with one descriptor set per swapchain image.
//
// The device object stays nil until both shaders compiled once. Afterwards
// it is kept until a newer module of either shader is available, so a
// broken edit leaves the last good build on screen. Replaced device objects
// are retired and released by the owner once the device is idle.
type Pipeline struct {
	id       uuid.UUID
	name     string
	vert     *shader.Handle
	frag     *shader.Handle
	geometry *geometry.Geometry
	layout   metadata.VertexLayout
	texture  metadata.Texture
	subpass  metadata.Subpass
	cull     metadata.FaceCullMode
	depth    bool
	enabled  bool
	art      int

	device metadata.Device
	target Target

	vertUniforms []metadata.UniformBuffer
	fragUniforms []metadata.UniformBuffer

	object    metadata.DevicePipeline
	sets      []metadata.DescriptorSet
	builtVert uint64
	builtFrag uint64
	invalid   bool

	// generations of the last failed build, retried only once they move
	failed    bool
	failVert  uint64
	failFrag  uint64
	lastError error

	retired []retiredObject
}

// NewPipeline allocates the uniform buffers of cfg and attempts a first
// build. Shaders that are not compiled yet leave the pipeline unbuilt.
func NewPipeline(device metadata.Device, cfg PipelineConfig, target Target) (*Pipeline, error) {
	if cfg.Vertex == nil || cfg.Fragment == nil {
		return nil, fmt.Errorf("pipeline %s needs a vertex and a fragment shader", cfg.Name)
	}
	if cfg.Subpass >= metadata.SubpassCount {
		return nil, fmt.Errorf("pipeline %s: invalid %s", cfg.Name, cfg.Subpass)
	}
	layout := cfg.Layout
	if cfg.Geometry != nil {
		layout = cfg.Geometry.Layout
	}
	p := &Pipeline{
		id:       uuid.New(),
		name:     cfg.Name,
		vert:     cfg.Vertex,
		frag:     cfg.Fragment,
		geometry: cfg.Geometry,
		layout:   layout,
		texture:  cfg.Texture,
		subpass:  cfg.Subpass,
		cull:     cfg.CullMode,
		depth:    cfg.DepthTest,
		enabled:  cfg.Enabled,
		art:      cfg.Art,
		device:   device,
		invalid:  true,
	}
	if _, err := p.Update(target); err != nil {
		if !p.failed {
			p.Destroy()
			return nil, err
		}
		core.LogWarn("pipeline %s: %s", p.name, err)
	}
	return p, nil
}

func (p *Pipeline) ID() uuid.UUID {
	return p.id
}

func (p *Pipeline) Name() string {
	return p.name
}

func (p *Pipeline) Subpass() metadata.Subpass {
	return p.subpass
}

// Art is the index of the drawn art object, NoArt for none.
func (p *Pipeline) Art() int {
	return p.art
}

func (p *Pipeline) Enabled() bool {
	return p.enabled
}

// SetEnabled reports whether the flag changed.
func (p *Pipeline) SetEnabled(enabled bool) bool {
	if p.enabled == enabled {
		return false
	}
	p.enabled = enabled
	return true
}

// Ready reports a built device object.
func (p *Pipeline) Ready() bool {
	return p.object != nil
}

func (p *Pipeline) Shaders() (*shader.Handle, *shader.Handle) {
	return p.vert, p.frag
}

// SetShaders swaps the shader pair. Handles are compared by identity; the
// same pair is a no-op and reports false.
func (p *Pipeline) SetShaders(vert, frag *shader.Handle) bool {
	if vert == nil || frag == nil || (vert == p.vert && frag == p.frag) {
		return false
	}
	p.vert, p.frag = vert, frag
	p.invalid = true
	p.failed = false
	return true
}

// ReloadShaders forwards to both shader handles and reports whether a
// compile is queued or running. Disabled pipelines do not compile.
func (p *Pipeline) ReloadShaders(forced bool) bool {
	if !p.enabled {
		return false
	}
	v := p.vert.Reload(forced)
	f := p.frag.Reload(forced)
	return v || f
}

// Stale reports whether Update would build a new device object.
func (p *Pipeline) Stale() bool {
	vg, fg := p.vert.Generation(), p.frag.Generation()
	if vg == 0 || fg == 0 {
		return false
	}
	if p.failed && p.failVert == vg && p.failFrag == fg {
		return false
	}
	return p.object == nil || p.invalid || p.builtVert != vg || p.builtFrag != fg
}

// Err is the error of the last failed build.
func (p *Pipeline) Err() error {
	return p.lastError
}

// Update adopts target and rebuilds the device object and descriptor sets
// when both shaders have a module and the current build is stale. It
// reports whether a new device object was built.
func (p *Pipeline) Update(target Target) (bool, error) {
	if err := p.retarget(target); err != nil {
		return false, err
	}
	if !p.Stale() {
		return false, nil
	}
	vm, fm := p.vert.Module(), p.frag.Module()
	if vm == nil || fm == nil {
		return false, nil
	}
	vg, fg := p.vert.Generation(), p.frag.Generation()
	if err := p.build(vm, fm); err != nil {
		p.failed, p.failVert, p.failFrag = true, vg, fg
		p.lastError = err
		return false, err
	}
	p.builtVert, p.builtFrag = vg, fg
	p.failed, p.lastError = false, nil
	p.invalid = false
	core.LogDebug("pipeline %s (%s) built for %s", p.name, p.id, p.subpass)
	return true, nil
}

func (p *Pipeline) retarget(target Target) error {
	if target.Frames <= 0 {
		return fmt.Errorf("pipeline %s: %d frames", p.name, target.Frames)
	}
	if target.Viewport != p.target.Viewport || target.Mirror != p.target.Mirror || target.Frames != p.target.Frames {
		// the old sets reference attachments and buffers about to go away
		p.retire()
		p.invalid = true
		p.failed = false
	}
	if len(p.vertUniforms) != target.Frames {
		p.destroyUniforms()
		for i := 0; i < target.Frames; i++ {
			vu, err := p.device.CreateUniformBuffer(VertexUniformSize)
			if err != nil {
				return fmt.Errorf("pipeline %s vertex uniforms: %w", p.name, err)
			}
			p.vertUniforms = append(p.vertUniforms, vu)
			fu, err := p.device.CreateUniformBuffer(FragmentUniformSize)
			if err != nil {
				return fmt.Errorf("pipeline %s fragment uniforms: %w", p.name, err)
			}
			p.fragUniforms = append(p.fragUniforms, fu)
		}
	}
	if len(p.vertUniforms) != len(p.fragUniforms) {
		panic(fmt.Sprintf("pipeline %s: %d vertex and %d fragment uniform buffers", p.name, len(p.vertUniforms), len(p.fragUniforms)))
	}
	p.target = target
	return nil
}

func (p *Pipeline) build(vm, fm *metadata.ShaderModule) error {
	bindings := requiredBindings(vm, fm)
	for _, b := range bindings {
		if !p.supplies(b) {
			return fmt.Errorf("pipeline %s binding %d: %w", p.name, b, core.ErrMissingBinding)
		}
	}
	object, err := p.device.CreatePipeline(metadata.PipelineDesc{
		ID:        p.id,
		Name:      p.name,
		Vertex:    vm,
		Fragment:  fm,
		Layout:    p.layout,
		Subpass:   p.subpass,
		Viewport:  p.target.Viewport,
		CullMode:  p.cull,
		DepthTest: p.depth,
		Bindings:  bindings,
	})
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", p.name, err)
	}
	sets := make([]metadata.DescriptorSet, 0, p.target.Frames)
	for i := 0; i < p.target.Frames; i++ {
		set, err := p.device.CreateDescriptorSet(object, p.writes(i, bindings))
		if err != nil {
			for _, s := range sets {
				s.Destroy()
			}
			object.Destroy()
			return fmt.Errorf("pipeline %s descriptor set %d: %w", p.name, i, err)
		}
		sets = append(sets, set)
	}
	p.retire()
	p.object, p.sets = object, sets
	return nil
}

func (p *Pipeline) retire() {
	if p.object == nil {
		return
	}
	p.retired = append(p.retired, retiredObject{object: p.object, sets: p.sets})
	p.object, p.sets = nil, nil
}

// requiredBindings merges the bindings both stages declare, ascending.
func requiredBindings(modules ...*metadata.ShaderModule) []uint32 {
	var out []uint32
	for b := uint32(0); b <= metadata.BindingMirror; b++ {
		for _, m := range modules {
			if m.Uses(b) {
				out = append(out, b)
				break
			}
		}
	}
	for _, m := range modules {
		for _, b := range m.Bindings {
			if b > metadata.BindingMirror && !containsBinding(out, b) {
				out = append(out, b)
			}
		}
	}
	return out
}

func containsBinding(bindings []uint32, b uint32) bool {
	for _, x := range bindings {
		if x == b {
			return true
		}
	}
	return false
}

func (p *Pipeline) supplies(binding uint32) bool {
	switch binding {
	case metadata.BindingVertexUniform, metadata.BindingFragmentUniform:
		return true
	case metadata.BindingTexture:
		return p.texture != nil
	case metadata.BindingMirror:
		// the mirror pass writes the image it would read
		return p.target.Mirror != nil && p.subpass == metadata.SubpassScene
	}
	return false
}

func (p *Pipeline) writes(frame int, bindings []uint32) []metadata.DescriptorWrite {
	writes := make([]metadata.DescriptorWrite, 0, len(bindings))
	for _, b := range bindings {
		w := metadata.DescriptorWrite{Binding: b}
		switch b {
		case metadata.BindingVertexUniform:
			w.Uniform = p.vertUniforms[frame]
		case metadata.BindingFragmentUniform:
			w.Uniform = p.fragUniforms[frame]
		case metadata.BindingTexture:
			w.Texture = p.texture
		case metadata.BindingMirror:
			w.Attachment = p.target.Mirror
		}
		writes = append(writes, w)
	}
	return writes
}

// WriteUniforms uploads the matrices and fragment values of frame. A nil
// data draws with the identity model and the frame light.
func (p *Pipeline) WriteUniforms(frame int, u FrameUniforms, data *ObjectData) error {
	if frame < 0 || frame >= len(p.vertUniforms) {
		return fmt.Errorf("pipeline %s: frame %d out of range", p.name, frame)
	}
	vb := vertexBlock{View: u.View, Proj: u.Proj}
	fb := fragmentBlock{LightPos: u.LightPos, Time: u.Time}
	if data != nil {
		vb.Model = data.Matrix
		fb.LightPos = data.LightPos
		fb.Options = data.Options
	} else {
		vb.Model = identity
	}
	if err := p.vertUniforms[frame].Write(vb.bytes()); err != nil {
		return fmt.Errorf("pipeline %s vertex uniforms: %w", p.name, err)
	}
	if err := p.fragUniforms[frame].Write(fb.bytes()); err != nil {
		return fmt.Errorf("pipeline %s fragment uniforms: %w", p.name, err)
	}
	return nil
}

// Record draws the pipeline geometry into cb. Disabled or unbuilt
// pipelines record nothing and report false.
func (p *Pipeline) Record(cb metadata.CommandBuffer, frame int) bool {
	return p.DrawWith(cb, frame, p.geometry)
}

// DrawWith is Record with another geometry of the same layout.
func (p *Pipeline) DrawWith(cb metadata.CommandBuffer, frame int, g *geometry.Geometry) bool {
	if !p.enabled || p.object == nil || g == nil || frame < 0 || frame >= len(p.sets) {
		return false
	}
	cb.BindPipeline(p.object)
	cb.BindDescriptorSet(p.object, p.sets[frame])
	cb.BindVertexBuffer(g.Vertices)
	cb.BindIndexBuffer(g.Indices)
	cb.DrawIndexed(g.IndexCount)
	return true
}

// HasRetired reports device objects waiting for ReleaseRetired.
func (p *Pipeline) HasRetired() bool {
	return len(p.retired) > 0
}

// ReleaseRetired destroys replaced device objects. The device must be idle.
func (p *Pipeline) ReleaseRetired() {
	for _, r := range p.retired {
		for _, s := range r.sets {
			s.Destroy()
		}
		r.object.Destroy()
	}
	p.retired = nil
}

func (p *Pipeline) destroyUniforms() {
	for _, u := range p.vertUniforms {
		u.Destroy()
	}
	for _, u := range p.fragUniforms {
		u.Destroy()
	}
	p.vertUniforms, p.fragUniforms = nil, nil
}

// Destroy releases every device object. Geometry, shaders and texture are
// shared and stay alive.
func (p *Pipeline) Destroy() {
	p.ReleaseRetired()
	for _, s := range p.sets {
		s.Destroy()
	}
	if p.object != nil {
		p.object.Destroy()
	}
	p.object, p.sets = nil, nil
	p.destroyUniforms()
}
