package renderer

import (
	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/geometry"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
	"github.com/spaghettifunk/shaderpixel/engine/shader"
)

type fakeBuffer struct {
	size      uint64
	destroyed bool
}

func (b *fakeBuffer) Size() uint64 { return b.size }
func (b *fakeBuffer) Destroy()     { b.destroyed = true }

type fakeUniform struct {
	size      uint64
	data      []byte
	busy      bool
	destroyed bool
}

func (u *fakeUniform) Size() uint64 { return u.size }
func (u *fakeUniform) Destroy()     { u.destroyed = true }

func (u *fakeUniform) Write(data []byte) error {
	if u.busy {
		return core.ErrUniformBusy
	}
	u.data = append(u.data[:0], data...)
	return nil
}

type fakeTexture struct {
	desc      metadata.TextureDesc
	destroyed bool
}

func (t *fakeTexture) Name() string { return t.desc.Name }
func (t *fakeTexture) Extent() metadata.Extent {
	return metadata.Extent{Width: t.desc.Width, Height: t.desc.Height}
}
func (t *fakeTexture) MipLevels() uint32 { return t.desc.MipLevels }
func (t *fakeTexture) Destroy()          { t.destroyed = true }

type fakeAttachment struct{ extent metadata.Extent }

func (a *fakeAttachment) Extent() metadata.Extent { return a.extent }

type fakeFramebuffer struct{ extent metadata.Extent }

func (f *fakeFramebuffer) Extent() metadata.Extent { return f.extent }

type fakeObject struct {
	desc      metadata.PipelineDesc
	destroyed bool
}

func (o *fakeObject) Destroy() { o.destroyed = true }

type fakeSet struct {
	writes    []metadata.DescriptorWrite
	destroyed bool
}

func (s *fakeSet) Destroy() { s.destroyed = true }

type fakeFence struct {
	device    *fakeDevice
	image     uint32
	destroyed bool
}

func (f *fakeFence) Wait() error {
	f.device.fenceWaits = append(f.device.fenceWaits, f.image)
	return nil
}

func (f *fakeFence) Destroy() { f.destroyed = true }

// fakeCommands records the names of the pipelines it draws.
type fakeCommands struct {
	beginErr error
	begins   int
	ended    bool
	current  string
	draws    []string
}

func (c *fakeCommands) Begin() error {
	if c.beginErr != nil {
		return c.beginErr
	}
	c.begins++
	c.ended = false
	c.draws = nil
	return nil
}

func (c *fakeCommands) BindPipeline(p metadata.DevicePipeline) {
	c.current = p.(*fakeObject).desc.Name
}

func (c *fakeCommands) BindDescriptorSet(metadata.DevicePipeline, metadata.DescriptorSet) {}
func (c *fakeCommands) BindVertexBuffer(metadata.Buffer)                                  {}
func (c *fakeCommands) BindIndexBuffer(metadata.Buffer)                                   {}

func (c *fakeCommands) DrawIndexed(uint32) {
	c.draws = append(c.draws, c.current)
}

func (c *fakeCommands) End() error {
	c.ended = true
	return nil
}

type secondaryKey struct {
	image   uint32
	subpass metadata.Subpass
}

type fakeSwapchain struct {
	device       *fakeDevice
	extent       metadata.Extent
	mode         metadata.PresentMode
	framebuffers []metadata.Framebuffer
	mirror       *fakeAttachment
	secondaries  map[secondaryKey]*fakeCommands

	next       uint32
	acquireErr error
	submitErr  error
	submitted  []uint32
	lastUI     metadata.CommandBuffer
	lastCmds   metadata.FrameCommands
	destroyed  bool
}

func (s *fakeSwapchain) Extent() metadata.Extent          { return s.extent }
func (s *fakeSwapchain) PresentMode() metadata.PresentMode { return s.mode }
func (s *fakeSwapchain) ImageCount() int                   { return len(s.framebuffers) }
func (s *fakeSwapchain) Framebuffers() []metadata.Framebuffer {
	return s.framebuffers
}
func (s *fakeSwapchain) MirrorAttachment() metadata.Attachment { return s.mirror }
func (s *fakeSwapchain) Destroy()                              { s.destroyed = true }

func (s *fakeSwapchain) Secondary(image uint32, subpass metadata.Subpass) metadata.CommandBuffer {
	return s.commands(image, subpass)
}

func (s *fakeSwapchain) commands(image uint32, subpass metadata.Subpass) *fakeCommands {
	key := secondaryKey{image, subpass}
	cb, ok := s.secondaries[key]
	if !ok {
		cb = &fakeCommands{}
		s.secondaries[key] = cb
	}
	return cb
}

func (s *fakeSwapchain) Acquire() (uint32, error) {
	if s.acquireErr != nil {
		return 0, s.acquireErr
	}
	image := s.next % uint32(len(s.framebuffers))
	s.next++
	return image, nil
}

func (s *fakeSwapchain) Submit(image uint32, cmds metadata.FrameCommands) (metadata.Fence, error) {
	s.submitted = append(s.submitted, image)
	s.lastUI = cmds.UI
	s.lastCmds = cmds
	return &fakeFence{device: s.device, image: image}, s.submitErr
}

type fakeDevice struct {
	images     int
	modes      []metadata.PresentMode
	swapchains []*fakeSwapchain
	objects    []*fakeObject
	sets       []*fakeSet
	uniforms   []*fakeUniform
	textures   []*fakeTexture
	fenceWaits []uint32
	waitIdle   int
	linearBlit bool
}

func newFakeDevice(images int) *fakeDevice {
	return &fakeDevice{images: images, modes: metadata.PresentModes, linearBlit: true}
}

func (d *fakeDevice) CreateVertexBuffer(data []byte) (metadata.Buffer, error) {
	return &fakeBuffer{size: uint64(len(data))}, nil
}

func (d *fakeDevice) CreateIndexBuffer(indices []uint32) (metadata.Buffer, error) {
	return &fakeBuffer{size: uint64(4 * len(indices))}, nil
}

func (d *fakeDevice) CreateTexture(desc metadata.TextureDesc) (metadata.Texture, error) {
	t := &fakeTexture{desc: desc}
	d.textures = append(d.textures, t)
	return t, nil
}

func (d *fakeDevice) SupportsLinearBlit() bool { return d.linearBlit }

func (d *fakeDevice) CreateUniformBuffer(size uint64) (metadata.UniformBuffer, error) {
	u := &fakeUniform{size: size}
	d.uniforms = append(d.uniforms, u)
	return u, nil
}

func (d *fakeDevice) CreatePipeline(desc metadata.PipelineDesc) (metadata.DevicePipeline, error) {
	o := &fakeObject{desc: desc}
	d.objects = append(d.objects, o)
	return o, nil
}

func (d *fakeDevice) CreateDescriptorSet(p metadata.DevicePipeline, writes []metadata.DescriptorWrite) (metadata.DescriptorSet, error) {
	s := &fakeSet{writes: writes}
	d.sets = append(d.sets, s)
	return s, nil
}

func (d *fakeDevice) CreateSwapchain(extent metadata.Extent, mode metadata.PresentMode, old metadata.Swapchain) (metadata.Swapchain, error) {
	sc := &fakeSwapchain{
		device:      d,
		extent:      extent,
		mode:        mode,
		mirror:      &fakeAttachment{extent: extent},
		secondaries: make(map[secondaryKey]*fakeCommands),
	}
	for i := 0; i < d.images; i++ {
		sc.framebuffers = append(sc.framebuffers, &fakeFramebuffer{extent: extent})
	}
	d.swapchains = append(d.swapchains, sc)
	return sc, nil
}

func (d *fakeDevice) SupportedPresentModes() []metadata.PresentMode { return d.modes }

func (d *fakeDevice) WaitIdle() error {
	d.waitIdle++
	return nil
}

func (d *fakeDevice) swapchain() *fakeSwapchain {
	return d.swapchains[len(d.swapchains)-1]
}

// built returns the live device objects named name.
func (d *fakeDevice) built(name string) []*fakeObject {
	var out []*fakeObject
	for _, o := range d.objects {
		if o.desc.Name == name && !o.destroyed {
			out = append(out, o)
		}
	}
	return out
}

func staticShaders(vertBindings, fragBindings []uint32) (*shader.Handle, *shader.Handle) {
	vert := shader.NewStatic(&metadata.ShaderModule{Stage: metadata.ShaderStageVertex, Bindings: vertBindings})
	frag := shader.NewStatic(&metadata.ShaderModule{Stage: metadata.ShaderStageFragment, Bindings: fragBindings})
	return vert, frag
}

func testGeometry() *geometry.Geometry {
	return &geometry.Geometry{
		Name:       "quad",
		Layout:     metadata.VertexLayoutPosNorm,
		Vertices:   &fakeBuffer{size: 96},
		Indices:    &fakeBuffer{size: 24},
		IndexCount: 6,
	}
}
