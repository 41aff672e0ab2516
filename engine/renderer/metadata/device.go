package metadata

import "github.com/google/uuid"

/** @brief A device-local GPU buffer. */
type Buffer interface {
	Size() uint64
	Destroy()
}

/** @brief A host-visible buffer written once per frame. */
type UniformBuffer interface {
	Size() uint64
	// Write copies data at offset 0. It fails with core.ErrUniformBusy when
	// the mapping cannot be acquired.
	Write(data []byte) error
	Destroy()
}

/** @brief A sampled image with its view and sampler. */
type Texture interface {
	Name() string
	Extent() Extent
	MipLevels() uint32
	Destroy()
}

/** @brief An image owned by the swapchain that pipelines read as an input attachment. */
type Attachment interface {
	Extent() Extent
}

type Framebuffer interface {
	Extent() Extent
}

/** @brief A built device pipeline object. */
type DevicePipeline interface {
	Destroy()
}

type DescriptorSet interface {
	Destroy()
}

/** @brief Signals when the work of one submission completed. */
type Fence interface {
	// Wait blocks until the fence signals.
	Wait() error
	Destroy()
}

/**
 * @brief A secondary command buffer recorded for one subpass of one
 * swapchain image. Begin resets previous contents.
 */
type CommandBuffer interface {
	Begin() error
	BindPipeline(p DevicePipeline)
	BindDescriptorSet(p DevicePipeline, set DescriptorSet)
	BindVertexBuffer(b Buffer)
	BindIndexBuffer(b Buffer)
	DrawIndexed(indexCount uint32)
	End() error
}

/**
 * @brief The secondary buffers executed by one frame, one per subpass, and
 * the color the swapchain image is cleared to.
 */
type FrameCommands struct {
	Mirror     CommandBuffer
	Scene      CommandBuffer
	UI         CommandBuffer
	ClearColor [4]float32
}

/**
 * @brief The presentable images together with every attachment that depends
 * on their extent (msaa color, depth, mirror color and depth) and one
 * framebuffer per image. Recreated as a unit on resize.
 */
type Swapchain interface {
	Extent() Extent
	PresentMode() PresentMode
	ImageCount() int
	Framebuffers() []Framebuffer
	MirrorAttachment() Attachment
	// Secondary returns the command buffer of subpass for image.
	Secondary(image uint32, subpass Subpass) CommandBuffer
	// Acquire returns the next image index or core.ErrSwapchainOutOfDate.
	Acquire() (uint32, error)
	// Submit records the primary buffer for image, submits it and presents.
	// The returned fence signals when the submission completes. A stale
	// surface at present time yields the fence and core.ErrSwapchainOutOfDate.
	Submit(image uint32, cmds FrameCommands) (Fence, error)
	Destroy()
}

/**
 * @brief Describes the fixed-function state and shaders of a pipeline.
 */
type PipelineDesc struct {
	/** @brief Stable identity of the owning pipeline across rebuilds. */
	ID       uuid.UUID
	Name     string
	Vertex   *ShaderModule
	Fragment *ShaderModule
	Layout   VertexLayout
	Subpass  Subpass
	Viewport Extent
	CullMode FaceCullMode
	/** @brief Depth test and write. */
	DepthTest bool
	/** @brief Descriptor bindings of set 0, in ascending order. */
	Bindings []uint32
}

/** @brief One resource bound to a descriptor binding. Exactly one field is set. */
type DescriptorWrite struct {
	Binding    uint32
	Uniform    UniformBuffer
	Texture    Texture
	Attachment Attachment
}

/** @brief Creates vertex and index buffers. */
type BufferAllocator interface {
	CreateVertexBuffer(data []byte) (Buffer, error)
	CreateIndexBuffer(indices []uint32) (Buffer, error)
}

/** @brief Uploads textures. */
type TextureUploader interface {
	CreateTexture(desc TextureDesc) (Texture, error)
	// SupportsLinearBlit reports whether mips can be generated on the device.
	SupportsLinearBlit() bool
}

/**
 * @brief The GPU device as seen by the frame engine.
 */
type Device interface {
	BufferAllocator
	TextureUploader
	CreateUniformBuffer(size uint64) (UniformBuffer, error)
	CreatePipeline(desc PipelineDesc) (DevicePipeline, error)
	CreateDescriptorSet(p DevicePipeline, writes []DescriptorWrite) (DescriptorSet, error)
	// CreateSwapchain builds a swapchain for extent, retiring old when not nil.
	CreateSwapchain(extent Extent, mode PresentMode, old Swapchain) (Swapchain, error)
	SupportedPresentModes() []PresentMode
	WaitIdle() error
}
