package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	emath "github.com/spaghettifunk/shaderpixel/engine/math"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

// VulkanSwapchain owns the presentable images and everything sized after
// them: attachments, framebuffers, per image command buffers and
// semaphores.
type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	imageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView

	ColorAttachment  *VulkanImage
	DepthAttachment  *VulkanImage
	MirrorColor      *VulkanImage
	MirrorDepth      *VulkanImage

	// framebuffers used for on-screen rendering.
	framebuffers []*VulkanFramebuffer

	extent metadata.Extent
	mode   metadata.PresentMode

	primaries   []*VulkanCommandBuffer
	secondaries [][metadata.SubpassCount]*VulkanCommandBuffer

	// imageAvailable[i] is the semaphore the last acquire of image i
	// signaled; spare is handed to the next acquire.
	imageAvailable []vk.Semaphore
	spare          vk.Semaphore
	renderComplete []vk.Semaphore

	context *VulkanContext
}

var presentModes = map[metadata.PresentMode]vk.PresentMode{
	metadata.PresentModeImmediate:   vk.PresentModeImmediate,
	metadata.PresentModeMailbox:     vk.PresentModeMailbox,
	metadata.PresentModeFifo:        vk.PresentModeFifo,
	metadata.PresentModeFifoRelaxed: vk.PresentModeFifoRelaxed,
}

// chooseSurfaceFormat prefers BGRA8 unorm with an sRGB color space.
func chooseSurfaceFormat(support *VulkanSwapchainSupportInfo) vk.SurfaceFormat {
	for _, format := range support.Formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return support.Formats[0]
}

func supportedPresentModes(support *VulkanSwapchainSupportInfo) []metadata.PresentMode {
	var out []metadata.PresentMode
	for _, mode := range metadata.PresentModes {
		for _, m := range support.PresentModes {
			if presentModes[mode] == m {
				out = append(out, mode)
				break
			}
		}
	}
	return out
}

func SwapchainCreate(context *VulkanContext, extent metadata.Extent, mode metadata.PresentMode, old *VulkanSwapchain) (*VulkanSwapchain, error) {
	device := context.Device
	if err := DeviceQuerySwapchainSupport(device.PhysicalDevice, context.Surface, &device.SwapchainSupport); err != nil {
		return nil, err
	}
	support := &device.SwapchainSupport
	capabilities := support.Capabilities

	swapchain := &VulkanSwapchain{
		ImageFormat: chooseSurfaceFormat(support),
		context:     context,
		mode:        metadata.PresentModeFifo,
	}
	for _, m := range supportedPresentModes(support) {
		if m == mode {
			swapchain.mode = mode
		}
	}
	if swapchain.mode != mode {
		core.LogWarn("present mode %s is not supported, falling back to %s", mode, swapchain.mode)
	}

	swapchainExtent := vk.Extent2D{Width: extent.Width, Height: extent.Height}
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		swapchainExtent = capabilities.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	swapchainExtent.Width = emath.Clamp(swapchainExtent.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	swapchainExtent.Height = emath.Clamp(swapchainExtent.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)
	if swapchainExtent.Width == 0 || swapchainExtent.Height == 0 {
		return nil, fmt.Errorf("surface %dx%d: %w", swapchainExtent.Width, swapchainExtent.Height, core.ErrZeroExtent)
	}
	swapchain.extent = metadata.Extent{Width: swapchainExtent.Width, Height: swapchainExtent.Height}

	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentModes[swapchain.mode],
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(device.GraphicsQueueIndex),
			uint32(device.PresentQueueIndex),
		}
	}
	if old != nil {
		swapchainCreateInfo.OldSwapchain = old.Handle
	}

	var swapchainHandle vk.Swapchain
	if res := vk.CreateSwapchain(device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle); res != vk.Success {
		return nil, resultError("vkCreateSwapchainKHR", res)
	}
	swapchain.Handle = swapchainHandle

	if err := swapchain.createImages(); err != nil {
		swapchain.Destroy()
		return nil, err
	}
	if err := swapchain.createAttachments(); err != nil {
		swapchain.Destroy()
		return nil, err
	}
	if err := swapchain.createFramebuffers(); err != nil {
		swapchain.Destroy()
		return nil, err
	}
	if err := swapchain.createCommandBuffers(); err != nil {
		swapchain.Destroy()
		return nil, err
	}
	if err := swapchain.createSyncObjects(); err != nil {
		swapchain.Destroy()
		return nil, err
	}

	core.LogInfo("Swapchain created successfully.")
	return swapchain, nil
}

func (vs *VulkanSwapchain) createImages() error {
	device := vs.context.Device.LogicalDevice
	var count uint32
	if res := vk.GetSwapchainImages(device, vs.Handle, &count, nil); res != vk.Success {
		return resultError("vkGetSwapchainImagesKHR", res)
	}
	vs.Images = make([]vk.Image, count)
	if res := vk.GetSwapchainImages(device, vs.Handle, &count, vs.Images); res != vk.Success {
		return resultError("vkGetSwapchainImagesKHR", res)
	}
	vs.imageCount = count

	vs.Views = make([]vk.ImageView, 0, count)
	for _, image := range vs.Images {
		view, err := createImageView(vs.context, image, vs.ImageFormat.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit), 1)
		if err != nil {
			return err
		}
		vs.Views = append(vs.Views, view)
	}
	return nil
}

func (vs *VulkanSwapchain) createAttachments() error {
	context := vs.context
	w, h := vs.extent.Width, vs.extent.Height
	color := vs.ImageFormat.Format
	depth := context.Device.DepthFormat
	colorAspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	depthAspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	transient := vk.ImageUsageFlags(vk.ImageUsageTransientAttachmentBit)
	colorUsage := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	depthUsage := vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)

	var err error
	if vs.ColorAttachment, err = ImageCreate(context, VulkanImageConfig{
		Width: w, Height: h, Samples: context.Samples, Format: color,
		Usage: colorUsage | transient, Aspect: colorAspect,
	}); err != nil {
		return fmt.Errorf("msaa color: %w", err)
	}
	if vs.DepthAttachment, err = ImageCreate(context, VulkanImageConfig{
		Width: w, Height: h, Samples: context.Samples, Format: depth,
		Usage: depthUsage | transient, Aspect: depthAspect,
	}); err != nil {
		return fmt.Errorf("msaa depth: %w", err)
	}
	if vs.MirrorColor, err = ImageCreate(context, VulkanImageConfig{
		Width: w, Height: h, Format: color,
		Usage: colorUsage | vk.ImageUsageFlags(vk.ImageUsageInputAttachmentBit) | transient, Aspect: colorAspect,
	}); err != nil {
		return fmt.Errorf("mirror color: %w", err)
	}
	if vs.MirrorDepth, err = ImageCreate(context, VulkanImageConfig{
		Width: w, Height: h, Format: depth,
		Usage: depthUsage | transient, Aspect: depthAspect,
	}); err != nil {
		return fmt.Errorf("mirror depth: %w", err)
	}
	return nil
}

func (vs *VulkanSwapchain) createFramebuffers() error {
	vs.framebuffers = make([]*VulkanFramebuffer, 0, vs.imageCount)
	for i := 0; i < int(vs.imageCount); i++ {
		attachments := make([]vk.ImageView, ATTACHMENT_COUNT)
		attachments[ATTACHMENT_SWAPCHAIN] = vs.Views[i]
		attachments[ATTACHMENT_MSAA_COLOR] = vs.ColorAttachment.View
		attachments[ATTACHMENT_MSAA_DEPTH] = vs.DepthAttachment.View
		attachments[ATTACHMENT_MIRROR_COLOR] = vs.MirrorColor.View
		attachments[ATTACHMENT_MIRROR_DEPTH] = vs.MirrorDepth.View
		fb, err := FramebufferCreate(vs.context, vs.context.MainRenderpass, vs.extent.Width, vs.extent.Height, attachments)
		if err != nil {
			return err
		}
		vs.framebuffers = append(vs.framebuffers, fb)
	}
	return nil
}

func (vs *VulkanSwapchain) createCommandBuffers() error {
	vs.primaries = make([]*VulkanCommandBuffer, vs.imageCount)
	vs.secondaries = make([][metadata.SubpassCount]*VulkanCommandBuffer, vs.imageCount)
	for i := 0; i < int(vs.imageCount); i++ {
		cb, err := NewVulkanCommandBuffer(vs.context, vs.context.Device.GraphicsCommandPool, true)
		if err != nil {
			return err
		}
		vs.primaries[i] = cb
		for subpass := metadata.SubpassMirror; subpass < metadata.SubpassCount; subpass++ {
			sec, err := newSecondary(vs.context, subpass, vs.framebuffers[i].Handle)
			if err != nil {
				return err
			}
			vs.secondaries[i][subpass] = sec
		}
	}
	core.LogDebug("Vulkan command buffers created.")
	return nil
}

func (vs *VulkanSwapchain) createSyncObjects() error {
	newSemaphore := func() (vk.Semaphore, error) {
		info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
		var s vk.Semaphore
		if res := vk.CreateSemaphore(vs.context.Device.LogicalDevice, &info, vs.context.Allocator, &s); res != vk.Success {
			return vk.NullSemaphore, resultError("vkCreateSemaphore", res)
		}
		return s, nil
	}
	var err error
	if vs.spare, err = newSemaphore(); err != nil {
		return err
	}
	vs.imageAvailable = make([]vk.Semaphore, vs.imageCount)
	vs.renderComplete = make([]vk.Semaphore, vs.imageCount)
	for i := 0; i < int(vs.imageCount); i++ {
		if vs.imageAvailable[i], err = newSemaphore(); err != nil {
			return err
		}
		if vs.renderComplete[i], err = newSemaphore(); err != nil {
			return err
		}
	}
	return nil
}

func (vs *VulkanSwapchain) Extent() metadata.Extent {
	return vs.extent
}

func (vs *VulkanSwapchain) PresentMode() metadata.PresentMode {
	return vs.mode
}

func (vs *VulkanSwapchain) ImageCount() int {
	return int(vs.imageCount)
}

func (vs *VulkanSwapchain) Framebuffers() []metadata.Framebuffer {
	out := make([]metadata.Framebuffer, len(vs.framebuffers))
	for i, fb := range vs.framebuffers {
		out[i] = fb
	}
	return out
}

func (vs *VulkanSwapchain) MirrorAttachment() metadata.Attachment {
	return vs.MirrorColor
}

func (vs *VulkanSwapchain) Secondary(image uint32, subpass metadata.Subpass) metadata.CommandBuffer {
	return vs.secondaries[image][subpass]
}

// Acquire treats a suboptimal surface as usable; only an out of date one
// asks for recreation.
func (vs *VulkanSwapchain) Acquire() (uint32, error) {
	var imageIndex uint32
	semaphore := vs.spare
	res := vk.AcquireNextImage(vs.context.Device.LogicalDevice, vs.Handle, VULKAN_WAIT_FOREVER, semaphore, vk.NullFence, &imageIndex)
	switch res {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return 0, core.ErrSwapchainOutOfDate
	default:
		return 0, resultError("vkAcquireNextImageKHR", res)
	}
	vs.spare, vs.imageAvailable[imageIndex] = vs.imageAvailable[imageIndex], semaphore
	return imageIndex, nil
}

func (vs *VulkanSwapchain) Submit(image uint32, cmds metadata.FrameCommands) (metadata.Fence, error) {
	context := vs.context
	primary := vs.primaries[image]
	if err := primary.begin(true, false, false); err != nil {
		return nil, err
	}
	renderpass := context.MainRenderpass
	renderpass.RenderpassBegin(primary, vs.framebuffers[image], cmds.ClearColor)
	for i, cmd := range []metadata.CommandBuffer{cmds.Mirror, cmds.Scene, cmds.UI} {
		if i > 0 {
			renderpass.NextSubpass(primary)
		}
		if cmd == nil {
			continue
		}
		secondary, ok := cmd.(*VulkanCommandBuffer)
		if !ok {
			return nil, fmt.Errorf("subpass %s: unexpected command buffer %T", metadata.Subpass(i), cmd)
		}
		vk.CmdExecuteCommands(primary.Handle, 1, []vk.CommandBuffer{secondary.Handle})
	}
	renderpass.RenderpassEnd(primary)
	if err := primary.End(); err != nil {
		return nil, err
	}

	fence, err := NewFence(context, false)
	if err != nil {
		return nil, err
	}

	device := context.Device
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{vs.imageAvailable[image]},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{primary.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{vs.renderComplete[image]},
	}
	if err := context.locks.SafeQueueCall(uint32(device.GraphicsQueueIndex), func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle))
	}); err != nil {
		fence.Destroy()
		return nil, err
	}
	primary.UpdateSubmitted()

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{vs.renderComplete[image]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{image},
	}
	var res vk.Result
	_ = context.locks.SafeQueueCall(uint32(device.PresentQueueIndex), func() error {
		res = vk.QueuePresent(device.PresentQueue, &presentInfo)
		return nil
	})
	switch res {
	case vk.Success:
		return fence, nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return fence, core.ErrSwapchainOutOfDate
	default:
		return fence, resultError("vkQueuePresentKHR", res)
	}
}

// Destroy expects the device to be idle.
func (vs *VulkanSwapchain) Destroy() {
	context := vs.context
	device := context.Device.LogicalDevice

	for _, s := range vs.imageAvailable {
		if s != vk.NullSemaphore {
			vk.DestroySemaphore(device, s, context.Allocator)
		}
	}
	for _, s := range vs.renderComplete {
		if s != vk.NullSemaphore {
			vk.DestroySemaphore(device, s, context.Allocator)
		}
	}
	if vs.spare != vk.NullSemaphore {
		vk.DestroySemaphore(device, vs.spare, context.Allocator)
	}
	vs.imageAvailable, vs.renderComplete, vs.spare = nil, nil, vk.NullSemaphore

	for i := range vs.secondaries {
		for _, cb := range vs.secondaries[i] {
			if cb != nil {
				cb.Free()
			}
		}
	}
	for _, cb := range vs.primaries {
		if cb != nil {
			cb.Free()
		}
	}
	vs.secondaries, vs.primaries = nil, nil

	for _, fb := range vs.framebuffers {
		fb.Destroy(context)
	}
	vs.framebuffers = nil

	for _, image := range []*VulkanImage{vs.ColorAttachment, vs.DepthAttachment, vs.MirrorColor, vs.MirrorDepth} {
		if image != nil {
			image.ImageDestroy(context)
		}
	}
	vs.ColorAttachment, vs.DepthAttachment, vs.MirrorColor, vs.MirrorDepth = nil, nil, nil, nil

	// Only destroy the views, not the images, since those are owned by the swapchain.
	for _, view := range vs.Views {
		vk.DestroyImageView(device, view, context.Allocator)
	}
	vs.Views, vs.Images = nil, nil

	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(device, vs.Handle, context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}
