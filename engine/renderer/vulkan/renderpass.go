package vulkan

import (
	vk "github.com/goki/vulkan"
)

// VulkanRenderpass is the frame render pass:
//
//	subpass 0 (mirror): mirror color + mirror depth
//	subpass 1 (scene):  msaa color + msaa depth, resolved into the swapchain
//	                    image, mirror color read as input attachment
//	subpass 2 (ui):     swapchain image
type VulkanRenderpass struct {
	Handle      vk.RenderPass
	ColorFormat vk.Format
	DepthFormat vk.Format
	Samples     vk.SampleCountFlagBits
	Depth       float32
	Stencil     uint32
}

func attachment(format vk.Format, samples vk.SampleCountFlagBits, load vk.AttachmentLoadOp, store vk.AttachmentStoreOp, final vk.ImageLayout) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         format,
		Samples:        samples,
		LoadOp:         load,
		StoreOp:        store,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    final,
	}
}

func RenderpassCreate(context *VulkanContext, colorFormat vk.Format) (*VulkanRenderpass, error) {
	outRenderpass := &VulkanRenderpass{
		ColorFormat: colorFormat,
		DepthFormat: context.Device.DepthFormat,
		Samples:     context.Samples,
		Depth:       1.0,
		Stencil:     0,
	}
	samples := context.Samples

	attachments := make([]vk.AttachmentDescription, ATTACHMENT_COUNT)
	// Fully overwritten by the resolve, then drawn over by the ui.
	attachments[ATTACHMENT_SWAPCHAIN] = attachment(colorFormat, vk.SampleCount1Bit,
		vk.AttachmentLoadOpDontCare, vk.AttachmentStoreOpStore, vk.ImageLayoutPresentSrc)
	attachments[ATTACHMENT_MSAA_COLOR] = attachment(colorFormat, samples,
		vk.AttachmentLoadOpClear, vk.AttachmentStoreOpDontCare, vk.ImageLayoutColorAttachmentOptimal)
	attachments[ATTACHMENT_MSAA_DEPTH] = attachment(context.Device.DepthFormat, samples,
		vk.AttachmentLoadOpClear, vk.AttachmentStoreOpDontCare, vk.ImageLayoutDepthStencilAttachmentOptimal)
	attachments[ATTACHMENT_MIRROR_COLOR] = attachment(colorFormat, vk.SampleCount1Bit,
		vk.AttachmentLoadOpClear, vk.AttachmentStoreOpDontCare, vk.ImageLayoutShaderReadOnlyOptimal)
	attachments[ATTACHMENT_MIRROR_DEPTH] = attachment(context.Device.DepthFormat, vk.SampleCount1Bit,
		vk.AttachmentLoadOpClear, vk.AttachmentStoreOpDontCare, vk.ImageLayoutDepthStencilAttachmentOptimal)

	ref := func(index uint32, layout vk.ImageLayout) vk.AttachmentReference {
		return vk.AttachmentReference{Attachment: index, Layout: layout}
	}

	mirrorDepth := ref(ATTACHMENT_MIRROR_DEPTH, vk.ImageLayoutDepthStencilAttachmentOptimal)
	sceneDepth := ref(ATTACHMENT_MSAA_DEPTH, vk.ImageLayoutDepthStencilAttachmentOptimal)

	// The resolve attachment is only written when the scene is multisampled.
	sceneColor := ref(ATTACHMENT_MSAA_COLOR, vk.ImageLayoutColorAttachmentOptimal)
	var resolve []vk.AttachmentReference
	if samples != vk.SampleCount1Bit {
		resolve = []vk.AttachmentReference{ref(ATTACHMENT_SWAPCHAIN, vk.ImageLayoutColorAttachmentOptimal)}
	} else {
		sceneColor = ref(ATTACHMENT_SWAPCHAIN, vk.ImageLayoutColorAttachmentOptimal)
		attachments[ATTACHMENT_SWAPCHAIN].LoadOp = vk.AttachmentLoadOpClear
	}

	subpasses := []vk.SubpassDescription{
		{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			ColorAttachmentCount:    1,
			PColorAttachments:       []vk.AttachmentReference{ref(ATTACHMENT_MIRROR_COLOR, vk.ImageLayoutColorAttachmentOptimal)},
			PDepthStencilAttachment: &mirrorDepth,
		},
		{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			ColorAttachmentCount:    1,
			PColorAttachments:       []vk.AttachmentReference{sceneColor},
			PResolveAttachments:     resolve,
			PDepthStencilAttachment: &sceneDepth,
			InputAttachmentCount:    1,
			PInputAttachments:       []vk.AttachmentReference{ref(ATTACHMENT_MIRROR_COLOR, vk.ImageLayoutShaderReadOnlyOptimal)},
		},
		{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: 1,
			PColorAttachments:    []vk.AttachmentReference{ref(ATTACHMENT_SWAPCHAIN, vk.ImageLayoutColorAttachmentOptimal)},
		},
	}

	attachmentStages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
		vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) |
		vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
	attachmentWrites := vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
		vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)

	dependencies := []vk.SubpassDependency{
		{
			SrcSubpass:    vk.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  attachmentStages,
			DstStageMask:  attachmentStages,
			SrcAccessMask: 0,
			DstAccessMask: attachmentWrites,
		},
		{
			SrcSubpass:    vk.SubpassExternal,
			DstSubpass:    1,
			SrcStageMask:  attachmentStages,
			DstStageMask:  attachmentStages,
			SrcAccessMask: 0,
			DstAccessMask: attachmentWrites,
		},
		// The scene reads what the mirror pass wrote at the same pixel.
		{
			SrcSubpass:      0,
			DstSubpass:      1,
			SrcStageMask:    vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			DstStageMask:    vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			SrcAccessMask:   vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			DstAccessMask:   vk.AccessFlags(vk.AccessInputAttachmentReadBit),
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		},
		{
			SrcSubpass:      1,
			DstSubpass:      2,
			SrcStageMask:    vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			DstStageMask:    vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			SrcAccessMask:   vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			DstAccessMask:   vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		},
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}

	var pRenderPass vk.RenderPass
	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &pRenderPass); res != vk.Success {
		return nil, resultError("vkCreateRenderPass", res)
	}
	outRenderpass.Handle = pRenderPass
	return outRenderpass, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

// RenderpassBegin starts the pass on framebuffer. Every subpass executes
// secondary command buffers.
func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, framebuffer *VulkanFramebuffer, clear [4]float32) {
	clearValues := make([]vk.ClearValue, ATTACHMENT_COUNT)
	clearValues[ATTACHMENT_SWAPCHAIN].SetColor(clear[:])
	clearValues[ATTACHMENT_MSAA_COLOR].SetColor(clear[:])
	clearValues[ATTACHMENT_MSAA_DEPTH].SetDepthStencil(vr.Depth, vr.Stencil)
	clearValues[ATTACHMENT_MIRROR_COLOR].SetColor(clear[:])
	clearValues[ATTACHMENT_MIRROR_DEPTH].SetDepthStencil(vr.Depth, vr.Stencil)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: framebuffer.Width, Height: framebuffer.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsSecondaryCommandBuffers)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) NextSubpass(commandBuffer *VulkanCommandBuffer) {
	vk.CmdNextSubpass(commandBuffer.Handle, vk.SubpassContentsSecondaryCommandBuffers)
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}
