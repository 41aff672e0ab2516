package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

type VulkanImage struct {
	Handle    vk.Image
	Memory    vk.DeviceMemory
	View      vk.ImageView
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    vk.Format
}

type VulkanImageConfig struct {
	Width     uint32
	Height    uint32
	MipLevels uint32
	Samples   vk.SampleCountFlagBits
	Format    vk.Format
	Usage     vk.ImageUsageFlags
	Aspect    vk.ImageAspectFlags
}

// ImageCreate allocates a device local 2D image and its view.
func ImageCreate(context *VulkanContext, config VulkanImageConfig) (*VulkanImage, error) {
	if config.MipLevels == 0 {
		config.MipLevels = 1
	}
	if config.Samples == 0 {
		config.Samples = vk.SampleCount1Bit
	}
	image := &VulkanImage{
		Width:     config.Width,
		Height:    config.Height,
		MipLevels: config.MipLevels,
		Format:    config.Format,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  config.Width,
			Height: config.Height,
			Depth:  1,
		},
		MipLevels:     config.MipLevels,
		ArrayLayers:   1,
		Format:        config.Format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         config.Usage,
		Samples:       config.Samples,
		SharingMode:   vk.SharingModeExclusive,
	}

	var handle vk.Image
	if res := vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &handle); res != vk.Success {
		return nil, resultError("vkCreateImage", res)
	}
	image.Handle = handle

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType, err := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		image.ImageDestroy(context)
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory); res != vk.Success {
		image.ImageDestroy(context)
		return nil, resultError("vkAllocateMemory", res)
	}
	image.Memory = memory

	if res := vk.BindImageMemory(context.Device.LogicalDevice, handle, memory, 0); res != vk.Success {
		image.ImageDestroy(context)
		return nil, resultError("vkBindImageMemory", res)
	}

	view, err := createImageView(context, handle, config.Format, config.Aspect, config.MipLevels)
	if err != nil {
		image.ImageDestroy(context)
		return nil, err
	}
	image.View = view
	return image, nil
}

func createImageView(context *VulkanContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags, mipLevels uint32) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view); res != vk.Success {
		return vk.NullImageView, resultError("vkCreateImageView", res)
	}
	return view, nil
}

// Extent implements metadata.Attachment for swapchain owned images.
func (i *VulkanImage) Extent() metadata.Extent {
	return metadata.Extent{Width: i.Width, Height: i.Height}
}

func (i *VulkanImage) ImageDestroy(context *VulkanContext) {
	if i.View != vk.NullImageView {
		vk.DestroyImageView(context.Device.LogicalDevice, i.View, context.Allocator)
		i.View = vk.NullImageView
	}
	if i.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, i.Memory, context.Allocator)
		i.Memory = vk.NullDeviceMemory
	}
	if i.Handle != vk.NullImage {
		vk.DestroyImage(context.Device.LogicalDevice, i.Handle, context.Allocator)
		i.Handle = vk.NullImage
	}
}

// transitionLayout records a barrier moving levels [baseMip, baseMip+count)
// between the layouts used by texture uploads.
func (i *VulkanImage) transitionLayout(cb vk.CommandBuffer, oldLayout, newLayout vk.ImageLayout, baseMip, count uint32) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               i.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   baseMip,
			LevelCount:     count,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	switch {
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutTransferSrcOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case oldLayout == vk.ImageLayoutTransferSrcOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferReadBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	default: // transfer dst to shader read
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	}

	vk.CmdPipelineBarrier(cb, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// copyFromBuffer copies tightly packed pixels of one mip level.
func (i *VulkanImage) copyFromBuffer(cb vk.CommandBuffer, buffer vk.Buffer, offset vk.DeviceSize, mip uint32) {
	region := vk.BufferImageCopy{
		BufferOffset: offset,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       mip,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{
			Width:  mipSize(i.Width, mip),
			Height: mipSize(i.Height, mip),
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(cb, buffer, i.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

// generateMipmaps blits every level from the previous one and leaves the
// whole chain in the shader read layout. Level 0 must be in transfer dst.
func (i *VulkanImage) generateMipmaps(cb vk.CommandBuffer) {
	for mip := uint32(1); mip < i.MipLevels; mip++ {
		i.transitionLayout(cb, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal, mip-1, 1)

		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:   mip - 1,
				LayerCount: 1,
			},
			SrcOffsets: [2]vk.Offset3D{
				{X: 0, Y: 0, Z: 0},
				{X: int32(mipSize(i.Width, mip-1)), Y: int32(mipSize(i.Height, mip-1)), Z: 1},
			},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:   mip,
				LayerCount: 1,
			},
			DstOffsets: [2]vk.Offset3D{
				{X: 0, Y: 0, Z: 0},
				{X: int32(mipSize(i.Width, mip)), Y: int32(mipSize(i.Height, mip)), Z: 1},
			},
		}
		vk.CmdBlitImage(cb,
			i.Handle, vk.ImageLayoutTransferSrcOptimal,
			i.Handle, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageBlit{blit}, vk.FilterLinear)

		i.transitionLayout(cb, vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal, mip-1, 1)
	}
	i.transitionLayout(cb, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal, i.MipLevels-1, 1)
}

func mipSize(size, level uint32) uint32 {
	size >>= level
	if size == 0 {
		return 1
	}
	return size
}
