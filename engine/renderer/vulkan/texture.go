package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// VulkanTexture is a sampled RGBA8 image with its whole mip chain.
type VulkanTexture struct {
	name    string
	Image   *VulkanImage
	Sampler vk.Sampler

	context *VulkanContext
}

// createTexture uploads desc. A single level with MipLevels > 1 is blitted
// down on the device; otherwise every level comes from desc.
func createTexture(context *VulkanContext, desc metadata.TextureDesc) (*VulkanTexture, error) {
	if len(desc.Levels) == 0 {
		return nil, fmt.Errorf("texture %s has no pixels", desc.Name)
	}
	levels := desc.MipLevels
	if levels == 0 {
		levels = 1
	}
	blit := len(desc.Levels) == 1 && levels > 1
	if blit && !context.Device.LinearBlit {
		levels = 1
		blit = false
	}
	if !blit && uint32(len(desc.Levels)) < levels {
		levels = uint32(len(desc.Levels))
	}

	var pixels []byte
	offsets := make([]vk.DeviceSize, 0, len(desc.Levels))
	for i := uint32(0); i < uint32(len(desc.Levels)) && i < levels; i++ {
		want := int(4 * mipSize(desc.Width, i) * mipSize(desc.Height, i))
		if len(desc.Levels[i]) != want {
			return nil, fmt.Errorf("texture %s level %d has %d bytes, want %d", desc.Name, i, len(desc.Levels[i]), want)
		}
		offsets = append(offsets, vk.DeviceSize(len(pixels)))
		pixels = append(pixels, desc.Levels[i]...)
	}

	staging, err := createStagingBuffer(context, pixels)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	usage := vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) | vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	if blit {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	image, err := ImageCreate(context, VulkanImageConfig{
		Width:     desc.Width,
		Height:    desc.Height,
		MipLevels: levels,
		Format:    TEXTURE_FORMAT,
		Usage:     usage,
		Aspect:    vk.ImageAspectFlags(vk.ImageAspectColorBit),
	})
	if err != nil {
		return nil, fmt.Errorf("texture %s: %w", desc.Name, err)
	}

	cb, err := AllocateAndBeginSingleUse(context)
	if err != nil {
		image.ImageDestroy(context)
		return nil, err
	}
	image.transitionLayout(cb.Handle, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal, 0, levels)
	for level, offset := range offsets {
		image.copyFromBuffer(cb.Handle, staging.Handle, offset, uint32(level))
	}
	if blit {
		image.generateMipmaps(cb.Handle)
	} else {
		image.transitionLayout(cb.Handle, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal, 0, levels)
	}
	if err := cb.EndSingleUse(); err != nil {
		image.ImageDestroy(context)
		return nil, err
	}

	sampler, err := createSampler(context, levels)
	if err != nil {
		image.ImageDestroy(context)
		return nil, err
	}
	return &VulkanTexture{name: desc.Name, Image: image, Sampler: sampler, context: context}, nil
}

func createSampler(context *VulkanContext, levels uint32) (vk.Sampler, error) {
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MinLod:                  0,
		MaxLod:                  float32(levels),
	}
	if context.Device.Anisotropy {
		limits := context.Device.Properties.Limits
		limits.Deref()
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = min(VULKAN_MAX_ANISOTROPY, limits.MaxSamplerAnisotropy)
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(context.Device.LogicalDevice, &info, context.Allocator, &sampler); res != vk.Success {
		return vk.NullSampler, resultError("vkCreateSampler", res)
	}
	return sampler, nil
}

func (t *VulkanTexture) Name() string {
	return t.name
}

func (t *VulkanTexture) Extent() metadata.Extent {
	return t.Image.Extent()
}

func (t *VulkanTexture) MipLevels() uint32 {
	return t.Image.MipLevels
}

func (t *VulkanTexture) Destroy() {
	if t.Sampler != vk.NullSampler {
		vk.DestroySampler(t.context.Device.LogicalDevice, t.Sampler, t.context.Allocator)
		t.Sampler = vk.NullSampler
	}
	t.Image.ImageDestroy(t.context)
}
