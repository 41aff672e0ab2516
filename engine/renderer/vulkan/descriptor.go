package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// VulkanDescriptorSet owns the pool it was allocated from, so destroying
// the set never touches any other.
type VulkanDescriptorSet struct {
	Pool   vk.DescriptorPool
	Handle vk.DescriptorSet

	context *VulkanContext
}

func newDescriptorSet(context *VulkanContext, pipeline *VulkanPipeline, writes []metadata.DescriptorWrite) (*VulkanDescriptorSet, error) {
	byBinding := make(map[uint32]metadata.DescriptorWrite, len(writes))
	for _, w := range writes {
		byBinding[w.Binding] = w
	}
	counts := map[vk.DescriptorType]uint32{}
	for _, binding := range pipeline.Bindings {
		if _, ok := byBinding[binding]; !ok {
			return nil, fmt.Errorf("pipeline %s binding %d: %w", pipeline.name, binding, core.ErrMissingBinding)
		}
		descType, _ := descriptorType(binding)
		counts[descType]++
	}

	poolSizes := make([]vk.DescriptorPoolSize, 0, len(counts))
	for descType, count := range counts {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{Type: descType, DescriptorCount: count})
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	set := &VulkanDescriptorSet{context: context}
	device := context.Device.LogicalDevice
	if err := context.locks.SafeCall(DescriptorManagement, func() error {
		var pool vk.DescriptorPool
		if err := resultError("vkCreateDescriptorPool", vk.CreateDescriptorPool(device, &poolInfo, context.Allocator, &pool)); err != nil {
			return err
		}
		set.Pool = pool

		allocInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{pipeline.SetLayout},
		}
		var handle vk.DescriptorSet
		if err := resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(device, &allocInfo, &handle)); err != nil {
			return err
		}
		set.Handle = handle
		return nil
	}); err != nil {
		set.Destroy()
		return nil, err
	}

	updates := make([]vk.WriteDescriptorSet, 0, len(pipeline.Bindings))
	for _, binding := range pipeline.Bindings {
		w := byBinding[binding]
		descType, _ := descriptorType(binding)
		update := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.Handle,
			DstBinding:      binding,
			DescriptorCount: 1,
			DescriptorType:  descType,
		}
		switch descType {
		case vk.DescriptorTypeUniformBuffer:
			ub, ok := w.Uniform.(*VulkanUniformBuffer)
			if !ok {
				set.Destroy()
				return nil, fmt.Errorf("binding %d expects a uniform buffer, got %T", binding, w.Uniform)
			}
			update.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: ub.Handle,
				Offset: 0,
				Range:  vk.DeviceSize(ub.Size()),
			}}
		case vk.DescriptorTypeCombinedImageSampler:
			tex, ok := w.Texture.(*VulkanTexture)
			if !ok {
				set.Destroy()
				return nil, fmt.Errorf("binding %d expects a texture, got %T", binding, w.Texture)
			}
			update.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     tex.Sampler,
				ImageView:   tex.Image.View,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}
		case vk.DescriptorTypeInputAttachment:
			image, ok := w.Attachment.(*VulkanImage)
			if !ok {
				set.Destroy()
				return nil, fmt.Errorf("binding %d expects an attachment, got %T", binding, w.Attachment)
			}
			update.PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   image.View,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}
		}
		updates = append(updates, update)
	}
	_ = context.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(device, uint32(len(updates)), updates, 0, nil)
		return nil
	})
	return set, nil
}

// Destroy releases the pool, which frees the set with it.
func (s *VulkanDescriptorSet) Destroy() {
	if s.Pool == vk.NullDescriptorPool {
		return
	}
	_ = s.context.locks.SafeCall(DescriptorManagement, func() error {
		vk.DestroyDescriptorPool(s.context.Device.LogicalDevice, s.Pool, s.context.Allocator)
		return nil
	})
	s.Pool = vk.NullDescriptorPool
	s.Handle = vk.NullDescriptorSet
}
