package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// VulkanContext is the state shared by every object the backend creates.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	// MainRenderpass is created once per device; the swapchain format and
	// depth format do not change on resize.
	MainRenderpass *VulkanRenderpass

	// Samples is the MSAA sample count of the scene subpass.
	Samples vk.SampleCountFlagBits

	locks *VulkanLockPool
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	memoryProperties := vc.Device.Memory
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryType := memoryProperties.MemoryTypes[i]
		memoryType.Deref()
		// Check each memory type to see if its bit is set to 1.
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unable to find a memory type for flags %#x", uint32(propertyFlags))
}
