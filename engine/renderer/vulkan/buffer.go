package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/shaderpixel/engine/core"
)

// VulkanBuffer is a buffer with its own memory allocation.
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	size   uint64

	context *VulkanContext
}

func createBuffer(context *VulkanContext, size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	b := &VulkanBuffer{size: size, context: context}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &handle); res != vk.Success {
		return nil, resultError("vkCreateBuffer", res)
	}
	b.Handle = handle

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType, err := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, properties)
	if err != nil {
		b.Destroy()
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	if err := context.locks.SafeCall(MemoryManagement, func() error {
		return resultError("vkAllocateMemory", vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory))
	}); err != nil {
		b.Destroy()
		return nil, err
	}
	b.Memory = memory

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, handle, memory, 0); res != vk.Success {
		b.Destroy()
		return nil, resultError("vkBindBufferMemory", res)
	}
	return b, nil
}

// createStagingBuffer returns a host visible buffer filled with data.
func createStagingBuffer(context *VulkanContext, data []byte) (*VulkanBuffer, error) {
	staging, err := createBuffer(context, uint64(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, fmt.Errorf("staging buffer: %w", err)
	}
	if err := staging.upload(data); err != nil {
		staging.Destroy()
		return nil, err
	}
	return staging, nil
}

func (b *VulkanBuffer) upload(data []byte) error {
	var ptr unsafe.Pointer
	if res := vk.MapMemory(b.context.Device.LogicalDevice, b.Memory, 0, vk.DeviceSize(len(data)), 0, &ptr); res != vk.Success {
		return resultError("vkMapMemory", res)
	}
	copy(unsafe.Slice((*byte)(ptr), len(data)), data)
	vk.UnmapMemory(b.context.Device.LogicalDevice, b.Memory)
	return nil
}

// createDeviceLocalBuffer uploads data through a staging buffer.
func createDeviceLocalBuffer(context *VulkanContext, data []byte, usage vk.BufferUsageFlags) (*VulkanBuffer, error) {
	staging, err := createStagingBuffer(context, data)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	b, err := createBuffer(context, uint64(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)|usage,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}

	cb, err := AllocateAndBeginSingleUse(context)
	if err != nil {
		b.Destroy()
		return nil, err
	}
	vk.CmdCopyBuffer(cb.Handle, staging.Handle, b.Handle, 1, []vk.BufferCopy{{Size: vk.DeviceSize(len(data))}})
	if err := cb.EndSingleUse(); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

func (b *VulkanBuffer) Size() uint64 {
	return b.size
}

func (b *VulkanBuffer) Destroy() {
	device := b.context.Device.LogicalDevice
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, b.Handle, b.context.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, b.Memory, b.context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
}

// VulkanUniformBuffer stays mapped for its whole life.
type VulkanUniformBuffer struct {
	*VulkanBuffer
	mapped unsafe.Pointer
}

func createUniformBuffer(context *VulkanContext, size uint64) (*VulkanUniformBuffer, error) {
	b, err := createBuffer(context, size,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	u := &VulkanUniformBuffer{VulkanBuffer: b}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, b.Memory, 0, vk.DeviceSize(size), 0, &ptr); res != vk.Success {
		// left unmapped, writes report busy
		core.LogWarn("uniform buffer of %d bytes could not be mapped: %s", size, VulkanResultString(res))
	} else {
		u.mapped = ptr
	}
	return u, nil
}

func (u *VulkanUniformBuffer) Write(data []byte) error {
	if u.mapped == nil {
		return core.ErrUniformBusy
	}
	if uint64(len(data)) > u.size {
		return fmt.Errorf("uniform write of %d bytes into %d", len(data), u.size)
	}
	copy(unsafe.Slice((*byte)(u.mapped), len(data)), data)
	return nil
}

func (u *VulkanUniformBuffer) Destroy() {
	if u.mapped != nil {
		vk.UnmapMemory(u.context.Device.LogicalDevice, u.Memory)
		u.mapped = nil
	}
	u.VulkanBuffer.Destroy()
}
