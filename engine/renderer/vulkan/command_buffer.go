package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer wraps a primary or secondary command buffer. A
// secondary buffer knows the subpass and framebuffer it continues, so it
// implements metadata.CommandBuffer on its own.
type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	State  VulkanCommandBufferState

	context     *VulkanContext
	pool        vk.CommandPool
	secondary   bool
	subpass     uint32
	framebuffer vk.Framebuffer
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	level := vk.CommandBufferLevelPrimary
	if !isPrimary {
		level = vk.CommandBufferLevelSecondary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := context.locks.SafeCall(CommandBufferManagement, func() error {
		return resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles))
	}); err != nil {
		return nil, err
	}

	return &VulkanCommandBuffer{
		Handle:    handles[0],
		State:     COMMAND_BUFFER_STATE_READY,
		context:   context,
		pool:      pool,
		secondary: !isPrimary,
	}, nil
}

// newSecondary allocates a buffer recorded inside subpass of framebuffer.
func newSecondary(context *VulkanContext, subpass metadata.Subpass, framebuffer vk.Framebuffer) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, context.Device.GraphicsCommandPool, false)
	if err != nil {
		return nil, err
	}
	cb.subpass = uint32(subpass)
	cb.framebuffer = framebuffer
	return cb, nil
}

func (v *VulkanCommandBuffer) Free() {
	if v.Handle == nil {
		return
	}
	_ = v.context.locks.SafeCall(CommandBufferManagement, func() error {
		vk.FreeCommandBuffers(v.context.Device.LogicalDevice, v.pool, 1, []vk.CommandBuffer{v.Handle})
		return nil
	})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
		beginInfo.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{{
			SType:       vk.StructureTypeCommandBufferInheritanceInfo,
			RenderPass:  v.context.MainRenderpass.Handle,
			Subpass:     v.subpass,
			Framebuffer: v.framebuffer,
		}}
	}
	if isSimultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := vk.BeginCommandBuffer(v.Handle, &beginInfo); res != vk.Success {
		return resultError("vkBeginCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

// Begin starts recording. Secondary buffers continue their subpass.
func (v *VulkanCommandBuffer) Begin() error {
	if v.secondary {
		return v.begin(false, true, false)
	}
	return v.begin(true, false, false)
}

func (v *VulkanCommandBuffer) BindPipeline(p metadata.DevicePipeline) {
	vk.CmdBindPipeline(v.Handle, vk.PipelineBindPointGraphics, p.(*VulkanPipeline).Handle)
}

func (v *VulkanCommandBuffer) BindDescriptorSet(p metadata.DevicePipeline, set metadata.DescriptorSet) {
	vk.CmdBindDescriptorSets(v.Handle, vk.PipelineBindPointGraphics, p.(*VulkanPipeline).PipelineLayout,
		0, 1, []vk.DescriptorSet{set.(*VulkanDescriptorSet).Handle}, 0, nil)
}

func (v *VulkanCommandBuffer) BindVertexBuffer(b metadata.Buffer) {
	vk.CmdBindVertexBuffers(v.Handle, 0, 1, []vk.Buffer{b.(*VulkanBuffer).Handle}, []vk.DeviceSize{0})
}

func (v *VulkanCommandBuffer) BindIndexBuffer(b metadata.Buffer) {
	vk.CmdBindIndexBuffer(v.Handle, b.(*VulkanBuffer).Handle, 0, vk.IndexTypeUint32)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, 1, 0, 0, 0)
}

func (v *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return resultError("vkEndCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// AllocateAndBeginSingleUse allocates a primary buffer from the graphics
// pool and begins recording.
func AllocateAndBeginSingleUse(context *VulkanContext) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, context.Device.GraphicsCommandPool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.begin(true, false, false); err != nil {
		cb.Free()
		return nil, err
	}
	return cb, nil
}

// EndSingleUse ends recording, submits to the graphics queue, waits for it
// to go idle and frees the buffer.
func (v *VulkanCommandBuffer) EndSingleUse() error {
	defer v.Free()
	if err := v.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}

	device := v.context.Device
	return v.context.locks.SafeQueueCall(uint32(device.GraphicsQueueIndex), func() error {
		if res := vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
			return resultError("vkQueueSubmit", res)
		}
		if res := vk.QueueWaitIdle(device.GraphicsQueue); res != vk.Success {
			return fmt.Errorf("queue failed to wait in idle mode: %w", resultError("vkQueueWaitIdle", res))
		}
		return nil
	})
}
