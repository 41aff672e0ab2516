package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

var shaderStageFlags = map[metadata.ShaderStage]vk.ShaderStageFlagBits{
	metadata.ShaderStageVertex:   vk.ShaderStageVertexBit,
	metadata.ShaderStageFragment: vk.ShaderStageFragmentBit,
}

// NewShaderStage wraps the SPIR-V of module in a shader module. The caller
// destroys it once the pipeline is built.
func NewShaderStage(context *VulkanContext, module *metadata.ShaderModule) (*VulkanShaderStage, error) {
	if module == nil || len(module.Code) == 0 {
		return nil, fmt.Errorf("shader module has no code")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(module.Code) * 4),
		PCode:    module.Code,
	}
	stage := &VulkanShaderStage{}
	if res := vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &stage.Handle); res != vk.Success {
		return nil, resultError(fmt.Sprintf("vkCreateShaderModule(%s)", module.Path), res)
	}

	stage.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  shaderStageFlags[module.Stage],
		Module: stage.Handle,
		PName:  VulkanSafeString("main"),
	}
	return stage, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = vk.NullShaderModule
	}
}
