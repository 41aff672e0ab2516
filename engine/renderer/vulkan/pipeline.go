package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline, its layout and the layout of its only
 * descriptor set.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
	/** @brief Layout of descriptor set 0. */
	SetLayout vk.DescriptorSetLayout
	/** @brief The bindings of set 0, in ascending order. */
	Bindings []uint32

	name    string
	context *VulkanContext
}

// descriptorType is the descriptor kind every shader agrees on per binding.
func descriptorType(binding uint32) (vk.DescriptorType, vk.ShaderStageFlags) {
	allStages := vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	switch binding {
	case metadata.BindingTexture:
		return vk.DescriptorTypeCombinedImageSampler, allStages
	case metadata.BindingMirror:
		return vk.DescriptorTypeInputAttachment, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return vk.DescriptorTypeUniformBuffer, allStages
}

func vertexAttributes(layout metadata.VertexLayout) []vk.VertexInputAttributeDescription {
	attributes := []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
	}
	switch layout {
	case metadata.VertexLayoutPosNorm:
		attributes = append(attributes, vk.VertexInputAttributeDescription{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 12})
	case metadata.VertexLayoutPosUV:
		attributes = append(attributes, vk.VertexInputAttributeDescription{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 12})
	}
	return attributes
}

func cullModeFlags(mode metadata.FaceCullMode) vk.CullModeFlags {
	switch mode {
	case metadata.FaceCullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case metadata.FaceCullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.FaceCullModeFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

// NewGraphicsPipeline builds desc for its subpass of the main render pass.
// Viewport and scissor are baked in, so a resize rebuilds every pipeline.
func NewGraphicsPipeline(context *VulkanContext, desc metadata.PipelineDesc) (*VulkanPipeline, error) {
	if desc.Viewport.IsZero() {
		return nil, fmt.Errorf("pipeline %s: %w", desc.Name, core.ErrZeroExtent)
	}
	outPipeline := &VulkanPipeline{
		Bindings: append([]uint32(nil), desc.Bindings...),
		name:     desc.Name,
		context:  context,
	}

	vertexStage, err := NewShaderStage(context, desc.Vertex)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: vertex: %w", desc.Name, err)
	}
	defer vertexStage.Destroy(context)
	fragmentStage, err := NewShaderStage(context, desc.Fragment)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: fragment: %w", desc.Name, err)
	}
	defer fragmentStage.Destroy(context)

	// Descriptor set layout
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, 0, len(desc.Bindings))
	for _, binding := range desc.Bindings {
		descType, stages := descriptorType(binding)
		layoutBindings = append(layoutBindings, vk.DescriptorSetLayoutBinding{
			Binding:         binding,
			DescriptorType:  descType,
			DescriptorCount: 1,
			StageFlags:      stages,
		})
	}
	setLayoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}
	var setLayout vk.DescriptorSetLayout
	if err := context.locks.SafeCall(DescriptorManagement, func() error {
		return resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &setLayoutInfo, context.Allocator, &setLayout))
	}); err != nil {
		return nil, err
	}
	outPipeline.SetLayout = setLayout

	// Viewport state
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vk.Viewport{{
			X:        0,
			Y:        0,
			Width:    float32(desc.Viewport.Width),
			Height:   float32(desc.Viewport.Height),
			MinDepth: 0,
			MaxDepth: 1,
		}},
		ScissorCount: 1,
		PScissors: []vk.Rect2D{{
			Extent: vk.Extent2D{Width: desc.Viewport.Width, Height: desc.Viewport.Height},
		}},
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                cullModeFlags(desc.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	// Multisampling. Only the scene subpass renders into the msaa targets.
	samples := vk.SampleCount1Bit
	if desc.Subpass == metadata.SubpassScene {
		samples = context.Samples
	}
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  samples,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
		depthStencil.DepthBoundsTestEnable = vk.False
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	// Vertex input
	bindingDescription := vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    desc.Layout.Stride(),
		InputRate: vk.VertexInputRateVertex,
	}
	attributes := vertexAttributes(desc.Layout)
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{bindingDescription},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Pipeline layout
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{setLayout},
	}
	var pPipelineLayout vk.PipelineLayout
	if err := context.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreatePipelineLayout", vk.CreatePipelineLayout(context.Device.LogicalDevice, &pipelineLayoutCreateInfo, context.Allocator, &pPipelineLayout))
	}); err != nil {
		outPipeline.Destroy()
		return nil, err
	}
	outPipeline.PipelineLayout = pPipelineLayout

	// Pipeline create
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          2,
		PStages:             []vk.PipelineShaderStageCreateInfo{vertexStage.ShaderStageCreateInfo, fragmentStage.ShaderStageCreateInfo},
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		Layout:              outPipeline.PipelineLayout,
		RenderPass:          context.MainRenderpass.Handle,
		Subpass:             uint32(desc.Subpass),
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if err := context.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(
			context.Device.LogicalDevice,
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			context.Allocator,
			pPipelines))
	}); err != nil {
		outPipeline.Destroy()
		return nil, fmt.Errorf("pipeline %s: %w", desc.Name, err)
	}
	outPipeline.Handle = pPipelines[0]

	core.LogDebug("graphics pipeline %s created for the %s subpass", desc.Name, desc.Subpass)
	return outPipeline, nil
}

func (pipeline *VulkanPipeline) Destroy() {
	context := pipeline.context
	_ = context.locks.SafeCall(PipelineManagement, func() error {
		if pipeline.Handle != vk.NullPipeline {
			vk.DestroyPipeline(context.Device.LogicalDevice, pipeline.Handle, context.Allocator)
			pipeline.Handle = vk.NullPipeline
		}
		if pipeline.PipelineLayout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(context.Device.LogicalDevice, pipeline.PipelineLayout, context.Allocator)
			pipeline.PipelineLayout = vk.NullPipelineLayout
		}
		return nil
	})
	_ = context.locks.SafeCall(DescriptorManagement, func() error {
		if pipeline.SetLayout != vk.NullDescriptorSetLayout {
			vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, pipeline.SetLayout, context.Allocator)
			pipeline.SetLayout = vk.NullDescriptorSetLayout
		}
		return nil
	})
}
