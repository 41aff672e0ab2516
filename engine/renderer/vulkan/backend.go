package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// WindowSurface is the part of a glfw window the backend needs.
type WindowSurface interface {
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (surface uintptr, err error)
}

type BackendOptions struct {
	AppName string
	// Validation enables the Khronos validation layer and the debug report
	// callback when the layer is installed.
	Validation bool
	// Samples is the requested MSAA sample count, lowered to what the
	// device supports.
	Samples uint32
}

// VulkanBackend implements metadata.Device on top of one logical device,
// one surface and the frame render pass.
type VulkanBackend struct {
	context *VulkanContext
	debug   bool
}

var _ metadata.Device = (*VulkanBackend)(nil)

func New(window WindowSurface, opts BackendOptions) (*VulkanBackend, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vk: %w", err)
	}

	vb := &VulkanBackend{
		context: &VulkanContext{
			Allocator: nil,
			Device:    &VulkanDevice{},
			locks:     NewVulkanLockPool(),
		},
		debug: opts.Validation,
	}
	if err := vb.createInstance(opts.AppName, window); err != nil {
		return nil, err
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateWindowSurface(vb.context.Instance, nil)
	if err != nil {
		vb.Shutdown()
		return nil, fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	vb.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(vb.context); err != nil {
		vb.Shutdown()
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	vb.context.Samples = MaxUsableSampleCount(vb.context.Device, opts.Samples)
	core.LogInfo("MSAA: %d samples requested, using %d", opts.Samples, uint32(vb.context.Samples))

	device := vb.context.Device
	if err := DeviceQuerySwapchainSupport(device.PhysicalDevice, vb.context.Surface, &device.SwapchainSupport); err != nil {
		vb.Shutdown()
		return nil, err
	}
	if len(device.SwapchainSupport.Formats) == 0 {
		vb.Shutdown()
		return nil, fmt.Errorf("surface reports no formats")
	}
	format := chooseSurfaceFormat(&device.SwapchainSupport)
	rp, err := RenderpassCreate(vb.context, format.Format)
	if err != nil {
		vb.Shutdown()
		return nil, err
	}
	vb.context.MainRenderpass = rp

	core.LogInfo("Vulkan renderer initialized successfully.")
	return vb, nil
}

func (vb *VulkanBackend) createInstance(appName string, window WindowSurface) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("shaderpixel"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := append([]string{"VK_KHR_surface"}, window.GetRequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if vb.debug {
		if vb.hasLayer("VK_LAYER_KHRONOS_validation") {
			layers = []string{"VK_LAYER_KHRONOS_validation"}
			requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		} else {
			core.LogWarn("validation requested but VK_LAYER_KHRONOS_validation is not installed")
			vb.debug = false
		}
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, vb.context.Allocator, &instance); res != vk.Success {
		return resultError("vkCreateInstance", res)
	}
	vb.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	// Debugger
	if vb.debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogWarn("vk.CreateDebugReportCallback failed with %s", err)
		} else {
			vb.context.debugMessenger = dbg
			core.LogDebug("Vulkan debugger created.")
		}
	}
	return nil
}

func (vb *VulkanBackend) hasLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vulkanString(available[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (vb *VulkanBackend) CreateVertexBuffer(data []byte) (metadata.Buffer, error) {
	if len(data) == 0 {
		return nil, core.ErrGeometryEmpty
	}
	return createDeviceLocalBuffer(vb.context, data, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
}

func (vb *VulkanBackend) CreateIndexBuffer(indices []uint32) (metadata.Buffer, error) {
	if len(indices) == 0 {
		return nil, core.ErrGeometryEmpty
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), len(indices)*4)
	return createDeviceLocalBuffer(vb.context, data, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit))
}

func (vb *VulkanBackend) CreateTexture(desc metadata.TextureDesc) (metadata.Texture, error) {
	return createTexture(vb.context, desc)
}

func (vb *VulkanBackend) SupportsLinearBlit() bool {
	return vb.context.Device.LinearBlit
}

func (vb *VulkanBackend) CreateUniformBuffer(size uint64) (metadata.UniformBuffer, error) {
	return createUniformBuffer(vb.context, size)
}

func (vb *VulkanBackend) CreatePipeline(desc metadata.PipelineDesc) (metadata.DevicePipeline, error) {
	return NewGraphicsPipeline(vb.context, desc)
}

func (vb *VulkanBackend) CreateDescriptorSet(p metadata.DevicePipeline, writes []metadata.DescriptorWrite) (metadata.DescriptorSet, error) {
	pipeline, ok := p.(*VulkanPipeline)
	if !ok {
		return nil, fmt.Errorf("unexpected pipeline %T", p)
	}
	return newDescriptorSet(vb.context, pipeline, writes)
}

func (vb *VulkanBackend) CreateSwapchain(extent metadata.Extent, mode metadata.PresentMode, old metadata.Swapchain) (metadata.Swapchain, error) {
	var previous *VulkanSwapchain
	if old != nil {
		previous, _ = old.(*VulkanSwapchain)
	}
	return SwapchainCreate(vb.context, extent, mode, previous)
}

func (vb *VulkanBackend) SupportedPresentModes() []metadata.PresentMode {
	device := vb.context.Device
	if err := DeviceQuerySwapchainSupport(device.PhysicalDevice, vb.context.Surface, &device.SwapchainSupport); err != nil {
		core.LogWarn("present modes: %s", err)
		return []metadata.PresentMode{metadata.PresentModeFifo}
	}
	return supportedPresentModes(&device.SwapchainSupport)
}

func (vb *VulkanBackend) WaitIdle() error {
	if vb.context.Device.LogicalDevice == nil {
		return nil
	}
	return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(vb.context.Device.LogicalDevice))
}

// Shutdown destroys the device objects in the opposite order of creation.
// Swapchains and resources must already be destroyed.
func (vb *VulkanBackend) Shutdown() {
	context := vb.context
	if err := vb.WaitIdle(); err != nil {
		core.LogWarn("shutdown: %s", err)
	}

	if context.MainRenderpass != nil {
		context.MainRenderpass.RenderpassDestroy(context)
		context.MainRenderpass = nil
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(context)

	core.LogDebug("Destroying Vulkan surface...")
	if context.Surface != vk.NullSurface {
		vk.DestroySurface(context.Instance, context.Surface, context.Allocator)
		context.Surface = vk.NullSurface
	}

	if context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(context.Instance, context.debugMessenger, context.Allocator)
		context.debugMessenger = vk.NullDebugReportCallback
	}

	if context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(context.Instance, context.Allocator)
		context.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
