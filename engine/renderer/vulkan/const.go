package vulkan

import "math"

/**
 * @brief Number of subpasses of the frame render pass: mirror, scene and ui.
 */
const VULKAN_SUBPASS_COUNT uint32 = 3

/**
 * @brief Attachment slots of the frame framebuffer.
 */
const (
	ATTACHMENT_SWAPCHAIN uint32 = iota
	ATTACHMENT_MSAA_COLOR
	ATTACHMENT_MSAA_DEPTH
	ATTACHMENT_MIRROR_COLOR
	ATTACHMENT_MIRROR_DEPTH
	ATTACHMENT_COUNT
)

/** @brief Fence and acquire waits never time out. */
const VULKAN_WAIT_FOREVER uint64 = math.MaxUint64

/** @brief Default sampler anisotropy when the device supports it. */
const VULKAN_MAX_ANISOTROPY float32 = 16
