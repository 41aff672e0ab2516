package platform

import "errors"

var errNoVulkan = errors.New("vulkan is not supported on this system")
