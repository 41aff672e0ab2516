package core

import (
	"errors"
)

var (
	// ErrSwapchainOutOfDate is recoverable: the caller recreates the swapchain
	// and draws the next frame.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrZeroExtent         = errors.New("extent has zero area")

	ErrGeometryEmpty  = errors.New("mesh has no vertices or indices")
	ErrShaderCompile  = errors.New("shader compilation failed")
	ErrIncludeDepth   = errors.New("include depth exceeded")
	ErrMissingBinding = errors.New("shader requires a binding that cannot be supplied")
	ErrUniformBusy    = errors.New("uniform buffer is not writable")
	ErrTextureLoad    = errors.New("texture load failed")
	ErrQueueClosed    = errors.New("job queue closed")

	// ErrDeviceLost and any error wrapping it terminate the run loop.
	ErrDeviceLost = errors.New("device lost")
	ErrUnknown    = errors.New("unknown")
)

// IsRecoverable reports whether rendering may continue after err.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, ErrSwapchainOutOfDate),
		errors.Is(err, ErrShaderCompile),
		errors.Is(err, ErrUniformBusy),
		errors.Is(err, ErrTextureLoad):
		return true
	}
	return false
}
