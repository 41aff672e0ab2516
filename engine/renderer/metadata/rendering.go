package metadata

import (
	"fmt"
	"strings"
)

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
	/** @brief Both front and back faces are culled. */
	FaceCullModeFrontAndBack FaceCullMode = 0x3
)

// Mirrored is the mode that culls the same faces once the winding is
// reversed by a reflection.
func (m FaceCullMode) Mirrored() FaceCullMode {
	switch m {
	case FaceCullModeFront:
		return FaceCullModeBack
	case FaceCullModeBack:
		return FaceCullModeFront
	}
	return m
}

/**
 * @brief The subpasses of the frame render pass, in execution order.
 * The mirror pass writes the feedback image read by the scene pass as an
 * input attachment; the UI pass draws on top of the resolved image.
 */
type Subpass uint32

const (
	SubpassMirror Subpass = iota
	SubpassScene
	SubpassUI
	SubpassCount
)

func (s Subpass) String() string {
	switch s {
	case SubpassMirror:
		return "mirror"
	case SubpassScene:
		return "scene"
	case SubpassUI:
		return "ui"
	}
	return fmt.Sprintf("subpass(%d)", uint32(s))
}

/** @brief Size of a surface in pixels. */
type Extent struct {
	Width  uint32
	Height uint32
}

func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

/** @brief Width over height, 1 for a zero extent. */
func (e Extent) Aspect() float32 {
	if e.IsZero() {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

/** @brief Presentation modes a surface may support. */
type PresentMode int

const (
	PresentModeImmediate PresentMode = iota
	PresentModeMailbox
	PresentModeFifo
	PresentModeFifoRelaxed
)

// PresentModes lists every mode in the order the overlay cycles through them.
var PresentModes = []PresentMode{
	PresentModeImmediate,
	PresentModeMailbox,
	PresentModeFifo,
	PresentModeFifoRelaxed,
}

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo_relaxed"
	}
	return fmt.Sprintf("present_mode(%d)", int(m))
}

// ParsePresentMode accepts the names returned by PresentMode.String.
func ParsePresentMode(s string) (PresentMode, error) {
	for _, m := range PresentModes {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return PresentModeFifo, fmt.Errorf("unknown present mode %q", s)
}
