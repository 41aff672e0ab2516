package hud

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/art"
	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// Action is a request of the panel the run loop carries out.
type Action int

const (
	ActionNone Action = iota
	ActionCyclePresentMode
)

// Stats are the values shown in the header of the panel.
type Stats struct {
	FPS         float64
	FrameMS     float64
	PeakMS      float64
	PresentMode metadata.PresentMode
	Position    mgl32.Vec3
	Fly         bool
	Inside      bool
}

// Global option indices of NewPanel.
const (
	GlobalMoveSun = iota
	GlobalSunSpeed
)

// Panel edits the options of the nearest art object, or the global options
// when nothing is near, through the keyboard:
// up/down select, left/right step, enter toggles, page up/down step ten
// notches, F1 shows and hides the panel and P cycles the present mode.
type Panel struct {
	Visible bool
	Global  []art.Option

	// object whose options are listed, -1 for the globals
	object   int
	selected int
}

func NewPanel(visible bool) *Panel {
	return &Panel{
		Visible: visible,
		Global: []art.Option{
			GlobalMoveSun:  {Label: "Move sun", Kind: art.OptionCheckbox, Checked: true},
			GlobalSunSpeed: {Label: "Sun speed", Kind: art.OptionFloat, Value: 0.2, Min: 0, Max: 10},
		},
		object: -1,
	}
}

// Selected is the highlighted line of the option list.
func (p *Panel) Selected() int {
	return p.selected
}

func (p *Panel) options(layer *art.Layer) []art.Option {
	if p.object < 0 || layer == nil {
		return p.Global
	}
	return layer.Objects()[p.object].Options
}

// HandleInput applies the keys pressed this frame. Edits of object options
// are packed into the object right away.
func (p *Panel) HandleInput(in *core.InputState, layer *art.Layer) Action {
	if in.WasKeyPressed(core.KEY_F1) {
		p.Visible = !p.Visible
	}
	action := ActionNone
	if in.WasKeyPressed(core.KEY_P) {
		action = ActionCyclePresentMode
	}

	nearest := -1
	if layer != nil {
		nearest = layer.Nearest()
	}
	if nearest != p.object {
		p.object = nearest
		p.selected = 0
	}
	if !p.Visible {
		return action
	}

	options := p.options(layer)
	if len(options) == 0 {
		return action
	}
	switch {
	case in.WasKeyPressed(core.KEY_UP):
		p.selected = (p.selected + len(options) - 1) % len(options)
	case in.WasKeyPressed(core.KEY_DOWN):
		p.selected = (p.selected + 1) % len(options)
	}
	p.selected = min(p.selected, len(options)-1)

	opt := &options[p.selected]
	steps := 0
	switch {
	case in.WasKeyPressed(core.KEY_RIGHT):
		steps = 1
	case in.WasKeyPressed(core.KEY_LEFT):
		steps = -1
	case in.WasKeyPressed(core.KEY_PAGEUP):
		steps = 10
	case in.WasKeyPressed(core.KEY_PAGEDOWN):
		steps = -10
	case in.WasKeyPressed(core.KEY_ENTER) && opt.Kind == art.OptionCheckbox:
		steps = 1
	}
	if steps == 0 {
		return action
	}
	if opt.Kind == art.OptionCheckbox {
		// a checkbox toggles once however far it is pushed
		steps = 1
	}
	dir := 1
	if steps < 0 {
		dir, steps = -1, -steps
	}
	for i := 0; i < steps; i++ {
		opt.Step(dir)
	}
	if p.object >= 0 {
		layer.ApplyOptions(p.object)
	}
	core.LogDebug("option %s", opt)
	return action
}

// Lines renders the panel as text, empty when hidden.
func (p *Panel) Lines(stats Stats, layer *art.Layer) []string {
	if !p.Visible {
		return nil
	}
	mode := "walk"
	if stats.Fly {
		mode = "fly"
	}
	lines := []string{
		fmt.Sprintf("%.0f fps  %.2f ms  peak %.2f ms", stats.FPS, stats.FrameMS, stats.PeakMS),
		fmt.Sprintf("present %s (P)", stats.PresentMode),
		fmt.Sprintf("%s at %.2f %.2f %.2f", mode, stats.Position.X(), stats.Position.Y(), stats.Position.Z()),
	}
	if stats.Inside {
		lines = append(lines, "inside the portal")
	}
	title := "Global"
	if p.object >= 0 && layer != nil {
		title = layer.Objects()[p.object].Name
	}
	lines = append(lines, "", title)
	for i, o := range p.options(layer) {
		marker := "  "
		if i == p.selected {
			marker = "> "
		}
		lines = append(lines, marker+o.String())
	}
	return lines
}

// NextPresentMode returns the mode after current in metadata.PresentModes
// order, skipping unsupported ones. It returns current when nothing else
// is supported.
func NextPresentMode(current metadata.PresentMode, supported []metadata.PresentMode) metadata.PresentMode {
	ok := make(map[metadata.PresentMode]bool, len(supported))
	for _, m := range supported {
		ok[m] = true
	}
	start := 0
	for i, m := range metadata.PresentModes {
		if m == current {
			start = i
			break
		}
	}
	n := len(metadata.PresentModes)
	for i := 1; i <= n; i++ {
		m := metadata.PresentModes[(start+i)%n]
		if ok[m] {
			return m
		}
	}
	return current
}

// PeakFrameTime is the longest frame of samples in milliseconds.
func PeakFrameTime(samples []core.FrameSample) float64 {
	peak := 0.0
	for _, s := range samples {
		peak = max(peak, s.FrameMS)
	}
	return peak
}
