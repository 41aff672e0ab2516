package art

import (
	"fmt"
	gomath "math"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/math"
	"github.com/spaghettifunk/shaderpixel/engine/renderer"
)

// OptionKind is the editor an option is shown with.
type OptionKind int

const (
	OptionCheckbox OptionKind = iota
	OptionFloat
	OptionInt
	OptionStroke
)

func (k OptionKind) String() string {
	switch k {
	case OptionCheckbox:
		return "checkbox"
	case OptionFloat:
		return "f32"
	case OptionInt:
		return "i32"
	case OptionStroke:
		return "stroke"
	}
	return fmt.Sprintf("option_kind(%d)", int(k))
}

func parseOptionKind(s string) (OptionKind, error) {
	for _, k := range []OptionKind{OptionCheckbox, OptionFloat, OptionInt, OptionStroke} {
		if k.String() == s {
			return k, nil
		}
	}
	return OptionFloat, fmt.Errorf("unknown option kind %q", s)
}

// Option is one user editable shader parameter.
type Option struct {
	Label   string
	Kind    OptionKind
	Checked bool
	// Value holds float and integer sliders.
	Value    float32
	Min, Max float32
	// Log makes float sliders step multiplicatively.
	Log bool
	// Width and Color describe a stroke. Only the color reaches the shader.
	Width float32
	Color [3]uint8
}

// Slots is the number of packed floats the option occupies.
func (o Option) Slots() int {
	if o.Kind == OptionStroke {
		return 3
	}
	return 1
}

// Step nudges the option one notch in dir (+1 or -1): checkboxes toggle,
// sliders move within [Min, Max], stroke colors brighten or darken.
func (o *Option) Step(dir int) {
	if dir == 0 {
		return
	}
	switch o.Kind {
	case OptionCheckbox:
		o.Checked = !o.Checked
	case OptionInt:
		o.Value = math.Clamp(float32(gomath.Round(float64(o.Value)))+float32(math.Sign(dir)), o.Min, o.Max)
	case OptionFloat:
		if o.Log && o.Value > 0 {
			factor := float32(1.1)
			if dir < 0 {
				factor = 1 / factor
			}
			o.Value = math.Clamp(o.Value*factor, o.Min, o.Max)
		} else {
			o.Value = math.Clamp(o.Value+float32(math.Sign(dir))*(o.Max-o.Min)/100, o.Min, o.Max)
		}
	case OptionStroke:
		for i, c := range o.Color {
			o.Color[i] = uint8(math.Clamp(int(c)+16*math.Sign(dir), 0, 255))
		}
	}
}

func (o Option) String() string {
	switch o.Kind {
	case OptionCheckbox:
		if o.Checked {
			return o.Label + ": [x]"
		}
		return o.Label + ": [ ]"
	case OptionInt:
		return fmt.Sprintf("%s: %d", o.Label, int(o.Value))
	case OptionStroke:
		return fmt.Sprintf("%s: %.1f #%02x%02x%02x", o.Label, o.Width, o.Color[0], o.Color[1], o.Color[2])
	}
	if o.Log {
		return fmt.Sprintf("%s: %.2e", o.Label, o.Value)
	}
	return fmt.Sprintf("%s: %.3f", o.Label, o.Value)
}

// Pack lays options out in declaration order: checkboxes as 1 or 0, sliders
// as their value, strokes as the three components of their color in [0, 1]. Options past the
// last slot are dropped with a warning.
func Pack(name string, options []Option) [renderer.OptionSlots]float32 {
	var out [renderer.OptionSlots]float32
	i := 0
	for _, o := range options {
		if i+o.Slots() > len(out) {
			core.LogWarn("%s: option %q does not fit in %d slots", name, o.Label, len(out))
			break
		}
		switch o.Kind {
		case OptionCheckbox:
			if o.Checked {
				out[i] = 1
			}
		case OptionFloat, OptionInt:
			out[i] = o.Value
		case OptionStroke:
			for c := 0; c < 3; c++ {
				out[i+c] = float32(o.Color[c]) / 255
			}
		}
		i += o.Slots()
	}
	return out
}
