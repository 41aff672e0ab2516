package core

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	err := ParseConfig([]byte(`
scene = "other.toml"

[window]
width = 1280

[renderer]
present_mode = "mailbox"
`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "other.toml", cfg.Scene)
	assert.Equal(t, uint32(1280), cfg.Window.Width)
	assert.Equal(t, uint32(600), cfg.Window.Height)
	assert.Equal(t, "mailbox", cfg.Renderer.PresentMode)
	assert.Equal(t, uint32(4), cfg.Renderer.Samples)
	assert.Equal(t, MinDebounce, cfg.Shaders.Debounce())
}

func TestParseConfigRejectsUnknownKeys(t *testing.T) {
	cfg := DefaultConfig()
	err := ParseConfig([]byte("[window]\nbogus = 1\n"), &cfg)
	assert.Error(t, err)
}

func TestParseConfigValidation(t *testing.T) {
	cases := map[string]string{
		"zero width":   "[window]\nwidth = 0\n",
		"bad samples":  "[renderer]\nsamples = 3\n",
		"depth range":  "[renderer]\nnear = 10.0\nfar = 1.0\n",
		"bad encoding": "[window\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			assert.Error(t, ParseConfig([]byte(doc), &cfg))
		})
	}
}

func TestParseConfigClampsDebounce(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ParseConfig([]byte("[shaders]\ndebounce_ms = 10\ninclude_depth = 0\n"), &cfg))
	assert.Equal(t, 500, cfg.Shaders.DebounceMS)
	assert.Equal(t, 16, cfg.Shaders.IncludeDepth)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(nil))
	assert.True(t, IsRecoverable(fmt.Errorf("present: %w", ErrSwapchainOutOfDate)))
	assert.True(t, IsRecoverable(fmt.Errorf("a.frag: %w", ErrShaderCompile)))
	assert.False(t, IsRecoverable(fmt.Errorf("submit: %w", ErrDeviceLost)))
	assert.False(t, IsRecoverable(ErrUnknown))
}

func TestClockTick(t *testing.T) {
	base := time.Unix(100, 0)
	now := base
	c := &Clock{now: func() time.Time { return now }}

	assert.Zero(t, c.Tick())
	c.Start()
	now = base.Add(250 * time.Millisecond)
	assert.InDelta(t, 0.25, c.Tick(), 1e-9)
	now = base.Add(time.Second)
	assert.InDelta(t, 0.75, c.Tick(), 1e-9)
	assert.InDelta(t, 1.0, c.Elapsed(), 1e-9)

	c.Stop()
	now = base.Add(2 * time.Second)
	c.Update()
	assert.InDelta(t, 1.0, c.Elapsed(), 1e-9)
}

func TestMetricsFPSAndHistory(t *testing.T) {
	m := NewMetrics()
	now := 0.0
	for i := 0; i < 700; i++ {
		now += 0.01
		m.Update(0.01, now)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-6)
	assert.InDelta(t, 101.0, m.FPSValue(), 1.0)

	history := m.History()
	require.NotEmpty(t, history)
	assert.LessOrEqual(t, now-history[0].At, HistoryWindow)
	assert.InDelta(t, now, history[len(history)-1].At, 1e-9)
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	var got []string

	a := &struct{ name string }{"a"}
	b := &struct{ name string }{"b"}
	require.True(t, bus.Register(EVENT_CODE_RESIZED, a, func(ctx EventContext) bool {
		got = append(got, "a")
		return false
	}))
	require.False(t, bus.Register(EVENT_CODE_RESIZED, a, func(EventContext) bool { return false }))
	require.True(t, bus.Register(EVENT_CODE_RESIZED, b, func(ctx EventContext) bool {
		got = append(got, "b")
		return true
	}))

	assert.True(t, bus.Fire(EventContext{Code: EVENT_CODE_RESIZED, Data: &ResizeEvent{Width: 1, Height: 1}}))
	assert.Equal(t, []string{"a", "b"}, got)

	assert.True(t, bus.Unregister(EVENT_CODE_RESIZED, b))
	assert.False(t, bus.Fire(EventContext{Code: EVENT_CODE_RESIZED}))
	assert.False(t, bus.Fire(EventContext{Code: EVENT_CODE_KEY_PRESSED}))
}

func TestInputState(t *testing.T) {
	bus := NewEventBus()
	var pressed []KeyCode
	bus.Register(EVENT_CODE_KEY_PRESSED, t, func(ctx EventContext) bool {
		pressed = append(pressed, ctx.Data.(*KeyEvent).KeyCode)
		return true
	})
	in := NewInputState(bus)

	in.ProcessKey(KEY_P, true)
	in.ProcessKey(KEY_P, true)
	assert.Equal(t, []KeyCode{KEY_P}, pressed)
	assert.True(t, in.WasKeyPressed(KEY_P))
	in.Update()
	assert.False(t, in.WasKeyPressed(KEY_P))
	assert.True(t, in.IsKeyDown(KEY_P))

	in.ProcessMouseMove(10, 10)
	in.ProcessMouseMove(20, 20)
	dx, dy := in.Drag()
	assert.Zero(t, dx)
	assert.Zero(t, dy)

	in.ProcessButton(BUTTON_LEFT, true)
	in.ProcessMouseMove(25, 18)
	dx, dy = in.Drag()
	assert.Equal(t, 5.0, dx)
	assert.Equal(t, -2.0, dy)
	in.Update()
	dx, _ = in.Drag()
	assert.Zero(t, dx)
}
