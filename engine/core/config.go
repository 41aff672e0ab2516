package core

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
}

type RendererConfig struct {
	PresentMode string     `toml:"present_mode"`
	Samples     uint32     `toml:"samples"`
	FOV         float32    `toml:"fov"`
	Near        float32    `toml:"near"`
	Far         float32    `toml:"far"`
	ClearColor  [4]float32 `toml:"clear_color"`
	Validation  bool       `toml:"validation"`
}

type ShaderConfig struct {
	Compiler     string `toml:"compiler"`
	DebounceMS   int    `toml:"debounce_ms"`
	IncludeDepth int    `toml:"include_depth"`
	Watch        bool   `toml:"watch"`
}

// Debounce returns the watcher debounce, never shorter than MinDebounce.
func (s ShaderConfig) Debounce() time.Duration {
	d := time.Duration(s.DebounceMS) * time.Millisecond
	if d < MinDebounce {
		return MinDebounce
	}
	return d
}

type LogConfig struct {
	Level string `toml:"level"`
}

type HUDConfig struct {
	// Font is a BMFont descriptor or a TrueType/OpenType file; empty uses
	// the built-in 7x13 face.
	Font string `toml:"font"`
	// FontSize is the em size in pixels of TrueType fonts.
	FontSize float64 `toml:"font_size"`
	Visible  bool    `toml:"visible"`
}

// Config is the application configuration read from config.toml.
type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Shaders  ShaderConfig   `toml:"shaders"`
	Log      LogConfig      `toml:"log"`
	HUD      HUDConfig      `toml:"hud"`
	Scene    string         `toml:"scene"`
	// Env is an OBJ file of the room; empty uses the generated gallery.
	Env string `toml:"env"`
}

// MinDebounce is the shortest accepted watcher debounce.
const MinDebounce = 500 * time.Millisecond

func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{
			Title:  "shaderpixel",
			Width:  800,
			Height: 600,
			X:      100,
			Y:      100,
		},
		Renderer: RendererConfig{
			PresentMode: "fifo",
			Samples:     4,
			FOV:         75,
			Near:        0.01,
			Far:         200,
			ClearColor:  [4]float32{0, 0, 0, 1},
		},
		Shaders: ShaderConfig{
			Compiler:     "glslc",
			DebounceMS:   int(MinDebounce / time.Millisecond),
			IncludeDepth: 16,
			Watch:        true,
		},
		Log:   LogConfig{Level: "info"},
		HUD:   HUDConfig{FontSize: 16, Visible: true},
		Scene: "assets/scene.toml",
	}
}

// LoadConfig reads path on top of DefaultConfig. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			LogWarn("config file %s not found, using defaults", path)
			return cfg, nil
		}
		return cfg, err
	}
	if err := ParseConfig(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes data into cfg, keeping the values of absent keys.
func ParseConfig(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return err
	}
	return cfg.validate()
}

func (c *Config) validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("window %dx%d: %w", c.Window.Width, c.Window.Height, ErrZeroExtent)
	}
	if c.Shaders.DebounceMS < int(MinDebounce/time.Millisecond) {
		c.Shaders.DebounceMS = int(MinDebounce / time.Millisecond)
	}
	if c.Shaders.IncludeDepth <= 0 {
		c.Shaders.IncludeDepth = 16
	}
	switch c.Renderer.Samples {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("unsupported sample count %d", c.Renderer.Samples)
	}
	if c.Renderer.Near <= 0 || c.Renderer.Far <= c.Renderer.Near {
		return fmt.Errorf("invalid depth range [%g, %g]", c.Renderer.Near, c.Renderer.Far)
	}
	return nil
}
