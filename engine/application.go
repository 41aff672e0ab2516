package engine

import (
	"github.com/spaghettifunk/shaderpixel/engine/core"
)

// ApplicationConfig holds the command line settings. Non-empty fields
// override the configuration file.
type ApplicationConfig struct {
	// ConfigPath is the TOML configuration file, missing means defaults.
	ConfigPath string
	// Scene replaces the scene description file.
	Scene string
	// Env replaces the room model.
	Env         string
	LogLevel    string
	PresentMode string
	// Validation turns the Vulkan validation layers on.
	Validation bool
	// NoWatch disables shader hot reload.
	NoWatch bool
}

// Load reads the configuration file and applies the overrides.
func (ac ApplicationConfig) Load() (core.Config, error) {
	cfg, err := core.LoadConfig(ac.ConfigPath)
	if err != nil {
		return cfg, err
	}
	ac.apply(&cfg)
	return cfg, nil
}

func (ac ApplicationConfig) apply(cfg *core.Config) {
	if ac.Scene != "" {
		cfg.Scene = ac.Scene
	}
	if ac.Env != "" {
		cfg.Env = ac.Env
	}
	if ac.LogLevel != "" {
		cfg.Log.Level = ac.LogLevel
	}
	if ac.PresentMode != "" {
		cfg.Renderer.PresentMode = ac.PresentMode
	}
	if ac.Validation {
		cfg.Renderer.Validation = true
	}
	if ac.NoWatch {
		cfg.Shaders.Watch = false
	}
}
