package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/art"
	"github.com/spaghettifunk/shaderpixel/engine/assets"
	"github.com/spaghettifunk/shaderpixel/engine/components"
	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/geometry"
	"github.com/spaghettifunk/shaderpixel/engine/hud"
	"github.com/spaghettifunk/shaderpixel/engine/math"
	"github.com/spaghettifunk/shaderpixel/engine/platform"
	"github.com/spaghettifunk/shaderpixel/engine/renderer"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/vulkan"
	"github.com/spaghettifunk/shaderpixel/engine/shader"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	config       core.Config

	isRunning   atomic.Bool
	isSuspended bool
	dirty       bool

	bus      *core.EventBus
	input    *core.InputState
	platform *platform.Platform
	clock    *core.Clock
	metrics  *core.Metrics

	backend    *vulkan.VulkanBackend
	frames     *renderer.FrameEngine
	service    *shader.Service
	watcher    *assets.ShaderWatcher
	library    *shaderLibrary
	geometries *geometry.Store
	textures   *textureCache

	layer   *art.Layer
	shaders []shaderPair
	camera  *components.Camera
	panel   *hud.Panel
	overlay *hud.Overlay
	atlas   metadata.Texture

	cancel       context.CancelFunc
	lastTime     float64
	prevPosition mgl32.Vec3
	sunAngle     float32
}

func New(cfg core.Config) *Engine {
	bus := core.NewEventBus()
	input := core.NewInputState(bus)
	return &Engine{
		currentStage: EngineStageUninitialized,
		config:       cfg,
		bus:          bus,
		input:        input,
		platform:     platform.New(input, bus),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		camera:       components.NewCamera(),
		panel:        hud.NewPanel(cfg.HUD.Visible),
	}
}

// Initialize opens the window, brings up the device and builds every
// pipeline of the scene. Shaders compile in the background; pipelines
// draw once their first compile succeeded.
func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	core.SetLogLevel(e.config.Log.Level)

	e.bus.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.bus.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.bus.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.bus.Register(core.EVENT_CODE_SHADER_CHANGED, e, e.onShaderChanged)

	if err := e.platform.Startup(e.config.Window); err != nil {
		return err
	}

	backend, err := vulkan.New(e.platform.Window, vulkan.BackendOptions{
		AppName:    e.config.Window.Title,
		Validation: e.config.Renderer.Validation,
		Samples:    e.config.Renderer.Samples,
	})
	if err != nil {
		return err
	}
	e.backend = backend

	mode, err := metadata.ParsePresentMode(e.config.Renderer.PresentMode)
	if err != nil {
		core.LogWarn("%s, using %s", err, mode)
	}
	frames, err := renderer.New(backend, renderer.Options{
		Extent:      e.platform.FramebufferSize(),
		PresentMode: mode,
		ClearColor:  e.config.Renderer.ClearColor,
	})
	if err != nil {
		return err
	}
	e.frames = frames

	e.service, err = shader.NewService(shader.NewGLSLC(e.config.Shaders.Compiler, e.config.Shaders.IncludeDepth), shader.DefaultQueueSize)
	if err != nil {
		return err
	}
	if e.config.Shaders.Watch {
		e.watcher, err = assets.NewShaderWatcher(e.config.Shaders.Debounce())
		if err != nil {
			return err
		}
		e.watcher.OnChange = func(path string) {
			e.bus.Fire(core.EventContext{Code: core.EVENT_CODE_SHADER_CHANGED, Data: path})
		}
	}
	e.library = newShaderLibrary(e.service, e.watcher)
	e.geometries = geometry.NewStore(backend)
	e.textures = newTextureCache(renderer.NewTextureLoader(backend))

	if err := e.buildScene(); err != nil {
		return err
	}
	if err := e.buildOverlay(); err != nil {
		// the gallery works without the overlay
		core.LogWarn("overlay disabled: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	if e.watcher != nil {
		e.watcher.Start(ctx)
		core.LogInfo("watching %d shader files", len(e.watcher.Paths()))
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Quit stops the run loop after the current frame. Safe from any goroutine.
func (e *Engine) Quit() {
	e.isRunning.Store(false)
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}

		if e.dirty || e.isSuspended {
			if !e.recreate() {
				e.platform.WaitMessages()
				continue
			}
		}

		frameStart := e.platform.GetAbsoluteTime()
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if err := e.frame(currentTime, delta); err != nil {
			return err
		}

		frameEnd := e.platform.GetAbsoluteTime()
		e.metrics.Update(frameEnd-frameStart, currentTime)

		// NOTE: Input update/state copying should always be handled
		// after any input should be recorded; I.E. before this line.
		// As a safety, input is the last thing to be updated before
		// this frame ends.
		e.input.Update()

		e.lastTime = currentTime
	}
	return nil
}

// recreate rebuilds the swapchain for the current framebuffer size. It
// reports false while the window has no area.
func (e *Engine) recreate() bool {
	extent := e.platform.FramebufferSize()
	if extent.IsZero() {
		if !e.isSuspended {
			core.LogInfo("Window minimized, suspending application.")
			e.isSuspended = true
		}
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.frames.Recreate(extent, e.frames.PresentMode()); err != nil {
		if errors.Is(err, core.ErrZeroExtent) {
			return false
		}
		core.LogError("swapchain recreation failed: %s", err)
		e.isRunning.Store(false)
		return false
	}
	if e.overlay != nil {
		e.overlay.Recreated()
	}
	e.dirty = false
	return true
}

// frame runs the update of one frame and draws it.
func (e *Engine) frame(now, delta float64) error {
	extent := e.frames.Swapchain().Extent()
	e.camera.Update(e.input, delta, extent)

	if e.panel.HandleInput(e.input, e.layer) == hud.ActionCyclePresentMode {
		e.cyclePresentMode()
	}

	sun := e.panel.Global
	if sun[hud.GlobalMoveSun].Checked {
		e.sunAngle += float32(delta) * sun[hud.GlobalSunSpeed].Value
	}
	light := sunPosition(e.sunAngle)

	e.layer.Update(art.UpdateContext{
		Time:         float32(now),
		Delta:        float32(delta),
		SkyboxAngle:  e.sunAngle,
		PrevPosition: e.prevPosition,
		Position:     e.camera.Position,
		Yaw:          e.camera.Yaw,
		Pitch:        e.camera.Pitch,
		LightPos:     light,
	})
	e.prevPosition = e.camera.Position

	in := renderer.FrameInput{
		View:     e.camera.View(),
		Proj:     math.Perspective(mgl32.DegToRad(e.config.Renderer.FOV), extent.Aspect(), e.config.Renderer.Near, e.config.Renderer.Far),
		Time:     float32(now),
		LightPos: light,
		Objects:  e.objectStates(),
		Mirror:   e.layer.MirrorMatrix(),
	}
	if e.overlay != nil {
		lines := e.panel.Lines(hud.Stats{
			FPS:         e.metrics.FPSValue(),
			FrameMS:     e.metrics.FrameTime(),
			PeakMS:      hud.PeakFrameTime(e.metrics.History()),
			PresentMode: e.frames.PresentMode(),
			Position:    e.camera.Position,
			Fly:         e.camera.Fly,
			Inside:      e.layer.InsidePortal(),
		}, e.layer)
		if err := e.overlay.SetText(lines); err != nil {
			core.LogWarn("%s", err)
		}
		in.UI = e.overlay.Draw
	}

	outOfDate, err := e.frames.Draw(in)
	if err != nil {
		if core.IsRecoverable(err) {
			core.LogWarn("frame: %s", err)
			return nil
		}
		return fmt.Errorf("frame: %w", err)
	}
	if outOfDate {
		e.dirty = true
	}
	return nil
}

// objectStates pairs the layer state with the shaders each object draws
// with this frame.
func (e *Engine) objectStates() []renderer.ObjectState {
	states := e.layer.States()
	for i := range states {
		src := e.shaders[e.layer.ShaderSource(i)]
		states[i].Vertex = src.vert
		states[i].Fragment = src.frag
	}
	return states
}

// sunOrigin is the light position at sun angle zero.
var sunOrigin = mgl32.Vec4{0, 50, -100, 1}

// sunPosition turns the light with the skybox so the sun stays where the
// sky shows it.
func sunPosition(angle float32) mgl32.Vec4 {
	return mgl32.HomogRotate3DY(angle).Mul4x1(sunOrigin)
}

func (e *Engine) cyclePresentMode() {
	current := e.frames.PresentMode()
	next := hud.NextPresentMode(current, e.backend.SupportedPresentModes())
	if next == current {
		return
	}
	if err := e.frames.SetPresentMode(next); err != nil {
		core.LogError("present mode %s: %s", next, err)
		return
	}
	if e.overlay != nil {
		e.overlay.Recreated()
	}
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	if e.cancel != nil {
		e.cancel()
	}
	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
		e.watcher.Wait()
	}
	if e.service != nil {
		errs = append(errs, e.service.Shutdown())
	}
	if e.frames != nil {
		// waits for the device before releasing anything
		e.frames.Destroy()
	}
	if e.overlay != nil {
		e.overlay.Destroy()
		e.atlas.Destroy()
	}
	if e.textures != nil {
		e.textures.destroy()
	}
	if e.geometries != nil {
		e.geometries.Destroy()
	}
	if e.backend != nil {
		e.backend.Shutdown()
	}
	errs = append(errs, e.platform.Shutdown())
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	extent := e.platform.FramebufferSize()
	return extent.Width, extent.Height
}

func (e *Engine) onEvent(context core.EventContext) bool {
	switch context.Code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT recieved, shutting down.")
		e.Quit()
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Code)
		return false
	}
	if ke.KeyCode == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.bus.Fire(core.EventContext{Code: core.EVENT_CODE_APPLICATION_QUIT})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	re, ok := context.Data.(*core.ResizeEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Code)
		return false
	}
	core.LogDebug("Window resize: %d, %d", re.Width, re.Height)
	e.dirty = true
	return false
}

func (e *Engine) onShaderChanged(context core.EventContext) bool {
	if path, ok := context.Data.(string); ok {
		core.LogInfo("shader %s changed, recompiling", path)
	}
	return false
}
