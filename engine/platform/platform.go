package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

var keyMap = map[glfw.Key]core.KeyCode{
	glfw.KeyW:           core.KEY_W,
	glfw.KeyA:           core.KEY_A,
	glfw.KeyS:           core.KEY_S,
	glfw.KeyD:           core.KEY_D,
	glfw.KeySpace:       core.KEY_SPACE,
	glfw.KeyLeftShift:   core.KEY_LSHIFT,
	glfw.KeyLeftControl: core.KEY_LCONTROL,
	glfw.KeyL:           core.KEY_L,
	glfw.KeyP:           core.KEY_P,
	glfw.KeyM:           core.KEY_M,
	glfw.KeyF1:          core.KEY_F1,
	glfw.KeyEscape:      core.KEY_ESCAPE,
	glfw.KeyUp:          core.KEY_UP,
	glfw.KeyDown:        core.KEY_DOWN,
	glfw.KeyLeft:        core.KEY_LEFT,
	glfw.KeyRight:       core.KEY_RIGHT,
	glfw.KeyEnter:       core.KEY_ENTER,
	glfw.KeyPageUp:      core.KEY_PAGEUP,
	glfw.KeyPageDown:    core.KEY_PAGEDOWN,
}

// TranslateKey maps a glfw key to the engine key code, KEY_UNKNOWN for keys
// nothing listens to.
func TranslateKey(key glfw.Key) core.KeyCode {
	if k, ok := keyMap[key]; ok {
		return k
	}
	return core.KEY_UNKNOWN
}

func translateButton(button glfw.MouseButton) core.Button {
	switch button {
	case glfw.MouseButtonLeft:
		return core.BUTTON_LEFT
	case glfw.MouseButtonRight:
		return core.BUTTON_RIGHT
	case glfw.MouseButtonMiddle:
		return core.BUTTON_MIDDLE
	}
	return core.BUTTON_MAX_BUTTONS
}

// Platform owns the glfw window and feeds its events to the input state
// and the event bus.
type Platform struct {
	Window *glfw.Window

	input     *core.InputState
	bus       *core.EventBus
	startTime float64
}

func New(input *core.InputState, bus *core.EventBus) *Platform {
	return &Platform{input: input, bus: bus}
}

// Startup creates a hidden, resizable window without a client API, wires
// the callbacks and shows it.
func (p *Platform) Startup(cfg core.WindowConfig) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		core.LogError("glfw reports no vulkan loader")
		return errNoVulkan
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		core.LogError("failed to create window: %s", err)
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetMouseButtonCallback(p.mouseButtonCallback)
	p.Window.SetCursorPosCallback(p.cursorPosCallback)
	p.Window.SetScrollCallback(p.scrollCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(cfg.X), int(cfg.Y))
	p.Window.Show()

	p.startTime = glfw.GetTime()
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events. It returns false once the
// window was asked to close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return p.Window != nil && !p.Window.ShouldClose()
}

// WaitMessages blocks until an event arrives, used while minimized.
func (p *Platform) WaitMessages() {
	glfw.WaitEvents()
}

// FramebufferSize is the drawable size in pixels.
func (p *Platform) FramebufferSize() metadata.Extent {
	w, h := p.Window.GetFramebufferSize()
	return metadata.Extent{Width: uint32(max(w, 0)), Height: uint32(max(h, 0))}
}

// GetAbsoluteTime returns the seconds since Startup.
func (p *Platform) GetAbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action == glfw.Repeat {
		return
	}
	code := TranslateKey(key)
	if code == core.KEY_UNKNOWN {
		return
	}
	p.input.ProcessKey(code, action == glfw.Press)
}

func (p *Platform) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	p.input.ProcessButton(translateButton(button), action == glfw.Press)
}

func (p *Platform) cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	p.input.ProcessMouseMove(xpos, ypos)
}

func (p *Platform) scrollCallback(w *glfw.Window, xoff, yoff float64) {
	p.input.ProcessScroll(yoff)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.bus.Fire(core.EventContext{
		Code: core.EVENT_CODE_RESIZED,
		Data: &core.ResizeEvent{Width: uint32(max(width, 0)), Height: uint32(max(height, 0))},
	})
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.bus.Fire(core.EventContext{Code: core.EVENT_CODE_APPLICATION_QUIT})
}
