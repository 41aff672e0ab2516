package core

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key codes understood by the camera and the overlay.
type KeyCode uint16

const (
	KEY_UNKNOWN KeyCode = iota
	KEY_W
	KEY_A
	KEY_S
	KEY_D
	KEY_SPACE
	KEY_LSHIFT
	KEY_LCONTROL
	KEY_L
	KEY_P
	KEY_M
	KEY_F1
	KEY_ESCAPE
	KEY_UP
	KEY_DOWN
	KEY_LEFT
	KEY_RIGHT
	KEY_ENTER
	KEY_PAGEUP
	KEY_PAGEDOWN
	KEYS_MAX_KEYS
)

type keyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

type mouseState struct {
	X, Y    float64
	Buttons [BUTTON_MAX_BUTTONS]bool
}

// InputState accumulates platform input between two frames. All methods run
// on the main thread.
type InputState struct {
	KeyboardCurrent  keyboardState
	KeyboardPrevious keyboardState
	MouseCurrent     mouseState
	MousePrevious    mouseState

	cursorKnown bool
	dragX       float64
	dragY       float64
	ScrollLines float64

	bus *EventBus
}

func NewInputState(bus *EventBus) *InputState {
	return &InputState{bus: bus}
}

// Update rolls the current state into the previous one. Call once per frame
// after every consumer has read the input.
func (is *InputState) Update() {
	is.KeyboardPrevious = is.KeyboardCurrent
	is.MousePrevious = is.MouseCurrent
	is.dragX, is.dragY = 0, 0
}

func (is *InputState) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEYS_MAX_KEYS || is.KeyboardCurrent.Keys[key] == pressed {
		return
	}
	is.KeyboardCurrent.Keys[key] = pressed
	if is.bus == nil {
		return
	}
	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	is.bus.Fire(EventContext{Code: code, Data: &KeyEvent{KeyCode: key}})
}

func (is *InputState) ProcessButton(button Button, pressed bool) {
	if button >= BUTTON_MAX_BUTTONS {
		return
	}
	is.MouseCurrent.Buttons[button] = pressed
}

// ProcessMouseMove accumulates cursor motion while the left button is held.
func (is *InputState) ProcessMouseMove(x, y float64) {
	if is.cursorKnown && is.MouseCurrent.Buttons[BUTTON_LEFT] {
		is.dragX += x - is.MouseCurrent.X
		is.dragY += y - is.MouseCurrent.Y
	}
	is.MouseCurrent.X, is.MouseCurrent.Y = x, y
	is.cursorKnown = true
}

func (is *InputState) ProcessScroll(lines float64) {
	is.ScrollLines += lines
}

func (is *InputState) IsKeyDown(key KeyCode) bool {
	return key < KEYS_MAX_KEYS && is.KeyboardCurrent.Keys[key]
}

// WasKeyPressed reports a key that went down since the last Update.
func (is *InputState) WasKeyPressed(key KeyCode) bool {
	return key < KEYS_MAX_KEYS && is.KeyboardCurrent.Keys[key] && !is.KeyboardPrevious.Keys[key]
}

// Drag returns the cursor motion with the left button held since the last Update.
func (is *InputState) Drag() (float64, float64) {
	return is.dragX, is.dragY
}
