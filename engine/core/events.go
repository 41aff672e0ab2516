package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed. Data is *KeyEvent.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released. Data is *KeyEvent.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Resized/resolution changed from the OS. Data is *ResizeEvent.
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// Shader source changed on disk. Data is the canonical path string.
	EVENT_CODE_SHADER_CHANGED SystemEventCode = 0x10

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	Code SystemEventCode
	Data interface{}
}

type KeyEvent struct {
	KeyCode KeyCode
}

type ResizeEvent struct {
	Width  uint32
	Height uint32
}

// Should return true if handled.
type FnOnEvent func(ctx EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus dispatches events synchronously to listeners in registration order.
type EventBus struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{registered: make(map[SystemEventCode][]registeredEvent)}
}

// Register adds a listener for code. A listener registers once per code;
// duplicates return false.
func (eb *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for _, e := range eb.registered[code] {
		if e.listener == listener {
			return false
		}
	}
	eb.registered[code] = append(eb.registered[code], registeredEvent{listener: listener, callback: onEvent})
	return true
}

func (eb *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	events := eb.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eb.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire sends ctx to the listeners of its code until one handles it.
func (eb *EventBus) Fire(ctx EventContext) bool {
	eb.mu.RLock()
	events := append([]registeredEvent(nil), eb.registered[ctx.Code]...)
	eb.mu.RUnlock()
	for _, e := range events {
		if e.callback(ctx) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}
