package clientstate

import (
	"sync"

	"cogentcore.org/core/math32"

	"siro-hitl/client/internal/coords"
)

// Mouse buttons as reported to the server.
const (
	MouseLeft = iota
	MouseRight
	MouseMiddle
	mouseButtonCount
)

// PauseSource reports whether input should be ignored.
type PauseSource interface {
	IsApplicationPaused() bool
}

// buttons accumulates edges between transmissions. Held, up and down are
// sticky until reset.
type buttons struct {
	held map[int]bool
	down map[int]bool
	up   map[int]bool
	// pressed tracks the live state so held survives a reset.
	pressed map[int]bool
}

func newButtons() buttons {
	return buttons{held: map[int]bool{}, down: map[int]bool{}, up: map[int]bool{}, pressed: map[int]bool{}}
}

func (b *buttons) press(button int) {
	if !b.pressed[button] {
		b.down[button] = true
	}
	b.pressed[button] = true
	b.held[button] = true
}

func (b *buttons) release(button int) {
	if b.pressed[button] {
		b.up[button] = true
	}
	delete(b.pressed, button)
}

func (b *buttons) reset() {
	clear(b.held)
	clear(b.down)
	clear(b.up)
	for button := range b.pressed {
		b.held[button] = true
	}
}

func (b *buttons) input(limit int) ButtonInput {
	out := ButtonInput{ButtonHeld: []int{}, ButtonUp: []int{}, ButtonDown: []int{}}
	for i := 0; i < limit; i++ {
		if b.held[i] {
			out.ButtonHeld = append(out.ButtonHeld, i)
		}
		if b.up[i] {
			out.ButtonUp = append(out.ButtonUp, i)
		}
		if b.down[i] {
			out.ButtonDown = append(out.ButtonDown, i)
		}
	}
	return out
}

// MouseTracker produces the mouse fragment. Input methods may be called from
// any goroutine.
type MouseTracker struct {
	mu        sync.Mutex
	converter coords.Converter
	paused    PauseSource
	buttons   buttons
	scroll    math32.Vector2
	moved     math32.Vector2
	present   bool
	rayOrigin math32.Vector3
	rayDir    math32.Vector3
}

func NewMouseTracker(converter coords.Converter, paused PauseSource) *MouseTracker {
	if converter == nil {
		converter = coords.Habitat{}
	}
	return &MouseTracker{converter: converter, paused: paused, buttons: newButtons()}
}

func (m *MouseTracker) ignored() bool {
	return m.paused != nil && m.paused.IsApplicationPaused()
}

func (m *MouseTracker) Press(button int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ignored() || button < 0 || button >= mouseButtonCount {
		return
	}
	m.buttons.press(button)
}

func (m *MouseTracker) Release(button int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ignored() || button < 0 || button >= mouseButtonCount {
		return
	}
	m.buttons.release(button)
}

// Scroll accumulates wheel movement.
func (m *MouseTracker) Scroll(dx, dy float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ignored() {
		return
	}
	m.scroll = m.scroll.Add(math32.Vec2(dx, dy))
}

// Move accumulates pointer movement in screen space, y up, and the engine
// space ray under the pointer.
func (m *MouseTracker) Move(dx, dy float32, origin, direction math32.Vector3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ignored() {
		return
	}
	m.present = true
	m.moved = m.moved.Add(math32.Vec2(dx, dy))
	m.rayOrigin = origin
	m.rayDir = direction
}

func (m *MouseTracker) UpdateClientState(state *State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mouse := &MouseInput{
		Buttons:      ButtonInput{ButtonHeld: []int{}, ButtonUp: []int{}, ButtonDown: []int{}},
		RayOrigin:    []float32{0, 0, 0},
		RayDirection: []float32{0, 0, 0},
	}
	if m.present {
		mouse.Buttons = m.buttons.input(mouseButtonCount)
		mouse.ScrollDelta = [2]float32{m.scroll.X, m.scroll.Y}
		mouse.MousePositionDelta = [2]float32{m.moved.X, -m.moved.Y}
		mouse.RayOrigin = m.converter.HabitatVector(m.rayOrigin)
		mouse.RayDirection = m.converter.HabitatVector(m.rayDir)
	}
	state.Mouse = mouse
}

func (m *MouseTracker) EndCycle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buttons.reset()
	m.scroll = math32.Vector2{}
	m.moved = math32.Vector2{}
}

// KeyboardTracker produces the key fragment. Keys are small integer codes
// agreed with the server.
type KeyboardTracker struct {
	mu      sync.Mutex
	paused  PauseSource
	keys    buttons
	maxCode int
}

// NewKeyboardTracker tracks key codes in [0, maxCode).
func NewKeyboardTracker(maxCode int, paused PauseSource) *KeyboardTracker {
	return &KeyboardTracker{paused: paused, keys: newButtons(), maxCode: maxCode}
}

func (k *KeyboardTracker) Press(code int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.valid(code) {
		k.keys.press(code)
	}
}

func (k *KeyboardTracker) Release(code int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.valid(code) {
		k.keys.release(code)
	}
}

func (k *KeyboardTracker) valid(code int) bool {
	if k.paused != nil && k.paused.IsApplicationPaused() {
		return false
	}
	return code >= 0 && code < k.maxCode
}

func (k *KeyboardTracker) UpdateClientState(state *State) {
	k.mu.Lock()
	defer k.mu.Unlock()
	input := k.keys.input(k.maxCode)
	state.Input = &input
}

func (k *KeyboardTracker) EndCycle() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys.reset()
}
