package consumers

import (
	"maps"
	"slices"
	"time"

	"siro-hitl/client/internal/clientstate"
	"siro-hitl/client/internal/keyframe"
)

// Canvas keys. The nine anchored canvases exist for the whole session.
const (
	CanvasTopLeft     = "top_left"
	CanvasTop         = "top"
	CanvasTopRight    = "top_right"
	CanvasLeft        = "left"
	CanvasCenter      = "center"
	CanvasRight       = "right"
	CanvasBottomLeft  = "bottom_left"
	CanvasBottom      = "bottom"
	CanvasBottomRight = "bottom_right"
	CanvasTooltip     = "tooltip"

	StatusCanvas   = CanvasTopLeft
	StatusLabelUID = "disconnect_status"
	tooltipUID     = "__tooltip"
)

var canvasKeys = []string{
	CanvasTopLeft, CanvasTop, CanvasTopRight,
	CanvasLeft, CanvasCenter, CanvasRight,
	CanvasBottomLeft, CanvasBottom, CanvasBottomRight,
	CanvasTooltip,
}

// ModalSource reports whether a modal dialog hides the canvases.
type ModalSource interface {
	ModalDialogShown() bool
}

// Canvas is a read-only view of one canvas.
type Canvas struct {
	Key        string
	Properties keyframe.UICanvasProperties
	Elements   []keyframe.UIElement
}

type element struct {
	canvas  string
	value   keyframe.UIElement
	tooltip string
	// pressable elements report clicks while enabled.
	pressable bool
	enabled   bool
}

type canvas struct {
	props keyframe.UICanvasProperties
	order []string
}

// CanvasManager keeps the server-driven UI canvases and reports button
// presses as the ui block of the client state. Element uids are unique
// across canvases; an update for a known uid changes it in place.
type CanvasManager struct {
	modal    ModalSource
	deps     deps
	canvases map[string]*canvas
	elements map[string]*element
	tooltip  string
	output   *clientstate.UIInput
}

func NewCanvasManager(modal ModalSource, d Deps) *CanvasManager {
	m := &CanvasManager{
		modal:    modal,
		deps:     newDeps(d),
		canvases: make(map[string]*canvas, len(canvasKeys)),
		elements: make(map[string]*element),
		output:   clientstate.NewUIInput(),
	}
	for _, key := range canvasKeys {
		m.canvases[key] = &canvas{}
	}
	return m
}

func (m *CanvasManager) ProcessMessage(msg *keyframe.Message) {
	for _, key := range slices.Sorted(maps.Keys(msg.UIUpdates)) {
		m.processCanvasUpdate(key, msg.UIUpdates[key])
	}
}

func (m *CanvasManager) Update(time.Time) {}

func (m *CanvasManager) processCanvasUpdate(key string, update keyframe.UICanvasUpdate) {
	if _, ok := m.canvases[key]; !ok {
		m.deps.logger.Printf("[canvas] canvas %q not found", key)
		return
	}
	if update.Clear {
		m.ClearCanvas(key)
	}
	for _, u := range update.Elements {
		m.apply(key, u)
	}
}

func (m *CanvasManager) apply(key string, u keyframe.UIElementUpdate) {
	if u.CanvasProperties != nil {
		m.canvases[key].props = *u.CanvasProperties
	}
	for _, el := range u.Elements() {
		m.upsert(key, el)
	}
}

func (m *CanvasManager) upsert(key string, el keyframe.UIElement) {
	uid := el.ElementUID()
	if uid == "" {
		m.deps.logger.Printf("[canvas] element without uid on canvas %q", key)
		return
	}

	rec := &element{canvas: key, value: el}
	switch e := el.(type) {
	case *keyframe.UIButton:
		rec.pressable, rec.enabled, rec.tooltip = true, e.Enabled, e.Tooltip
	case *keyframe.UIToggle:
		rec.pressable, rec.enabled, rec.tooltip = true, e.Enabled, e.Tooltip
	case *keyframe.UILabel, *keyframe.UIListItem, *keyframe.UISeparator, *keyframe.UISpacer:
	default:
		m.deps.logger.Printf("[canvas] unsupported element %T (%s)", el, uid)
		return
	}

	if existing, ok := m.elements[uid]; ok {
		rec.canvas = existing.canvas
		m.elements[uid] = rec
		return
	}
	m.elements[uid] = rec
	c := m.canvases[key]
	c.order = append(c.order, uid)
}

// ClearCanvas removes every element of the canvas with key.
func (m *CanvasManager) ClearCanvas(key string) {
	c, ok := m.canvases[key]
	if !ok {
		m.deps.logger.Printf("[canvas] canvas %q not found", key)
		return
	}
	for _, uid := range c.order {
		delete(m.elements, uid)
	}
	c.order = nil
}

func (m *CanvasManager) ClearAllCanvases() {
	for _, key := range canvasKeys {
		m.ClearCanvas(key)
	}
	m.tooltip = ""
}

// SetStatus replaces all canvases with the connection status line. An empty
// status leaves the canvases empty.
func (m *CanvasManager) SetStatus(status string) {
	m.ClearAllCanvases()
	if status == "" {
		return
	}
	m.upsert(StatusCanvas, &keyframe.UILabel{
		UID:      StatusLabelUID,
		Text:     status,
		FontSize: 24,
		Color:    []float32{1, 1, 1, 1},
	})
}

// Hover shows the tooltip of the element with uid, or hides the tooltip
// when uid is empty or has none.
func (m *CanvasManager) Hover(uid string) {
	tooltip := ""
	if rec, ok := m.elements[uid]; ok {
		tooltip = rec.tooltip
	}
	if tooltip == m.tooltip {
		return
	}
	m.tooltip = tooltip
	m.ClearCanvas(CanvasTooltip)
	if tooltip == "" {
		return
	}
	m.apply(CanvasTooltip, keyframe.UIElementUpdate{
		CanvasProperties: &keyframe.UICanvasProperties{
			Padding:         12,
			BackgroundColor: []float32{0.5, 0.5, 0.5, 1},
		},
		Label: &keyframe.UILabel{UID: tooltipUID, Text: tooltip, FontSize: 24},
	})
}

func (m *CanvasManager) Tooltip() string {
	return m.tooltip
}

// Press records a click on an enabled button or toggle.
func (m *CanvasManager) Press(uid string) bool {
	if !m.Visible() {
		return false
	}
	rec, ok := m.elements[uid]
	if !ok || !rec.pressable || !rec.enabled {
		return false
	}
	m.output.ButtonsPressed = append(m.output.ButtonsPressed, uid)
	return true
}

// SetText records a text edit for uid.
func (m *CanvasManager) SetText(uid, text string) {
	m.output.Textboxes[uid] = text
}

// Visible reports whether canvases are drawn. A modal dialog hides them.
func (m *CanvasManager) Visible() bool {
	return m.modal == nil || !m.modal.ModalDialogShown()
}

// Canvas returns the canvas with key and its elements in insertion order.
func (m *CanvasManager) Canvas(key string) (Canvas, bool) {
	c, ok := m.canvases[key]
	if !ok {
		return Canvas{}, false
	}
	out := Canvas{Key: key, Properties: c.props}
	for _, uid := range c.order {
		out.Elements = append(out.Elements, m.elements[uid].value)
	}
	return out, true
}

// Element returns the element with uid and the canvas holding it.
func (m *CanvasManager) Element(uid string) (keyframe.UIElement, string, bool) {
	rec, ok := m.elements[uid]
	if !ok {
		return nil, "", false
	}
	return rec.value, rec.canvas, true
}

func (m *CanvasManager) UpdateClientState(state *clientstate.State) {
	out := clientstate.NewUIInput()
	out.ButtonsPressed = append(out.ButtonsPressed, m.output.ButtonsPressed...)
	for k, v := range m.output.Textboxes {
		out.Textboxes[k] = v
	}
	state.UI = out
}

func (m *CanvasManager) EndCycle() {
	m.output = clientstate.NewUIInput()
}
