package consumers

import (
	"time"

	"siro-hitl/client/internal/clientstate"
	"siro-hitl/client/internal/keyframe"
)

// ModalTracker is told whether a blocking dialog is on screen.
type ModalTracker interface {
	LoadingSource
	SetModalDialogShown(shown bool)
}

// DialogHandler shows the modal dialog of the latest message and reports
// clicks and textbox edits as the legacy UI block of the client state.
type DialogHandler struct {
	tracker ModalTracker
	dialog  *keyframe.Dialog
	output  *clientstate.UIInput
}

func NewDialogHandler(tracker ModalTracker) *DialogHandler {
	return &DialogHandler{tracker: tracker, output: clientstate.NewUIInput()}
}

func (h *DialogHandler) ProcessMessage(msg *keyframe.Message) {
	h.dialog = msg.Dialog
	if h.tracker != nil {
		h.tracker.SetModalDialogShown(h.dialog != nil)
	}
}

func (h *DialogHandler) Update(time.Time) {}

// Dialog returns the dialog to draw, or nil. Nothing is drawn while loading.
func (h *DialogHandler) Dialog() *keyframe.Dialog {
	if h.tracker != nil && h.tracker.IsLoading() {
		return nil
	}
	return h.dialog
}

// PressButton records a click on an enabled dialog button.
func (h *DialogHandler) PressButton(id string) bool {
	d := h.Dialog()
	if d == nil {
		return false
	}
	for _, b := range d.Buttons {
		if b.ID == id && b.Enabled {
			h.output.ButtonsPressed = append(h.output.ButtonsPressed, id)
			return true
		}
	}
	return false
}

// SetText records an edit of the dialog textbox.
func (h *DialogHandler) SetText(text string) bool {
	d := h.Dialog()
	if d == nil || d.Textbox == nil || !d.Textbox.Enabled {
		return false
	}
	h.output.Textboxes[d.Textbox.ID] = text
	return true
}

func (h *DialogHandler) UpdateClientState(state *clientstate.State) {
	if h.dialog == nil && len(h.output.ButtonsPressed) == 0 && len(h.output.Textboxes) == 0 {
		return
	}
	out := clientstate.NewUIInput()
	out.ButtonsPressed = append(out.ButtonsPressed, h.output.ButtonsPressed...)
	for k, v := range h.output.Textboxes {
		out.Textboxes[k] = v
	}
	state.LegacyUI = out
}

func (h *DialogHandler) EndCycle() {
	h.output = clientstate.NewUIInput()
}
