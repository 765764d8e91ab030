package consumers

import (
	"time"

	"cogentcore.org/core/math32"

	"siro-hitl/client/internal/coords"
	"siro-hitl/client/internal/keyframe"
)

// LoadingSource reports whether assets are loading.
type LoadingSource interface {
	IsLoading() bool
}

// Text is an overlay string. Screen text has no position.
type Text struct {
	Text     string
	Position *math32.Vector3
}

// TextHandler keeps the texts of the latest message.
type TextHandler struct {
	converter coords.Converter
	loading   LoadingSource
	texts     []Text
}

func NewTextHandler(converter coords.Converter, loading LoadingSource) *TextHandler {
	if converter == nil {
		converter = coords.Habitat{}
	}
	return &TextHandler{converter: converter, loading: loading}
}

func (h *TextHandler) ProcessMessage(msg *keyframe.Message) {
	if msg.Texts == nil {
		h.texts = nil
		return
	}
	h.texts = make([]Text, 0, len(msg.Texts))
	for _, t := range msg.Texts {
		text := Text{Text: t.Text}
		if pos, err := h.converter.Vector(t.Position); err == nil {
			text.Position = &pos
		}
		h.texts = append(h.texts, text)
	}
}

func (h *TextHandler) Update(time.Time) {}

// Visible returns the texts to draw, which is nothing while loading.
func (h *TextHandler) Visible() []Text {
	if h.loading != nil && h.loading.IsLoading() {
		return nil
	}
	return h.texts
}
