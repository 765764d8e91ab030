package consumers

import (
	"cmp"
	"image/color"
	"slices"
	"time"

	"siro-hitl/client/internal/keyframe"
)

// ObjectResolver maps server object ids to instance keys.
type ObjectResolver interface {
	InstanceKeyForObject(objectID int) (int, bool)
}

// Outline is a highlight drawn around a group of instances.
type Outline struct {
	Priority     int
	Color        color.NRGBA
	Width        float32
	InstanceKeys []int
}

var defaultOutlineColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// OutlineHandler keeps the outline groups of the latest message. Object ids
// are resolved when read because the metadata that maps them is applied
// after message dispatch.
type OutlineHandler struct {
	objects ObjectResolver
	groups  []keyframe.ObjectOutline
}

func NewOutlineHandler(objects ObjectResolver) *OutlineHandler {
	return &OutlineHandler{objects: objects}
}

func (h *OutlineHandler) ProcessMessage(msg *keyframe.Message) {
	h.groups = slices.Clone(msg.Outlines)
}

func (h *OutlineHandler) Update(time.Time) {}

// Outlines returns the groups ordered by ascending priority, so later
// entries draw on top. Unresolved object ids are left out and groups with no
// resolved instance are dropped.
func (h *OutlineHandler) Outlines() []Outline {
	out := make([]Outline, 0, len(h.groups))
	for _, g := range h.groups {
		o := Outline{
			Priority: g.Priority,
			Color:    unitColor(g.Color, defaultOutlineColor),
			Width:    g.Width,
		}
		for _, id := range g.ObjectIDs {
			if h.objects == nil {
				break
			}
			if key, ok := h.objects.InstanceKeyForObject(id); ok {
				o.InstanceKeys = append(o.InstanceKeys, key)
			}
		}
		if len(o.InstanceKeys) == 0 {
			continue
		}
		out = append(out, o)
	}
	slices.SortStableFunc(out, func(a, b Outline) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return out
}

// unitColor converts an RGBA color with components in [0, 1].
func unitColor(c []float32, fallback color.NRGBA) color.NRGBA {
	if len(c) != 4 {
		return fallback
	}
	return color.NRGBA{R: unitByte(c[0]), G: unitByte(c[1]), B: unitByte(c[2]), A: unitByte(c[3])}
}

func unitByte(v float32) uint8 {
	return clampByte(int(v*255 + 0.5))
}

// byteColor converts an RGBA color with components in [0, 255].
func byteColor(c []int, fallback color.NRGBA) (color.NRGBA, bool) {
	if len(c) == 0 {
		return fallback, true
	}
	if len(c) != 4 {
		return fallback, false
	}
	return color.NRGBA{R: clampByte(c[0]), G: clampByte(c[1]), B: clampByte(c[2]), A: clampByte(c[3])}, true
}

func clampByte(v int) uint8 {
	return uint8(min(max(v, 0), 255))
}
