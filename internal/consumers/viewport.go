package consumers

import (
	"maps"
	"slices"
	"time"

	"siro-hitl/client/internal/coords"
	"siro-hitl/client/internal/keyframe"
	replaylog "siro-hitl/client/logging/replay"
)

const (
	// DefaultViewportID is the main viewport. It always exists and its camera
	// is never disabled.
	DefaultViewportID = -1
	// FirstLayerIndex is the first engine render layer available to the
	// server. Server layer n maps to engine layer FirstLayerIndex+n.
	FirstLayerIndex = 8
	LayerCount      = 8

	// DefaultLayers is the mask of the engine's default layer, which every
	// camera renders.
	DefaultLayers uint32 = 1
)

// Rect is a screen region in normalized coordinates.
type Rect struct {
	X, Y, Width, Height float32
}

// FullScreen covers the whole screen.
var FullScreen = Rect{Width: 1, Height: 1}

// Viewport is a screen region rendered by its own camera.
type Viewport struct {
	ID        int
	Rect      Rect
	LayerMask uint32
	Enabled   bool
	Camera    coords.Transform
}

// RendersLayer reports whether server layer is in the viewport's mask.
func (v Viewport) RendersLayer(layer int) bool {
	idx, ok := LayerIndex(layer)
	if !ok {
		return false
	}
	return v.LayerMask&(1<<uint(idx)) != 0
}

// LayerIndex maps a server layer to an engine render layer.
func LayerIndex(layer int) (int, bool) {
	if layer < 0 || layer >= LayerCount {
		return 0, false
	}
	return FirstLayerIndex + layer, true
}

// ViewportHandler keeps the viewport table. Every message disables all
// cameras except the default one and re-enables those it moves.
type ViewportHandler struct {
	converter coords.Converter
	deps      deps
	viewports map[int]*Viewport
}

func NewViewportHandler(converter coords.Converter, d Deps) *ViewportHandler {
	if converter == nil {
		converter = coords.Habitat{}
	}
	mask := DefaultLayers
	for layer := 0; layer < LayerCount; layer++ {
		mask |= 1 << uint(FirstLayerIndex+layer)
	}
	return &ViewportHandler{
		converter: converter,
		deps:      newDeps(d),
		viewports: map[int]*Viewport{
			DefaultViewportID: {
				ID:        DefaultViewportID,
				Rect:      FullScreen,
				LayerMask: mask,
				Enabled:   true,
				Camera:    coords.Identity(),
			},
		},
	}
}

func (h *ViewportHandler) ProcessMessage(msg *keyframe.Message) {
	for _, id := range slices.Sorted(maps.Keys(msg.Viewports)) {
		h.updateProperties(id, msg.Viewports[id])
	}

	for id, vp := range h.viewports {
		if id != DefaultViewportID {
			vp.Enabled = false
		}
	}

	for _, id := range slices.Sorted(maps.Keys(msg.Cameras)) {
		vp, ok := h.viewports[id]
		if !ok {
			h.deps.logger.Printf("[viewport] camera update for unknown viewport %d", id)
			replaylog.UnknownViewport(h.deps.ctx(), h.deps.pub, h.deps.frames.Frame(), id, nil)
			continue
		}
		vp.Enabled = true
		h.setCamera(vp, msg.Cameras[id])
	}

	// Explicit properties win over the camera pass.
	for id, props := range msg.Viewports {
		vp := h.viewports[id]
		if props.Camera != nil {
			h.setCamera(vp, *props.Camera)
		}
		if props.Enabled != nil && id != DefaultViewportID {
			vp.Enabled = *props.Enabled
		}
	}
}

func (h *ViewportHandler) Update(time.Time) {}

func (h *ViewportHandler) updateProperties(id int, props keyframe.ViewportProperties) {
	vp, ok := h.viewports[id]
	if !ok {
		main := h.viewports[DefaultViewportID]
		vp = &Viewport{
			ID:        id,
			Rect:      main.Rect,
			LayerMask: main.LayerMask,
			Camera:    main.Camera,
		}
		h.viewports[id] = vp
	}
	if len(props.Rect) == 4 {
		vp.Rect = Rect{X: props.Rect[0], Y: props.Rect[1], Width: props.Rect[2], Height: props.Rect[3]}
	}
	if props.Layers != nil {
		mask := DefaultLayers
		for _, layer := range props.Layers {
			idx, ok := LayerIndex(layer)
			if !ok {
				h.deps.logger.Printf("[viewport] viewport %d: layer %d out of range", id, layer)
				continue
			}
			mask |= 1 << uint(idx)
		}
		vp.LayerMask = mask
	}
}

func (h *ViewportHandler) setCamera(vp *Viewport, t keyframe.AbsTransform) {
	if !t.Valid() {
		return
	}
	pose, err := coords.ToTransform(h.converter, t.Translation, t.Rotation)
	if err != nil {
		return
	}
	vp.Camera = pose
}

// Viewport returns a copy of the viewport with id.
func (h *ViewportHandler) Viewport(id int) (Viewport, bool) {
	vp, ok := h.viewports[id]
	if !ok {
		return Viewport{}, false
	}
	return *vp, true
}

// Viewports returns every viewport ordered by id.
func (h *ViewportHandler) Viewports() []Viewport {
	out := make([]Viewport, 0, len(h.viewports))
	for _, id := range slices.Sorted(maps.Keys(h.viewports)) {
		out = append(out, *h.viewports[id])
	}
	return out
}

// LayerIndex maps a server layer to an engine render layer.
func (h *ViewportHandler) LayerIndex(layer int) (int, bool) {
	return LayerIndex(layer)
}
