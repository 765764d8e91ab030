package consumers

import (
	"maps"
	"slices"
	"time"

	"siro-hitl/client/internal/keyframe"
)

// InstanceController applies per-instance render overrides. It reports false
// when no instance exists for key.
type InstanceController interface {
	SetVisibility(key int, visible bool) bool
	SetLayer(key int, layer int) bool
}

// LayerMapper maps server layers to engine render layers.
type LayerMapper interface {
	LayerIndex(layer int) (int, bool)
}

// ObjectPropertiesHandler applies visibility and layer overrides keyed by
// instance key. Messages are dispatched before the creations of the same
// keyframe, so overrides are held until Update finds the instance.
type ObjectPropertiesHandler struct {
	instances InstanceController
	layers    LayerMapper
	deps      deps
	pending   map[int]keyframe.ObjectProperties
}

func NewObjectPropertiesHandler(instances InstanceController, layers LayerMapper, d Deps) *ObjectPropertiesHandler {
	if layers == nil {
		layers = layerMapperFunc(LayerIndex)
	}
	return &ObjectPropertiesHandler{
		instances: instances,
		layers:    layers,
		deps:      newDeps(d),
		pending:   make(map[int]keyframe.ObjectProperties),
	}
}

type layerMapperFunc func(int) (int, bool)

func (f layerMapperFunc) LayerIndex(layer int) (int, bool) { return f(layer) }

func (h *ObjectPropertiesHandler) ProcessMessage(msg *keyframe.Message) {
	if msg.SceneChanged {
		clear(h.pending)
	}
	for key, props := range msg.Objects {
		merged := h.pending[key]
		if props.Visible != nil {
			merged.Visible = props.Visible
		}
		if props.Layer != nil {
			merged.Layer = props.Layer
		}
		h.pending[key] = merged
	}
}

// Update applies pending overrides whose instance now exists.
func (h *ObjectPropertiesHandler) Update(time.Time) {
	if h.instances == nil {
		return
	}
	for _, key := range slices.Sorted(maps.Keys(h.pending)) {
		if h.apply(key, h.pending[key]) {
			delete(h.pending, key)
		}
	}
}

func (h *ObjectPropertiesHandler) apply(key int, props keyframe.ObjectProperties) bool {
	if props.Visible != nil {
		if !h.instances.SetVisibility(key, *props.Visible) {
			return false
		}
	}
	if props.Layer != nil {
		idx, ok := h.layers.LayerIndex(*props.Layer)
		if !ok {
			h.deps.logger.Printf("[objects] instance %d: layer %d out of range", key, *props.Layer)
			return true
		}
		if !h.instances.SetLayer(key, idx) {
			return false
		}
	}
	return true
}

// Forget drops the override held for key. Wired to instance deletion so a
// reused key starts without the old instance's overrides.
func (h *ObjectPropertiesHandler) Forget(key int) {
	delete(h.pending, key)
}

// Reset drops every held override.
func (h *ObjectPropertiesHandler) Reset() {
	clear(h.pending)
}

// Pending reports how many instances still wait for their overrides.
func (h *ObjectPropertiesHandler) Pending() int {
	return len(h.pending)
}
