// Package scene is the boundary between the reconciler and whatever renders
// the world. Graph is a headless implementation that records state.
package scene

import (
	"cogentcore.org/core/math32"

	"siro-hitl/client/internal/assets"
	"siro-hitl/client/internal/async"
	"siro-hitl/client/internal/coords"
)

// SpawnSpec describes the visual node created once an instance's asset has
// loaded.
type SpawnSpec struct {
	Asset         assets.Asset
	FrameRotation math32.Quat
	Scale         math32.Vector3
	Transform     coords.Transform
	Visible       bool
	Layer         int
}

// Host owns the visual nodes of instances, addressed by instance key.
// Calls for keys without a node are ignored.
type Host interface {
	Spawn(key int, spec SpawnSpec) error
	Despawn(key int)
	SetTransform(key int, t coords.Transform)
	SetBonePose(key int, bone int, t coords.Transform)
	EnableSkin(key int, enabled bool)
	SetVisibility(key int, visible bool)
	SetLayer(key int, layer int)
	// ReclaimUnused frees resources no live node references and reports how
	// many were freed.
	ReclaimUnused() async.Operation[int]
}
