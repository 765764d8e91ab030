package replay

import (
	"time"

	"cogentcore.org/core/math32"

	"siro-hitl/client/internal/assets"
	"siro-hitl/client/internal/async"
	"siro-hitl/client/internal/coords"
	"siro-hitl/client/internal/keyframe"
)

// LoadState is the lifecycle of an instance's asset.
type LoadState int

const (
	LoadNotStarted LoadState = iota
	LoadLoading
	LoadSucceeded
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadNotStarted:
		return "not_started"
	case LoadLoading:
		return "loading"
	case LoadSucceeded:
		return "succeeded"
	case LoadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Instance is one entry of the instance table. It exists from its creation
// to its deletion whether or not its asset ever loads.
type Instance struct {
	Key        int
	Filepath   string
	RigID      int
	ObjectID   int
	SemanticID int

	transform     coords.Transform
	visible       bool
	layer         int
	scale         math32.Vector3
	frameRotation math32.Quat

	state    LoadState
	progress float32
	asset    assets.Asset
	spawned  bool
	skin     *SkinnedMesh
	task     *loadTask
}

func newInstance(key int, creation keyframe.Creation, address string, frameRotation math32.Quat) *Instance {
	scale := math32.Vec3(1, 1, 1)
	if len(creation.Scale) == 3 {
		scale = math32.Vec3(creation.Scale[0], creation.Scale[1], creation.Scale[2])
	}
	inst := &Instance{
		Key:           key,
		Filepath:      creation.Filepath,
		RigID:         creation.RigID,
		ObjectID:      keyframe.IDUndefined,
		SemanticID:    keyframe.IDUndefined,
		transform:     coords.Identity(),
		visible:       true,
		scale:         scale,
		frameRotation: frameRotation,
		task:          &loadTask{address: address},
	}
	if creation.RigID != keyframe.IDUndefined {
		inst.skin = newSkinnedMesh(creation.RigID)
	}
	return inst
}

// LoadProgress implements progress.Loadable.
func (i *Instance) LoadProgress() float32 { return i.progress }

func (i *Instance) LoadState() LoadState { return i.state }
func (i *Instance) Transform() coords.Transform { return i.transform }
func (i *Instance) Visible() bool { return i.visible }
func (i *Instance) Layer() int { return i.layer }
func (i *Instance) Spawned() bool { return i.spawned }
func (i *Instance) SkinnedMesh() *SkinnedMesh { return i.skin }
func (i *Instance) Asset() assets.Asset { return i.asset }
func (i *Instance) LoadAttempts() int {
	if i.task == nil {
		return 0
	}
	return i.task.attempt
}

// Address is the asset address currently being loaded, which differs from
// the filepath-derived one after a fallback substitution.
func (i *Instance) Address() string {
	if i.task == nil {
		return i.asset.Address
	}
	return i.task.address
}

type loadStep int

const (
	stepLocate loadStep = iota
	stepLocating
	stepAttempt
	stepLoading
	stepWaitingRetry
	stepDone
)

// loadTask is the resumable state of an instance's load. Each step either
// advances immediately or waits on an operation or a deadline.
type loadTask struct {
	step          loadStep
	address       string
	fallbackTried bool
	attempt       int
	retryAt       time.Time
	// resume is the step taken once the retry delay has elapsed.
	resume  loadStep
	lastErr error
	locate        async.Operation[bool]
	load          async.Operation[assets.Asset]
}

func (t *loadTask) cancel() {
	if t.locate != nil {
		t.locate.Release()
		t.locate = nil
	}
	if t.load != nil {
		t.load.Release()
		t.load = nil
	}
	t.step = stepDone
}
