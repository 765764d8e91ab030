package replay

import (
	"errors"
	"testing"
	"time"

	"cogentcore.org/core/math32"

	"siro-hitl/client/internal/assets"
	"siro-hitl/client/internal/interp"
	"siro-hitl/client/internal/keyframe"
	"siro-hitl/client/internal/progress"
	"siro-hitl/client/internal/scene"
	"siro-hitl/client/logging"
	"siro-hitl/client/logging/sinks"
	replaylog "siro-hitl/client/logging/replay"
)

var epoch = time.Unix(1_700_000_000, 0)

type harness struct {
	player   *Player
	graph    *scene.Graph
	resolver *assets.MemoryResolver
	tracker  *progress.Tracker
	events   *sinks.MemorySink
	metrics  *logging.Metrics
}

func newHarness(t *testing.T, interpolate bool) *harness {
	t.Helper()
	h := &harness{
		graph:    scene.NewGraph(),
		resolver: assets.NewMemoryResolver(),
		tracker:  progress.NewTracker(),
		events:   sinks.NewMemorySink(),
		metrics:  &logging.Metrics{},
	}
	h.player = NewPlayer(Config{
		Host:     h.graph,
		Resolver: h.resolver,
		Tracker:  h.tracker,
		Interp:   interp.New(interpolate),
		Deps: Deps{
			Logger:    testLogger(t),
			Metrics:   telemetryMetrics(h.metrics),
			Publisher: h.events,
		},
	})
	return h
}

func load(filepath string, up ...float32) keyframe.Load {
	return keyframe.Load{Filepath: filepath, Frame: keyframe.Frame{Up: up}}
}

func creation(key int, filepath string, rigID int) keyframe.CreationItem {
	return keyframe.CreationItem{InstanceKey: key, Creation: keyframe.Creation{Filepath: filepath, RigID: rigID}}
}

func stateUpdate(key int, translation ...float32) keyframe.StateUpdateItem {
	return keyframe.StateUpdateItem{
		InstanceKey: key,
		State: keyframe.StateUpdate{AbsTransform: keyframe.AbsTransform{
			Translation: translation,
			Rotation:    []float32{1, 0, 0, 0},
		}},
	}
}

func TestKeyframeLifecycle(t *testing.T) {
	h := newHarness(t, false)
	h.resolver.Add("data/objects/chair")

	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:        []keyframe.Load{load("data/objects/chair.glb", 0, 0, 1)},
		Creations:    []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined)},
		Metadata:     []keyframe.MetadataItem{{InstanceKey: 1, Metadata: keyframe.InstanceMetadata{ObjectID: 7, SemanticID: 2}}},
		StateUpdates: []keyframe.StateUpdateItem{stateUpdate(1, 1, 2, 3)},
	}, epoch)

	inst, ok := h.player.Instance(1)
	if !ok {
		t.Fatalf("expected instance 1")
	}
	if inst.LoadState() != LoadSucceeded || !inst.Spawned() {
		t.Fatalf("expected loaded instance, got %s spawned=%v", inst.LoadState(), inst.Spawned())
	}
	if inst.ObjectID != 7 || inst.SemanticID != 2 {
		t.Fatalf("unexpected metadata: %d %d", inst.ObjectID, inst.SemanticID)
	}
	if key, ok := h.player.InstanceKeyForObject(7); !ok || key != 1 {
		t.Fatalf("expected object 7 to map to instance 1, got %d %v", key, ok)
	}
	node, ok := h.graph.Node(1)
	if !ok {
		t.Fatalf("expected node 1 to be spawned")
	}
	if node.Transform.Position != math32.Vec3(-1, 2, 3) {
		t.Fatalf("expected mirrored position, got %v", node.Transform.Position)
	}
	if node.FrameRotation.IsIdentity() {
		t.Fatalf("expected z-up asset to carry a frame rotation")
	}

	h.player.ProcessKeyframe(keyframe.Keyframe{
		Metadata: []keyframe.MetadataItem{{InstanceKey: 1, Metadata: keyframe.InstanceMetadata{ObjectID: 8, SemanticID: 2}}},
	}, epoch)
	if _, ok := h.player.InstanceKeyForObject(7); ok {
		t.Fatalf("expected stale object mapping to be removed")
	}

	h.player.ProcessKeyframe(keyframe.Keyframe{Deletions: []int{1}}, epoch)
	if h.player.InstanceCount() != 0 || h.graph.Len() != 0 {
		t.Fatalf("expected instance to be destroyed")
	}
	if _, ok := h.player.InstanceKeyForObject(8); ok {
		t.Fatalf("expected object index to be pruned")
	}
	if !h.player.ReclaimPending() {
		t.Fatalf("expected reclamation to be scheduled")
	}
	h.player.Update(epoch)
	h.player.Update(epoch)
	if h.graph.Reclaims() != 1 || h.graph.CachedResources() != 0 {
		t.Fatalf("expected one reclaim pass freeing the asset, got %d passes %d cached", h.graph.Reclaims(), h.graph.CachedResources())
	}
	if h.player.ReclaimPending() {
		t.Fatalf("expected no pending reclamation")
	}
	if got := h.metrics.Snapshot()["keyframes_applied"]; got != 3 {
		t.Fatalf("expected 3 applied keyframes, got %d", got)
	}
}

func TestUnknownKeysAreIgnored(t *testing.T) {
	h := newHarness(t, false)
	h.player.ProcessKeyframe(keyframe.Keyframe{
		StateUpdates: []keyframe.StateUpdateItem{stateUpdate(42, 1, 1, 1)},
		Metadata:     []keyframe.MetadataItem{{InstanceKey: 42, Metadata: keyframe.InstanceMetadata{ObjectID: 1}}},
		Deletions:    []int{42},
	}, epoch)
	if h.player.InstanceCount() != 0 || h.player.ReclaimPending() {
		t.Fatalf("expected unknown keys to be no-ops")
	}
}

func TestCreationWithoutLoadIsSkipped(t *testing.T) {
	h := newHarness(t, false)
	h.resolver.Add("data/objects/chair")
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Creations: []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)
	if h.player.InstanceCount() != 0 {
		t.Fatalf("expected creation to be skipped")
	}
	if got := len(h.events.OfType(replaylog.EventCreationSkipped)); got != 1 {
		t.Fatalf("expected one creation_skipped event, got %d", got)
	}
	if h.resolver.Loads("data/objects/chair") != 0 {
		t.Fatalf("expected no load to start")
	}
}

func TestCreationWithUnsupportedFrameIsSkipped(t *testing.T) {
	h := newHarness(t, false)
	h.resolver.Add("data/objects/chair")
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/objects/chair.glb", 1, 0, 0)},
		Creations: []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)
	if h.player.InstanceCount() != 0 {
		t.Fatalf("expected creation with x-up frame to be skipped")
	}
}

func TestRecreationReplacesInstance(t *testing.T) {
	h := newHarness(t, false)
	h.resolver.Add("data/objects/chair")
	h.resolver.Add("data/objects/table")
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/objects/chair.glb"), load("data/objects/table.glb")},
		Creations: []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Creations: []keyframe.CreationItem{creation(1, "data/objects/table.glb", keyframe.IDUndefined)},
	}, epoch)
	node, ok := h.graph.Node(1)
	if !ok || node.Address != "data/objects/table" {
		t.Fatalf("expected node 1 to show the table, got %+v", node)
	}
	if h.graph.Len() != 1 || h.player.InstanceCount() != 1 {
		t.Fatalf("expected a single instance")
	}
}

func TestLoadRetriesWithLinearBackoff(t *testing.T) {
	h := newHarness(t, false)
	const address = "data/objects/chair"
	h.resolver.Add(address)
	h.resolver.FailNext(address, 5)

	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/objects/chair.glb")},
		Creations: []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)
	inst, _ := h.player.Instance(1)
	if inst.LoadState() != LoadLoading || !h.tracker.IsLoading() {
		t.Fatalf("expected instance to be loading")
	}

	steps := []struct {
		at       time.Duration
		attempts int
	}{
		{999 * time.Millisecond, 1},
		{time.Second, 2},
		{3 * time.Second, 3},
		{6 * time.Second, 4},
		{10 * time.Second, 5},
		{15*time.Second - time.Millisecond, 5},
	}
	for _, step := range steps {
		h.player.Update(epoch.Add(step.at))
		if got := h.resolver.Loads(address); got != step.attempts {
			t.Fatalf("at %v: expected %d attempts, got %d", step.at, step.attempts, got)
		}
		if inst.LoadState() != LoadLoading {
			t.Fatalf("at %v: expected loading, got %s", step.at, inst.LoadState())
		}
	}

	h.player.Update(epoch.Add(15 * time.Second))
	if inst.LoadState() != LoadFailed {
		t.Fatalf("expected failure after the last wait, got %s", inst.LoadState())
	}
	h.player.Update(epoch.Add(time.Minute))
	if got := h.resolver.Loads(address); got != 5 {
		t.Fatalf("expected no sixth attempt, got %d", got)
	}
	if h.tracker.IsLoading() || h.tracker.FailureCount() != 1 {
		t.Fatalf("expected tracker to record the failure")
	}
	if _, ok := h.player.Instance(1); !ok {
		t.Fatalf("expected failed instance to stay in the table")
	}
	if got := len(h.events.OfType(replaylog.EventLoadRetry)); got != 4 {
		t.Fatalf("expected 4 retry events, got %d", got)
	}
}

func TestLoadSucceedsAfterRetry(t *testing.T) {
	h := newHarness(t, false)
	const address = "data/objects/chair"
	h.resolver.Add(address)
	h.resolver.FailNext(address, 2)
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/objects/chair.glb")},
		Creations: []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)
	h.player.Update(epoch.Add(time.Second))
	h.player.Update(epoch.Add(3 * time.Second))
	inst, _ := h.player.Instance(1)
	if inst.LoadState() != LoadSucceeded || h.graph.Len() != 1 {
		t.Fatalf("expected third attempt to succeed, got %s", inst.LoadState())
	}
	if h.tracker.SuccessCount() != 1 || h.tracker.IsLoading() {
		t.Fatalf("expected tracker to record the success")
	}
}

func TestMissingLegacyAssetUsesFallback(t *testing.T) {
	h := newHarness(t, false)
	const fallback = "data/objects_ovmm/train_val/hssd/assets/objects/abc"
	h.resolver.Add(fallback)
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/fpss/objects/abc.glb")},
		Creations: []keyframe.CreationItem{creation(1, "data/fpss/objects/abc.glb", keyframe.IDUndefined)},
	}, epoch)
	inst, _ := h.player.Instance(1)
	if inst.LoadState() != LoadSucceeded || inst.Address() != fallback {
		t.Fatalf("expected fallback load, got %s at %q", inst.LoadState(), inst.Address())
	}
	if got := len(h.events.OfType(replaylog.EventFallbackAttempted)); got != 1 {
		t.Fatalf("expected one fallback event, got %d", got)
	}
}

func TestMissingAssetFailsWithoutRetry(t *testing.T) {
	h := newHarness(t, false)
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/fpss/objects/abc.glb")},
		Creations: []keyframe.CreationItem{creation(1, "data/fpss/objects/abc.glb", keyframe.IDUndefined)},
	}, epoch)
	inst, _ := h.player.Instance(1)
	if inst.LoadState() != LoadFailed {
		t.Fatalf("expected missing asset to fail, got %s", inst.LoadState())
	}
	if got := len(h.events.OfType(replaylog.EventAssetMissing)); got != 2 {
		t.Fatalf("expected original and fallback to be reported missing, got %d", got)
	}
	if h.tracker.FailureCount() != 1 {
		t.Fatalf("expected one failure")
	}
}

func TestDeletionCancelsPendingLoad(t *testing.T) {
	h := newHarness(t, false)
	const address = "data/objects/chair"
	h.resolver.Add(address)
	h.resolver.Hold(address)
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/objects/chair.glb")},
		Creations: []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)
	if !h.tracker.IsLoading() {
		t.Fatalf("expected held load to be tracked")
	}
	h.player.ProcessKeyframe(keyframe.Keyframe{Deletions: []int{1}}, epoch)
	if h.tracker.IsLoading() {
		t.Fatalf("expected deletion to untrack the load")
	}
	h.resolver.Release(address)
	h.player.Update(epoch.Add(time.Second))
	if h.graph.Len() != 0 || h.tracker.SuccessCount() != 0 {
		t.Fatalf("expected late load to be discarded")
	}
}

type recordingConsumer struct {
	player    *Player
	seen      []int
	updates   int
	lastFrame *keyframe.Message
}

func (c *recordingConsumer) ProcessMessage(msg *keyframe.Message) {
	c.seen = append(c.seen, c.player.InstanceCount())
	c.lastFrame = msg
}

func (c *recordingConsumer) Update(time.Time) { c.updates++ }

func TestSceneChangeTearsDownAfterDispatch(t *testing.T) {
	h := newHarness(t, false)
	consumer := &recordingConsumer{player: h.player}
	h.player.AddConsumer(consumer)
	h.resolver.Add("data/objects/chair")
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/objects/chair.glb")},
		Creations: []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined), creation(2, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)

	h.player.ProcessKeyframe(keyframe.Keyframe{
		Message:   &keyframe.Message{SceneChanged: true},
		Creations: []keyframe.CreationItem{creation(3, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)
	if len(consumer.seen) != 1 || consumer.seen[0] != 2 {
		t.Fatalf("expected consumer to see the old scene, got %v", consumer.seen)
	}
	if keys := h.graph.Keys(); len(keys) != 1 || keys[0] != 3 {
		t.Fatalf("expected only the new instance to remain, got %v", keys)
	}
	if got := len(h.events.OfType(replaylog.EventSceneTornDown)); got != 1 {
		t.Fatalf("expected one teardown event, got %d", got)
	}

	h.player.Update(epoch)
	if consumer.updates != 1 {
		t.Fatalf("expected consumer to be ticked")
	}
}

func TestDeletionsInOneFrameShareReclaimPass(t *testing.T) {
	h := newHarness(t, false)
	h.resolver.Add("data/objects/chair")
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/objects/chair.glb")},
		Creations: []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined), creation(2, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)
	h.player.ProcessKeyframe(keyframe.Keyframe{Deletions: []int{1}}, epoch)
	h.player.ProcessKeyframe(keyframe.Keyframe{Deletions: []int{2}}, epoch)
	h.player.Update(epoch)
	if h.graph.Reclaims() != 1 || h.player.ReclaimPasses() != 1 {
		t.Fatalf("expected a single batched pass, got %d", h.graph.Reclaims())
	}
}

func TestStateUpdatesInterpolate(t *testing.T) {
	h := newHarness(t, true)
	h.resolver.Add("data/objects/chair")
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:        []keyframe.Load{load("data/objects/chair.glb")},
		Creations:    []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined)},
		StateUpdates: []keyframe.StateUpdateItem{stateUpdate(1, 1, 0, 0)},
	}, epoch)
	node, _ := h.graph.Node(1)
	if node.Transform.Position != math32.Vec3(-1, 0, 0) {
		t.Fatalf("expected first pose from the origin to snap, got %v", node.Transform.Position)
	}

	h.player.ProcessKeyframe(keyframe.Keyframe{StateUpdates: []keyframe.StateUpdateItem{stateUpdate(1, 3, 0, 0)}}, epoch)
	h.player.Update(epoch.Add(50 * time.Millisecond))
	node, _ = h.graph.Node(1)
	if node.Transform.Position != math32.Vec3(-2, 0, 0) {
		t.Fatalf("expected halfway pose, got %v", node.Transform.Position)
	}
	h.player.Update(epoch.Add(100 * time.Millisecond))
	node, _ = h.graph.Node(1)
	if node.Transform.Position != math32.Vec3(-3, 0, 0) {
		t.Fatalf("expected final pose, got %v", node.Transform.Position)
	}

	h.player.ProcessKeyframe(keyframe.Keyframe{StateUpdates: []keyframe.StateUpdateItem{stateUpdate(1, 5, 0, 0)}}, epoch)
	h.player.ProcessKeyframe(keyframe.Keyframe{Deletions: []int{1}}, epoch)
	h.player.Update(epoch.Add(50 * time.Millisecond))
	if h.graph.Len() != 0 {
		t.Fatalf("expected deleted instance to stay deleted")
	}
}

func TestMalformedStateUpdateIsSkipped(t *testing.T) {
	h := newHarness(t, false)
	h.resolver.Add("data/objects/chair")
	bad := stateUpdate(1, 1, 2)
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:        []keyframe.Load{load("data/objects/chair.glb")},
		Creations:    []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined)},
		StateUpdates: []keyframe.StateUpdateItem{bad},
	}, epoch)
	inst, _ := h.player.Instance(1)
	if inst.Transform().Position != (math32.Vector3{}) {
		t.Fatalf("expected malformed update to leave the pose alone")
	}
	if got := len(h.events.OfType(replaylog.EventMalformedTransform)); got != 1 {
		t.Fatalf("expected one malformed transform event, got %d", got)
	}
}

func TestRigBindsAfterAssetLoads(t *testing.T) {
	h := newHarness(t, false)
	const address = "data/humanoids/avatar"
	h.resolver.Add(address, "root", "hip", "spine")
	h.resolver.Hold(address)

	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:        []keyframe.Load{load("data/humanoids/avatar.glb")},
		Creations:    []keyframe.CreationItem{creation(1, "data/humanoids/avatar.glb", 3)},
		RigCreations: []keyframe.RigCreation{{ID: 3, BoneNames: []string{"spine", "hip"}}},
		RigUpdates: []keyframe.RigUpdate{{ID: 3, Pose: []keyframe.BoneTransform{
			{T: []float32{1, 0, 0}, R: []float32{1, 0, 0, 0}},
			{T: []float32{0, 2, 0}, R: []float32{1, 0, 0, 0}},
		}}},
	}, epoch)
	if key, ok := h.player.InstanceKeyForRig(3); !ok || key != 1 {
		t.Fatalf("expected rig 3 to map to instance 1")
	}

	h.resolver.Release(address)
	h.player.Update(epoch)
	node, ok := h.graph.Node(1)
	if !ok || !node.SkinEnabled {
		t.Fatalf("expected skinned node, got %+v", node)
	}
	if got := node.Bones[2].Position; got != math32.Vec3(-1, 0, 0) {
		t.Fatalf("expected spine pose on mesh bone 2, got %v", got)
	}
	if got := node.Bones[1].Position; got != math32.Vec3(0, 2, 0) {
		t.Fatalf("expected hip pose on mesh bone 1, got %v", got)
	}
}

func TestRigUpdateBeforeCreationIsDelivered(t *testing.T) {
	h := newHarness(t, false)
	h.resolver.Add("data/humanoids/avatar", "root", "hip")
	pose := []keyframe.BoneTransform{{T: []float32{0, 1, 0}, R: []float32{1, 0, 0, 0}}}

	h.player.ProcessKeyframe(keyframe.Keyframe{
		RigUpdates: []keyframe.RigUpdate{{ID: 4, Pose: pose}},
	}, epoch)
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:        []keyframe.Load{load("data/humanoids/avatar.glb")},
		Creations:    []keyframe.CreationItem{creation(1, "data/humanoids/avatar.glb", 4)},
		RigCreations: []keyframe.RigCreation{{ID: 4, BoneNames: []string{"hip"}}},
	}, epoch)
	node, _ := h.graph.Node(1)
	if got, ok := node.Bones[1]; !ok || got.Position != math32.Vec3(0, 1, 0) {
		t.Fatalf("expected buffered pose to be applied, got %+v", node.Bones)
	}
}

func TestRigMismatchDisablesSkinning(t *testing.T) {
	h := newHarness(t, false)
	h.resolver.Add("data/humanoids/avatar", "root", "hip")
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:        []keyframe.Load{load("data/humanoids/avatar.glb")},
		Creations:    []keyframe.CreationItem{creation(1, "data/humanoids/avatar.glb", 5)},
		RigCreations: []keyframe.RigCreation{{ID: 5, BoneNames: []string{"hip", "spine"}}},
	}, epoch)
	inst, _ := h.player.Instance(1)
	if !errors.Is(inst.SkinnedMesh().Err(), ErrRigMismatch) {
		t.Fatalf("expected rig mismatch, got %v", inst.SkinnedMesh().Err())
	}
	h.player.ProcessKeyframe(keyframe.Keyframe{
		RigUpdates: []keyframe.RigUpdate{{ID: 5, Pose: []keyframe.BoneTransform{{T: []float32{0, 1, 0}, R: []float32{1, 0, 0, 0}}}}},
	}, epoch)
	node, _ := h.graph.Node(1)
	if node.SkinEnabled || len(node.Bones) != 0 {
		t.Fatalf("expected skinning to stay disabled")
	}
	if got := len(h.events.OfType(replaylog.EventRigMismatch)); got != 1 {
		t.Fatalf("expected mismatch to be reported once, got %d", got)
	}
}

func TestOrphanRigCreationIsDropped(t *testing.T) {
	h := newHarness(t, false)
	h.player.ProcessKeyframe(keyframe.Keyframe{
		RigCreations: []keyframe.RigCreation{{ID: 9, BoneNames: []string{"hip"}}},
	}, epoch)
	if got := len(h.events.OfType(replaylog.EventRigOrphaned)); got != 1 {
		t.Fatalf("expected orphaned rig event, got %d", got)
	}
}

func TestVisibilityAndLayerOverrides(t *testing.T) {
	h := newHarness(t, false)
	h.resolver.Add("data/objects/chair")
	h.resolver.Hold("data/objects/chair")
	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/objects/chair.glb")},
		Creations: []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)
	if !h.player.SetVisibility(1, false) || !h.player.SetLayer(1, 9) {
		t.Fatalf("expected overrides to apply to a loading instance")
	}
	if h.player.SetVisibility(2, false) {
		t.Fatalf("expected unknown key to be rejected")
	}
	h.resolver.Release("data/objects/chair")
	h.player.Update(epoch)
	node, _ := h.graph.Node(1)
	if node.Visible || node.Layer != 9 {
		t.Fatalf("expected overrides to carry into the spawned node, got %+v", node)
	}
}

func TestLocateErrorIsRetried(t *testing.T) {
	h := newHarness(t, false)
	const address = "data/objects/chair"
	h.resolver.Add(address)
	h.resolver.FailLocateNext(address, 1)

	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/objects/chair.glb")},
		Creations: []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)
	inst, _ := h.player.Instance(1)
	if inst.LoadState() == LoadFailed {
		t.Fatalf("expected a locate error to be retried, not fail the instance")
	}
	if got := len(h.events.OfType(replaylog.EventAssetMissing)); got != 0 {
		t.Fatalf("expected no missing asset report, got %d", got)
	}
	if got := len(h.events.OfType(replaylog.EventLoadRetry)); got != 1 {
		t.Fatalf("expected one retry event, got %d", got)
	}

	h.player.Update(epoch.Add(999 * time.Millisecond))
	if got := h.resolver.Locates(address); got != 1 {
		t.Fatalf("expected locate to wait for the retry delay, got %d locates", got)
	}

	h.player.Update(epoch.Add(time.Second))
	if got := h.resolver.Locates(address); got != 2 {
		t.Fatalf("expected a second locate, got %d", got)
	}
	if inst.LoadState() != LoadSucceeded || h.graph.Len() != 1 {
		t.Fatalf("expected load to succeed after the locate retry, got %s", inst.LoadState())
	}
	if h.tracker.FailureCount() != 0 {
		t.Fatalf("expected no recorded failure")
	}
}

func TestLocateErrorsExhaustRetries(t *testing.T) {
	h := newHarness(t, false)
	const address = "data/objects/chair"
	h.resolver.Add(address)
	h.resolver.FailLocateNext(address, 5)

	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/objects/chair.glb")},
		Creations: []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)
	inst, _ := h.player.Instance(1)
	for _, at := range []time.Duration{time.Second, 3 * time.Second, 6 * time.Second, 10 * time.Second} {
		h.player.Update(epoch.Add(at))
		if inst.LoadState() == LoadFailed {
			t.Fatalf("at %v: failed early", at)
		}
	}
	h.player.Update(epoch.Add(15 * time.Second))
	if inst.LoadState() != LoadFailed {
		t.Fatalf("expected failure after five locate errors, got %s", inst.LoadState())
	}
	h.player.Update(epoch.Add(time.Minute))
	if got := h.resolver.Locates(address); got != 5 {
		t.Fatalf("expected 5 locates, got %d", got)
	}
	if got := h.resolver.Loads(address); got != 0 {
		t.Fatalf("expected no load attempts, got %d", got)
	}
}

func TestRemovalObservers(t *testing.T) {
	h := newHarness(t, false)
	h.resolver.Add("data/objects/chair")
	var removed []int
	cleared := 0
	h.player.OnRemoved(func(key int) { removed = append(removed, key) })
	cancel := h.player.OnCleared(func() { cleared++ })

	h.player.ProcessKeyframe(keyframe.Keyframe{
		Loads:     []keyframe.Load{load("data/objects/chair.glb")},
		Creations: []keyframe.CreationItem{creation(1, "data/objects/chair.glb", keyframe.IDUndefined), creation(2, "data/objects/chair.glb", keyframe.IDUndefined)},
	}, epoch)
	h.player.ProcessKeyframe(keyframe.Keyframe{Deletions: []int{1, 7}}, epoch)
	if len(removed) != 1 || removed[0] != 1 {
		t.Fatalf("expected only the live key to be reported, got %v", removed)
	}

	h.player.Clear()
	if cleared != 1 {
		t.Fatalf("expected one clear notification, got %d", cleared)
	}
	cancel()
	h.player.Clear()
	if cleared != 1 {
		t.Fatalf("expected cancelled observer to stay silent")
	}
}
