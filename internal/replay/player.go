// Package replay reconciles the local instance table with gfx-replay
// keyframes received from the server.
package replay

import (
	"context"
	"errors"
	"time"

	"siro-hitl/client/internal/assets"
	"siro-hitl/client/internal/coords"
	"siro-hitl/client/internal/interp"
	"siro-hitl/client/internal/keyframe"
	"siro-hitl/client/internal/pathutil"
	"siro-hitl/client/internal/progress"
	"siro-hitl/client/internal/scene"
	"siro-hitl/client/internal/telemetry"
	"siro-hitl/client/logging"
	replaylog "siro-hitl/client/logging/replay"
)

// MessageConsumer handles the message part of a keyframe. Consumers run in
// registration order before any instance change of the same keyframe, and
// are ticked once per frame.
type MessageConsumer interface {
	ProcessMessage(msg *keyframe.Message)
	Update(now time.Time)
}

// Deps carries shared infrastructure.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Frames    *logging.FrameCounter
}

// RetryPolicy bounds asset load attempts. The wait after failed attempt n is
// n*Step.
type RetryPolicy struct {
	MaxAttempts int
	Step        time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Step: time.Second}
}

func (p RetryPolicy) Delay(attempt int) time.Duration {
	return time.Duration(attempt) * p.Step
}

type Config struct {
	Host      scene.Host
	Resolver  assets.Resolver
	Tracker   *progress.Tracker
	Interp    *interp.Interpolator
	Converter coords.Converter
	Retry     RetryPolicy
	Deps      Deps
}

// Player owns the instance table and its rig and object indices. Every
// method must be called from the frame loop.
type Player struct {
	host      scene.Host
	resolver  assets.Resolver
	tracker   *progress.Tracker
	interp    *interp.Interpolator
	converter coords.Converter
	retry     RetryPolicy
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	pub       logging.Publisher
	frames    *logging.FrameCounter

	consumers         []MessageConsumer
	loads             map[string]keyframe.Load
	instances         map[int]*Instance
	rigs              map[int]int
	objects           map[int]int
	pendingRigUpdates map[int]keyframe.RigUpdate
	reclaim           reclaimer

	nextObserver int
	removed      map[int]func(key int)
	cleared      map[int]func()
}

func NewPlayer(cfg Config) *Player {
	if cfg.Host == nil {
		cfg.Host = scene.NewGraph()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = progress.NewTracker()
	}
	if cfg.Interp == nil {
		cfg.Interp = interp.New(false)
	}
	if cfg.Converter == nil {
		cfg.Converter = coords.Habitat{}
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	pub := cfg.Deps.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Player{
		host:              cfg.Host,
		resolver:          cfg.Resolver,
		tracker:           cfg.Tracker,
		interp:            cfg.Interp,
		converter:         cfg.Converter,
		retry:             cfg.Retry,
		logger:            telemetry.OrDiscard(cfg.Deps.Logger),
		metrics:           telemetry.MetricsOrNop(cfg.Deps.Metrics),
		pub:               pub,
		frames:            cfg.Deps.Frames,
		loads:             make(map[string]keyframe.Load),
		instances:         make(map[int]*Instance),
		rigs:              make(map[int]int),
		objects:           make(map[int]int),
		pendingRigUpdates: make(map[int]keyframe.RigUpdate),
	}
}

// AddConsumer appends c to the message dispatch order.
func (p *Player) AddConsumer(c MessageConsumer) {
	if c == nil {
		return
	}
	p.consumers = append(p.consumers, c)
}

// ProcessKeyframe applies kf in phase order: message, loads, creations,
// metadata, rig creations, rig updates, state updates, deletions.
func (p *Player) ProcessKeyframe(kf keyframe.Keyframe, now time.Time) {
	if kf.Message != nil {
		for _, c := range p.consumers {
			c.ProcessMessage(kf.Message)
		}
		if kf.Message.SceneChanged {
			p.teardown("scene changed")
		}
	}
	for _, load := range kf.Loads {
		p.loads[load.Filepath] = load
	}
	for _, item := range kf.Creations {
		p.create(item, now)
	}
	for _, item := range kf.Metadata {
		p.applyMetadata(item)
	}
	for _, rig := range kf.RigCreations {
		p.createRig(rig)
	}
	for _, update := range kf.RigUpdates {
		p.updateRig(update)
	}
	for _, update := range kf.StateUpdates {
		p.applyState(update, now)
	}
	for _, key := range kf.Deletions {
		p.delete(key)
	}
	p.metrics.Add(telemetry.MetricKeyframesApplied, 1)
}

// Update advances loads, reclamation, interpolation and consumers.
func (p *Player) Update(now time.Time) {
	for _, inst := range p.instances {
		p.advanceLoad(inst, now)
	}
	if freed, done := p.reclaim.update(p.host.ReclaimUnused); done {
		p.metrics.Add(telemetry.MetricReclaimPasses, 1)
		if freed > 0 {
			p.logger.Printf("[replay] reclaimed %d unused resources", freed)
		}
	}
	p.interp.Advance(now, func(key int, t coords.Transform) {
		if inst, ok := p.instances[key]; ok {
			p.setTransform(inst, t)
		}
	})
	for _, c := range p.consumers {
		c.Update(now)
	}
}

// Clear destroys every instance, for a new session or scene.
func (p *Player) Clear() {
	p.teardown("cleared")
	for _, fn := range p.cleared {
		fn()
	}
}

// OnRemoved registers fn to run with the key of each deleted instance. The
// returned func unregisters it.
func (p *Player) OnRemoved(fn func(key int)) (cancel func()) {
	if p.removed == nil {
		p.removed = make(map[int]func(int))
	}
	id := p.observerID()
	p.removed[id] = fn
	return func() { delete(p.removed, id) }
}

// OnCleared registers fn to run after Clear. Scene changes announced in a
// message do not fire it; consumers see that message themselves.
func (p *Player) OnCleared(fn func()) (cancel func()) {
	if p.cleared == nil {
		p.cleared = make(map[int]func())
	}
	id := p.observerID()
	p.cleared[id] = fn
	return func() { delete(p.cleared, id) }
}

func (p *Player) observerID() int {
	id := p.nextObserver
	p.nextObserver++
	return id
}

// SetKeyframeRate feeds the observed inbound keyframe rate to interpolation.
func (p *Player) SetKeyframeRate(hz float64) {
	p.interp.SetKeyframeRate(hz)
}

// Instance returns the instance for key.
func (p *Player) Instance(key int) (*Instance, bool) {
	inst, ok := p.instances[key]
	return inst, ok
}

// InstanceKeyForObject resolves a server object id to an instance key.
func (p *Player) InstanceKeyForObject(objectID int) (int, bool) {
	key, ok := p.objects[objectID]
	return key, ok
}

// InstanceKeyForRig resolves a rig id to the key of the instance it skins.
func (p *Player) InstanceKeyForRig(rigID int) (int, bool) {
	key, ok := p.rigs[rigID]
	return key, ok
}

func (p *Player) InstanceCount() int {
	return len(p.instances)
}

// Load returns the load descriptor registered for filepath.
func (p *Player) Load(filepath string) (keyframe.Load, bool) {
	load, ok := p.loads[filepath]
	return load, ok
}

// ReclaimPending reports whether a reclamation pass is requested or running.
func (p *Player) ReclaimPending() bool {
	return p.reclaim.pending()
}

// ReclaimPasses counts reclamation passes started.
func (p *Player) ReclaimPasses() int {
	return p.reclaim.passes
}

// SetVisibility shows or hides the instance for key. Unknown keys are ignored.
func (p *Player) SetVisibility(key int, visible bool) bool {
	inst, ok := p.instances[key]
	if !ok {
		return false
	}
	inst.visible = visible
	if inst.spawned {
		p.host.SetVisibility(key, visible)
	}
	return true
}

// SetLayer moves the instance for key to an engine render layer.
func (p *Player) SetLayer(key int, layer int) bool {
	inst, ok := p.instances[key]
	if !ok {
		return false
	}
	inst.layer = layer
	if inst.spawned {
		p.host.SetLayer(key, layer)
	}
	return true
}

func (p *Player) frame() uint64 {
	return p.frames.Frame()
}

func (p *Player) create(item keyframe.CreationItem, now time.Time) {
	ctx := context.Background()
	key := item.InstanceKey
	load, ok := p.loads[item.Creation.Filepath]
	if !ok {
		p.logger.Printf("[replay] creation of %d skipped: no load for %q", key, item.Creation.Filepath)
		replaylog.CreationSkipped(ctx, p.pub, p.frame(), replaylog.InstanceRef(key), replaylog.AssetPayload{Filepath: item.Creation.Filepath}, nil)
		p.metrics.Add(telemetry.MetricCreationsSkipped, 1)
		return
	}
	frameRotation, err := coords.FrameRotationOffset(load.Frame.Up)
	if err != nil {
		p.logger.Printf("[replay] creation of %d skipped: %v", key, err)
		replaylog.CreationSkipped(ctx, p.pub, p.frame(), replaylog.InstanceRef(key), replaylog.AssetPayload{Filepath: item.Creation.Filepath}, map[string]any{"error": err.Error()})
		p.metrics.Add(telemetry.MetricCreationsSkipped, 1)
		return
	}
	if _, exists := p.instances[key]; exists {
		p.logger.Printf("[replay] instance %d recreated", key)
		p.delete(key)
	}

	inst := newInstance(key, item.Creation, pathutil.HabitatPathToAddress(item.Creation.Filepath), frameRotation)
	p.instances[key] = inst
	if inst.RigID != keyframe.IDUndefined {
		p.rigs[inst.RigID] = key
		if update, ok := p.pendingRigUpdates[inst.RigID]; ok {
			delete(p.pendingRigUpdates, inst.RigID)
			p.deliverRigUpdate(inst, update)
		}
	}
	p.advanceLoad(inst, now)
}

func (p *Player) applyMetadata(item keyframe.MetadataItem) {
	inst, ok := p.instances[item.InstanceKey]
	if !ok {
		return
	}
	if inst.ObjectID != keyframe.IDUndefined && p.objects[inst.ObjectID] == inst.Key {
		delete(p.objects, inst.ObjectID)
	}
	inst.ObjectID = item.Metadata.ObjectID
	inst.SemanticID = item.Metadata.SemanticID
	if inst.ObjectID != keyframe.IDUndefined {
		p.objects[inst.ObjectID] = inst.Key
	}
}

func (p *Player) createRig(rig keyframe.RigCreation) {
	key, ok := p.rigs[rig.ID]
	if !ok {
		p.logger.Printf("[replay] rig %d has no instance", rig.ID)
		replaylog.RigOrphaned(context.Background(), p.pub, p.frame(), replaylog.RigPayload{RigID: rig.ID}, nil)
		return
	}
	inst := p.instances[key]
	if inst.skin == nil {
		return
	}
	if err := inst.skin.ProcessRigCreation(rig); err != nil {
		p.reportRigMismatch(inst, err)
		return
	}
	p.applyPendingPose(inst)
}

func (p *Player) updateRig(update keyframe.RigUpdate) {
	key, ok := p.rigs[update.ID]
	if !ok {
		p.pendingRigUpdates[update.ID] = update
		return
	}
	p.deliverRigUpdate(p.instances[key], update)
}

func (p *Player) deliverRigUpdate(inst *Instance, update keyframe.RigUpdate) {
	if inst.skin == nil {
		return
	}
	poses, err := inst.skin.ProcessRigUpdate(update, p.converter)
	if err != nil {
		p.logger.Printf("[replay] rig %d update rejected: %v", update.ID, err)
		return
	}
	p.applyBonePoses(inst, poses)
}

func (p *Player) applyPendingPose(inst *Instance) {
	if !inst.spawned || inst.skin == nil || !inst.skin.Bound() {
		return
	}
	p.host.EnableSkin(inst.Key, true)
	poses, err := inst.skin.TakePending(p.converter)
	if err != nil {
		p.logger.Printf("[replay] rig %d buffered pose rejected: %v", inst.RigID, err)
		return
	}
	p.applyBonePoses(inst, poses)
}

func (p *Player) applyBonePoses(inst *Instance, poses []BonePose) {
	if !inst.spawned {
		return
	}
	for _, pose := range poses {
		p.host.SetBonePose(inst.Key, pose.Bone, pose.Transform)
	}
}

func (p *Player) reportRigMismatch(inst *Instance, err error) {
	p.logger.Printf("[replay] skinning disabled for instance %d: %v", inst.Key, err)
	replaylog.RigMismatch(context.Background(), p.pub, p.frame(), replaylog.InstanceRef(inst.Key), replaylog.RigPayload{RigID: inst.RigID, Error: err.Error()}, nil)
	p.metrics.Add(telemetry.MetricRigMismatches, 1)
}

func (p *Player) applyState(update keyframe.StateUpdateItem, now time.Time) {
	inst, ok := p.instances[update.InstanceKey]
	if !ok {
		return
	}
	abs := update.State.AbsTransform
	target, err := coords.ToTransform(p.converter, abs.Translation, abs.Rotation)
	if err != nil {
		p.logger.Printf("[replay] state update for %d skipped: %v", inst.Key, err)
		replaylog.MalformedTransform(context.Background(), p.pub, p.frame(), replaylog.InstanceRef(inst.Key), map[string]any{"error": err.Error()})
		return
	}
	if p.interp.Begin(inst.Key, inst.transform, target, now) {
		return
	}
	p.setTransform(inst, target)
}

func (p *Player) setTransform(inst *Instance, t coords.Transform) {
	inst.transform = t
	if inst.spawned {
		p.host.SetTransform(inst.Key, t)
	}
}

func (p *Player) delete(key int) {
	inst, ok := p.instances[key]
	if !ok {
		return
	}
	p.destroy(inst)
	delete(p.instances, key)
	if inst.RigID != keyframe.IDUndefined && p.rigs[inst.RigID] == key {
		delete(p.rigs, inst.RigID)
	}
	if inst.ObjectID != keyframe.IDUndefined && p.objects[inst.ObjectID] == key {
		delete(p.objects, inst.ObjectID)
	}
	p.interp.Drop(key)
	p.reclaim.schedule()
	for _, fn := range p.removed {
		fn(key)
	}
}

// destroy cancels any in-flight load and removes the visual node.
func (p *Player) destroy(inst *Instance) {
	if inst.task != nil {
		inst.task.cancel()
		inst.task = nil
	}
	p.tracker.Untrack(inst)
	inst.progress = 0
	if inst.spawned {
		p.host.Despawn(inst.Key)
		inst.spawned = false
	}
}

func (p *Player) teardown(reason string) {
	count := len(p.instances)
	for _, inst := range p.instances {
		p.destroy(inst)
	}
	clear(p.instances)
	clear(p.rigs)
	clear(p.objects)
	clear(p.pendingRigUpdates)
	p.interp.Clear()
	if count > 0 {
		p.reclaim.schedule()
	}
	p.logger.Printf("[replay] scene torn down (%s): %d instances destroyed", reason, count)
	replaylog.SceneTornDown(context.Background(), p.pub, p.frame(), replaylog.TeardownPayload{Instances: count, Reason: reason}, nil)
}

// advanceLoad runs the instance's load task until it has to wait.
func (p *Player) advanceLoad(inst *Instance, now time.Time) {
	for inst.task != nil && p.stepLoad(inst, now) {
	}
}

func (p *Player) stepLoad(inst *Instance, now time.Time) bool {
	task := inst.task
	ctx := context.Background()
	switch task.step {
	case stepLocate:
		if p.resolver == nil {
			p.failLoad(inst, errors.New("no asset resolver configured"))
			return false
		}
		task.locate = p.resolver.Locate(task.address)
		task.step = stepLocating
		return true

	case stepLocating:
		if !task.locate.Done() {
			return false
		}
		exists, err := task.locate.Result()
		task.locate.Release()
		task.locate = nil
		if err == nil && exists {
			inst.state = LoadLoading
			p.tracker.LoadStarted(inst)
			task.step = stepAttempt
			return true
		}
		if err != nil {
			// The server could not be asked; this is not evidence the asset is missing.
			task.attempt++
			p.scheduleRetry(inst, err, stepLocate, now)
			return true
		}
		err = assets.ErrNotFound
		p.logger.Printf("[replay] asset %q for instance %d does not exist: %v", task.address, inst.Key, err)
		replaylog.AssetMissing(ctx, p.pub, p.frame(), replaylog.InstanceRef(inst.Key), replaylog.AssetPayload{Filepath: inst.Filepath, Address: task.address}, nil)
		if fallback, ok := pathutil.FallbackAddress(task.address); ok && !task.fallbackTried {
			replaylog.FallbackAttempted(ctx, p.pub, p.frame(), replaylog.InstanceRef(inst.Key), replaylog.AssetPayload{Address: task.address, Fallback: fallback}, nil)
			task.address = fallback
			task.fallbackTried = true
			task.step = stepLocate
			return true
		}
		p.failLoad(inst, err)
		return false

	case stepAttempt:
		task.attempt++
		task.load = p.resolver.Load(task.address)
		task.step = stepLoading
		return true

	case stepLoading:
		inst.progress = task.load.Progress()
		if !task.load.Done() {
			return false
		}
		asset, err := task.load.Result()
		task.load.Release()
		task.load = nil
		if err == nil {
			p.finishLoad(inst, asset)
			return false
		}
		inst.progress = 0
		p.scheduleRetry(inst, err, stepAttempt, now)
		return true

	case stepWaitingRetry:
		if now.Before(task.retryAt) {
			return false
		}
		if task.attempt >= p.retry.MaxAttempts {
			p.failLoad(inst, task.lastErr)
			return false
		}
		task.step = task.resume
		return true
	}
	return false
}

// scheduleRetry parks the task for the delay owed to its current attempt.
// Locate and load failures share one attempt budget.
func (p *Player) scheduleRetry(inst *Instance, err error, resume loadStep, now time.Time) {
	task := inst.task
	task.lastErr = err
	delay := p.retry.Delay(task.attempt)
	task.retryAt = now.Add(delay)
	task.resume = resume
	task.step = stepWaitingRetry
	if task.attempt < p.retry.MaxAttempts {
		p.logger.Printf("[replay] unable to load %q: %v; retrying in %.1fs", task.address, err, delay.Seconds())
		replaylog.LoadRetry(context.Background(), p.pub, p.frame(), replaylog.InstanceRef(inst.Key), replaylog.LoadPayload{Address: task.address, Attempt: task.attempt, DelaySeconds: delay.Seconds(), Error: err.Error()}, nil)
		p.metrics.Add(telemetry.MetricLoadRetries, 1)
	}
}

func (p *Player) failLoad(inst *Instance, err error) {
	task := inst.task
	inst.state = LoadFailed
	inst.progress = 0
	inst.task = nil
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.logger.Printf("[replay] unable to load %q after %d attempts; leaving placeholder", task.address, task.attempt)
	replaylog.LoadFailed(context.Background(), p.pub, p.frame(), replaylog.InstanceRef(inst.Key), replaylog.LoadPayload{Address: task.address, Attempt: task.attempt, Error: msg}, nil)
	p.metrics.Add(telemetry.MetricLoadsFailed, 1)
	p.tracker.LoadFailed(inst)
}

func (p *Player) finishLoad(inst *Instance, asset assets.Asset) {
	inst.state = LoadSucceeded
	inst.progress = 1
	inst.asset = asset
	inst.task.step = stepDone
	p.metrics.Add(telemetry.MetricLoadsSucceeded, 1)
	p.tracker.LoadSucceeded(inst)

	err := p.host.Spawn(inst.Key, scene.SpawnSpec{
		Asset:         asset,
		FrameRotation: inst.frameRotation,
		Scale:         inst.scale,
		Transform:     inst.transform,
		Visible:       inst.visible,
		Layer:         inst.layer,
	})
	if err != nil {
		p.logger.Printf("[replay] spawn of %d failed: %v", inst.Key, err)
		return
	}
	inst.spawned = true
	if inst.skin == nil {
		return
	}
	if err := inst.skin.Initialize(asset.Bones); err != nil {
		p.reportRigMismatch(inst, err)
		return
	}
	p.applyPendingPose(inst)
}
