package replay

import (
	"context"
	"strconv"

	"siro-hitl/client/logging"
)

const (
	// EventDecodeFailed is emitted when an inbound payload cannot be parsed.
	EventDecodeFailed logging.EventType = "replay.decode_failed"
	// EventCreationSkipped is emitted when a creation references a filepath with no load entry.
	EventCreationSkipped logging.EventType = "replay.creation_skipped"
	// EventAssetMissing is emitted when the resolver reports that an address does not exist.
	EventAssetMissing logging.EventType = "replay.asset_missing"
	// EventFallbackAttempted is emitted when a legacy dataset path is rewritten.
	EventFallbackAttempted logging.EventType = "replay.fallback_attempted"
	// EventLoadRetry is emitted when a failed load is scheduled for another attempt.
	EventLoadRetry logging.EventType = "replay.load_retry"
	// EventLoadFailed is emitted when an instance exhausts its load attempts.
	EventLoadFailed logging.EventType = "replay.load_failed"
	// EventRigMismatch is emitted when a rig cannot be bound to the loaded skeleton.
	EventRigMismatch logging.EventType = "replay.rig_mismatch"
	// EventRigOrphaned is emitted when a rig creation references no known instance.
	EventRigOrphaned logging.EventType = "replay.rig_orphaned"
	// EventMalformedTransform is emitted when a transform has the wrong number of components.
	EventMalformedTransform logging.EventType = "replay.malformed_transform"
	// EventUnknownViewport is emitted when a message references a viewport that does not exist.
	EventUnknownViewport logging.EventType = "replay.unknown_viewport"
	// EventSceneTornDown is emitted when every instance is destroyed at once.
	EventSceneTornDown logging.EventType = "replay.scene_torn_down"
)

// ErrorPayload carries an error description.
type ErrorPayload struct {
	Error string `json:"error"`
}

// AssetPayload describes an instance asset.
type AssetPayload struct {
	Filepath string `json:"filepath,omitempty"`
	Address  string `json:"address,omitempty"`
	Fallback string `json:"fallback,omitempty"`
}

// LoadPayload describes a load attempt outcome.
type LoadPayload struct {
	Address      string  `json:"address"`
	Attempt      int     `json:"attempt"`
	DelaySeconds float64 `json:"delaySeconds,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// RigPayload describes a rig binding problem.
type RigPayload struct {
	RigID int    `json:"rigId"`
	Error string `json:"error,omitempty"`
}

// TeardownPayload describes a full scene teardown.
type TeardownPayload struct {
	Instances int    `json:"instances"`
	Reason    string `json:"reason"`
}

// InstanceRef builds the actor reference for an instance key.
func InstanceRef(key int) logging.EntityRef {
	return logging.EntityRef{ID: strconv.Itoa(key), Kind: logging.EntityKindInstance}
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, frame uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Frame:    frame,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryReplay,
		Payload:  payload,
		Extra:    extra,
	})
}

// DecodeFailed publishes a warning for an unparseable payload.
func DecodeFailed(ctx context.Context, pub logging.Publisher, frame uint64, payload ErrorPayload, extra map[string]any) {
	publish(ctx, pub, EventDecodeFailed, logging.SeverityWarn, frame, logging.EntityRef{Kind: logging.EntityKindConnection}, payload, extra)
}

// CreationSkipped publishes a warning when a creation has no matching load.
func CreationSkipped(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload AssetPayload, extra map[string]any) {
	publish(ctx, pub, EventCreationSkipped, logging.SeverityWarn, frame, actor, payload, extra)
}

// AssetMissing publishes a warning when an address does not resolve.
func AssetMissing(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload AssetPayload, extra map[string]any) {
	publish(ctx, pub, EventAssetMissing, logging.SeverityWarn, frame, actor, payload, extra)
}

// FallbackAttempted publishes an info event when a legacy path is rewritten.
func FallbackAttempted(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload AssetPayload, extra map[string]any) {
	publish(ctx, pub, EventFallbackAttempted, logging.SeverityInfo, frame, actor, payload, extra)
}

// LoadRetry publishes an info event when a load will be retried.
func LoadRetry(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload LoadPayload, extra map[string]any) {
	publish(ctx, pub, EventLoadRetry, logging.SeverityInfo, frame, actor, payload, extra)
}

// LoadFailed publishes an error when an instance gives up loading.
func LoadFailed(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload LoadPayload, extra map[string]any) {
	publish(ctx, pub, EventLoadFailed, logging.SeverityError, frame, actor, payload, extra)
}

// RigMismatch publishes an error when skinning is disabled for an instance.
func RigMismatch(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload RigPayload, extra map[string]any) {
	publish(ctx, pub, EventRigMismatch, logging.SeverityError, frame, actor, payload, extra)
}

// RigOrphaned publishes a warning for a rig creation with no instance.
func RigOrphaned(ctx context.Context, pub logging.Publisher, frame uint64, payload RigPayload, extra map[string]any) {
	publish(ctx, pub, EventRigOrphaned, logging.SeverityWarn, frame, logging.EntityRef{ID: strconv.Itoa(payload.RigID), Kind: logging.EntityKindRig}, payload, extra)
}

// MalformedTransform publishes a warning for a transform with bad dimensions.
func MalformedTransform(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, extra map[string]any) {
	publish(ctx, pub, EventMalformedTransform, logging.SeverityWarn, frame, actor, nil, extra)
}

// UnknownViewport publishes a warning for an unknown viewport id.
func UnknownViewport(ctx context.Context, pub logging.Publisher, frame uint64, viewportID int, extra map[string]any) {
	publish(ctx, pub, EventUnknownViewport, logging.SeverityWarn, frame, logging.EntityRef{ID: strconv.Itoa(viewportID), Kind: logging.EntityKindViewport}, nil, extra)
}

// SceneTornDown publishes an info event for a full teardown.
func SceneTornDown(ctx context.Context, pub logging.Publisher, frame uint64, payload TeardownPayload, extra map[string]any) {
	publish(ctx, pub, EventSceneTornDown, logging.SeverityInfo, frame, logging.EntityRef{Kind: logging.EntityKindClient}, payload, extra)
}
