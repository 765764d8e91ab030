package loading

import (
	"context"

	"siro-hitl/client/logging"
)

const (
	// EventBatchStarted is emitted when the set of loading instances becomes non-empty.
	EventBatchStarted logging.EventType = "loading.batch_started"
	// EventBatchFinished is emitted when the set of loading instances becomes empty.
	EventBatchFinished logging.EventType = "loading.batch_finished"
)

// BatchPayload summarises load outcomes since the tracker was created.
type BatchPayload struct {
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
}

// BatchStarted publishes an info event when loading begins.
func BatchStarted(ctx context.Context, pub logging.Publisher, frame uint64, payload BatchPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBatchStarted,
		Frame:    frame,
		Actor:    logging.EntityRef{Kind: logging.EntityKindClient},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLoading,
		Payload:  payload,
		Extra:    extra,
	})
}

// BatchFinished publishes an info event when loading ends.
func BatchFinished(ctx context.Context, pub logging.Publisher, frame uint64, payload BatchPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBatchFinished,
		Frame:    frame,
		Actor:    logging.EntityRef{Kind: logging.EntityKindClient},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLoading,
		Payload:  payload,
		Extra:    extra,
	})
}
