package network

import (
	"context"

	"siro-hitl/client/logging"
)

const (
	// EventConnectAttempt is emitted when the transport starts dialing a candidate.
	EventConnectAttempt logging.EventType = "network.connect_attempt"
	// EventConnectTimeout is emitted when an attempt is abandoned after the probe and grace windows.
	EventConnectTimeout logging.EventType = "network.connect_timeout"
	// EventConnectFailed is emitted when dialing a candidate returns an error.
	EventConnectFailed logging.EventType = "network.connect_failed"
	// EventConnectionDiscarded is emitted when a dial completes after its attempt was abandoned.
	EventConnectionDiscarded logging.EventType = "network.connection_discarded"
	// EventConnected is emitted when a connection is adopted and the ready handshake was sent.
	EventConnected logging.EventType = "network.connected"
	// EventDisconnected is emitted when the adopted connection closes.
	EventDisconnected logging.EventType = "network.disconnected"
	// EventReconnectScheduled is emitted when a backoff delay starts.
	EventReconnectScheduled logging.EventType = "network.reconnect_scheduled"
	// EventSessionEnded is emitted when the connection closes after reconnection was disabled.
	EventSessionEnded logging.EventType = "network.session_ended"
	// EventSendFailed is emitted when an outbound client state could not be written.
	EventSendFailed logging.EventType = "network.send_failed"
	// EventMessageRate reports the inbound keyframe rate over the monitoring window.
	EventMessageRate logging.EventType = "network.message_rate"
)

// AttemptPayload describes a connection attempt.
type AttemptPayload struct {
	URL        string `json:"url"`
	Attempt    int    `json:"attempt"`
	Candidates int    `json:"candidates"`
}

// FailurePayload carries an error description for a URL.
type FailurePayload struct {
	URL   string `json:"url,omitempty"`
	Error string `json:"error"`
}

// DisconnectPayload describes a closed connection.
type DisconnectPayload struct {
	URL      string `json:"url"`
	Messages int    `json:"messages"`
	Reason   string `json:"reason,omitempty"`
}

// BackoffPayload describes a scheduled reconnection.
type BackoffPayload struct {
	Reason       string  `json:"reason"`
	DelaySeconds float64 `json:"delaySeconds"`
}

// RatePayload reports observed inbound and frame rates.
type RatePayload struct {
	MessagesPerSecond float64 `json:"messagesPerSecond"`
	FramesPerSecond   float64 `json:"framesPerSecond"`
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
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// ConnectAttempt publishes an info event when dialing starts.
func ConnectAttempt(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload AttemptPayload, extra map[string]any) {
	publish(ctx, pub, EventConnectAttempt, logging.SeverityInfo, frame, actor, payload, extra)
}

// ConnectTimeout publishes a warning when an attempt is abandoned.
func ConnectTimeout(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload AttemptPayload, extra map[string]any) {
	publish(ctx, pub, EventConnectTimeout, logging.SeverityWarn, frame, actor, payload, extra)
}

// ConnectFailed publishes a warning when dialing fails.
func ConnectFailed(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload FailurePayload, extra map[string]any) {
	publish(ctx, pub, EventConnectFailed, logging.SeverityWarn, frame, actor, payload, extra)
}

// ConnectionDiscarded publishes an info event when a late connection is closed unused.
func ConnectionDiscarded(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, extra map[string]any) {
	publish(ctx, pub, EventConnectionDiscarded, logging.SeverityInfo, frame, actor, nil, extra)
}

// Connected publishes an info event when a connection is adopted.
func Connected(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, extra map[string]any) {
	publish(ctx, pub, EventConnected, logging.SeverityInfo, frame, actor, nil, extra)
}

// Disconnected publishes a warning when the adopted connection closes.
func Disconnected(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload DisconnectPayload, extra map[string]any) {
	publish(ctx, pub, EventDisconnected, logging.SeverityWarn, frame, actor, payload, extra)
}

// ReconnectScheduled publishes an info event when a backoff starts.
func ReconnectScheduled(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload BackoffPayload, extra map[string]any) {
	publish(ctx, pub, EventReconnectScheduled, logging.SeverityInfo, frame, actor, payload, extra)
}

// SessionEnded publishes an info event when the client stops reconnecting for good.
func SessionEnded(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, extra map[string]any) {
	publish(ctx, pub, EventSessionEnded, logging.SeverityInfo, frame, actor, nil, extra)
}

// SendFailed publishes a warning when an outbound message was not written.
func SendFailed(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload FailurePayload, extra map[string]any) {
	publish(ctx, pub, EventSendFailed, logging.SeverityWarn, frame, actor, payload, extra)
}

// MessageRate publishes a debug event with the observed rates.
func MessageRate(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload RatePayload, extra map[string]any) {
	publish(ctx, pub, EventMessageRate, logging.SeverityDebug, frame, actor, payload, extra)
}
