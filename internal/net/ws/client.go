// Package ws maintains the single websocket session with the simulation
// server: candidate rotation, connect probing, reconnect backoff and the
// one-shot session rule.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"siro-hitl/client/internal/async"
	"siro-hitl/client/internal/telemetry"
	"siro-hitl/client/logging"
	netlog "siro-hitl/client/logging/network"
)

var (
	ErrNotConnected = errors.New("ws: not connected")
	ErrClosed       = errors.New("ws: client closed")
	ErrNoCandidates = errors.New("ws: no candidate urls")
)

const (
	DefaultProbeTimeout = 2 * time.Second
	DefaultGraceTimeout = 4 * time.Second
	DefaultWriteTimeout = 10 * time.Second

	// A connection that delivered at least this many messages was a real
	// session that ended, not a server turning the client away.
	longConnectionMessages = 10

	statusUnreachable = "Unable to reach server!"
	statusBusy        = "Server is busy!"
	statusDropped     = "Disconnected!"
	statusProbing     = "Trying to reach server..."
	statusTerminated  = "Disconnected."
)

// State is the externally visible connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "disconnected"
	}
}

// Phase is the internal step of the connection state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDelaying
	PhaseConnecting
	PhaseOpen
	PhaseTerminated
)

// Hooks receive transport events on the frame-loop goroutine.
type Hooks struct {
	// OnOpen runs when a connection is adopted, after the ready handshake.
	OnOpen func()
	// OnSessionStart runs on the first message of an adopted connection,
	// before OnMessage.
	OnSessionStart func()
	OnMessage      func(data []byte)
	// OnTerminate runs once when the connection closes after reconnection
	// was disabled.
	OnTerminate func()
	// OnStatus receives user-facing status text. An empty string clears it.
	OnStatus func(status string)
}

type Config struct {
	URLs []string
	// StartIndex selects the first candidate. Out of range values wrap.
	StartIndex int
	// Params are sent in the ready handshake.
	Params       map[string]string
	ProbeTimeout time.Duration
	GraceTimeout time.Duration
	WriteTimeout time.Duration
	Dialer       Dialer
	Hooks        Hooks

	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Frames    *logging.FrameCounter
}

type attempt struct {
	url     string
	number  int
	started time.Time
	probed  bool
	aborted atomic.Bool
}

type dialResult struct {
	attempt *attempt
	conn    Conn
	err     error
}

type connEvent struct {
	conn *connection
	data []byte
	err  error
}

// connection serializes writes to one adopted Conn.
type connection struct {
	conn     Conn
	url      string
	writeMu  sync.Mutex
	messages int
}

func (c *connection) write(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Client is driven by Update from the frame loop. Dialing, reading and
// writing happen on goroutines that report back through channels.
type Client struct {
	cfg     Config
	logger  telemetry.Logger
	metrics telemetry.Metrics
	pub     logging.Publisher

	phase           Phase
	index           int
	attempts        int
	current         *attempt
	active          *connection
	tryReconnecting bool

	delayUntil    time.Time
	delayReason   string
	countdownLeft int
	status        string

	sessionID atomic.Value
	received  int

	results chan dialResult
	events  chan connEvent
	done    chan struct{}
	once    sync.Once
}

func NewClient(cfg Config) (*Client, error) {
	if len(cfg.URLs) == 0 {
		return nil, ErrNoCandidates
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.GraceTimeout <= 0 {
		cfg.GraceTimeout = DefaultGraceTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = GorillaDialer{}
	}
	index := cfg.StartIndex % len(cfg.URLs)
	if index < 0 {
		index += len(cfg.URLs)
	}
	c := &Client{
		cfg:             cfg,
		logger:          telemetry.OrDiscard(cfg.Logger),
		metrics:         telemetry.MetricsOrNop(cfg.Metrics),
		index:           index,
		tryReconnecting: true,
		countdownLeft:   -1,
		results:         make(chan dialResult, 4),
		events:          make(chan connEvent, 64),
		done:            make(chan struct{}),
	}
	c.sessionID.Store("")
	c.pub = logging.WithTraceID(cfg.Publisher, c.SessionID)
	return c, nil
}

func (c *Client) State() State {
	switch c.phase {
	case PhaseConnecting:
		return StateConnecting
	case PhaseOpen:
		return StateOpen
	default:
		return StateDisconnected
	}
}

func (c *Client) Phase() Phase { return c.phase }

func (c *Client) IsConnected() bool { return c.phase == PhaseOpen }

// TryReconnecting reports whether the client will still reconnect after a
// close. It turns false for good once a session has started.
func (c *Client) TryReconnecting() bool { return c.tryReconnecting }

func (c *Client) Status() string { return c.status }

// Index is the candidate used by the current or next attempt.
func (c *Client) Index() int { return c.index }

func (c *Client) URL() string { return c.cfg.URLs[c.index] }

// SessionID identifies the adopted connection in structured events.
func (c *Client) SessionID() string {
	return c.sessionID.Load().(string)
}

// TakeReceived returns the number of messages received since the last call.
func (c *Client) TakeReceived() int {
	n := c.received
	c.received = 0
	return n
}

// Update advances the connection state machine to now.
func (c *Client) Update(now time.Time) {
	if c.phase == PhaseTerminated {
		return
	}
	c.drainDials(now)
	c.drainEvents(now)

	switch c.phase {
	case PhaseIdle:
		c.startAttempt(now)
	case PhaseDelaying:
		if !now.Before(c.delayUntil) {
			c.countdownLeft = -1
			c.delayReason = ""
			c.setStatus("")
			c.startAttempt(now)
			return
		}
		c.updateCountdown(now)
	case PhaseConnecting:
		elapsed := now.Sub(c.current.started)
		if !c.current.probed && elapsed >= c.cfg.ProbeTimeout {
			c.current.probed = true
			c.setStatus(statusProbing)
		}
		if elapsed >= c.cfg.ProbeTimeout+c.cfg.GraceTimeout {
			c.current.aborted.Store(true)
			c.logger.Printf("[network] timeout, aborting connect to %s", c.current.url)
			netlog.ConnectTimeout(context.Background(), c.pub, c.cfg.Frames.Frame(), c.actor(), c.attemptPayload(c.current), nil)
			c.current = nil
			c.fail(now, statusUnreachable, c.shortDelay())
		}
	}
}

// Send writes data on the open connection without blocking. The returned
// operation completes when the write finished.
func (c *Client) Send(data []byte) async.Operation[struct{}] {
	if c.phase != PhaseOpen || c.active == nil {
		return async.Failed[struct{}](ErrNotConnected)
	}
	conn := c.active
	timeout := c.cfg.WriteTimeout
	return async.Go(nil, func(*async.Future[struct{}]) (struct{}, error) {
		if err := conn.write(data, timeout); err != nil {
			return struct{}{}, fmt.Errorf("send to %s: %w", conn.url, err)
		}
		return struct{}{}, nil
	})
}

// Close stops all activity and closes the active connection.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		if c.current != nil {
			c.current.aborted.Store(true)
			c.current = nil
		}
		if c.active != nil {
			err = c.active.conn.Close()
			c.active = nil
		}
		c.phase = PhaseTerminated
	})
	return err
}

func (c *Client) actor() logging.EntityRef {
	return logging.EntityRef{ID: c.cfg.URLs[c.index], Kind: logging.EntityKindConnection}
}

func (c *Client) attemptPayload(a *attempt) netlog.AttemptPayload {
	return netlog.AttemptPayload{URL: a.url, Attempt: a.number, Candidates: len(c.cfg.URLs)}
}

// shortDelay avoids hammering a single server while rotating quickly
// through several.
func (c *Client) shortDelay() time.Duration {
	if len(c.cfg.URLs) == 1 {
		return 5 * time.Second
	}
	return 2 * time.Second
}

func (c *Client) setStatus(status string) {
	if status == c.status {
		return
	}
	c.status = status
	if c.cfg.Hooks.OnStatus != nil {
		c.cfg.Hooks.OnStatus(status)
	}
}

func (c *Client) startAttempt(now time.Time) {
	c.attempts++
	a := &attempt{url: c.cfg.URLs[c.index], number: c.attempts, started: now}
	c.current = a
	c.phase = PhaseConnecting
	c.logger.Printf("[network] attempting to connect to %s", a.url)
	netlog.ConnectAttempt(context.Background(), c.pub, c.cfg.Frames.Frame(), c.actor(), c.attemptPayload(a), nil)
	c.metrics.Add(telemetry.MetricConnectAttempts, 1)

	handshake, err := c.handshake()
	if err != nil {
		c.results <- dialResult{attempt: a, err: err}
		return
	}
	go c.dial(a, handshake)
}

func (c *Client) handshake() ([]byte, error) {
	payload := make(map[string]string, len(c.cfg.Params)+1)
	for k, v := range c.cfg.Params {
		payload[k] = v
	}
	payload["isClientReady"] = "1"
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal handshake: %w", err)
	}
	return data, nil
}

// dial runs off the frame loop. An attempt abandoned while dialing closes
// its connection instead of sending the handshake.
func (c *Client) dial(a *attempt, handshake []byte) {
	conn, err := c.cfg.Dialer.DialContext(context.Background(), a.url, nil)
	if err == nil {
		if a.aborted.Load() {
			conn.Close()
			conn = nil
		} else if err = (&connection{conn: conn}).write(handshake, c.cfg.WriteTimeout); err != nil {
			conn.Close()
			conn = nil
			err = fmt.Errorf("send handshake: %w", err)
		}
	}
	select {
	case c.results <- dialResult{attempt: a, conn: conn, err: err}:
	case <-c.done:
		if conn != nil {
			conn.Close()
		}
	}
}

func (c *Client) drainDials(now time.Time) {
	for {
		select {
		case res := <-c.results:
			c.handleDial(now, res)
		default:
			return
		}
	}
}

func (c *Client) handleDial(now time.Time, res dialResult) {
	ctx := context.Background()
	if res.attempt != c.current || res.attempt.aborted.Load() {
		if res.conn != nil || res.err == nil {
			if res.conn != nil {
				res.conn.Close()
			}
			c.logger.Printf("[network] discarding connection to %s", res.attempt.url)
			netlog.ConnectionDiscarded(ctx, c.pub, c.cfg.Frames.Frame(), c.actor(), map[string]any{"url": res.attempt.url})
			c.metrics.Add(telemetry.MetricConnectionsDiscarded, 1)
		}
		return
	}
	c.current = nil
	if res.err != nil {
		c.logger.Printf("[network] error connecting to %s: %v", res.attempt.url, res.err)
		netlog.ConnectFailed(ctx, c.pub, c.cfg.Frames.Frame(), c.actor(), netlog.FailurePayload{URL: res.attempt.url, Error: res.err.Error()}, nil)
		c.fail(now, statusUnreachable, c.shortDelay())
		return
	}

	conn := &connection{conn: res.conn, url: res.attempt.url}
	c.active = conn
	c.phase = PhaseOpen
	c.sessionID.Store(uuid.NewString())
	c.setStatus("")
	c.logger.Printf("[network] connected to %s", conn.url)
	netlog.Connected(ctx, c.pub, c.cfg.Frames.Frame(), c.actor(), map[string]any{"url": conn.url})
	go c.read(conn)
	if c.cfg.Hooks.OnOpen != nil {
		c.cfg.Hooks.OnOpen()
	}
}

func (c *Client) read(conn *connection) {
	for {
		_, data, err := conn.conn.ReadMessage()
		select {
		case c.events <- connEvent{conn: conn, data: data, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) drainEvents(now time.Time) {
	for c.phase != PhaseTerminated {
		select {
		case ev := <-c.events:
			if ev.conn != c.active {
				continue
			}
			if ev.err != nil {
				c.handleClose(now, ev.conn, ev.err)
				continue
			}
			c.handleMessage(ev.conn, ev.data)
		default:
			return
		}
	}
}

func (c *Client) handleMessage(conn *connection, data []byte) {
	if conn.messages == 0 {
		if c.cfg.Hooks.OnSessionStart != nil {
			c.cfg.Hooks.OnSessionStart()
		}
		c.tryReconnecting = false
	}
	conn.messages++
	c.received++
	c.metrics.Add(telemetry.MetricMessagesReceived, 1)
	if c.cfg.Hooks.OnMessage != nil {
		c.cfg.Hooks.OnMessage(data)
	}
}

func (c *Client) handleClose(now time.Time, conn *connection, err error) {
	ctx := context.Background()
	conn.conn.Close()
	c.active = nil
	c.logger.Printf("[network] connection to %s closed after %d messages: %v", conn.url, conn.messages, err)
	netlog.Disconnected(ctx, c.pub, c.cfg.Frames.Frame(), c.actor(), netlog.DisconnectPayload{URL: conn.url, Messages: conn.messages, Reason: err.Error()}, nil)

	if !c.tryReconnecting {
		c.phase = PhaseTerminated
		if c.cfg.Hooks.OnTerminate != nil {
			c.cfg.Hooks.OnTerminate()
		}
		c.setStatus(statusTerminated)
		netlog.SessionEnded(ctx, c.pub, c.cfg.Frames.Frame(), c.actor(), nil)
		return
	}
	if conn.messages >= longConnectionMessages {
		c.fail(now, statusDropped, 15*time.Second)
		return
	}
	c.fail(now, statusBusy, c.shortDelay())
}

// fail moves to the next candidate and waits before trying it.
func (c *Client) fail(now time.Time, reason string, delay time.Duration) {
	c.index = (c.index + 1) % len(c.cfg.URLs)
	c.phase = PhaseDelaying
	c.delayUntil = now.Add(delay)
	c.delayReason = reason
	c.countdownLeft = -1
	netlog.ReconnectScheduled(context.Background(), c.pub, c.cfg.Frames.Frame(), c.actor(), netlog.BackoffPayload{Reason: reason, DelaySeconds: delay.Seconds()}, nil)
	c.updateCountdown(now)
}

func (c *Client) updateCountdown(now time.Time) {
	left := int(math.Ceil(c.delayUntil.Sub(now).Seconds()))
	if left == c.countdownLeft || left <= 0 {
		return
	}
	c.countdownLeft = left
	desc := "Trying another server"
	if len(c.cfg.URLs) == 1 {
		desc = "Retrying"
	}
	c.setStatus(fmt.Sprintf("%s\n%s in %ds...", c.delayReason, desc, left))
}
