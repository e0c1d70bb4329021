// Package stream implements the reconnecting live-update client used by
// companion processes that follow a member's trips.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trip-collab-service/internal/models"
	"trip-collab-service/internal/optimistic"
)

// State is the connection lifecycle of the client. Transitions are
// Closed -> Connecting -> Open -> Connecting -> ... until Close or exhaustion.
type State string

const (
	StateClosed     State = "closed"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
)

var (
	// ErrRetriesExhausted is the terminal error once the attempt cap is hit.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	// ErrClientClosed is reported after an explicit Close.
	ErrClientClosed = errors.New("stream client closed")
)

// Config tunes the client. Zero values fall back to defaults.
type Config struct {
	URL   string
	Token string

	// BaseDelay is the first reconnect delay; it doubles per failed attempt.
	BaseDelay time.Duration
	// MaxAttempts caps consecutive failures before the client gives up.
	MaxAttempts int
	// HandshakeTimeout bounds each dial.
	HandshakeTimeout time.Duration
	// HeartbeatTimeout closes a connection that stayed silent too long; the
	// server heartbeats well inside this window.
	HeartbeatTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 6
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 75 * time.Second
	}
	return c
}

// Handler receives each decoded event exactly once per event id.
type Handler func(models.Event)

// Client maintains one stream connection, reconnecting with doubling backoff.
// Delivery upstream is at-least-once, so the client dedups on event id before
// invoking the handler.
type Client struct {
	cfg     Config
	handler Handler
	dialer  *websocket.Dialer

	mu    sync.Mutex
	state State
	err   error
	seen  map[string]struct{}

	nudge     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient builds a client; Start begins connecting.
func NewClient(cfg Config, handler Handler) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		state:   StateClosed,
		seen:    make(map[string]struct{}),
		nudge:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start runs the connect loop until Close, context cancellation, or attempt
// exhaustion.
func (c *Client) Start(ctx context.Context) {
	go c.run(ctx)
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err reports the terminal error, nil while the client is still running.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed once the client reaches its terminal state.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Nudge skips the remainder of a backoff wait, reconnecting immediately.
// Callers fire it when the application regains foreground visibility.
func (c *Client) Nudge() {
	select {
	case c.nudge <- struct{}{}:
	default:
	}
}

// Close stops the client permanently.
func (c *Client) Close() {
	c.fail(ErrClientClosed)
}

func (c *Client) run(ctx context.Context) {
	attempt := 0
	for {
		if c.terminal() {
			return
		}
		c.setState(StateConnecting)

		conn, err := c.dial(ctx)
		if err != nil {
			attempt++
			log.Printf("stream dial failed attempt=%d err=%v", attempt, err)
			if attempt >= c.cfg.MaxAttempts {
				c.fail(fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt, err))
				return
			}
			if !c.wait(ctx, backoffDelay(c.cfg.BaseDelay, attempt)) {
				return
			}
			continue
		}

		// A successful open resets the backoff counter.
		attempt = 0
		c.setState(StateOpen)

		readErr := c.readFrames(ctx, conn)
		conn.Close()
		if c.terminal() || ctx.Err() != nil {
			c.fail(ctx.Err())
			return
		}
		log.Printf("stream connection lost: %v", readErr)
		attempt = 1
		if !c.wait(ctx, backoffDelay(c.cfg.BaseDelay, attempt)) {
			return
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// readFrames consumes frames until the connection fails or goes silent past
// the heartbeat window.
func (c *Client) readFrames(ctx context.Context, conn *websocket.Conn) error {
	for {
		conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		if frame.Event != models.FrameNotification {
			// Connection and heartbeat frames only refresh the deadline.
			continue
		}

		var event models.Event
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			continue
		}
		if c.alreadySeen(event.EventID) {
			continue
		}
		if err := c.ack(ctx, conn, event); err != nil {
			return err
		}
		if c.handler != nil {
			c.handler(event)
		}
	}
}

// ack records the event locally, then confirms to the server. A failed write
// unmarks it so a redelivery after reconnect is processed again.
func (c *Client) ack(ctx context.Context, conn *websocket.Conn, event models.Event) error {
	return optimistic.Run(ctx, optimistic.Op{
		Apply: func() { c.markSeen(event.EventID) },
		Confirm: func(ctx context.Context) error {
			conn.SetWriteDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
			return conn.WriteJSON(models.StreamFrame{
				Event: models.FrameAck,
				Data: map[string]interface{}{
					"event_id":  event.EventID,
					"timestamp": time.Now().UTC(),
				},
			})
		},
		Compensate: func() { c.unmarkSeen(event.EventID) },
	})
}

// wait sleeps for the backoff delay; a Nudge ends the wait early. It reports
// false when the client should stop instead of redialing.
func (c *Client) wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.nudge:
		return true
	case <-ctx.Done():
		c.fail(ctx.Err())
		return false
	case <-c.done:
		return false
	}
}

// backoffDelay doubles the base per consecutive failure: base, 2*base, 4*base...
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Client) terminal() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) alreadySeen(eventID string) bool {
	if eventID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[eventID]
	return ok
}

func (c *Client) markSeen(eventID string) {
	if eventID == "" {
		return
	}
	c.mu.Lock()
	c.seen[eventID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) unmarkSeen(eventID string) {
	c.mu.Lock()
	delete(c.seen, eventID)
	c.mu.Unlock()
}
