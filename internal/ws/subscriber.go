package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trip-collab-service/internal/models"
)

const writeWait = 10 * time.Second

// subscriber is one device session's live-update connection. Deliveries go
// through a bounded send channel so a slow consumer can never block the hub.
type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	info ConnInfo

	// trips the subscriber currently receives events for; guarded by hub.mu.
	trips map[string]struct{}

	closeOnce sync.Once
	done      chan struct{}

	mu       sync.Mutex
	lastSeen time.Time
}

func newSubscriber(hub *Hub, conn *websocket.Conn, info ConnInfo, tripIDs []string, buffer int) *subscriber {
	trips := make(map[string]struct{}, len(tripIDs))
	for _, id := range tripIDs {
		trips[id] = struct{}{}
	}
	return &subscriber{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, buffer),
		info:     info,
		trips:    trips,
		done:     make(chan struct{}),
		lastSeen: time.Now(),
	}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// LastSeen reports the subscription's last observed client activity.
func (s *subscriber) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *subscriber) markSeen(at time.Time) {
	s.mu.Lock()
	s.lastSeen = at
	s.mu.Unlock()
}

// enqueueFrame queues a frame without blocking; used for the one-off
// connection frame before the loops start.
func (s *subscriber) enqueueFrame(frame models.StreamFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case s.send <- payload:
	default:
	}
}

// writeLoop drains the send channel and emits periodic heartbeats so idle
// clients can detect silent failures faster than the transport timeout. Each
// tick also checks the last observed ack: a subscription with no ack activity
// within idleTimeout is dropped.
func (s *subscriber) writeLoop(heartbeatInterval, idleTimeout time.Duration) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.hub.drop(s, "write error: "+err.Error())
				return
			}
		case <-ticker.C:
			if time.Since(s.LastSeen()) > idleTimeout {
				s.hub.drop(s, "idle timeout")
				return
			}
			frame, _ := json.Marshal(models.StreamFrame{
				Event: models.FrameHeartbeat,
				Data:  map[string]interface{}{"timestamp": time.Now().UTC()},
			})
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.hub.drop(s, "heartbeat write error: "+err.Error())
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop consumes client frames (acks) and enforces the idle timeout: a
// subscription with no client activity within idleTimeout is dropped.
func (s *subscriber) readLoop(idleTimeout time.Duration) {
	for {
		s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			reason := err.Error()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = ""
			}
			s.hub.drop(s, reason)
			return
		}

		var frame struct {
			Event string `json:"event"`
			Data  struct {
				EventID   string    `json:"event_id"`
				Timestamp time.Time `json:"timestamp"`
			} `json:"data"`
		}
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		if frame.Event == models.FrameAck {
			at := frame.Data.Timestamp
			if at.IsZero() {
				at = time.Now()
			}
			s.markSeen(at)
		}
	}
}
