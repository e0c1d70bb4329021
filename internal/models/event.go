package models

import "time"

// Event types pushed to collaborators. Delivery is at-least-once; EventID is
// the dedup key.
const (
	EventMembershipChanged = "membership-changed"
	EventExpenseChanged    = "expense-changed"
)

// Event is a state-change notification for one trip. Within a trip, events
// reach each subscriber in publish order; no ordering holds across trips.
type Event struct {
	EventID   string      `json:"event_id"`
	Type      string      `json:"type"`
	TripID    string      `json:"trip_id"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Stream frame names on the live-update channel.
const (
	FrameConnection   = "connection"
	FrameHeartbeat    = "heartbeat"
	FrameNotification = "notification"
	FrameAck          = "ack"
)

// StreamFrame is the envelope written on a websocket stream.
type StreamFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}
