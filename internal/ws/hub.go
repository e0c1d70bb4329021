package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"trip-collab-service/internal/models"
	"trip-collab-service/internal/observability"
)

// Hub maintains the per-trip subscription registry and fans published events
// out to every subscriber of that trip. Delivery is at-least-once and
// fire-and-forget: a mutation never waits on fan-out.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*subscriber]struct{}
	members map[string]map[*subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*subscriber]struct{}),
		members: make(map[string]map[*subscriber]struct{}),
	}
}

// add registers a subscriber in every trip room it belongs to.
func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tripID := range sub.trips {
		if _, ok := h.rooms[tripID]; !ok {
			h.rooms[tripID] = make(map[*subscriber]struct{})
		}
		h.rooms[tripID][sub] = struct{}{}
	}
	if _, ok := h.members[sub.info.MemberID]; !ok {
		h.members[sub.info.MemberID] = make(map[*subscriber]struct{})
	}
	h.members[sub.info.MemberID][sub] = struct{}{}
}

// remove deletes a subscriber from every room and the member index.
func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tripID := range sub.trips {
		if conns, ok := h.rooms[tripID]; ok {
			delete(conns, sub)
			if len(conns) == 0 {
				delete(h.rooms, tripID)
			}
		}
	}
	if subs, ok := h.members[sub.info.MemberID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.members, sub.info.MemberID)
		}
	}
}

// JoinTrip attaches a member's live subscriptions to a trip room, so a freshly
// invited member starts receiving events without reconnecting.
func (h *Hub) JoinTrip(tripID, memberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.members[memberID] {
		sub.trips[tripID] = struct{}{}
		if _, ok := h.rooms[tripID]; !ok {
			h.rooms[tripID] = make(map[*subscriber]struct{})
		}
		h.rooms[tripID][sub] = struct{}{}
	}
}

// LeaveTrip detaches a member's live subscriptions from a trip room.
func (h *Hub) LeaveTrip(tripID, memberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.members[memberID] {
		delete(sub.trips, tripID)
		if conns, ok := h.rooms[tripID]; ok {
			delete(conns, sub)
			if len(conns) == 0 {
				delete(h.rooms, tripID)
			}
		}
	}
}

// Publish fans the event out to every subscriber of the trip. Each delivery is
// a bounded, non-blocking send; a subscriber whose buffer is full is dropped
// and expected to reconnect and re-fetch, not to catch up on missed events.
func (h *Hub) Publish(tripID string, event models.Event) {
	payload, err := json.Marshal(models.StreamFrame{Event: models.FrameNotification, Data: event})
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.rooms[tripID]))
	for sub := range h.rooms[tripID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.send <- payload:
		default:
			log.Printf("dropping slow subscriber conn_id=%s member=%s", sub.info.ConnID, sub.info.MemberID)
			observability.IncWSDropped()
			h.drop(sub, "send buffer full")
		}
	}
	observability.IncEventPublished(event.Type)
}

// drop removes and closes a subscriber, emitting the lifecycle event so
// downstream consumers see the disconnect.
func (h *Hub) drop(sub *subscriber, reason string) {
	h.remove(sub)
	sub.close()

	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	_ = observability.PublishEvent(context.Background(), "trip_events.ws", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_disconnect",
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       "ws_disconnect",
				"conn_id":     sub.info.ConnID,
				"duration_ms": time.Since(sub.info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"member_id": sub.info.MemberID,
				"device_id": sub.info.DeviceID,
				"ip":        sub.info.IP,
			},
		},
	}, observability.BuildHeaders(sub.info.RequestID, sub.info.TraceID))
}

// Subscribers reports the number of open subscriptions in a trip room.
func (h *Hub) Subscribers(tripID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[tripID])
}
