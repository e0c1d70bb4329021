package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-collab-service/internal/models"
)

func testEvent(tripID string) models.Event {
	return models.Event{
		EventID:   "evt-1",
		Type:      models.EventExpenseChanged,
		TripID:    tripID,
		Payload:   map[string]string{"action": "created"},
		Timestamp: time.Now().UTC(),
	}
}

func receiveFrame(t *testing.T, sub *subscriber) models.StreamFrame {
	t.Helper()
	select {
	case payload := <-sub.send:
		var frame models.StreamFrame
		require.NoError(t, json.Unmarshal(payload, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return models.StreamFrame{}
	}
}

func TestPublishDeliversToTripSubscribers(t *testing.T) {
	hub := NewHub()
	sub := newSubscriber(hub, nil, ConnInfo{ConnID: "c1", MemberID: "alice"}, []string{"t1"}, 4)
	hub.add(sub)

	hub.Publish("t1", testEvent("t1"))

	frame := receiveFrame(t, sub)
	assert.Equal(t, models.FrameNotification, frame.Event)

	hub.remove(sub)
	assert.Equal(t, 0, hub.Subscribers("t1"))
}

func TestPublishSkipsOtherTrips(t *testing.T) {
	hub := NewHub()
	sub := newSubscriber(hub, nil, ConnInfo{ConnID: "c1", MemberID: "alice"}, []string{"t1"}, 4)
	hub.add(sub)

	hub.Publish("t2", testEvent("t2"))

	select {
	case <-sub.send:
		t.Fatal("subscriber received an event for a trip it does not belong to")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishDropsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	sub := newSubscriber(hub, nil, ConnInfo{ConnID: "c1", MemberID: "alice"}, []string{"t1"}, 1)
	hub.add(sub)

	// First publish fills the buffer, second finds it full and drops the
	// subscriber instead of blocking.
	hub.Publish("t1", testEvent("t1"))
	hub.Publish("t1", testEvent("t1"))

	assert.Equal(t, 0, hub.Subscribers("t1"))
	select {
	case <-sub.done:
	default:
		t.Fatal("dropped subscriber was not closed")
	}
}

func TestJoinAndLeaveTrip(t *testing.T) {
	hub := NewHub()
	sub := newSubscriber(hub, nil, ConnInfo{ConnID: "c1", MemberID: "bob"}, nil, 4)
	hub.add(sub)

	require.Equal(t, 0, hub.Subscribers("t1"))

	hub.JoinTrip("t1", "bob")
	require.Equal(t, 1, hub.Subscribers("t1"))

	hub.Publish("t1", testEvent("t1"))
	frame := receiveFrame(t, sub)
	assert.Equal(t, models.FrameNotification, frame.Event)

	hub.LeaveTrip("t1", "bob")
	assert.Equal(t, 0, hub.Subscribers("t1"))
}

func TestJoinTripIgnoresOfflineMembers(t *testing.T) {
	hub := NewHub()
	hub.JoinTrip("t1", "nobody-online")
	assert.Equal(t, 0, hub.Subscribers("t1"))
}

func TestRemoveCleansEveryRoom(t *testing.T) {
	hub := NewHub()
	sub := newSubscriber(hub, nil, ConnInfo{ConnID: "c1", MemberID: "alice"}, []string{"t1", "t2"}, 4)
	hub.add(sub)

	require.Equal(t, 1, hub.Subscribers("t1"))
	require.Equal(t, 1, hub.Subscribers("t2"))

	hub.remove(sub)
	assert.Equal(t, 0, hub.Subscribers("t1"))
	assert.Equal(t, 0, hub.Subscribers("t2"))
}
