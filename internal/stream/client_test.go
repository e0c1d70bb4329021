package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-collab-service/internal/models"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func notificationFrame(eventID string) models.StreamFrame {
	return models.StreamFrame{
		Event: models.FrameNotification,
		Data: models.Event{
			EventID:   eventID,
			Type:      models.EventExpenseChanged,
			TripID:    "t1",
			Timestamp: time.Now().UTC(),
		},
	}
}

func TestBackoffDelayDoubles(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 100*time.Millisecond, backoffDelay(base, 1))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(base, 2))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(base, 3))
	assert.Equal(t, 800*time.Millisecond, backoffDelay(base, 4))
}

func TestGivesUpAfterExhaustingAttempts(t *testing.T) {
	client := NewClient(Config{
		URL:              "ws://127.0.0.1:1",
		BaseDelay:        time.Millisecond,
		MaxAttempts:      3,
		HandshakeTimeout: 100 * time.Millisecond,
	}, nil)
	client.Start(context.Background())

	select {
	case <-client.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not give up")
	}

	assert.Equal(t, StateClosed, client.State())
	assert.True(t, errors.Is(client.Err(), ErrRetriesExhausted))
}

func TestReceivesAcksAndDedupsEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(models.StreamFrame{Event: models.FrameConnection})
		conn.WriteJSON(notificationFrame("e1"))

		// The client must ack before dispatching.
		var ack struct {
			Event string `json:"event"`
			Data  struct {
				EventID string `json:"event_id"`
			} `json:"data"`
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if json.Unmarshal(payload, &ack) != nil || ack.Event != models.FrameAck || ack.Data.EventID != "e1" {
			return
		}

		// Redelivery of e1 must not reach the handler again.
		conn.WriteJSON(notificationFrame("e1"))
		conn.WriteJSON(notificationFrame("e2"))
		conn.ReadMessage()

		// Hold the connection open until the client closes it.
		conn.ReadMessage()
	}))
	defer server.Close()

	events := make(chan models.Event, 4)
	client := NewClient(Config{
		URL:       wsURL(server),
		Token:     "test-token",
		BaseDelay: time.Minute,
	}, func(e models.Event) { events <- e })
	client.Start(context.Background())
	defer client.Close()

	var got []string
	for len(got) < 2 {
		select {
		case e := <-events:
			got = append(got, e.EventID)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, received %v", got)
		}
	}
	require.Equal(t, []string{"e1", "e2"}, got)
	assert.Equal(t, StateOpen, client.State())

	select {
	case e := <-events:
		t.Fatalf("duplicate event dispatched: %s", e.EventID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBackoffResetsAfterSuccessfulOpen(t *testing.T) {
	var mu sync.Mutex
	var dials []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials = append(dials, time.Now())
		n := len(dials)
		mu.Unlock()

		// Two refusals walk the backoff up to 2x base, then an accepted
		// connection that closes immediately forces another redial.
		if n <= 2 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	base := 300 * time.Millisecond
	client := NewClient(Config{
		URL:         wsURL(server),
		BaseDelay:   base,
		MaxAttempts: 10,
	}, nil)
	client.Start(context.Background())
	defer client.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(dials)
		mu.Unlock()
		if n >= 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 4 dials, got %d", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	beforeOpen := dials[2].Sub(dials[1])
	afterOpen := dials[3].Sub(dials[2])
	mu.Unlock()

	// The delay had doubled to 2x base before the successful open; the redial
	// after it must start over from the base delay, not keep climbing.
	assert.GreaterOrEqual(t, beforeOpen, base+base/2)
	assert.Less(t, afterOpen, 2*base)
}

func TestNudgeSkipsBackoffWait(t *testing.T) {
	conns := make(chan struct{}, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- struct{}{}
		conn.Close()
	}))
	defer server.Close()

	client := NewClient(Config{
		URL:         wsURL(server),
		BaseDelay:   time.Minute,
		MaxAttempts: 5,
	}, nil)
	client.Start(context.Background())
	defer client.Close()

	select {
	case <-conns:
	case <-time.After(5 * time.Second):
		t.Fatal("no initial connection")
	}

	// The client is now waiting out a one-minute backoff; a nudge should
	// trigger the redial immediately.
	time.Sleep(50 * time.Millisecond)
	client.Nudge()

	select {
	case <-conns:
	case <-time.After(5 * time.Second):
		t.Fatal("nudge did not trigger a reconnect")
	}
}

func TestCloseIsTerminal(t *testing.T) {
	client := NewClient(Config{URL: "ws://127.0.0.1:1", BaseDelay: time.Minute, MaxAttempts: 5}, nil)
	client.Start(context.Background())
	client.Close()

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("close did not terminate the client")
	}
	assert.Equal(t, StateClosed, client.State())
	assert.True(t, errors.Is(client.Err(), ErrClientClosed))
}
