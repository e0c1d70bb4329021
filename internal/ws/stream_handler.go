package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"trip-collab-service/internal/identity"
	"trip-collab-service/internal/models"
	"trip-collab-service/internal/observability"
	"trip-collab-service/internal/repositories"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamConfig tunes the per-subscription lifecycle.
type StreamConfig struct {
	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
	SendBuffer        int
}

// StreamHandler upgrades live-update connections and registers them with the
// hub for every trip the member belongs to.
type StreamHandler struct {
	hub        *Hub
	membership repositories.MembershipRepository
	resolver   identity.Resolver
	cfg        StreamConfig
}

// NewStreamHandler constructs a StreamHandler.
func NewStreamHandler(hub *Hub, membership repositories.MembershipRepository, resolver identity.Resolver, cfg StreamConfig) *StreamHandler {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 25 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 3 * cfg.HeartbeatInterval
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	return &StreamHandler{hub: hub, membership: membership, resolver: resolver, cfg: cfg}
}

// Handle authenticates, upgrades and registers a device session. The bearer
// credential may arrive as a query parameter because stream-establishment
// requests cannot always carry custom headers.
func (h *StreamHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("trip-collab-service/ws").Start(c.Request.Context(), "stream.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	memberID, err := h.resolver.ResolveCaller(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	tripIDs, err := h.membership.TripIDsForUser(ctx, memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trips"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := trace.SpanContextFromContext(ctx).TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		MemberID:    memberID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	sub := newSubscriber(h.hub, conn, info, tripIDs, h.cfg.SendBuffer)
	h.hub.add(sub)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "trip_events.ws", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       "ws_connect",
				"conn_id":     info.ConnID,
				"trip_count":  len(tripIDs),
				"duration_ms": 0,
			},
			"identity": map[string]interface{}{
				"member_id": info.MemberID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(requestID, traceID))

	// The connection frame is delivered exactly once, before any event.
	sub.enqueueFrame(models.StreamFrame{
		Event: models.FrameConnection,
		Data: map[string]interface{}{
			"conn_id":   info.ConnID,
			"member_id": memberID,
			"timestamp": time.Now().UTC(),
		},
	})

	go sub.writeLoop(h.cfg.HeartbeatInterval, h.cfg.IdleTimeout)
	go sub.readLoop(h.cfg.IdleTimeout)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
