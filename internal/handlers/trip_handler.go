package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"trip-collab-service/internal/locks"
	"trip-collab-service/internal/models"
	"trip-collab-service/internal/observability"
	"trip-collab-service/internal/permissions"
	"trip-collab-service/internal/repositories"
	"trip-collab-service/internal/telemetry"
	"trip-collab-service/internal/ws"
)

// TripHandler is the mutation gateway for trips and member-role assignments.
// Every write resolves the caller's role, consults the permission table, takes
// the per-trip lock, applies, then publishes to the hub.
type TripHandler struct {
	membership repositories.MembershipRepository
	hub        *ws.Hub
	locks      *locks.KeyedMutex
	audit      *telemetry.AuditEmitter
}

// NewTripHandler constructs a TripHandler.
func NewTripHandler(membership repositories.MembershipRepository, hub *ws.Hub, tripLocks *locks.KeyedMutex, audit *telemetry.AuditEmitter) *TripHandler {
	return &TripHandler{membership: membership, hub: hub, locks: tripLocks, audit: audit}
}

// CreateTrip handles POST /trips. The caller becomes the trip's sole owner.
func (h *TripHandler) CreateTrip(c *gin.Context) {
	memberID := c.GetString("memberID")

	var req struct {
		Name     string `json:"name" binding:"required"`
		Currency string `json:"currency" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trip, err := h.membership.CreateTrip(c.Request.Context(), req.Name, req.Currency, memberID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create trip"})
		return
	}

	// Attach the creator's live sessions so their other devices see updates.
	h.hub.JoinTrip(trip.ID, memberID)

	h.emitAudit(c, "INFO", "Trip created")
	c.JSON(http.StatusCreated, trip)
}

// ListMembers returns the trip's member assignments.
func (h *TripHandler) ListMembers(c *gin.Context) {
	tripID := c.Param("trip_id")

	role, ok := h.requireMember(c, tripID)
	if !ok {
		return
	}
	if !permissions.Allows(role, permissions.ActionViewTrip) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	members, err := h.membership.ListMembers(c.Request.Context(), tripID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// AssignMember handles PUT /trips/:trip_id/members/:user_id: an invite when
// the target is new, a role change when it already belongs to the trip.
func (h *TripHandler) AssignMember(c *gin.Context) {
	tripID := c.Param("trip_id")
	targetID := c.Param("user_id")

	var req struct {
		Role models.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Role.Valid() {
		writeDomainError(c, repositories.ErrInvalidRole)
		return
	}

	unlock := h.locks.Lock(tripID)
	defer unlock()

	callerRole, ok := h.requireMember(c, tripID)
	if !ok {
		return
	}

	targetRole, exists, err := h.membership.RoleOf(c.Request.Context(), tripID, targetID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}

	action := permissions.ActionManageMembers
	if exists {
		action = permissions.ActionChangeRole
	}
	if !permissions.Allows(callerRole, action) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	// The owner can never be demoted, by anyone, including the owner itself.
	if exists && targetRole == models.RoleOwner {
		h.emitAudit(c, "ERROR", "owner is protected")
		writeDomainError(c, repositories.ErrCannotRemoveOwner)
		return
	}

	member, err := h.membership.Assign(c.Request.Context(), tripID, targetID, req.Role)
	if err != nil {
		h.emitAudit(c, "ERROR", "assign failed")
		writeDomainError(c, err)
		return
	}

	if !exists {
		h.hub.JoinTrip(tripID, targetID)
	}
	h.publish(c, models.EventMembershipChanged, tripID, gin.H{
		"action":  membershipAction(exists),
		"user_id": targetID,
		"role":    member.Role,
	})

	h.emitAudit(c, "INFO", "Member assigned")
	c.JSON(http.StatusOK, member)
}

// RemoveMember handles DELETE /trips/:trip_id/members/:user_id.
func (h *TripHandler) RemoveMember(c *gin.Context) {
	tripID := c.Param("trip_id")
	targetID := c.Param("user_id")

	unlock := h.locks.Lock(tripID)
	defer unlock()

	callerRole, ok := h.requireMember(c, tripID)
	if !ok {
		return
	}
	if !permissions.Allows(callerRole, permissions.ActionManageMembers) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	if err := h.membership.Revoke(c.Request.Context(), tripID, targetID); err != nil {
		h.emitAudit(c, "ERROR", "revoke failed")
		writeDomainError(c, err)
		return
	}

	h.hub.LeaveTrip(tripID, targetID)
	h.publish(c, models.EventMembershipChanged, tripID, gin.H{
		"action":  "removed",
		"user_id": targetID,
	})

	h.emitAudit(c, "INFO", "Member removed")
	c.Status(http.StatusNoContent)
}

// requireMember resolves the caller's role; non-members are rejected.
func (h *TripHandler) requireMember(c *gin.Context, tripID string) (models.Role, bool) {
	memberID := c.GetString("memberID")
	role, ok, err := h.membership.RoleOf(c.Request.Context(), tripID, memberID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return "", false
	}
	if !ok {
		h.emitAudit(c, "ERROR", "not a member")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return "", false
	}
	return role, true
}

func (h *TripHandler) publish(c *gin.Context, eventType, tripID string, payload interface{}) {
	publishTripEvent(c, h.hub, eventType, tripID, payload)
}

func (h *TripHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), memberIDFromContext(c))
}

func membershipAction(existed bool) string {
	if existed {
		return "role-changed"
	}
	return "invited"
}

// publishTripEvent builds the event, fans it out through the hub and mirrors
// it to AMQP. The mutation response never waits on fan-out latency: hub sends
// are non-blocking and AMQP errors are swallowed into metrics.
func publishTripEvent(c *gin.Context, hub *ws.Hub, eventType, tripID string, payload interface{}) models.Event {
	event := models.Event{
		EventID:   uuid.NewString(),
		Type:      eventType,
		TripID:    tripID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	hub.Publish(tripID, event)
	_ = observability.PublishEvent(c.Request.Context(), "trip_events.domain", observability.EventEnvelope{
		EventType: "domain_events",
		EventName: eventType,
		Payload:   event,
	}, observability.BuildHeaders(requestIDFromContext(c), ""))
	return event
}
