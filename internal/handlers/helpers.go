package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"trip-collab-service/internal/ledger"
	"trip-collab-service/internal/repositories"
)

const requestIDContextKey = "request_id"

// ErrUnknownMember is raised when a split or payer references someone who is
// not a member of the trip.
var ErrUnknownMember = errors.New("split references a non-member of the trip")

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func memberIDFromContext(c *gin.Context) *string {
	if val, ok := c.Get("memberID"); ok {
		if id, ok := val.(string); ok && id != "" {
			return &id
		}
	}

	if header := c.GetHeader("X-Member-ID"); header != "" {
		return &header
	}
	return nil
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Validation and
// permission failures reach here before any state change.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrTripNotFound),
		errors.Is(err, repositories.ErrMemberNotFound),
		errors.Is(err, repositories.ErrExpenseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrCannotRemoveOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrDuplicateOwner):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrInvalidRole),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrEmptySplit),
		errors.Is(err, ledger.ErrInvalidSplit),
		errors.Is(err, ledger.ErrSplitMismatch),
		errors.Is(err, ErrUnknownMember):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
