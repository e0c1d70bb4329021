package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trip-collab-service/internal/ledger"
	"trip-collab-service/internal/locks"
	"trip-collab-service/internal/models"
	"trip-collab-service/internal/permissions"
	"trip-collab-service/internal/repositories"
	"trip-collab-service/internal/telemetry"
	"trip-collab-service/internal/ws"
)

// ExpenseHandler is the mutation gateway for the expense ledger.
type ExpenseHandler struct {
	membership repositories.MembershipRepository
	expenses   repositories.ExpenseRepository
	hub        *ws.Hub
	locks      *locks.KeyedMutex
	audit      *telemetry.AuditEmitter
}

// NewExpenseHandler constructs an ExpenseHandler.
func NewExpenseHandler(membership repositories.MembershipRepository, expenses repositories.ExpenseRepository, hub *ws.Hub, tripLocks *locks.KeyedMutex, audit *telemetry.AuditEmitter) *ExpenseHandler {
	return &ExpenseHandler{membership: membership, expenses: expenses, hub: hub, locks: tripLocks, audit: audit}
}

type splitDetailRequest struct {
	UserID     string           `json:"user_id"`
	Amount     decimal.Decimal  `json:"amount"`
	Percentage *decimal.Decimal `json:"percentage"`
	Paid       bool             `json:"paid"`
}

type expenseRequest struct {
	EntryID      *string              `json:"entry_id"`
	Description  string               `json:"description" binding:"required"`
	Amount       decimal.Decimal      `json:"amount"`
	Currency     string               `json:"currency" binding:"required"`
	Category     string               `json:"category"`
	Date         time.Time            `json:"date"`
	PaidBy       string               `json:"paid_by"`
	SplitType    models.SplitType     `json:"split_type" binding:"required"`
	SplitWith    []string             `json:"split_with" binding:"required"`
	SplitDetails []splitDetailRequest `json:"split_details"`
}

// CreateExpense handles POST /trips/:trip_id/expenses. The expense is created
// atomically with its full split; for equal splits the engine computes the
// shares, for percentage and exact splits the caller supplies them and the
// engine only validates.
func (h *ExpenseHandler) CreateExpense(c *gin.Context) {
	tripID := c.Param("trip_id")

	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	unlock := h.locks.Lock(tripID)
	defer unlock()

	role, ok := h.requireMember(c, tripID)
	if !ok {
		return
	}
	if !permissions.Allows(role, permissions.ActionEditContent) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	expense, err := h.buildExpense(c, tripID, uuid.NewString(), req)
	if err != nil {
		h.emitAudit(c, "ERROR", "invalid expense")
		writeDomainError(c, err)
		return
	}

	stored, err := h.expenses.CreateExpense(c.Request.Context(), expense)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		writeDomainError(c, err)
		return
	}

	h.publish(c, tripID, "created", stored.ID)
	h.emitAudit(c, "INFO", "Expense created")
	c.JSON(http.StatusCreated, stored)
}

// UpdateExpense handles PUT /trips/:trip_id/expenses/:expense_id. The whole
// expense, split set included, is replaced; partial success is never
// observable.
func (h *ExpenseHandler) UpdateExpense(c *gin.Context) {
	tripID := c.Param("trip_id")
	expenseID := c.Param("expense_id")

	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	unlock := h.locks.Lock(tripID)
	defer unlock()

	role, ok := h.requireMember(c, tripID)
	if !ok {
		return
	}
	if !permissions.Allows(role, permissions.ActionEditContent) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	expense, err := h.buildExpense(c, tripID, expenseID, req)
	if err != nil {
		h.emitAudit(c, "ERROR", "invalid expense")
		writeDomainError(c, err)
		return
	}

	stored, err := h.expenses.UpdateExpense(c.Request.Context(), expense)
	if err != nil {
		h.emitAudit(c, "ERROR", "update failed")
		writeDomainError(c, err)
		return
	}

	h.publish(c, tripID, "updated", stored.ID)
	h.emitAudit(c, "INFO", "Expense updated")
	c.JSON(http.StatusOK, stored)
}

// DeleteExpense handles DELETE /trips/:trip_id/expenses/:expense_id.
func (h *ExpenseHandler) DeleteExpense(c *gin.Context) {
	tripID := c.Param("trip_id")
	expenseID := c.Param("expense_id")

	unlock := h.locks.Lock(tripID)
	defer unlock()

	role, ok := h.requireMember(c, tripID)
	if !ok {
		return
	}
	if !permissions.Allows(role, permissions.ActionEditContent) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	if err := h.expenses.DeleteExpense(c.Request.Context(), tripID, expenseID); err != nil {
		h.emitAudit(c, "ERROR", "delete failed")
		writeDomainError(c, err)
		return
	}

	h.publish(c, tripID, "deleted", expenseID)
	h.emitAudit(c, "INFO", "Expense deleted")
	c.Status(http.StatusNoContent)
}

// SettleExpense handles POST /trips/:trip_id/expenses/:expense_id/settle.
// Settlement flips the status flag only; balances are unaffected.
func (h *ExpenseHandler) SettleExpense(c *gin.Context) {
	tripID := c.Param("trip_id")
	expenseID := c.Param("expense_id")

	unlock := h.locks.Lock(tripID)
	defer unlock()

	role, ok := h.requireMember(c, tripID)
	if !ok {
		return
	}
	if !permissions.Allows(role, permissions.ActionEditContent) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	expense, err := h.expenses.SettleExpense(c.Request.Context(), tripID, expenseID)
	if err != nil {
		h.emitAudit(c, "ERROR", "settle failed")
		writeDomainError(c, err)
		return
	}

	h.publish(c, tripID, "settled", expense.ID)
	h.emitAudit(c, "INFO", "Expense settled")
	c.JSON(http.StatusOK, expense)
}

// ListExpenses handles GET /trips/:trip_id/expenses.
func (h *ExpenseHandler) ListExpenses(c *gin.Context) {
	tripID := c.Param("trip_id")

	role, ok := h.requireMember(c, tripID)
	if !ok {
		return
	}
	if !permissions.Allows(role, permissions.ActionViewTrip) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	expenses, err := h.expenses.ListExpenses(c.Request.Context(), tripID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load expenses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"expenses": expenses})
}

// GetExpense handles GET /trips/:trip_id/expenses/:expense_id.
func (h *ExpenseHandler) GetExpense(c *gin.Context) {
	tripID := c.Param("trip_id")
	expenseID := c.Param("expense_id")

	role, ok := h.requireMember(c, tripID)
	if !ok {
		return
	}
	if !permissions.Allows(role, permissions.ActionViewTrip) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	expense, err := h.expenses.GetExpense(c.Request.Context(), tripID, expenseID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

// GetSummary handles GET /trips/:trip_id/summary. The summary is recomputed
// from all expenses on every call; settlement status is ignored by design of
// the balance definition.
func (h *ExpenseHandler) GetSummary(c *gin.Context) {
	tripID := c.Param("trip_id")

	role, ok := h.requireMember(c, tripID)
	if !ok {
		return
	}
	if !permissions.Allows(role, permissions.ActionViewTrip) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	expenses, err := h.expenses.ListExpenses(c.Request.Context(), tripID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load expenses"})
		return
	}
	c.JSON(http.StatusOK, ledger.Summarize(tripID, expenses))
}

// buildExpense validates the request against the trip's membership and the
// split invariant, returning a fully-populated expense ready to store.
func (h *ExpenseHandler) buildExpense(c *gin.Context, tripID, expenseID string, req expenseRequest) (models.Expense, error) {
	if err := ledger.ValidateAmount(req.Amount); err != nil {
		return models.Expense{}, err
	}
	if !req.SplitType.Valid() {
		return models.Expense{}, ledger.ErrInvalidSplit
	}
	if len(req.SplitWith) == 0 {
		return models.Expense{}, ledger.ErrEmptySplit
	}
	seen := make(map[string]struct{}, len(req.SplitWith))
	for _, id := range req.SplitWith {
		if _, dup := seen[id]; dup {
			return models.Expense{}, fmt.Errorf("%w: duplicate member %s in split_with", ledger.ErrInvalidSplit, id)
		}
		seen[id] = struct{}{}
	}

	paidBy := req.PaidBy
	if paidBy == "" {
		paidBy = c.GetString("memberID")
	}

	members, err := h.membership.ListMembers(c.Request.Context(), tripID)
	if err != nil {
		return models.Expense{}, err
	}
	memberSet := make(map[string]struct{}, len(members))
	for _, m := range members {
		memberSet[m.UserID] = struct{}{}
	}
	if _, ok := memberSet[paidBy]; !ok {
		return models.Expense{}, ErrUnknownMember
	}
	for _, id := range req.SplitWith {
		if _, ok := memberSet[id]; !ok {
			return models.Expense{}, ErrUnknownMember
		}
	}

	var splits []models.ExpenseSplit
	if req.SplitType == models.SplitEqual {
		splits = ledger.ComputeEqualSplit(expenseID, req.Amount, req.SplitWith)
	} else {
		splits = make([]models.ExpenseSplit, 0, len(req.SplitDetails))
		for _, d := range req.SplitDetails {
			splits = append(splits, models.ExpenseSplit{
				ExpenseID:  expenseID,
				UserID:     d.UserID,
				Amount:     d.Amount,
				Percentage: d.Percentage,
				Paid:       d.Paid,
			})
		}
		if err := ledger.ValidateSplit(req.Amount, req.SplitType, req.SplitWith, splits); err != nil {
			return models.Expense{}, err
		}
	}

	date := req.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	return models.Expense{
		ID:          expenseID,
		TripID:      tripID,
		EntryID:     req.EntryID,
		Description: req.Description,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Date:        date,
		PaidBy:      paidBy,
		SplitType:   req.SplitType,
		Status:      models.StatusPending,
		Splits:      splits,
	}, nil
}

func (h *ExpenseHandler) requireMember(c *gin.Context, tripID string) (models.Role, bool) {
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

func (h *ExpenseHandler) publish(c *gin.Context, tripID, action, expenseID string) {
	publishTripEvent(c, h.hub, models.EventExpenseChanged, tripID, gin.H{
		"action":     action,
		"expense_id": expenseID,
	})
}

func (h *ExpenseHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), memberIDFromContext(c))
}
