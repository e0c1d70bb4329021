package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SplitType describes how an expense is divided among members.
type SplitType string

const (
	SplitEqual      SplitType = "equal"
	SplitPercentage SplitType = "percentage"
	SplitExact      SplitType = "exact"
)

// Valid reports whether the split type is known.
func (s SplitType) Valid() bool {
	switch s {
	case SplitEqual, SplitPercentage, SplitExact:
		return true
	}
	return false
}

// ExpenseStatus marks whether an expense has been reconciled outside the
// system. Settlement never affects balance computation.
type ExpenseStatus string

const (
	StatusPending ExpenseStatus = "pending"
	StatusSettled ExpenseStatus = "settled"
)

// Expense is a shared expense within a trip, created atomically with its full
// split. Edits replace the entire split set.
type Expense struct {
	ID          string          `db:"id" json:"id"`
	TripID      string          `db:"trip_id" json:"trip_id"`
	EntryID     *string         `db:"entry_id" json:"entry_id,omitempty"`
	Description string          `db:"description" json:"description"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Currency    string          `db:"currency" json:"currency"`
	Category    string          `db:"category" json:"category,omitempty"`
	Date        time.Time       `db:"date" json:"date"`
	PaidBy      string          `db:"paid_by" json:"paid_by"`
	SplitType   SplitType       `db:"split_type" json:"split_type"`
	Status      ExpenseStatus   `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	Splits      []ExpenseSplit  `db:"-" json:"split_details"`
}

// ExpenseSplit is one member's share of an expense.
type ExpenseSplit struct {
	ExpenseID  string           `db:"expense_id" json:"-"`
	UserID     string           `db:"user_id" json:"user_id"`
	Amount     decimal.Decimal  `db:"amount" json:"amount"`
	Percentage *decimal.Decimal `db:"percentage" json:"percentage,omitempty"`
	Paid       bool             `db:"paid" json:"paid"`
}

// SplitWith returns the user ids of the split in stored order.
func (e Expense) SplitWith() []string {
	ids := make([]string, 0, len(e.Splits))
	for _, s := range e.Splits {
		ids = append(ids, s.UserID)
	}
	return ids
}
