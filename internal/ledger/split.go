// Package ledger holds the pure expense-splitting and aggregation logic.
// Persistence lives in internal/repositories; this package never touches I/O.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"trip-collab-service/internal/models"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive in currency minor units")
	ErrEmptySplit    = errors.New("split requires at least one member")
	ErrInvalidSplit  = errors.New("invalid split details")
	ErrSplitMismatch = errors.New("split does not sum to the expense amount")
)

// minorUnit assumes two decimal places; the tolerance for the sum invariant is
// half the smallest currency unit.
var (
	minorUnitPlaces int32 = 2
	sumTolerance          = decimal.New(5, -3)
	hundred               = decimal.NewFromInt(100)
)

// ValidateAmount checks that an amount is positive and carries no precision
// below the currency minor unit.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(minorUnitPlaces)) {
		return ErrInvalidAmount
	}
	return nil
}

// ComputeEqualSplit divides amount evenly across splitWith. Each share is
// rounded down to the minor unit; the residual remainder goes to the first
// member in iteration order so no smallest unit is ever lost.
func ComputeEqualSplit(expenseID string, amount decimal.Decimal, splitWith []string) []models.ExpenseSplit {
	n := decimal.NewFromInt(int64(len(splitWith)))
	base := amount.Div(n).RoundDown(minorUnitPlaces)
	residual := amount.Sub(base.Mul(n))

	splits := make([]models.ExpenseSplit, 0, len(splitWith))
	for i, userID := range splitWith {
		share := base
		if i == 0 {
			share = share.Add(residual)
		}
		splits = append(splits, models.ExpenseSplit{
			ExpenseID: expenseID,
			UserID:    userID,
			Amount:    share,
		})
	}
	return splits
}

// ValidateSplit checks the split invariant for caller-supplied details:
// the details cover exactly the splitWith set, amounts sum to the expense
// amount within tolerance, and percentage splits sum to 100.
func ValidateSplit(amount decimal.Decimal, splitType models.SplitType, splitWith []string, details []models.ExpenseSplit) error {
	if len(splitWith) == 0 {
		return ErrEmptySplit
	}

	want := make(map[string]struct{}, len(splitWith))
	for _, id := range splitWith {
		if _, dup := want[id]; dup {
			return fmt.Errorf("%w: duplicate member %s in split_with", ErrInvalidSplit, id)
		}
		want[id] = struct{}{}
	}

	if len(details) != len(want) {
		return fmt.Errorf("%w: details cover %d members, split_with has %d", ErrInvalidSplit, len(details), len(want))
	}

	seen := make(map[string]struct{}, len(details))
	sum := decimal.Zero
	pctSum := decimal.Zero
	for _, d := range details {
		if _, ok := want[d.UserID]; !ok {
			return fmt.Errorf("%w: member %s not in split_with", ErrInvalidSplit, d.UserID)
		}
		if _, dup := seen[d.UserID]; dup {
			return fmt.Errorf("%w: duplicate member %s in details", ErrInvalidSplit, d.UserID)
		}
		seen[d.UserID] = struct{}{}

		sum = sum.Add(d.Amount)
		if splitType == models.SplitPercentage {
			if d.Percentage == nil {
				return fmt.Errorf("%w: missing percentage for member %s", ErrInvalidSplit, d.UserID)
			}
			pctSum = pctSum.Add(*d.Percentage)
		}
	}

	if splitType == models.SplitPercentage && !pctSum.Equal(hundred) {
		return fmt.Errorf("%w: percentages sum to %s, want 100", ErrSplitMismatch, pctSum)
	}
	if sum.Sub(amount).Abs().GreaterThan(sumTolerance) {
		return fmt.Errorf("%w: details sum to %s, amount is %s", ErrSplitMismatch, sum, amount)
	}
	return nil
}
