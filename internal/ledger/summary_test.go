package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-collab-service/internal/models"
)

func expense(id, paidBy, currency, category, amount string, shares map[string]string) models.Expense {
	e := models.Expense{
		ID:       id,
		TripID:   "trip-1",
		PaidBy:   paidBy,
		Currency: currency,
		Category: category,
		Amount:   dec(amount),
		Status:   models.StatusPending,
	}
	for user, share := range shares {
		e.Splits = append(e.Splits, models.ExpenseSplit{ExpenseID: id, UserID: user, Amount: dec(share)})
	}
	return e
}

func TestSummarizeBalances(t *testing.T) {
	// Trip with A (owner) and B (editor): 300 THB paid by A, split equally.
	expenses := []models.Expense{
		expense("e1", "A", "THB", "food", "300", map[string]string{"A": "150", "B": "150"}),
	}

	summary := Summarize("trip-1", expenses)

	require.Len(t, summary.Members, 2)
	a, b := summary.Members[0], summary.Members[1]
	assert.Equal(t, "A", a.UserID)
	assert.True(t, dec("300").Equal(a.Paid))
	assert.True(t, dec("150").Equal(a.Owed))
	assert.True(t, dec("150").Equal(a.Balance))
	assert.Equal(t, "B", b.UserID)
	assert.True(t, b.Paid.IsZero())
	assert.True(t, dec("150").Equal(b.Owed))
	assert.True(t, dec("-150").Equal(b.Balance))

	assert.True(t, dec("300").Equal(summary.TotalByCurrency["THB"]))
	assert.True(t, dec("300").Equal(summary.TotalByCategory["food"]))
}

func TestSummarizeOrderIndependent(t *testing.T) {
	e1 := expense("e1", "A", "EUR", "food", "30", map[string]string{"A": "10", "B": "10", "C": "10"})
	e2 := expense("e2", "B", "EUR", "transport", "12.50", map[string]string{"A": "6.25", "B": "6.25"})
	e3 := expense("e3", "C", "USD", "", "7", map[string]string{"C": "7"})

	forward := Summarize("trip-1", []models.Expense{e1, e2, e3})
	backward := Summarize("trip-1", []models.Expense{e3, e2, e1})

	require.Equal(t, len(forward.Members), len(backward.Members))
	for i := range forward.Members {
		assert.Equal(t, forward.Members[i].UserID, backward.Members[i].UserID)
		assert.True(t, forward.Members[i].Balance.Equal(backward.Members[i].Balance))
		assert.True(t, forward.Members[i].Paid.Equal(backward.Members[i].Paid))
		assert.True(t, forward.Members[i].Owed.Equal(backward.Members[i].Owed))
	}
	assert.True(t, forward.TotalByCurrency["EUR"].Equal(backward.TotalByCurrency["EUR"]))
	assert.True(t, forward.TotalByCategory["uncategorized"].Equal(backward.TotalByCategory["uncategorized"]))
}

func TestSummarizeIdempotent(t *testing.T) {
	expenses := []models.Expense{
		expense("e1", "A", "THB", "food", "100", map[string]string{"A": "50", "B": "50"}),
	}
	first := Summarize("trip-1", expenses)
	second := Summarize("trip-1", expenses)
	require.Equal(t, len(first.Members), len(second.Members))
	for i := range first.Members {
		assert.True(t, first.Members[i].Balance.Equal(second.Members[i].Balance))
	}
}

func TestSettlementDoesNotChangeBalances(t *testing.T) {
	e := expense("e1", "A", "THB", "food", "100", map[string]string{"A": "50", "B": "50"})
	before := Summarize("trip-1", []models.Expense{e})

	e.Status = models.StatusSettled
	after := Summarize("trip-1", []models.Expense{e})

	require.Equal(t, len(before.Members), len(after.Members))
	for i := range before.Members {
		assert.True(t, before.Members[i].Balance.Equal(after.Members[i].Balance))
		assert.True(t, before.Members[i].Paid.Equal(after.Members[i].Paid))
		assert.True(t, before.Members[i].Owed.Equal(after.Members[i].Owed))
	}
}
