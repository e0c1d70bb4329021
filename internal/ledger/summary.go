package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"trip-collab-service/internal/models"
)

// MemberSummary is one member's aggregate position across a trip's expenses.
type MemberSummary struct {
	UserID  string          `json:"user_id"`
	Paid    decimal.Decimal `json:"paid"`
	Owed    decimal.Decimal `json:"owed"`
	Balance decimal.Decimal `json:"balance"`
}

// Summary is the derived, never-stored aggregation over a trip's expenses.
type Summary struct {
	TripID          string                     `json:"trip_id"`
	TotalByCurrency map[string]decimal.Decimal `json:"total_by_currency"`
	TotalByCategory map[string]decimal.Decimal `json:"total_by_category"`
	Members         []MemberSummary            `json:"members"`
}

// Summarize recomputes the full summary from all expenses regardless of
// settlement status. The result is order-independent: members are sorted by
// user id and every total is a plain sum.
func Summarize(tripID string, expenses []models.Expense) Summary {
	byCurrency := make(map[string]decimal.Decimal)
	byCategory := make(map[string]decimal.Decimal)
	paid := make(map[string]decimal.Decimal)
	owed := make(map[string]decimal.Decimal)

	for _, e := range expenses {
		byCurrency[e.Currency] = byCurrency[e.Currency].Add(e.Amount)
		category := e.Category
		if category == "" {
			category = "uncategorized"
		}
		byCategory[category] = byCategory[category].Add(e.Amount)

		paid[e.PaidBy] = paid[e.PaidBy].Add(e.Amount)
		for _, s := range e.Splits {
			owed[s.UserID] = owed[s.UserID].Add(s.Amount)
		}
	}

	ids := make(map[string]struct{}, len(paid)+len(owed))
	for id := range paid {
		ids[id] = struct{}{}
	}
	for id := range owed {
		ids[id] = struct{}{}
	}

	members := make([]MemberSummary, 0, len(ids))
	for id := range ids {
		p := paid[id]
		o := owed[id]
		members = append(members, MemberSummary{
			UserID:  id,
			Paid:    p,
			Owed:    o,
			Balance: p.Sub(o),
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })

	return Summary{
		TripID:          tripID,
		TotalByCurrency: byCurrency,
		TotalByCategory: byCategory,
		Members:         members,
	}
}
