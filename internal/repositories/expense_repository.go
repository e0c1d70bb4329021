package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"trip-collab-service/internal/models"
)

var ErrExpenseNotFound = errors.New("expense not found")

// ExpenseRepository abstracts expense and split persistence. An expense and
// its split set are always written together in one transaction; updates
// replace the whole split set so the sum invariant never sees a partial state.
type ExpenseRepository interface {
	CreateExpense(ctx context.Context, expense models.Expense) (models.Expense, error)
	UpdateExpense(ctx context.Context, expense models.Expense) (models.Expense, error)
	DeleteExpense(ctx context.Context, tripID, expenseID string) error
	SettleExpense(ctx context.Context, tripID, expenseID string) (models.Expense, error)
	GetExpense(ctx context.Context, tripID, expenseID string) (models.Expense, error)
	ListExpenses(ctx context.Context, tripID string) ([]models.Expense, error)
}

// ExpenseRepo is a sqlx-backed repository.
type ExpenseRepo struct {
	db *sqlx.DB
}

// NewExpenseRepo constructs ExpenseRepo.
func NewExpenseRepo(db *sqlx.DB) *ExpenseRepo {
	return &ExpenseRepo{db: db}
}

// CreateExpense stores the expense and its full split atomically.
func (r *ExpenseRepo) CreateExpense(ctx context.Context, expense models.Expense) (models.Expense, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Expense{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var stored models.Expense
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO expenses (id, trip_id, entry_id, description, amount, currency, category, date, paid_by, split_type, status)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
         RETURNING id, trip_id, entry_id, description, amount, currency, category, date, paid_by, split_type, status, created_at, updated_at`,
		expense.ID, expense.TripID, expense.EntryID, expense.Description, expense.Amount,
		expense.Currency, expense.Category, expense.Date, expense.PaidBy, expense.SplitType,
		models.StatusPending).StructScan(&stored); err != nil {
		return models.Expense{}, err
	}

	if err = insertSplits(ctx, tx, stored.ID, expense.Splits); err != nil {
		return models.Expense{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Expense{}, err
	}
	stored.Splits = expense.Splits
	return stored, nil
}

// UpdateExpense replaces the expense row and its entire split set.
func (r *ExpenseRepo) UpdateExpense(ctx context.Context, expense models.Expense) (models.Expense, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Expense{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var stored models.Expense
	err = tx.QueryRowxContext(ctx,
		`UPDATE expenses
         SET entry_id=$3, description=$4, amount=$5, currency=$6, category=$7, date=$8, paid_by=$9, split_type=$10, updated_at=NOW()
         WHERE id=$1 AND trip_id=$2
         RETURNING id, trip_id, entry_id, description, amount, currency, category, date, paid_by, split_type, status, created_at, updated_at`,
		expense.ID, expense.TripID, expense.EntryID, expense.Description, expense.Amount,
		expense.Currency, expense.Category, expense.Date, expense.PaidBy, expense.SplitType).StructScan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrExpenseNotFound
		return models.Expense{}, err
	}
	if err != nil {
		return models.Expense{}, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM expense_splits WHERE expense_id=$1`, expense.ID); err != nil {
		return models.Expense{}, err
	}
	if err = insertSplits(ctx, tx, expense.ID, expense.Splits); err != nil {
		return models.Expense{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Expense{}, err
	}
	stored.Splits = expense.Splits
	return stored, nil
}

// DeleteExpense removes the record; splits cascade. No balance adjustment is
// needed since balances are always recomputed.
func (r *ExpenseRepo) DeleteExpense(ctx context.Context, tripID, expenseID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id=$1 AND trip_id=$2`, expenseID, tripID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

// SettleExpense flips the status flag only.
func (r *ExpenseRepo) SettleExpense(ctx context.Context, tripID, expenseID string) (models.Expense, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET status=$3, updated_at=NOW() WHERE id=$1 AND trip_id=$2`,
		expenseID, tripID, models.StatusSettled)
	if err != nil {
		return models.Expense{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Expense{}, err
	}
	if count == 0 {
		return models.Expense{}, ErrExpenseNotFound
	}
	return r.GetExpense(ctx, tripID, expenseID)
}

// GetExpense fetches one expense with its splits.
func (r *ExpenseRepo) GetExpense(ctx context.Context, tripID, expenseID string) (models.Expense, error) {
	var expense models.Expense
	err := r.db.GetContext(ctx, &expense,
		`SELECT id, trip_id, entry_id, description, amount, currency, category, date, paid_by, split_type, status, created_at, updated_at
         FROM expenses WHERE id=$1 AND trip_id=$2`, expenseID, tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Expense{}, ErrExpenseNotFound
	}
	if err != nil {
		return models.Expense{}, err
	}

	err = r.db.SelectContext(ctx, &expense.Splits,
		`SELECT expense_id, user_id, amount, percentage, paid FROM expense_splits
         WHERE expense_id=$1 ORDER BY position ASC`, expenseID)
	return expense, err
}

// ListExpenses returns all of a trip's expenses with splits, newest first.
func (r *ExpenseRepo) ListExpenses(ctx context.Context, tripID string) ([]models.Expense, error) {
	var expenses []models.Expense
	err := r.db.SelectContext(ctx, &expenses,
		`SELECT id, trip_id, entry_id, description, amount, currency, category, date, paid_by, split_type, status, created_at, updated_at
         FROM expenses WHERE trip_id=$1 ORDER BY date DESC, created_at DESC`, tripID)
	if err != nil || len(expenses) == 0 {
		return expenses, err
	}

	ids := make([]string, 0, len(expenses))
	for _, e := range expenses {
		ids = append(ids, e.ID)
	}
	query, args, err := sqlx.In(
		`SELECT expense_id, user_id, amount, percentage, paid FROM expense_splits
         WHERE expense_id IN (?) ORDER BY expense_id, position ASC`, ids)
	if err != nil {
		return nil, err
	}
	var splits []models.ExpenseSplit
	if err := r.db.SelectContext(ctx, &splits, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	byExpense := make(map[string][]models.ExpenseSplit, len(expenses))
	for _, s := range splits {
		byExpense[s.ExpenseID] = append(byExpense[s.ExpenseID], s)
	}
	for i := range expenses {
		expenses[i].Splits = byExpense[expenses[i].ID]
	}
	return expenses, nil
}

func insertSplits(ctx context.Context, tx *sqlx.Tx, expenseID string, splits []models.ExpenseSplit) error {
	for i, s := range splits {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, user_id, amount, percentage, paid, position)
             VALUES ($1, $2, $3, $4, $5, $6)`,
			expenseID, s.UserID, s.Amount, s.Percentage, s.Paid, i); err != nil {
			return err
		}
	}
	return nil
}
