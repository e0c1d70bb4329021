package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"trip-collab-service/internal/identity"
	"trip-collab-service/internal/models"
	"trip-collab-service/internal/repositories"
)

type MembershipRepositoryMock struct {
	mock.Mock
}

func (m *MembershipRepositoryMock) CreateTrip(ctx context.Context, name, currency, ownerID string) (models.Trip, error) {
	args := m.Called(ctx, name, currency, ownerID)
	var trip models.Trip
	if val := args.Get(0); val != nil {
		trip = val.(models.Trip)
	}
	return trip, args.Error(1)
}

func (m *MembershipRepositoryMock) GetTrip(ctx context.Context, tripID string) (models.Trip, error) {
	args := m.Called(ctx, tripID)
	var trip models.Trip
	if val := args.Get(0); val != nil {
		trip = val.(models.Trip)
	}
	return trip, args.Error(1)
}

func (m *MembershipRepositoryMock) Assign(ctx context.Context, tripID, userID string, role models.Role) (models.Member, error) {
	args := m.Called(ctx, tripID, userID, role)
	var member models.Member
	if val := args.Get(0); val != nil {
		member = val.(models.Member)
	}
	return member, args.Error(1)
}

func (m *MembershipRepositoryMock) Revoke(ctx context.Context, tripID, userID string) error {
	args := m.Called(ctx, tripID, userID)
	return args.Error(0)
}

func (m *MembershipRepositoryMock) RoleOf(ctx context.Context, tripID, userID string) (models.Role, bool, error) {
	args := m.Called(ctx, tripID, userID)
	var role models.Role
	if val := args.Get(0); val != nil {
		role = val.(models.Role)
	}
	return role, args.Bool(1), args.Error(2)
}

func (m *MembershipRepositoryMock) ListMembers(ctx context.Context, tripID string) ([]models.Member, error) {
	args := m.Called(ctx, tripID)
	var members []models.Member
	if val := args.Get(0); val != nil {
		members = val.([]models.Member)
	}
	return members, args.Error(1)
}

func (m *MembershipRepositoryMock) TripIDsForUser(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

type ExpenseRepositoryMock struct {
	mock.Mock
}

func (m *ExpenseRepositoryMock) CreateExpense(ctx context.Context, expense models.Expense) (models.Expense, error) {
	args := m.Called(ctx, expense)
	var stored models.Expense
	if val := args.Get(0); val != nil {
		stored = val.(models.Expense)
	}
	return stored, args.Error(1)
}

func (m *ExpenseRepositoryMock) UpdateExpense(ctx context.Context, expense models.Expense) (models.Expense, error) {
	args := m.Called(ctx, expense)
	var stored models.Expense
	if val := args.Get(0); val != nil {
		stored = val.(models.Expense)
	}
	return stored, args.Error(1)
}

func (m *ExpenseRepositoryMock) DeleteExpense(ctx context.Context, tripID, expenseID string) error {
	args := m.Called(ctx, tripID, expenseID)
	return args.Error(0)
}

func (m *ExpenseRepositoryMock) SettleExpense(ctx context.Context, tripID, expenseID string) (models.Expense, error) {
	args := m.Called(ctx, tripID, expenseID)
	var stored models.Expense
	if val := args.Get(0); val != nil {
		stored = val.(models.Expense)
	}
	return stored, args.Error(1)
}

func (m *ExpenseRepositoryMock) GetExpense(ctx context.Context, tripID, expenseID string) (models.Expense, error) {
	args := m.Called(ctx, tripID, expenseID)
	var stored models.Expense
	if val := args.Get(0); val != nil {
		stored = val.(models.Expense)
	}
	return stored, args.Error(1)
}

func (m *ExpenseRepositoryMock) ListExpenses(ctx context.Context, tripID string) ([]models.Expense, error) {
	args := m.Called(ctx, tripID)
	var expenses []models.Expense
	if val := args.Get(0); val != nil {
		expenses = val.([]models.Expense)
	}
	return expenses, args.Error(1)
}

type ResolverMock struct {
	mock.Mock
}

func (m *ResolverMock) ResolveCaller(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

var _ repositories.MembershipRepository = (*MembershipRepositoryMock)(nil)
var _ repositories.ExpenseRepository = (*ExpenseRepositoryMock)(nil)
var _ identity.Resolver = (*ResolverMock)(nil)
