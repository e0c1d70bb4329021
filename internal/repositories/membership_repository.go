package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"trip-collab-service/internal/models"
)

var (
	ErrTripNotFound      = errors.New("trip not found")
	ErrMemberNotFound    = errors.New("member not found")
	ErrInvalidRole       = errors.New("invalid role")
	ErrDuplicateOwner    = errors.New("trip already has an owner")
	ErrCannotRemoveOwner = errors.New("cannot remove or demote the trip owner")
)

// MembershipRepository abstracts trip and member-role persistence.
type MembershipRepository interface {
	CreateTrip(ctx context.Context, name, currency, ownerID string) (models.Trip, error)
	GetTrip(ctx context.Context, tripID string) (models.Trip, error)
	Assign(ctx context.Context, tripID, userID string, role models.Role) (models.Member, error)
	Revoke(ctx context.Context, tripID, userID string) error
	RoleOf(ctx context.Context, tripID, userID string) (models.Role, bool, error)
	ListMembers(ctx context.Context, tripID string) ([]models.Member, error)
	TripIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// MembershipRepo is a sqlx implementation of MembershipRepository.
type MembershipRepo struct {
	db *sqlx.DB
}

// NewMembershipRepo constructs a MembershipRepo.
func NewMembershipRepo(db *sqlx.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

// CreateTrip creates a trip and its owner assignment atomically.
func (r *MembershipRepo) CreateTrip(ctx context.Context, name, currency, ownerID string) (models.Trip, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Trip{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var trip models.Trip
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO trips (id, name, currency, created_by) VALUES ($1, $2, $3, $4)
         RETURNING id, name, currency, created_by, created_at`,
		uuid.NewString(), name, currency, ownerID).StructScan(&trip); err != nil {
		return models.Trip{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO trip_members (trip_id, user_id, role) VALUES ($1, $2, $3)`,
		trip.ID, ownerID, models.RoleOwner); err != nil {
		return models.Trip{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Trip{}, err
	}
	return trip, nil
}

// GetTrip fetches a single trip.
func (r *MembershipRepo) GetTrip(ctx context.Context, tripID string) (models.Trip, error) {
	var trip models.Trip
	err := r.db.GetContext(ctx, &trip,
		`SELECT id, name, currency, created_by, created_at FROM trips WHERE id=$1`, tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Trip{}, ErrTripNotFound
	}
	return trip, err
}

// Assign upserts a member's role. Assigning owner fails with ErrDuplicateOwner
// when an owner already exists; the partial unique index catches the race the
// per-trip lock should have prevented.
func (r *MembershipRepo) Assign(ctx context.Context, tripID, userID string, role models.Role) (models.Member, error) {
	if !role.Valid() {
		return models.Member{}, ErrInvalidRole
	}
	if _, err := r.GetTrip(ctx, tripID); err != nil {
		return models.Member{}, err
	}
	if role == models.RoleOwner {
		var hasOwner bool
		if err := r.db.GetContext(ctx, &hasOwner,
			`SELECT EXISTS(SELECT 1 FROM trip_members WHERE trip_id=$1 AND role='owner')`, tripID); err != nil {
			return models.Member{}, err
		}
		if hasOwner {
			return models.Member{}, ErrDuplicateOwner
		}
	}

	var member models.Member
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO trip_members (trip_id, user_id, role) VALUES ($1, $2, $3)
         ON CONFLICT (trip_id, user_id) DO UPDATE SET role = EXCLUDED.role
         RETURNING trip_id, user_id, role, joined_at`,
		tripID, userID, role).StructScan(&member)
	if isUniqueViolation(err) {
		return models.Member{}, ErrDuplicateOwner
	}
	return member, err
}

// Revoke removes a member. The owner can never be revoked.
func (r *MembershipRepo) Revoke(ctx context.Context, tripID, userID string) error {
	role, ok, err := r.RoleOf(ctx, tripID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMemberNotFound
	}
	if role == models.RoleOwner {
		return ErrCannotRemoveOwner
	}

	_, err = r.db.ExecContext(ctx,
		`DELETE FROM trip_members WHERE trip_id=$1 AND user_id=$2`, tripID, userID)
	return err
}

// RoleOf returns the member's role; ok is false for non-members.
func (r *MembershipRepo) RoleOf(ctx context.Context, tripID, userID string) (models.Role, bool, error) {
	var role models.Role
	err := r.db.GetContext(ctx, &role,
		`SELECT role FROM trip_members WHERE trip_id=$1 AND user_id=$2`, tripID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

// ListMembers returns the trip's member assignments, owner first.
func (r *MembershipRepo) ListMembers(ctx context.Context, tripID string) ([]models.Member, error) {
	var members []models.Member
	err := r.db.SelectContext(ctx, &members,
		`SELECT trip_id, user_id, role, joined_at FROM trip_members
         WHERE trip_id=$1
         ORDER BY (role = 'owner') DESC, joined_at ASC`, tripID)
	return members, err
}

// TripIDsForUser returns every trip the user belongs to.
func (r *MembershipRepo) TripIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT trip_id FROM trip_members WHERE user_id=$1`, userID)
	return ids, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
