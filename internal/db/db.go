package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trips (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL,
            currency TEXT NOT NULL,
            created_by TEXT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS trip_members (
            trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            role TEXT NOT NULL,
            joined_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY(trip_id, user_id)
        );`,
		// Backstop for the single-owner invariant; the per-trip lock in the
		// mutation gateway is the primary serialization.
		`CREATE UNIQUE INDEX IF NOT EXISTS trip_members_single_owner
            ON trip_members (trip_id) WHERE role = 'owner';`,
		`CREATE TABLE IF NOT EXISTS expenses (
            id UUID PRIMARY KEY,
            trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
            entry_id TEXT,
            description TEXT NOT NULL,
            amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
            currency TEXT NOT NULL,
            category TEXT NOT NULL DEFAULT '',
            date TIMESTAMPTZ NOT NULL,
            paid_by TEXT NOT NULL,
            split_type TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            created_at TIMESTAMPTZ DEFAULT NOW(),
            updated_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS expense_splits (
            expense_id UUID NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            amount NUMERIC(14,2) NOT NULL,
            percentage NUMERIC(7,4),
            paid BOOLEAN NOT NULL DEFAULT FALSE,
            position INT NOT NULL DEFAULT 0,
            PRIMARY KEY(expense_id, user_id)
        );`,
		`CREATE INDEX IF NOT EXISTS expenses_trip_id ON expenses (trip_id);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
