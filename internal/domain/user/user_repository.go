// Package user resolves statement recipients to account owners.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/pkg/db"
)

var _ Repo = (*PostgresRepo)(nil)

// User is an account owner who can receive statements.
type User struct {
	ID        uuid.UUID `db:"id"`
	Email     string    `db:"email"`
	Name      *string   `db:"name"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Repo defines the contract for user persistence.
type Repo interface {
	// GetActiveByEmail resolves a statement recipient. A missing or
	// deactivated user returns common.ErrUnknownRecipient.
	GetActiveByEmail(ctx context.Context, conn db.DBTX, email string) (*User, error)

	// GetByID retrieves a user regardless of active state.
	// Returns common.ErrNotFound if the user doesn't exist.
	GetByID(ctx context.Context, conn db.DBTX, userID uuid.UUID) (*User, error)
}

type PostgresRepo struct {
	logger *slog.Logger
}

func NewPostgresRepo(logger *slog.Logger) *PostgresRepo {
	return &PostgresRepo{logger: logger}
}

func (r *PostgresRepo) GetActiveByEmail(ctx context.Context, conn db.DBTX, email string) (*User, error) {
	rows, err := conn.Query(ctx,
		`SELECT id, email, name, is_active, created_at, updated_at
		 FROM users
		 WHERE email = $1 AND is_active = TRUE`,
		email)
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[User])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no active user for %s: %w", email, common.ErrUnknownRecipient)
		}
		return nil, fmt.Errorf("failed to collect user: %w", err)
	}

	return &row, nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, conn db.DBTX, userID uuid.UUID) (*User, error) {
	rows, err := conn.Query(ctx,
		`SELECT id, email, name, is_active, created_at, updated_at
		 FROM users
		 WHERE id = $1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[User])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to collect user: %w", err)
	}

	return &row, nil
}
