// Package repository loads categorization rules for the engine.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/statement-parser/pkg/db"
)

var _ RulesRepo = (*PostgresRulesRepo)(nil)

// StoredRule is one persisted rule. DSLText is the rule source; it is
// parsed on load so an unparseable rule can be skipped without failing
// the run.
type StoredRule struct {
	ID            uuid.UUID  `db:"id"`
	UserID        uuid.UUID  `db:"user_id"`
	BankAccountID *uuid.UUID `db:"bank_account_id"`
	Name          *string    `db:"name"`
	DSLText       string     `db:"dsl_text"`
	Priority      int        `db:"priority"`
	IsActive      bool       `db:"is_active"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// RunFilter narrows which rules a re-categorization run applies.
type RunFilter struct {
	BankAccountID *uuid.UUID
	RuleIDs       []uuid.UUID
}

// RulesRepo defines the contract for rule persistence.
type RulesRepo interface {
	// ListActiveForAccount returns the user's active rules that are
	// account-global or bound to the given account, ordered by priority.
	ListActiveForAccount(ctx context.Context, conn db.DBTX, userID uuid.UUID, bankAccountID uuid.UUID) ([]StoredRule, error)

	// ListForRun returns the active rules a re-categorization run uses.
	// An empty RuleIDs list selects all of the user's active rules.
	ListForRun(ctx context.Context, conn db.DBTX, userID uuid.UUID, filter RunFilter) ([]StoredRule, error)
}

type PostgresRulesRepo struct {
	logger *slog.Logger
}

func NewPostgresRulesRepo(logger *slog.Logger) *PostgresRulesRepo {
	return &PostgresRulesRepo{logger: logger}
}

func (r *PostgresRulesRepo) ListActiveForAccount(ctx context.Context, conn db.DBTX, userID uuid.UUID, bankAccountID uuid.UUID) ([]StoredRule, error) {
	rows, err := conn.Query(ctx,
		`SELECT id, user_id, bank_account_id, name, dsl_text, priority, is_active, created_at, updated_at
		 FROM categorization_rules
		 WHERE user_id = $1
		   AND is_active = TRUE
		   AND (bank_account_id IS NULL OR bank_account_id = $2)
		 ORDER BY priority, created_at`,
		userID, bankAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	rules, err := pgx.CollectRows(rows, pgx.RowToStructByName[StoredRule])
	if err != nil {
		return nil, fmt.Errorf("failed to collect rules: %w", err)
	}
	return rules, nil
}

func (r *PostgresRulesRepo) ListForRun(ctx context.Context, conn db.DBTX, userID uuid.UUID, filter RunFilter) ([]StoredRule, error) {
	query := `SELECT id, user_id, bank_account_id, name, dsl_text, priority, is_active, created_at, updated_at
		 FROM categorization_rules
		 WHERE user_id = $1 AND is_active = TRUE`
	args := []any{userID}

	if filter.BankAccountID != nil {
		args = append(args, *filter.BankAccountID)
		query += fmt.Sprintf(" AND (bank_account_id IS NULL OR bank_account_id = $%d)", len(args))
	}
	if len(filter.RuleIDs) > 0 {
		args = append(args, filter.RuleIDs)
		query += fmt.Sprintf(" AND id = ANY($%d)", len(args))
	}
	query += " ORDER BY priority, created_at"

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	rules, err := pgx.CollectRows(rows, pgx.RowToStructByName[StoredRule])
	if err != nil {
		return nil, fmt.Errorf("failed to collect rules: %w", err)
	}
	return rules, nil
}
