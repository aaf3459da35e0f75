// Package repository persists bank accounts discovered during extraction.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/pkg/db"
)

var _ BankAccountRepo = (*PostgresBankAccountRepo)(nil)

// BankAccount is one account of a user at one bank, keyed by the number
// printed on the statement header.
type BankAccount struct {
	ID            uuid.UUID `db:"id"`
	UserID        uuid.UUID `db:"user_id"`
	AccountNumber string    `db:"account_number"`
	IFSCCode      *string   `db:"ifsc_code"`
	AccountType   string    `db:"account_type"`
	BankName      *string   `db:"bank_name"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// BankAccountRepo defines the contract for bank account persistence.
type BankAccountRepo interface {
	// GetOrCreate resolves the account for (userID, number), inserting it
	// on first sight. Concurrent creators racing on the unique constraint
	// recover by re-reading.
	GetOrCreate(ctx context.Context, conn db.DBTX, account BankAccount) (*BankAccount, error)

	// GetByNumber looks up an account; common.ErrNotFound when absent.
	GetByNumber(ctx context.Context, conn db.DBTX, userID uuid.UUID, number string) (*BankAccount, error)
}

type PostgresBankAccountRepo struct {
	logger *slog.Logger
}

func NewPostgresBankAccountRepo(logger *slog.Logger) *PostgresBankAccountRepo {
	return &PostgresBankAccountRepo{logger: logger}
}

func (r *PostgresBankAccountRepo) GetByNumber(ctx context.Context, conn db.DBTX, userID uuid.UUID, number string) (*BankAccount, error) {
	rows, err := conn.Query(ctx,
		`SELECT id, user_id, account_number, ifsc_code, account_type, bank_name, created_at, updated_at
		 FROM bank_accounts
		 WHERE user_id = $1 AND account_number = $2`,
		userID, number)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank account: %w", err)
	}

	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[BankAccount])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bank account %s: %w", number, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to collect bank account: %w", err)
	}

	return &row, nil
}

func (r *PostgresBankAccountRepo) GetOrCreate(ctx context.Context, conn db.DBTX, account BankAccount) (*BankAccount, error) {
	existing, err := r.GetByNumber(ctx, conn, account.UserID, account.AccountNumber)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	accountType := account.AccountType
	if accountType == "" {
		accountType = "SAVINGS"
	}

	rows, err := conn.Query(ctx,
		`INSERT INTO bank_accounts (user_id, account_number, ifsc_code, account_type, bank_name)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, user_id, account_number, ifsc_code, account_type, bank_name, created_at, updated_at`,
		account.UserID, account.AccountNumber, account.IFSCCode, accountType, account.BankName)
	if err == nil {
		row, collectErr := pgx.CollectOneRow(rows, pgx.RowToStructByName[BankAccount])
		if collectErr == nil {
			return &row, nil
		}
		err = collectErr
	}

	// A concurrent task for the same statement may have inserted first;
	// the unique violation means the row now exists.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		r.logger.Debug("bank account insert raced, re-reading",
			"user_id", account.UserID, "account_number", account.AccountNumber)
		return r.GetByNumber(ctx, conn, account.UserID, account.AccountNumber)
	}

	return nil, fmt.Errorf("failed to insert bank account: %w", err)
}
