// Package repository persists per-sender statement PDF credentials.
package repository

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

var _ CredentialsRepo = (*PostgresCredentialsRepo)(nil)

// Credential is one stored statement password, keyed by
// (user_id, sender_email, filename). The password is stored AEAD-encrypted.
type Credential struct {
	UserID            uuid.UUID `db:"user_id"`
	SenderEmail       string    `db:"sender_email"`
	Filename          string    `db:"filename"`
	EncryptedPassword string    `db:"encrypted_password"`
	IsActive          bool      `db:"is_active"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// CredentialsRepo defines the contract for credential persistence.
type CredentialsRepo interface {
	// Upsert stores a credential, replacing the password of an existing
	// (user, sender, filename) entry.
	Upsert(ctx context.Context, conn db.DBTX, cred Credential) error

	// GetEncryptedPassword finds the credential for an incoming statement.
	// Filenames are matched on their last 8 characters so date-stamped
	// variants of the same statement share one entry. Absence returns
	// common.ErrPasswordMissing.
	GetEncryptedPassword(ctx context.Context, conn db.DBTX, userID uuid.UUID, senderEmail, filename string) (string, error)
}

type PostgresCredentialsRepo struct {
	logger *slog.Logger
}

func NewPostgresCredentialsRepo(logger *slog.Logger) *PostgresCredentialsRepo {
	return &PostgresCredentialsRepo{logger: logger}
}

func (r *PostgresCredentialsRepo) Upsert(ctx context.Context, conn db.DBTX, cred Credential) error {
	_, err := conn.Exec(ctx,
		`INSERT INTO statement_pdfs (user_id, sender_email, filename, encrypted_password, is_active)
		 VALUES ($1, $2, $3, $4, TRUE)
		 ON CONFLICT (user_id, sender_email, filename)
		 DO UPDATE SET encrypted_password = EXCLUDED.encrypted_password,
		               is_active = TRUE,
		               updated_at = now()`,
		cred.UserID, cred.SenderEmail, cred.Filename, cred.EncryptedPassword)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

type encryptedPasswordRow struct {
	EncryptedPassword string `db:"encrypted_password"`
}

func (r *PostgresCredentialsRepo) GetEncryptedPassword(ctx context.Context, conn db.DBTX, userID uuid.UUID, senderEmail, filename string) (string, error) {
	rows, err := conn.Query(ctx,
		`SELECT encrypted_password
		 FROM statement_pdfs
		 WHERE user_id = $1
		   AND sender_email = $2
		   AND RIGHT(filename, 8) = RIGHT($3, 8)
		   AND is_active = TRUE
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		userID, senderEmail, filename)
	if err != nil {
		return "", fmt.Errorf("failed to query credential: %w", err)
	}

	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[encryptedPasswordRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("no credential for %s from %s: %w", filename, senderEmail, common.ErrPasswordMissing)
		}
		return "", fmt.Errorf("failed to collect credential: %w", err)
	}

	return row.EncryptedPassword, nil
}
