// Package repository persists extracted transactions via chunked,
// conflict-safe upserts.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/pkg/db"
)

var _ TransactionRepo = (*PostgresTransactionRepo)(nil)

// DefaultChunkSize is the batch size for multi-row upserts. One malformed
// row in a chunk triggers a row-by-row fallback for that chunk only.
const DefaultChunkSize = 50

// persistedColumns are the transaction table columns the writer may bind.
// "type" and "payment_method" are synthetic record keys and rule-assigned
// extras have no column of their own; all of those are stripped.
var persistedColumns = map[string]bool{
	"id": true, "user_id": true, "bank_account_id": true,
	"transaction_date": true, "description": true, "entity_name": true,
	"amount": true, "currency": true, "reference_id": true,
	"category_id": true, "tag_id": true, "type_id": true,
	"payment_method_id": true, "goal_id": true,
}

// UpsertError records one row that could not be written.
type UpsertError struct {
	Index       int    `json:"index"`
	ReferenceID string `json:"reference_id"`
	Error       string `json:"error"`
}

// UpsertStats summarizes a bulk upsert run.
type UpsertStats struct {
	Inserted int           `json:"inserted"`
	Failed   int           `json:"failed"`
	Errors   []UpsertError `json:"errors"`
}

// ListFilter narrows which transactions a query returns.
type ListFilter struct {
	BankAccountID *uuid.UUID
	FromDate      *string // ISO YYYY-MM-DD
	ToDate        *string
}

// TransactionRepo defines the contract for transaction persistence.
type TransactionRepo interface {
	// BulkUpsert writes records in chunks. A failing chunk falls back to
	// row-by-row writes; per-row failures accumulate in the stats and
	// never abort the run.
	BulkUpsert(ctx context.Context, conn db.DBTX, txns []*common.Transaction, chunkSize int) (*UpsertStats, error)

	// ListForUser fetches a user's transactions with optional account and
	// date-range filters, oldest first.
	ListForUser(ctx context.Context, conn db.DBTX, userID uuid.UUID, filter ListFilter) ([]*common.Transaction, error)
}

type PostgresTransactionRepo struct {
	logger *slog.Logger
}

func NewPostgresTransactionRepo(logger *slog.Logger) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{logger: logger}
}

func (r *PostgresTransactionRepo) BulkUpsert(ctx context.Context, conn db.DBTX, txns []*common.Transaction, chunkSize int) (*UpsertStats, error) {
	stats := &UpsertStats{}
	if len(txns) == 0 {
		return stats, nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	columns := upsertColumns(txns[0])

	for start := 0; start < len(txns); start += chunkSize {
		end := start + chunkSize
		if end > len(txns) {
			end = len(txns)
		}
		chunk := txns[start:end]

		if err := r.execChunk(ctx, conn, columns, chunk); err == nil {
			stats.Inserted += len(chunk)
			continue
		} else if db.IsTransient(err) {
			return stats, fmt.Errorf("transient failure writing chunk at %d: %w", start, err)
		}

		// Chunk failed on a bad row; retry one by one so the rest of the
		// chunk still lands.
		for i, tx := range chunk {
			if err := r.execChunk(ctx, conn, columns, chunk[i:i+1]); err != nil {
				stats.Failed++
				stats.Errors = append(stats.Errors, UpsertError{
					Index:       start + i,
					ReferenceID: referenceOf(tx),
					Error:       err.Error(),
				})
				r.logger.Warn("transaction row rejected",
					"index", start+i, "reference_id", referenceOf(tx), "error", err)
				continue
			}
			stats.Inserted++
		}
	}

	return stats, nil
}

func (r *PostgresTransactionRepo) execChunk(ctx context.Context, conn db.DBTX, columns []string, chunk []*common.Transaction) error {
	query, args := buildUpsert(columns, chunk)
	_, err := conn.Exec(ctx, query, args...)
	return err
}

// upsertColumns derives the column list from the first record, keeping
// construction order and dropping everything without a table column.
func upsertColumns(tx *common.Transaction) []string {
	var cols []string
	for _, col := range tx.Columns() {
		if persistedColumns[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

// buildUpsert assembles a multi-row INSERT … ON CONFLICT … DO UPDATE.
// Records carrying their primary key (re-categorization of persisted rows)
// conflict on id; fresh extractions conflict on the partial
// (user_id, reference_id) index.
func buildUpsert(columns []string, chunk []*common.Transaction) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(columns)*len(chunk))

	b.WriteString("INSERT INTO transactions (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	n := 1
	for i, tx := range chunk {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, col := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
			args = append(args, bindValue(tx.ColumnValue(col)))
		}
		b.WriteByte(')')
	}

	hasID := columns[0] == "id"
	if hasID {
		b.WriteString(" ON CONFLICT (id)")
	} else {
		b.WriteString(" ON CONFLICT (user_id, reference_id) WHERE reference_id IS NOT NULL")
	}

	b.WriteString(" DO UPDATE SET ")
	first := true
	for _, col := range columns {
		if col == "id" || col == "user_id" || col == "reference_id" {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(col)
		b.WriteString(" = EXCLUDED.")
		b.WriteString(col)
	}
	b.WriteString(", updated_at = now()")

	return b.String(), args
}

// bindValue rewrites values pgx has no codec for. Decimals go over the
// wire as text; the server casts to numeric.
func bindValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return d.String()
	}
	return v
}

func referenceOf(tx *common.Transaction) string {
	if tx.ReferenceID != nil {
		return *tx.ReferenceID
	}
	return ""
}

// transactionRow scans a persisted transaction. amount comes back as text
// so shopspring's decimal parses it without a numeric codec.
type transactionRow struct {
	ID              uuid.UUID  `db:"id"`
	UserID          uuid.UUID  `db:"user_id"`
	BankAccountID   *uuid.UUID `db:"bank_account_id"`
	TransactionDate *time.Time `db:"transaction_date"`
	Description     *string    `db:"description"`
	EntityName      *string    `db:"entity_name"`
	Amount          *string    `db:"amount"`
	Currency        string     `db:"currency"`
	ReferenceID     *string    `db:"reference_id"`
	CategoryID      *int64     `db:"category_id"`
	TagID           *int64     `db:"tag_id"`
	TypeID          *int64     `db:"type_id"`
	PaymentMethodID *int64     `db:"payment_method_id"`
	GoalID          *int64     `db:"goal_id"`
}

func (r *PostgresTransactionRepo) ListForUser(ctx context.Context, conn db.DBTX, userID uuid.UUID, filter ListFilter) ([]*common.Transaction, error) {
	query := `SELECT id, user_id, bank_account_id, transaction_date, description, entity_name,
		        amount::text AS amount, currency, reference_id, category_id, tag_id, type_id,
		        payment_method_id, goal_id
		 FROM transactions
		 WHERE user_id = $1`
	args := []any{userID}

	if filter.BankAccountID != nil {
		args = append(args, *filter.BankAccountID)
		query += fmt.Sprintf(" AND bank_account_id = $%d", len(args))
	}
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		query += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		query += fmt.Sprintf(" AND transaction_date <= $%d", len(args))
	}
	query += " ORDER BY transaction_date, created_at"

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[transactionRow])
	if err != nil {
		return nil, fmt.Errorf("failed to collect transactions: %w", err)
	}

	txns := make([]*common.Transaction, len(collected))
	for i, row := range collected {
		txns[i] = row.toTransaction()
	}
	return txns, nil
}

func (row *transactionRow) toTransaction() *common.Transaction {
	tx := common.NewTransaction()
	tx.ID = row.ID
	userID := row.UserID
	tx.UserID = &userID
	tx.BankAccountID = row.BankAccountID
	if row.TransactionDate != nil {
		tx.TransactionDate = row.TransactionDate.Format("2006-01-02")
	}
	if row.Description != nil {
		tx.Description = *row.Description
	}
	tx.EntityName = row.EntityName
	if row.Amount != nil {
		if amount, err := decimal.NewFromString(*row.Amount); err == nil {
			tx.Amount = &amount
		}
	}
	if row.Currency != "" {
		tx.Currency = row.Currency
	}
	tx.ReferenceID = row.ReferenceID
	tx.CategoryID = row.CategoryID
	tx.TagID = row.TagID
	tx.TypeID = row.TypeID
	tx.PaymentMethodID = row.PaymentMethodID
	tx.GoalID = row.GoalID
	return tx
}
