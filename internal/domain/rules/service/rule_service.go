// Package service re-runs the categorization rules over persisted
// transactions.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/internal/domain/rules/dsl"
	rulesrepo "github.com/FACorreiaa/statement-parser/internal/domain/rules/repository"
	txrepo "github.com/FACorreiaa/statement-parser/internal/domain/transaction/repository"
	"github.com/FACorreiaa/statement-parser/internal/domain/user"
	"github.com/FACorreiaa/statement-parser/pkg/db"
	"github.com/FACorreiaa/statement-parser/pkg/observability"
)

// RunParams selects which transactions and rules a run covers. Email is
// required; everything else narrows the run.
type RunParams struct {
	Email         string
	BankAccountID *uuid.UUID
	FromDate      *string // ISO YYYY-MM-DD
	ToDate        *string
	RuleIDs       []uuid.UUID
}

// RunResult reports a re-categorization run.
type RunResult struct {
	Count int                `json:"count"`
	Stats *txrepo.UpsertStats `json:"stats"`
}

// Service applies rules to already-persisted transactions.
type Service struct {
	logger   *slog.Logger
	sessions db.Sessions
	users    user.Repo
	rules    rulesrepo.RulesRepo
	txns     txrepo.TransactionRepo

	chunkSize int
}

func NewService(
	logger *slog.Logger,
	sessions db.Sessions,
	users user.Repo,
	rules rulesrepo.RulesRepo,
	txns txrepo.TransactionRepo,
	chunkSize int,
) *Service {
	return &Service{
		logger:    logger,
		sessions:  sessions,
		users:     users,
		rules:     rules,
		txns:      txns,
		chunkSize: chunkSize,
	}
}

// Run fetches the matching transactions, applies the selected rules and
// writes the enriched records back through the upsert writer.
func (s *Service) Run(ctx context.Context, params RunParams) (*RunResult, error) {
	if params.Email == "" {
		return nil, fmt.Errorf("email is required: %w", common.ErrBadRequest)
	}

	result := &RunResult{Stats: &txrepo.UpsertStats{}}
	err := s.sessions.WithConn(ctx, func(conn db.DBTX) error {
		owner, err := s.users.GetActiveByEmail(ctx, conn, params.Email)
		if err != nil {
			return err
		}

		txns, err := s.txns.ListForUser(ctx, conn, owner.ID, txrepo.ListFilter{
			BankAccountID: params.BankAccountID,
			FromDate:      params.FromDate,
			ToDate:        params.ToDate,
		})
		if err != nil {
			return err
		}
		if len(txns) == 0 {
			s.logger.Info("no transactions matched rule run", "email", params.Email)
			return nil
		}

		stored, err := s.rules.ListForRun(ctx, conn, owner.ID, rulesrepo.RunFilter{
			BankAccountID: params.BankAccountID,
			RuleIDs:       params.RuleIDs,
		})
		if err != nil {
			return err
		}

		parsed := make([]*dsl.CategorizationRule, 0, len(stored))
		for _, row := range stored {
			rule, parseErr := dsl.Parse(row.DSLText)
			if parseErr != nil {
				observability.RulesSkipped.Inc()
				s.logger.Warn("skipping unparseable rule", "rule_id", row.ID, "error", parseErr)
				continue
			}
			rule.Priority = row.Priority
			rule.IsActive = row.IsActive
			parsed = append(parsed, rule)
		}

		categorized := dsl.NewCategorizer(parsed).CategorizeBatch(txns)

		stats, err := s.txns.BulkUpsert(ctx, conn, categorized, s.chunkSize)
		if err != nil {
			return err
		}
		observability.TransactionsUpserted.WithLabelValues("inserted").Add(float64(stats.Inserted))
		observability.TransactionsUpserted.WithLabelValues("failed").Add(float64(stats.Failed))

		result.Count = len(categorized)
		result.Stats = stats

		s.logger.Info("rule run finished",
			"email", params.Email, "transactions", len(categorized),
			"rules", len(parsed), "inserted", stats.Inserted, "failed", stats.Failed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
