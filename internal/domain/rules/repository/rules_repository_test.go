package repository

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ruleRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "user_id", "bank_account_id", "name", "dsl_text", "priority", "is_active", "created_at", "updated_at",
	})
}

func TestRulesRepo_ListActiveForAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	userID := uuid.New()
	accountID := uuid.New()
	now := time.Now()
	name := "Family Transfer"
	mock.ExpectQuery(regexp.QuoteMeta(`(bank_account_id IS NULL OR bank_account_id = $2)`)).
		WithArgs(userID, accountID).
		WillReturnRows(ruleRows().
			AddRow(uuid.New(), userID, nil, &name, `rule "Family Transfer" where entity_name:con:"KANTI":i assign category_id:1 priority 10;`, 10, true, now, now).
			AddRow(uuid.New(), userID, &accountID, nil, `rule "Food" where description:con:"ZOMATO":i assign category_id:2 priority 20;`, 20, true, now, now))

	repo := NewPostgresRulesRepo(discardLogger())
	rules, err := repo.ListActiveForAccount(context.Background(), mock, userID, accountID)
	if err != nil {
		t.Fatalf("ListActiveForAccount: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].Priority != 10 || rules[1].Priority != 20 {
		t.Fatalf("priority order lost: %+v", rules)
	}
	if rules[1].BankAccountID == nil || *rules[1].BankAccountID != accountID {
		t.Fatalf("account binding lost: %+v", rules[1])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRulesRepo_ListForRun_AllActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	userID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = $1 AND is_active = TRUE ORDER BY priority, created_at`)).
		WithArgs(userID).
		WillReturnRows(ruleRows())

	repo := NewPostgresRulesRepo(discardLogger())
	rules, err := repo.ListForRun(context.Background(), mock, userID, RunFilter{})
	if err != nil {
		t.Fatalf("ListForRun: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("expected no rules, got %d", len(rules))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRulesRepo_ListForRun_WithFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	userID := uuid.New()
	accountID := uuid.New()
	ruleIDs := []uuid.UUID{uuid.New(), uuid.New()}
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`(bank_account_id IS NULL OR bank_account_id = $2) AND id = ANY($3)`)).
		WithArgs(userID, accountID, ruleIDs).
		WillReturnRows(ruleRows().
			AddRow(ruleIDs[0], userID, nil, nil, `rule "x" where amount:gt:"100" assign tag_id:1;`, 100, true, now, now))

	repo := NewPostgresRulesRepo(discardLogger())
	rules, err := repo.ListForRun(context.Background(), mock, userID, RunFilter{
		BankAccountID: &accountID,
		RuleIDs:       ruleIDs,
	})
	if err != nil {
		t.Fatalf("ListForRun: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != ruleIDs[0] {
		t.Fatalf("unexpected rules: %+v", rules)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
