package service

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-parser/internal/domain/bank"
	bankrepo "github.com/FACorreiaa/statement-parser/internal/domain/bank/repository"
	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	rulesrepo "github.com/FACorreiaa/statement-parser/internal/domain/rules/repository"
	"github.com/FACorreiaa/statement-parser/internal/domain/statement/repository"
	txrepo "github.com/FACorreiaa/statement-parser/internal/domain/transaction/repository"
	"github.com/FACorreiaa/statement-parser/internal/domain/user"
	"github.com/FACorreiaa/statement-parser/pkg/crypto"
	"github.com/FACorreiaa/statement-parser/pkg/db"
	"github.com/FACorreiaa/statement-parser/pkg/pdfio"
	"github.com/FACorreiaa/statement-parser/pkg/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCipher(t *testing.T) *crypto.Cipher {
	t.Helper()
	key := base64.URLEncoding.EncodeToString(make([]byte, 32))
	c, err := crypto.NewCipher(key)
	require.NoError(t, err)
	return c
}

// fakeDoc is an in-memory statement document.
type fakeDoc struct {
	text   []string
	tables [][]pdfio.Table
	closed bool
}

func (d *fakeDoc) PageCount() int { return len(d.text) }
func (d *fakeDoc) PageText(page int) (string, error) {
	return d.text[page-1], nil
}
func (d *fakeDoc) PageTables(page int) ([]pdfio.Table, error) {
	if d.tables == nil {
		return nil, nil
	}
	return d.tables[page-1], nil
}
func (d *fakeDoc) Close() error { d.closed = true; return nil }

type fakeOpener struct {
	encrypted   bool
	doc         pdfio.Document
	openErr     error
	gotPassword string
}

func (o *fakeOpener) IsEncrypted(string) (bool, error) { return o.encrypted, nil }
func (o *fakeOpener) Open(_, password string) (pdfio.Document, error) {
	o.gotPassword = password
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.doc, nil
}

type fakeUsers struct {
	user *user.User
}

func (f *fakeUsers) GetActiveByEmail(_ context.Context, _ db.DBTX, email string) (*user.User, error) {
	if f.user == nil || f.user.Email != email {
		return nil, common.ErrUnknownRecipient
	}
	return f.user, nil
}

func (f *fakeUsers) GetByID(_ context.Context, _ db.DBTX, id uuid.UUID) (*user.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, common.ErrNotFound
	}
	return f.user, nil
}

type fakeAccounts struct {
	created *bankrepo.BankAccount
}

func (f *fakeAccounts) GetOrCreate(_ context.Context, _ db.DBTX, account bankrepo.BankAccount) (*bankrepo.BankAccount, error) {
	account.ID = uuid.New()
	f.created = &account
	return &account, nil
}

func (f *fakeAccounts) GetByNumber(_ context.Context, _ db.DBTX, _ uuid.UUID, _ string) (*bankrepo.BankAccount, error) {
	return nil, common.ErrNotFound
}

type fakeCreds struct {
	token string
	saved *repository.Credential
}

func (f *fakeCreds) Upsert(_ context.Context, _ db.DBTX, cred repository.Credential) error {
	f.saved = &cred
	return nil
}

func (f *fakeCreds) GetEncryptedPassword(_ context.Context, _ db.DBTX, _ uuid.UUID, _, _ string) (string, error) {
	if f.token == "" {
		return "", common.ErrPasswordMissing
	}
	return f.token, nil
}

type fakeRules struct {
	stored []rulesrepo.StoredRule
}

func (f *fakeRules) ListActiveForAccount(_ context.Context, _ db.DBTX, _ uuid.UUID, _ uuid.UUID) ([]rulesrepo.StoredRule, error) {
	return f.stored, nil
}

func (f *fakeRules) ListForRun(_ context.Context, _ db.DBTX, _ uuid.UUID, _ rulesrepo.RunFilter) ([]rulesrepo.StoredRule, error) {
	return f.stored, nil
}

type fakeTxns struct {
	upserted  []*common.Transaction
	chunkSize int
}

func (f *fakeTxns) BulkUpsert(_ context.Context, _ db.DBTX, txns []*common.Transaction, chunkSize int) (*txrepo.UpsertStats, error) {
	f.upserted = txns
	f.chunkSize = chunkSize
	return &txrepo.UpsertStats{Inserted: len(txns)}, nil
}

func (f *fakeTxns) ListForUser(_ context.Context, _ db.DBTX, _ uuid.UUID, _ txrepo.ListFilter) ([]*common.Transaction, error) {
	return nil, nil
}

// sbiDoc is a minimal one-page SBI statement with one debit row.
func sbiDoc() *fakeDoc {
	return &fakeDoc{
		text: []string{"State Bank of India\nSavings Account XXXXXX1234\nIFSC: SBIN0001234"},
		tables: [][]pdfio.Table{{
			{
				{"Date", "Narration", "Ref", "Amount", "Balance"},
				{"01-11-25", "UPI/DR/531715436912/KANTI RAMULU GA/KKBK/Ph", "", "500.00", "10,000.00"},
			},
		}},
	}
}

type pipelineFixture struct {
	pipeline *Pipeline
	opener   *fakeOpener
	accounts *fakeAccounts
	txns     *fakeTxns
	meta     UploadMeta
	userID   uuid.UUID
}

func newPipelineFixture(t *testing.T, opener *fakeOpener, stored []rulesrepo.StoredRule) *pipelineFixture {
	t.Helper()
	userID := uuid.New()
	accounts := &fakeAccounts{}
	txns := &fakeTxns{}
	p := NewPipeline(
		discardLogger(),
		db.StaticSessions{},
		opener,
		testCipher(t),
		bank.NewRegistry(),
		&fakeUsers{user: &user.User{ID: userID, Email: "owner@example.com", IsActive: true}},
		accounts,
		&fakeCreds{},
		&fakeRules{stored: stored},
		txns,
		txrepo.DefaultChunkSize,
	)
	return &pipelineFixture{
		pipeline: p,
		opener:   opener,
		accounts: accounts,
		txns:     txns,
		meta: UploadMeta{
			Filename:       "statement_nov.pdf",
			FromEmail:      "donotreply@sbi.co.in",
			RecipientEmail: "owner@example.com",
		},
		userID: userID,
	}
}

func TestPipelineProcess(t *testing.T) {
	doc := sbiDoc()
	stored := []rulesrepo.StoredRule{{
		ID:       uuid.New(),
		DSLText:  `rule "Family" where entity_name:con:"KANTI":i assign category_id:1 priority 10;`,
		Priority: 10,
		IsActive: true,
	}}
	fx := newPipelineFixture(t, &fakeOpener{doc: doc}, stored)

	summary, err := fx.pipeline.Process(context.Background(), "/tmp/staged.pdf", fx.meta)
	require.NoError(t, err)

	assert.Equal(t, "SBI", summary.Bank)
	assert.Equal(t, "XXXXXX1234", summary.AccountDetails.Number)
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, 1, summary.Inserted)
	assert.True(t, doc.closed)

	require.NotNil(t, fx.accounts.created)
	assert.Equal(t, fx.userID, fx.accounts.created.UserID)
	require.NotNil(t, fx.accounts.created.BankName)
	assert.Equal(t, "SBI", *fx.accounts.created.BankName)

	require.Len(t, fx.txns.upserted, 1)
	tx := fx.txns.upserted[0]
	assert.Equal(t, "2025-11-01", tx.TransactionDate)
	assert.Equal(t, "500", tx.Amount.String())
	assert.Equal(t, common.DirectionDebit, tx.Direction)
	require.NotNil(t, tx.UserID)
	assert.Equal(t, fx.userID, *tx.UserID)
	require.NotNil(t, tx.BankAccountID)
	assert.Equal(t, fx.accounts.created.ID, *tx.BankAccountID)
	require.NotNil(t, tx.CategoryID)
	assert.Equal(t, int64(1), *tx.CategoryID)
}

func TestPipelineProcessUnknownRecipient(t *testing.T) {
	fx := newPipelineFixture(t, &fakeOpener{doc: sbiDoc()}, nil)
	fx.meta.RecipientEmail = "stranger@example.com"

	_, err := fx.pipeline.Process(context.Background(), "/tmp/staged.pdf", fx.meta)
	assert.ErrorIs(t, err, common.ErrUnknownRecipient)
}

func TestPipelineProcessEncryptedStatement(t *testing.T) {
	fx := newPipelineFixture(t, &fakeOpener{encrypted: true, doc: sbiDoc()}, nil)

	cipher := testCipher(t)
	token, err := cipher.Encrypt("secret123")
	require.NoError(t, err)
	fx.pipeline.creds = &fakeCreds{token: token}

	summary, err := fx.pipeline.Process(context.Background(), "/tmp/staged.pdf", fx.meta)
	require.NoError(t, err)
	assert.Equal(t, "secret123", fx.opener.gotPassword)
	assert.Equal(t, 1, summary.Count)
}

func TestPipelineProcessEncryptedWithoutCredential(t *testing.T) {
	fx := newPipelineFixture(t, &fakeOpener{encrypted: true, doc: sbiDoc()}, nil)

	_, err := fx.pipeline.Process(context.Background(), "/tmp/staged.pdf", fx.meta)
	assert.ErrorIs(t, err, common.ErrPasswordMissing)
}

func TestPipelineProcessWrongPassword(t *testing.T) {
	opener := &fakeOpener{encrypted: true, openErr: errors.New("incorrect password")}
	fx := newPipelineFixture(t, opener, nil)

	cipher := testCipher(t)
	token, err := cipher.Encrypt("stale-password")
	require.NoError(t, err)
	fx.pipeline.creds = &fakeCreds{token: token}

	_, err = fx.pipeline.Process(context.Background(), "/tmp/staged.pdf", fx.meta)
	assert.ErrorIs(t, err, common.ErrBadPassword)
}

func TestPipelineProcessUnsupportedBank(t *testing.T) {
	doc := &fakeDoc{text: []string{"Some Credit Union monthly summary"}}
	fx := newPipelineFixture(t, &fakeOpener{doc: doc}, nil)
	fx.meta.FromEmail = "user@gmail.com"

	_, err := fx.pipeline.Process(context.Background(), "/tmp/staged.pdf", fx.meta)
	assert.ErrorIs(t, err, common.ErrUnsupportedBank)
}

func TestPipelineProcessTablesWithoutTransactions(t *testing.T) {
	doc := sbiDoc()
	// A recognized table whose rows all fail extraction.
	doc.tables = [][]pdfio.Table{{
		{
			{"Date", "Narration", "Amount"},
			{"not-a-date", "noise", ""},
		},
	}}
	fx := newPipelineFixture(t, &fakeOpener{doc: doc}, nil)

	_, err := fx.pipeline.Process(context.Background(), "/tmp/staged.pdf", fx.meta)
	assert.ErrorIs(t, err, common.ErrNoTransactions)
}

func TestPipelineProcessNoTablesIsCleanNoop(t *testing.T) {
	doc := sbiDoc()
	doc.tables = [][]pdfio.Table{nil}
	fx := newPipelineFixture(t, &fakeOpener{doc: doc}, nil)

	summary, err := fx.pipeline.Process(context.Background(), "/tmp/staged.pdf", fx.meta)
	require.NoError(t, err)
	assert.Zero(t, summary.Count)
	assert.Empty(t, fx.txns.upserted)
}

func TestPipelineProcessSkipsUnparseableRules(t *testing.T) {
	stored := []rulesrepo.StoredRule{
		{ID: uuid.New(), DSLText: `rule "broken" where garbage`, Priority: 5, IsActive: true},
		{ID: uuid.New(), DSLText: `rule "ok" where type:eq:"debit" assign tag_id:3;`, Priority: 10, IsActive: true},
	}
	fx := newPipelineFixture(t, &fakeOpener{doc: sbiDoc()}, stored)

	_, err := fx.pipeline.Process(context.Background(), "/tmp/staged.pdf", fx.meta)
	require.NoError(t, err)

	require.Len(t, fx.txns.upserted, 1)
	require.NotNil(t, fx.txns.upserted[0].TagID)
	assert.Equal(t, int64(3), *fx.txns.upserted[0].TagID)
}

func TestPipelineHandleTaskRemovesStagedFile(t *testing.T) {
	staged := filepath.Join(t.TempDir(), "staged.pdf")
	require.NoError(t, os.WriteFile(staged, []byte("%PDF-1.4"), 0o600))

	fx := newPipelineFixture(t, &fakeOpener{doc: sbiDoc()}, nil)

	result, err := fx.pipeline.HandleTask(context.Background(), queue.Task{
		Payload: ProcessStatementPayload{Path: staged, Meta: fx.meta},
	})
	require.NoError(t, err)
	require.IsType(t, &Summary{}, result)

	_, statErr := os.Stat(staged)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipelineHandleTaskRejectsForeignPayload(t *testing.T) {
	fx := newPipelineFixture(t, &fakeOpener{doc: sbiDoc()}, nil)

	_, err := fx.pipeline.HandleTask(context.Background(), queue.Task{Payload: "bogus"})
	assert.Error(t, err)
}
