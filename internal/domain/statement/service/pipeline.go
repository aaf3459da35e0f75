package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-parser/internal/domain/bank"
	bankrepo "github.com/FACorreiaa/statement-parser/internal/domain/bank/repository"
	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/internal/domain/rules/dsl"
	rulesrepo "github.com/FACorreiaa/statement-parser/internal/domain/rules/repository"
	"github.com/FACorreiaa/statement-parser/internal/domain/statement/repository"
	"github.com/FACorreiaa/statement-parser/internal/domain/statement/rows"
	txrepo "github.com/FACorreiaa/statement-parser/internal/domain/transaction/repository"
	"github.com/FACorreiaa/statement-parser/internal/domain/user"
	"github.com/FACorreiaa/statement-parser/pkg/crypto"
	"github.com/FACorreiaa/statement-parser/pkg/db"
	"github.com/FACorreiaa/statement-parser/pkg/observability"
	"github.com/FACorreiaa/statement-parser/pkg/pdfio"
	"github.com/FACorreiaa/statement-parser/pkg/queue"
)

// headerPages is how many leading pages contribute to bank detection.
const headerPages = 3

// Summary is the pipeline result stored on the task handle.
type Summary struct {
	Bank           string                `json:"bank"`
	Inserted       int                   `json:"inserted"`
	Failed         int                   `json:"failed"`
	Errors         []txrepo.UpsertError  `json:"errors"`
	AccountDetails bank.AccountDetails   `json:"account_details"`
	Count          int                   `json:"count"`
	Transactions   []*common.Transaction `json:"transactions"`
}

// Pipeline runs one statement extraction end to end on a single database
// session.
type Pipeline struct {
	logger   *slog.Logger
	sessions db.Sessions
	opener   pdfio.Opener
	cipher   *crypto.Cipher
	registry *bank.Registry

	users    user.Repo
	accounts bankrepo.BankAccountRepo
	creds    repository.CredentialsRepo
	rules    rulesrepo.RulesRepo
	txns     txrepo.TransactionRepo

	chunkSize int
}

func NewPipeline(
	logger *slog.Logger,
	sessions db.Sessions,
	opener pdfio.Opener,
	cipher *crypto.Cipher,
	registry *bank.Registry,
	users user.Repo,
	accounts bankrepo.BankAccountRepo,
	creds repository.CredentialsRepo,
	rules rulesrepo.RulesRepo,
	txns txrepo.TransactionRepo,
	chunkSize int,
) *Pipeline {
	return &Pipeline{
		logger:    logger,
		sessions:  sessions,
		opener:    opener,
		cipher:    cipher,
		registry:  registry,
		users:     users,
		accounts:  accounts,
		creds:     creds,
		rules:     rules,
		txns:      txns,
		chunkSize: chunkSize,
	}
}

// HandleTask adapts the pipeline to the queue. The staged file is removed
// once the task finishes, success or not: retries re-enter before this
// handler returns.
func (p *Pipeline) HandleTask(ctx context.Context, task queue.Task) (any, error) {
	payload, ok := task.Payload.(ProcessStatementPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", task.Payload)
	}

	summary, err := p.Process(ctx, payload.Path, payload.Meta)
	if err != nil {
		observability.StatementsProcessed.WithLabelValues(bankLabel(summary), "failure").Inc()
		return nil, err
	}
	observability.StatementsProcessed.WithLabelValues(bankLabel(summary), "success").Inc()

	if removeErr := os.Remove(payload.Path); removeErr != nil && !os.IsNotExist(removeErr) {
		p.logger.Warn("failed to remove staged statement", "path", payload.Path, "error", removeErr)
	}
	return summary, nil
}

// Process executes the full extraction for one staged statement.
func (p *Pipeline) Process(ctx context.Context, path string, meta UploadMeta) (*Summary, error) {
	summary := &Summary{}
	logger := p.logger.With("filename", meta.Filename, "recipient", meta.RecipientEmail)

	err := p.sessions.WithConn(ctx, func(conn db.DBTX) error {
		// 1. Resolve the recipient.
		owner, err := p.users.GetActiveByEmail(ctx, conn, meta.RecipientEmail)
		if err != nil {
			return err
		}

		// 2. Unlock the document if it is password-protected.
		doc, err := p.openDocument(ctx, conn, path, owner.ID, meta)
		if err != nil {
			return err
		}
		defer doc.Close()

		// 3. Detect the bank from the sender hint or the header text.
		headerText, err := readHeader(doc)
		if err != nil {
			return fmt.Errorf("failed to read statement header: %w", err)
		}
		extractor, err := p.registry.Resolve(meta.FromEmail, headerText)
		if err != nil {
			return err
		}
		summary.Bank = extractor.Name()
		logger = logger.With("bank", extractor.Name())

		// 4. Resolve the bank account printed on the header.
		details := extractor.ParseAccountDetails(headerText)
		summary.AccountDetails = details

		var account *bankrepo.BankAccount
		if details.Number != "" {
			bankName := extractor.Name()
			account, err = p.accounts.GetOrCreate(ctx, conn, bankrepo.BankAccount{
				UserID:        owner.ID,
				AccountNumber: details.Number,
				IFSCCode:      details.IFSCCode,
				AccountType:   details.Type,
				BankName:      &bankName,
			})
			if err != nil {
				return err
			}
		} else {
			logger.Warn("no account number in statement header")
		}

		// 5. Reconstruct rows and extract transactions.
		reconstructed, err := rows.Reconstruct(doc)
		if err != nil {
			return fmt.Errorf("failed to reconstruct rows: %w", err)
		}
		txns := extractor.ParseRows(reconstructed.Rows, doc)
		if len(txns) == 0 {
			if reconstructed.Tables > 0 {
				return fmt.Errorf("%d tables yielded no transactions: %w",
					reconstructed.Tables, common.ErrNoTransactions)
			}
			logger.Info("statement has no transaction tables")
			return nil
		}

		// 6-8. Load, parse and apply the categorization rules.
		categorizer, err := p.loadCategorizer(ctx, conn, owner.ID, account)
		if err != nil {
			return err
		}
		txns = categorizer.CategorizeBatch(txns)

		// 9. Attach ownership and normalize before persistence.
		for _, tx := range txns {
			ownerID := owner.ID
			tx.UserID = &ownerID
			if account != nil {
				accountID := account.ID
				tx.BankAccountID = &accountID
			}
			tx.Normalize()
		}

		// 10. Upsert.
		stats, err := p.txns.BulkUpsert(ctx, conn, txns, p.chunkSize)
		if err != nil {
			return err
		}
		observability.TransactionsUpserted.WithLabelValues("inserted").Add(float64(stats.Inserted))
		observability.TransactionsUpserted.WithLabelValues("failed").Add(float64(stats.Failed))

		summary.Inserted = stats.Inserted
		summary.Failed = stats.Failed
		summary.Errors = stats.Errors
		summary.Count = len(txns)
		summary.Transactions = txns

		logger.Info("statement processed",
			"transactions", len(txns), "inserted", stats.Inserted, "failed", stats.Failed)
		return nil
	})
	if err != nil {
		return summary, err
	}
	return summary, nil
}

// openDocument opens the staged PDF, looking up and decrypting the stored
// password when the document is sealed.
func (p *Pipeline) openDocument(ctx context.Context, conn db.DBTX, path string, userID uuid.UUID, meta UploadMeta) (pdfio.Document, error) {
	encrypted, err := p.opener.IsEncrypted(path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe encryption: %w", err)
	}

	password := ""
	if encrypted {
		token, err := p.creds.GetEncryptedPassword(ctx, conn, userID, meta.FromEmail, meta.Filename)
		if err != nil {
			return nil, err
		}
		password, err = p.cipher.Decrypt(token)
		if err != nil {
			return nil, fmt.Errorf("stored credential is unreadable: %w", common.ErrBadPassword)
		}
	}

	doc, err := p.opener.Open(path, password)
	if err != nil {
		if encrypted {
			return nil, fmt.Errorf("failed to unlock %s: %w", meta.Filename, common.ErrBadPassword)
		}
		return nil, fmt.Errorf("failed to open statement: %w", err)
	}
	return doc, nil
}

// loadCategorizer fetches the applicable rules and parses each one.
// Unparseable rules are logged and skipped, never fatal.
func (p *Pipeline) loadCategorizer(ctx context.Context, conn db.DBTX, ownerID uuid.UUID, account *bankrepo.BankAccount) (*dsl.Categorizer, error) {
	var stored []rulesrepo.StoredRule
	var err error
	if account != nil {
		stored, err = p.rules.ListActiveForAccount(ctx, conn, ownerID, account.ID)
	} else {
		stored, err = p.rules.ListForRun(ctx, conn, ownerID, rulesrepo.RunFilter{})
	}
	if err != nil {
		return nil, err
	}

	parsed := make([]*dsl.CategorizationRule, 0, len(stored))
	for _, row := range stored {
		rule, parseErr := dsl.Parse(row.DSLText)
		if parseErr != nil {
			observability.RulesSkipped.Inc()
			p.logger.Warn("skipping unparseable rule",
				"rule_id", row.ID, "error", parseErr)
			continue
		}
		rule.Priority = row.Priority
		rule.IsActive = row.IsActive
		parsed = append(parsed, rule)
	}
	return dsl.NewCategorizer(parsed), nil
}

// readHeader joins the text of the leading pages for bank detection.
func readHeader(doc pdfio.Document) (string, error) {
	pages := doc.PageCount()
	if pages > headerPages {
		pages = headerPages
	}
	var parts []string
	for page := 1; page <= pages; page++ {
		text, err := doc.PageText(page)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n"), nil
}

func bankLabel(summary *Summary) string {
	if summary == nil || summary.Bank == "" {
		return "unknown"
	}
	return summary.Bank
}
