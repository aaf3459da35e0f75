// Package api wires the application together: database, queue, crypto,
// repositories, services, handlers and the router.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/statement-parser/internal/domain/bank"
	bankrepo "github.com/FACorreiaa/statement-parser/internal/domain/bank/repository"
	ruleshandler "github.com/FACorreiaa/statement-parser/internal/domain/rules/handler"
	rulesrepo "github.com/FACorreiaa/statement-parser/internal/domain/rules/repository"
	rulesservice "github.com/FACorreiaa/statement-parser/internal/domain/rules/service"
	statementhandler "github.com/FACorreiaa/statement-parser/internal/domain/statement/handler"
	statementrepo "github.com/FACorreiaa/statement-parser/internal/domain/statement/repository"
	statementservice "github.com/FACorreiaa/statement-parser/internal/domain/statement/service"
	txrepo "github.com/FACorreiaa/statement-parser/internal/domain/transaction/repository"
	"github.com/FACorreiaa/statement-parser/internal/domain/user"
	"github.com/FACorreiaa/statement-parser/pkg/config"
	"github.com/FACorreiaa/statement-parser/pkg/crypto"
	"github.com/FACorreiaa/statement-parser/pkg/db"
	"github.com/FACorreiaa/statement-parser/pkg/pdfio"
	"github.com/FACorreiaa/statement-parser/pkg/queue"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	Queue    *queue.Queue
	Cipher   *crypto.Cipher
	Sessions db.Sessions
	Registry *bank.Registry
	Opener   pdfio.Opener

	// Repositories
	UserRepo        user.Repo
	BankAccountRepo bankrepo.BankAccountRepo
	CredentialsRepo statementrepo.CredentialsRepo
	RulesRepo       rulesrepo.RulesRepo
	TransactionRepo txrepo.TransactionRepo

	// Services
	StatementService *statementservice.Service
	Pipeline         *statementservice.Pipeline
	RuleService      *rulesservice.Service

	// Handlers
	StatementHandler *statementhandler.StatementHandler
	RuleHandler      *ruleshandler.RuleHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initCrypto(); err != nil {
		return nil, fmt.Errorf("failed to init crypto: %w", err)
	}

	deps.initRepositories()
	deps.initServices()
	deps.initHandlers()
	deps.initQueue(ctx)

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database
	d.Sessions = db.PoolSessions{DB: database}

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initCrypto builds the AEAD cipher that seals statement passwords at rest.
func (d *Dependencies) initCrypto() error {
	cipher, err := crypto.NewCipher(d.Config.Crypto.FernetKey)
	if err != nil {
		return err
	}
	d.Cipher = cipher
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() {
	d.UserRepo = user.NewPostgresRepo(d.Logger)
	d.BankAccountRepo = bankrepo.NewPostgresBankAccountRepo(d.Logger)
	d.CredentialsRepo = statementrepo.NewPostgresCredentialsRepo(d.Logger)
	d.RulesRepo = rulesrepo.NewPostgresRulesRepo(d.Logger)
	d.TransactionRepo = txrepo.NewPostgresTransactionRepo(d.Logger)

	d.Logger.Info("repositories initialized")
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() {
	d.Registry = bank.NewRegistry()
	d.Opener = pdfio.FileOpener{}

	d.Queue = queue.New(queue.Config{
		Workers:     d.Config.Queue.Workers,
		MaxRetries:  d.Config.Queue.MaxRetries,
		TaskTimeout: d.Config.Queue.TaskTimeout,
		Retryable:   db.IsTransient,
	}, d.Logger)

	d.Pipeline = statementservice.NewPipeline(
		d.Logger,
		d.Sessions,
		d.Opener,
		d.Cipher,
		d.Registry,
		d.UserRepo,
		d.BankAccountRepo,
		d.CredentialsRepo,
		d.RulesRepo,
		d.TransactionRepo,
		txrepo.DefaultChunkSize,
	)

	d.StatementService = statementservice.NewService(
		d.Logger,
		d.Queue,
		d.Sessions,
		d.Cipher,
		d.UserRepo,
		d.CredentialsRepo,
		d.Config.Upload.Dir,
	)

	d.RuleService = rulesservice.NewService(
		d.Logger,
		d.Sessions,
		d.UserRepo,
		d.RulesRepo,
		d.TransactionRepo,
		txrepo.DefaultChunkSize,
	)

	d.Logger.Info("services initialized")
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.StatementHandler = statementhandler.NewStatementHandler(d.StatementService, d.Logger)
	d.RuleHandler = ruleshandler.NewRuleHandler(d.RuleService, d.Logger)

	d.Logger.Info("handlers initialized")
}

// initQueue registers the task handlers and starts the worker pool.
func (d *Dependencies) initQueue(ctx context.Context) {
	d.Queue.Register(statementservice.TaskProcessStatement, d.Pipeline.HandleTask)
	d.Queue.Start(ctx)
}

// Cleanup drains the queue, then closes the database.
func (d *Dependencies) Cleanup() {
	if d.Queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.Queue.Shutdown(ctx); err != nil {
			d.Logger.Warn("queue shutdown timed out", "error", err)
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
