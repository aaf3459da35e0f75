// Package service owns the statement ingestion surface: upload staging,
// task submission, credential storage and the extraction pipeline itself.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/internal/domain/statement/repository"
	"github.com/FACorreiaa/statement-parser/internal/domain/user"
	"github.com/FACorreiaa/statement-parser/pkg/crypto"
	"github.com/FACorreiaa/statement-parser/pkg/db"
	"github.com/FACorreiaa/statement-parser/pkg/queue"
)

// TaskProcessStatement is the queue task name for one statement run.
const TaskProcessStatement = "statement.process"

// MaxUploadSize caps one statement upload.
const MaxUploadSize = 200 << 20

// copyChunkSize bounds how much of the body is in memory at once while
// staging.
const copyChunkSize = 5 << 20

// UploadMeta describes one incoming statement email attachment.
type UploadMeta struct {
	Filename       string `json:"filename"`
	Subject        string `json:"subject"`
	FromEmail      string `json:"from_email"`
	RecipientEmail string `json:"recipient_email"`
	Date           string `json:"date"`
}

// ProcessStatementPayload is the queue payload for TaskProcessStatement.
type ProcessStatementPayload struct {
	Path string
	Meta UploadMeta
}

// CredentialParams stores one statement password.
type CredentialParams struct {
	UserID      uuid.UUID `json:"user_id"`
	SenderEmail string    `json:"sender_email"`
	Filename    string    `json:"filename"`
	Password    string    `json:"pdf_password"`
}

// Service stages uploads and submits extraction tasks.
type Service struct {
	logger    *slog.Logger
	queue     *queue.Queue
	sessions  db.Sessions
	cipher    *crypto.Cipher
	users     user.Repo
	creds     repository.CredentialsRepo
	stageDir  string
	maxUpload int64
}

func NewService(
	logger *slog.Logger,
	q *queue.Queue,
	sessions db.Sessions,
	cipher *crypto.Cipher,
	users user.Repo,
	creds repository.CredentialsRepo,
	stageDir string,
) *Service {
	return &Service{
		logger:    logger,
		queue:     q,
		sessions:  sessions,
		cipher:    cipher,
		users:     users,
		creds:     creds,
		stageDir:  stageDir,
		maxUpload: MaxUploadSize,
	}
}

// StageUpload streams an uploaded statement to a staging file. The body is
// copied in bounded chunks so an oversized upload is cut off at the cap
// instead of buffered whole.
func (s *Service) StageUpload(body io.Reader, filename string) (string, int64, error) {
	staged := filepath.Join(s.stageDir, uuid.NewString()+filepath.Ext(filename))

	f, err := os.Create(staged)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create staging file: %w", err)
	}
	defer f.Close()

	var written int64
	buf := make([]byte, copyChunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.maxUpload {
				os.Remove(staged)
				return "", 0, fmt.Errorf("upload exceeds %d bytes: %w", s.maxUpload, common.ErrUploadTooLarge)
			}
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				os.Remove(staged)
				return "", 0, fmt.Errorf("failed to write staging file: %w", writeErr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			os.Remove(staged)
			return "", 0, fmt.Errorf("failed to read upload: %w", readErr)
		}
	}

	if written == 0 {
		os.Remove(staged)
		return "", 0, common.ErrUploadEmpty
	}
	return staged, written, nil
}

// SubmitStatement enqueues the extraction task and returns its handle.
func (s *Service) SubmitStatement(ctx context.Context, stagedPath string, meta UploadMeta) (uuid.UUID, error) {
	taskID, err := s.queue.Enqueue(ctx, TaskProcessStatement, ProcessStatementPayload{
		Path: stagedPath,
		Meta: meta,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue statement task: %w", err)
	}
	s.logger.Info("statement submitted",
		"task_id", taskID, "filename", meta.Filename, "from", meta.FromEmail)
	return taskID, nil
}

// StoreCredential encrypts and persists a statement password for the
// given recipient.
func (s *Service) StoreCredential(ctx context.Context, params CredentialParams) error {
	if params.UserID == uuid.Nil || params.SenderEmail == "" || params.Filename == "" || params.Password == "" {
		return fmt.Errorf("user_id, sender_email, filename and pdf_password are required: %w", common.ErrBadRequest)
	}

	encrypted, err := s.cipher.Encrypt(params.Password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}

	return s.sessions.WithConn(ctx, func(conn db.DBTX) error {
		owner, err := s.users.GetByID(ctx, conn, params.UserID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("unknown credential owner %s: %w", params.UserID, common.ErrBadRequest)
			}
			return err
		}
		return s.creds.Upsert(ctx, conn, repository.Credential{
			UserID:            owner.ID,
			SenderEmail:       params.SenderEmail,
			Filename:          params.Filename,
			EncryptedPassword: encrypted,
		})
	})
}

// TaskInfo exposes queue state for the task status endpoint.
func (s *Service) TaskInfo(id uuid.UUID) (queue.Info, bool) {
	return s.queue.Info(id)
}
