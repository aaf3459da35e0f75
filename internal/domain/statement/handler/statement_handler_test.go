package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/internal/domain/statement/repository"
	"github.com/FACorreiaa/statement-parser/internal/domain/statement/service"
	"github.com/FACorreiaa/statement-parser/internal/domain/user"
	"github.com/FACorreiaa/statement-parser/pkg/crypto"
	"github.com/FACorreiaa/statement-parser/pkg/db"
	"github.com/FACorreiaa/statement-parser/pkg/queue"
)

type stubUsers struct {
	user *user.User
}

func (s *stubUsers) GetActiveByEmail(_ context.Context, _ db.DBTX, email string) (*user.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, common.ErrUnknownRecipient
	}
	return s.user, nil
}

func (s *stubUsers) GetByID(_ context.Context, _ db.DBTX, id uuid.UUID) (*user.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, common.ErrNotFound
	}
	return s.user, nil
}

type stubCreds struct {
	saved *repository.Credential
}

func (s *stubCreds) Upsert(_ context.Context, _ db.DBTX, cred repository.Credential) error {
	s.saved = &cred
	return nil
}

func (s *stubCreds) GetEncryptedPassword(_ context.Context, _ db.DBTX, _ uuid.UUID, _, _ string) (string, error) {
	return "", common.ErrPasswordMissing
}

func newTestHandler(t *testing.T, users *stubUsers, creds *stubCreds) *StatementHandler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cipher, err := crypto.NewCipher(base64.URLEncoding.EncodeToString(make([]byte, 32)))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	q := queue.New(queue.Config{}, logger)
	q.Register(service.TaskProcessStatement, func(context.Context, queue.Task) (any, error) {
		return nil, nil
	})
	svc := service.NewService(logger, q, db.StaticSessions{}, cipher, users, creds, t.TempDir())
	return NewStatementHandler(svc, logger)
}

func multipartUpload(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, w.FormDataContentType()
}

func TestStatementHandler_Upload(t *testing.T) {
	h := newTestHandler(t, &stubUsers{}, &stubCreds{})

	body, contentType := multipartUpload(t, "statement_nov.pdf", "%PDF-1.4 content", map[string]string{
		"subject":    "Your statement",
		"from_email": "donotreply@sbi.co.in",
		"to_email":   "owner@example.com",
		"date":       "2025-11-30",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["filename"] != "statement_nov.pdf" {
		t.Fatalf("unexpected filename: %v", resp["filename"])
	}
	taskID, ok := resp["task_id"].(string)
	if !ok {
		t.Fatalf("expected task_id, got %v", resp["task_id"])
	}
	if _, err := uuid.Parse(taskID); err != nil {
		t.Fatalf("task_id is not a uuid: %v", err)
	}
}

func TestStatementHandler_Upload_MissingFile(t *testing.T) {
	h := newTestHandler(t, &stubUsers{}, &stubCreds{})

	body, contentType := multipartUpload(t, "", "", map[string]string{"subject": "no file"})
	req := httptest.NewRequest(http.MethodPost, "/v1/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStatementHandler_Upload_EmptyFile(t *testing.T) {
	h := newTestHandler(t, &stubUsers{}, &stubCreds{})

	body, contentType := multipartUpload(t, "statement.pdf", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "empty") {
		t.Fatalf("expected empty-file detail, got %s", rec.Body.String())
	}
}

func TestStatementHandler_Upload_BodyTooLarge(t *testing.T) {
	prev := maxRequestBytes
	maxRequestBytes = 4 << 10
	defer func() { maxRequestBytes = prev }()

	h := newTestHandler(t, &stubUsers{}, &stubCreds{})

	body, contentType := multipartUpload(t, "statement.pdf", strings.Repeat("a", 8<<10), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatementHandler_FileCredentials(t *testing.T) {
	userID := uuid.New()
	users := &stubUsers{user: &user.User{ID: userID, Email: "owner@example.com", IsActive: true}}
	creds := &stubCreds{}
	h := newTestHandler(t, users, creds)

	payload := `{"user_id":"` + userID.String() + `","sender_email":"donotreply@sbi.co.in","filename":"statement_nov.pdf","pdf_password":"secret123"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/file-credentials", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	h.FileCredentials(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if creds.saved == nil {
		t.Fatal("credential not stored")
	}
	if creds.saved.UserID != userID {
		t.Fatalf("credential stored for wrong user: %s", creds.saved.UserID)
	}
	if creds.saved.EncryptedPassword == "secret123" {
		t.Fatal("password stored in the clear")
	}
}

func TestStatementHandler_FileCredentials_MissingFields(t *testing.T) {
	h := newTestHandler(t, &stubUsers{}, &stubCreds{})

	req := httptest.NewRequest(http.MethodPost, "/v1/file-credentials", strings.NewReader(`{"user_id":"`+uuid.NewString()+`"}`))
	rec := httptest.NewRecorder()

	h.FileCredentials(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStatementHandler_FileCredentials_BadBody(t *testing.T) {
	h := newTestHandler(t, &stubUsers{}, &stubCreds{})

	req := httptest.NewRequest(http.MethodPost, "/v1/file-credentials", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	h.FileCredentials(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStatementHandler_TaskStatus(t *testing.T) {
	h := newTestHandler(t, &stubUsers{}, &stubCreds{})

	taskID, err := h.svc.SubmitStatement(context.Background(), "/tmp/staged.pdf", service.UploadMeta{
		Filename: "statement.pdf",
	})
	if err != nil {
		t.Fatalf("SubmitStatement: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tasks/{id}", h.TaskStatus)

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/"+taskID.String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != string(queue.StatusPending) {
		t.Fatalf("expected pending status, got %v", resp["status"])
	}
}

func TestStatementHandler_TaskStatus_NotFound(t *testing.T) {
	h := newTestHandler(t, &stubUsers{}, &stubCreds{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tasks/{id}", h.TaskStatus)

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStatementHandler_TaskStatus_BadID(t *testing.T) {
	h := newTestHandler(t, &stubUsers{}, &stubCreds{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tasks/{id}", h.TaskStatus)

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
