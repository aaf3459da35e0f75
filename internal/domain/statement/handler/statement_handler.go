// Package handler exposes the statement ingestion endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/internal/domain/statement/service"
)

// maxRequestBytes bounds the raw request body before multipart parsing
// runs, so an oversized upload is cut off instead of spooled to the
// multipart temp store. The slack over the statement cap covers
// multipart framing and the metadata fields.
var maxRequestBytes int64 = service.MaxUploadSize + (1 << 20)

// StatementHandler serves uploads, credentials and task status.
type StatementHandler struct {
	svc    *service.Service
	logger *slog.Logger
}

func NewStatementHandler(svc *service.Service, logger *slog.Logger) *StatementHandler {
	return &StatementHandler{svc: svc, logger: logger}
}

// Upload receives a multipart statement, stages it and queues extraction.
// POST /v1/upload
func (h *StatementHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large, max 200 MB")
			return
		}
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	meta := service.UploadMeta{
		Filename:       header.Filename,
		Subject:        r.FormValue("subject"),
		FromEmail:      r.FormValue("from_email"),
		RecipientEmail: r.FormValue("to_email"),
		Date:           r.FormValue("date"),
	}

	staged, size, err := h.svc.StageUpload(file, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrUploadTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "file too large, max 200 MB")
		case errors.Is(err, common.ErrUploadEmpty):
			writeError(w, http.StatusBadRequest, "uploaded file is empty")
		default:
			h.logger.Error("failed to stage upload", "filename", header.Filename, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to stage upload")
		}
		return
	}

	taskID, err := h.svc.SubmitStatement(r.Context(), staged, meta)
	if err != nil {
		h.logger.Error("failed to submit statement", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to queue statement")
		return
	}

	h.logger.Debug("upload accepted", "filename", header.Filename, "bytes", size)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "File uploaded and queued for processing",
		"filename":   meta.Filename,
		"subject":    meta.Subject,
		"from_email": meta.FromEmail,
		"date":       meta.Date,
		"task_id":    taskID,
	})
}

// FileCredentials stores a statement password.
// POST /v1/file-credentials
func (h *StatementHandler) FileCredentials(w http.ResponseWriter, r *http.Request) {
	var params service.CredentialParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.StoreCredential(r.Context(), params); err != nil {
		if errors.Is(err, common.ErrBadRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to store credential", "filename", params.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":   "success",
		"message":  "Credentials updated successfully",
		"filename": params.Filename,
	})
}

// TaskStatus reports a queued task's state.
// GET /v1/tasks/{id}
func (h *StatementHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	info, ok := h.svc.TaskInfo(id)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	body := map[string]any{
		"task_id":  info.ID,
		"name":     info.Name,
		"status":   info.Status,
		"attempts": info.Attempts,
	}
	if info.Error != "" {
		body["error"] = info.Error
	}
	if info.Result != nil {
		body["result"] = info.Result
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
