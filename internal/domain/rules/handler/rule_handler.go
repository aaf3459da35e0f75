// Package handler exposes the rule-engine endpoint.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/internal/domain/rules/service"
)

// RuleHandler serves re-categorization runs.
type RuleHandler struct {
	svc    *service.Service
	logger *slog.Logger
}

func NewRuleHandler(svc *service.Service, logger *slog.Logger) *RuleHandler {
	return &RuleHandler{svc: svc, logger: logger}
}

type ruleEngineRequest struct {
	UserEmail     string      `json:"user_email"`
	BankAccountID *uuid.UUID  `json:"bank_account_id"`
	FromDate      *string     `json:"from_date"`
	ToDate        *string     `json:"to_date"`
	RulesID       []uuid.UUID `json:"rules_id"`
}

// RunRuleEngine applies rules to the caller's persisted transactions.
// POST /v1/rule-engine
func (h *RuleHandler) RunRuleEngine(w http.ResponseWriter, r *http.Request) {
	var req ruleEngineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Run(r.Context(), service.RunParams{
		Email:         req.UserEmail,
		BankAccountID: req.BankAccountID,
		FromDate:      req.FromDate,
		ToDate:        req.ToDate,
		RuleIDs:       req.RulesID,
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrBadRequest), errors.Is(err, common.ErrUnknownRecipient):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("rule run failed", "email", req.UserEmail, "error", err)
			writeError(w, http.StatusInternalServerError, "rule run failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
