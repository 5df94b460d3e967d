package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"bookkeep/internal/core"
	"bookkeep/internal/money"
)

type budgetResponse struct {
	UserID      string `json:"user_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Spent       string `json:"spent"`
	Remaining   string `json:"remaining"`
	UsedPercent string `json:"used_percent"`
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id is required"})
		return
	}

	status, err := s.budgets.CurrentStatus(r.Context(), userID, time.Now().UTC())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, budgetResponse{
		UserID:      status.Budget.UserID,
		Amount:      status.Budget.Amount.Amount().String(),
		Currency:    status.Budget.Amount.Currency(),
		Spent:       status.Spent.Amount().String(),
		Remaining:   status.Remaining.Amount().String(),
		UsedPercent: status.UsedPercent.Round(2).String(),
	})
}

type budgetRequest struct {
	UserID   string `json:"user_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	amount, err := money.Parse(req.Amount, req.Currency)
	if err != nil {
		writeError(w, r, &core.ValidationError{Field: "amount", Err: err})
		return
	}
	if !amount.IsPositive() {
		writeError(w, r, &core.ValidationError{Field: "amount", Err: core.ErrInvalidAmount})
		return
	}

	now := time.Now().UTC()
	budget := core.Budget{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Amount:    amount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertBudget(r.Context(), budget); err != nil {
		writeError(w, r, err)
		return
	}

	status, err := s.budgets.CurrentStatus(r.Context(), req.UserID, now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetResponse{
		UserID:      status.Budget.UserID,
		Amount:      status.Budget.Amount.Amount().String(),
		Currency:    status.Budget.Amount.Currency(),
		Spent:       status.Spent.Amount().String(),
		Remaining:   status.Remaining.Amount().String(),
		UsedPercent: status.UsedPercent.Round(2).String(),
	})
}
