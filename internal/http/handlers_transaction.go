package http

import (
	"encoding/base64"
	"net/http"
	"time"

	"bookkeep/internal/core"
	"bookkeep/internal/money"
)

type participantPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Fixed bool   `json:"fixed"`
}

type transactionRequest struct {
	UserID            string               `json:"user_id"`
	AccountID         string               `json:"account_id"`
	Type              string               `json:"type"`
	Amount            string               `json:"amount"`
	Currency          string               `json:"currency"`
	CategoryID        string               `json:"category_id"`
	Description       string               `json:"description"`
	Date              string               `json:"date"`
	IsRecurring       bool                 `json:"is_recurring"`
	RecurringInterval string               `json:"recurring_interval"`
	IsSplitExpense    bool                 `json:"is_split_expense"`
	Participants      []participantPayload `json:"participants"`
}

type transactionResponse struct {
	ID                string `json:"id"`
	AccountID         string `json:"account_id"`
	UserID            string `json:"user_id"`
	Type              string `json:"type"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	CategoryID        string `json:"category_id"`
	Description       string `json:"description"`
	OccurredAt        string `json:"occurred_at"`
	IsRecurring       bool   `json:"is_recurring"`
	RecurringInterval string `json:"recurring_interval,omitempty"`
	NextRecurringDate string `json:"next_recurring_date,omitempty"`
	IsSplitExpense    bool   `json:"is_split_expense"`
	Participants      int    `json:"participants,omitempty"`
	PerShare          string `json:"per_share,omitempty"`
}

func toTransactionResponse(txn core.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:             txn.ID,
		AccountID:      txn.AccountID,
		UserID:         txn.UserID,
		Type:           string(txn.Type),
		Amount:         txn.Amount.Amount().String(),
		Currency:       txn.Amount.Currency(),
		CategoryID:     txn.CategoryID,
		Description:    txn.Description,
		OccurredAt:     txn.OccurredAt.UTC().Format(time.RFC3339),
		IsRecurring:    txn.IsRecurring,
		IsSplitExpense: txn.IsSplitExpense,
	}
	if txn.IsRecurring {
		resp.RecurringInterval = string(txn.RecurringInterval)
		if !txn.NextRecurringDate.IsZero() {
			resp.NextRecurringDate = txn.NextRecurringDate.UTC().Format(time.RFC3339)
		}
	}
	if txn.IsSplitExpense {
		resp.Participants = txn.Participants
		resp.PerShare = txn.PerShare.Amount().String()
	}
	return resp
}

// toIntent parses the request into an intent. An empty currency is kept
// empty here; the account's currency is filled in once the account is
// resolved.
func (req transactionRequest) toIntent() (core.TransactionIntent, error) {
	amount, err := money.Parse(req.Amount, req.Currency)
	if err != nil {
		return core.TransactionIntent{}, &core.ValidationError{Field: "amount", Err: err}
	}
	occurredAt, err := parseDate(req.Date)
	if err != nil {
		return core.TransactionIntent{}, &core.ValidationError{Field: "date", Err: err}
	}

	intent := core.TransactionIntent{
		UserID:            req.UserID,
		AccountID:         req.AccountID,
		Type:              core.TransactionType(req.Type),
		Amount:            amount,
		CategoryID:        req.CategoryID,
		Description:       req.Description,
		OccurredAt:        occurredAt,
		IsRecurring:       req.IsRecurring,
		RecurringInterval: core.RecurringInterval(req.RecurringInterval),
		IsSplitExpense:    req.IsSplitExpense,
	}
	for _, p := range req.Participants {
		intent.Participants = append(intent.Participants, core.Participant{
			ID:    p.ID,
			Name:  p.Name,
			Fixed: p.Fixed,
		})
	}
	return intent, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	intent, err := req.toIntent()
	if err != nil {
		writeError(w, r, err)
		return
	}

	txn, err := s.transactions.Create(r.Context(), intent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(txn))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	intent, err := req.toIntent()
	if err != nil {
		writeError(w, r, err)
		return
	}

	txn, err := s.transactions.Update(r.Context(), id, intent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(txn))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.transactions.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type processDueResponse struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

func (s *Server) handleProcessDue(w http.ResponseWriter, r *http.Request) {
	res, err := s.transactions.ProcessDue(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, processDueResponse{Processed: res.Processed, Failed: res.Failed})
}

type scanRequest struct {
	Image    string `json:"image"`
	MimeType string `json:"mime_type"`
}

func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "document extractor not configured"})
		return
	}

	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "image must be base64 encoded"})
		return
	}

	draft, err := s.extractor.ScanReceipt(r.Context(), image, req.MimeType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}
