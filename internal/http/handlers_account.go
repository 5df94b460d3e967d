package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"bookkeep/internal/core"
	"bookkeep/internal/money"
)

type accountRequest struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
	IsDefault bool   `json:"is_default"`
}

type accountResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
	IsDefault bool   `json:"is_default"`
}

func toAccountResponse(a core.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		Name:      a.Name,
		Type:      string(a.Type),
		Currency:  a.Currency,
		Balance:   a.Balance.Amount().String(),
		IsDefault: a.IsDefault,
	}
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	balance := money.Zero(req.Currency)
	if req.Balance != "" {
		parsed, err := money.Parse(req.Balance, req.Currency)
		if err != nil {
			writeError(w, r, &core.ValidationError{Field: "balance", Err: err})
			return
		}
		balance = parsed
	}

	accountType := core.AccountType(req.Type)
	switch accountType {
	case core.Checking, core.Savings, core.Credit:
	default:
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: "type must be CHECKING, SAVINGS or CREDIT",
			Field: "type",
		})
		return
	}

	now := time.Now().UTC()
	account := core.Account{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Name:      req.Name,
		Type:      accountType,
		Currency:  req.Currency,
		Balance:   balance,
		IsDefault: req.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateAccount(r.Context(), account); err != nil {
		writeError(w, r, err)
		return
	}

	// Re-read: the first account of a user always becomes the default.
	created, err := s.repo.GetAccount(r.Context(), account.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(*created))
}

type accountWithTransactionsResponse struct {
	Account      accountResponse       `json:"account"`
	Transactions []transactionResponse `json:"transactions"`
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	account, err := s.repo.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txns, err := s.repo.ListTransactionsByAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := accountWithTransactionsResponse{
		Account:      toAccountResponse(*account),
		Transactions: make([]transactionResponse, 0, len(txns)),
	}
	for _, txn := range txns {
		resp.Transactions = append(resp.Transactions, toTransactionResponse(txn))
	}
	writeJSON(w, http.StatusOK, resp)
}

type setDefaultRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleSetDefaultAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req setDefaultRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := s.repo.SetDefaultAccount(r.Context(), req.UserID, id); err != nil {
		writeError(w, r, err)
		return
	}
	account, err := s.repo.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(*account))
}
