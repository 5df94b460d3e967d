package http

import (
	"net/http"

	"bookkeep/internal/core"
	"bookkeep/internal/report"
)

type accountSummaryResponse struct {
	Account          accountResponse `json:"account"`
	TransactionCount int             `json:"transaction_count"`
}

type dashboardResponse struct {
	Accounts []accountSummaryResponse `json:"accounts"`
	Recent   []transactionResponse    `json:"recent"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id is required"})
		return
	}

	dashboard, err := s.reports.Dashboard(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := dashboardResponse{
		Accounts: make([]accountSummaryResponse, 0, len(dashboard.Accounts)),
		Recent:   make([]transactionResponse, 0, len(dashboard.Recent)),
	}
	for _, summary := range dashboard.Accounts {
		resp.Accounts = append(resp.Accounts, accountSummaryResponse{
			Account:          toAccountResponse(summary.Account),
			TransactionCount: summary.TransactionCount,
		})
	}
	for _, txn := range dashboard.Recent {
		resp.Recent = append(resp.Recent, toTransactionResponse(txn))
	}
	writeJSON(w, http.StatusOK, resp)
}

type bucketResponse struct {
	Start   string `json:"start"`
	Income  string `json:"income"`
	Expense string `json:"expense"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()

	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeError(w, r, &core.ValidationError{Field: "from", Err: err})
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeError(w, r, &core.ValidationError{Field: "to", Err: err})
		return
	}

	granularity := report.Granularity(q.Get("granularity"))
	if granularity == "" {
		granularity = report.Day
	}

	buckets, err := s.reports.Series(r.Context(), id, from, to, granularity)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]bucketResponse, 0, len(buckets))
	for _, b := range buckets {
		resp = append(resp, bucketResponse{
			Start:   b.Start.Format("2006-01-02"),
			Income:  b.Income.Amount().String(),
			Expense: b.Expense.Amount().String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
