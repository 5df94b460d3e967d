package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"bookkeep/internal/core"
	"bookkeep/internal/extract"
	"bookkeep/internal/log"
	"bookkeep/internal/money"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

// writeError maps domain errors onto HTTP statuses: validation failures
// name the offending field at 422, missing entities 404, rate provider
// failures 502, everything else 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *core.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: validationErr.Err.Error(),
			Field: validationErr.Field,
		})
		return
	}

	var notFoundErr *core.NotFoundError
	if errors.As(err, &notFoundErr) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: notFoundErr.Error()})
		return
	}

	var rateErr *money.RateUnavailableError
	if errors.As(err, &rateErr) {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: rateErr.Error()})
		return
	}

	var extractionErr extract.ExtractionError
	if errors.As(err, &extractionErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: extractionErr.Error()})
		return
	}

	if errors.Is(err, money.ErrCurrencyMismatch) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(),
			Field: "currency",
		})
		return
	}

	log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
		log.FieldError, err, log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseDate accepts a bare date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
