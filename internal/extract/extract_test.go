package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestScanReceipt(t *testing.T) {
	image := []byte("fake-image-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scan" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req scanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.MimeType != "image/png" {
			t.Errorf("expected mime type image/png, got %q", req.MimeType)
		}
		decoded, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil || string(decoded) != string(image) {
			t.Errorf("image payload mismatch")
		}
		fmt.Fprint(w, `{"draft":{"amount":"42.50","description":"Supermarket","category":"groceries","date":"2025-03-10T00:00:00Z"}}`)
	}))
	defer srv.Close()

	draft, err := NewHTTPExtractor(srv.URL).ScanReceipt(context.Background(), image, "image/png")
	if err != nil {
		t.Fatalf("ScanReceipt: %v", err)
	}
	if draft.Amount != "42.50" || draft.Category != "groceries" {
		t.Fatalf("unexpected draft: %+v", draft)
	}
}

func TestScanReceiptStructuredFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":"no amount found"}`)
	}))
	defer srv.Close()

	_, err := NewHTTPExtractor(srv.URL).ScanReceipt(context.Background(), []byte("x"), "image/png")
	var extractionErr ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extractionErr.Reason != "no amount found" {
		t.Fatalf("unexpected reason %q", extractionErr.Reason)
	}
}

func TestScanReceiptServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPExtractor(srv.URL).ScanReceipt(context.Background(), []byte("x"), "image/png")
	if err == nil {
		t.Fatal("expected error")
	}
	var extractionErr ExtractionError
	if errors.As(err, &extractionErr) {
		t.Fatalf("transport errors must not be ExtractionError, got %v", err)
	}
}
