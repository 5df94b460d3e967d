package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Draft is a best-effort transaction candidate produced from a scanned
// document. It is unvalidated; callers must run it through the intent
// validator before committing.
type Draft struct {
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
}

// Extractor turns a receipt image into a transaction draft.
type Extractor interface {
	ScanReceipt(ctx context.Context, image []byte, mimeType string) (*Draft, error)
}

// ExtractionError reports a structured failure from the extractor
// service, distinct from transport errors.
type ExtractionError struct {
	Reason string
}

func (e ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

const requestTimeout = 60 * time.Second

// HTTPExtractor calls an external extractor service that accepts a
// base64-encoded image and answers with a draft or a structured failure.
type HTTPExtractor struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPExtractor(baseURL string) *HTTPExtractor {
	return &HTTPExtractor{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type scanRequest struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type scanResponse struct {
	Draft *Draft `json:"draft"`
	Error string `json:"error"`
}

func (e *HTTPExtractor) ScanReceipt(ctx context.Context, image []byte, mimeType string) (*Draft, error) {
	payload, err := json.Marshal(scanRequest{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal scan request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/scan", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling extractor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("extractor returned status %d: %s", resp.StatusCode, string(body))
	}

	var result scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding extractor response: %w", err)
	}
	if result.Error != "" {
		return nil, ExtractionError{Reason: result.Error}
	}
	if result.Draft == nil {
		return nil, ExtractionError{Reason: "empty response"}
	}
	return result.Draft, nil
}
