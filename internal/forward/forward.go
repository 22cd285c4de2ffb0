// Package forward performs the outbound POST to the external automation
// endpoint. It is the only long-latency operation on the synchronous request
// path, so the client timeout here is a hard requirement, not tuning.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StatusError reports a non-2xx reply from the automation endpoint. The body
// is carried along for logging; callers decide whether partial content in it
// is usable.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("destination replied %d", e.StatusCode)
}

// Forwarder posts submission payloads to a destination URL and normalizes
// whatever comes back into a JSON object.
type Forwarder struct {
	client *http.Client
}

// New builds a Forwarder whose outbound calls are bounded by timeout.
func New(timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Forwarder{client: &http.Client{Timeout: timeout}}
}

// NewWithClient wires a custom HTTP client (tests use httptest servers).
func NewWithClient(client *http.Client) *Forwarder {
	return &Forwarder{client: client}
}

// Forward posts payload as JSON to destURL and returns the decoded response
// body. The destination is independently operated and frequently
// misconfigured, so decoding is defensive: a JSON content type is decoded
// directly, anything else is read as text and decoded anyway if it happens
// to parse; otherwise the text is wrapped as {"text": body}.
//
// A non-2xx status returns both the decoded body (when present) and a
// *StatusError so callers can persist any usable content before failing.
func (f *Forwarder) Forward(ctx context.Context, destURL string, payload map[string]any) (map[string]any, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destURL, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward to destination: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read destination response: %w", err)
	}

	decoded := decodeBody(resp.Header.Get("Content-Type"), body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decoded, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return decoded, nil
}

// decodeBody normalizes a response body to a JSON object.
func decodeBody(contentType string, body []byte) map[string]any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return map[string]any{}
	}

	var out map[string]any
	if strings.Contains(contentType, "application/json") {
		if err := json.Unmarshal(trimmed, &out); err == nil {
			return out
		}
	}
	// Sometimes the content type is wrong; try JSON anyway.
	if err := json.Unmarshal(trimmed, &out); err == nil {
		return out
	}
	return map[string]any{"text": string(trimmed)}
}
