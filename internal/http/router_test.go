package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frayze/stackbuilder-backend/internal/config"
	"github.com/frayze/stackbuilder-backend/internal/store"
)

func testConfig(destURL string) config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   100,
		AdminKey:    "secret",
		Webhook: config.WebhookConfig{
			DestinationURL: destURL,
			ForwardTimeout: 2 * time.Second,
		},
		AdminMaxContentLen: 500,
		Security:           config.SecurityConfig{EnableHSTS: false},
		OTEL:               config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newEngine(t *testing.T, cfg config.Config) (*gin.Engine, store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	st := store.NewMemoryStore()
	RegisterRoutes(r, st, cfg)
	return r, st
}

func TestRegisterRoutes_HealthMetricsFallbacks(t *testing.T) {
	r, _ := newEngine(t, testConfig(""))

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (DELETE /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_BareAliasesMounted(t *testing.T) {
	r, _ := newEngine(t, testConfig(""))

	// The original function paths stay reachable without the /api/v1 prefix.
	for _, path := range []string{"/callback", "/api/v1/callback"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path+"?submissionId=x", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("GET %s = %d, want 404 (no response yet)", path, w.Code)
		}
	}
}

func TestRegisterRoutes_SecurityHeaders(t *testing.T) {
	r, _ := newEngine(t, testConfig(""))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options=%q", got)
	}
}

// End-to-end: submit without an inline response, deliver the callback out of
// band, then poll until the stored response comes back.
func TestEndToEnd_SubmitCallbackPoll(t *testing.T) {
	// Automation endpoint acknowledges but returns no content.
	dest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer dest.Close()

	r, _ := newEngine(t, testConfig(dest.URL))

	// 1) Submit.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/proxy",
		bytes.NewBufferString(`{"submissionId":"e2e-1","name":"Ada"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("proxy = %d: %s", w.Code, w.Body.String())
	}
	var submitBody map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &submitBody)
	if _, present := submitBody["aiResponse"]; present {
		t.Fatalf("no inline response expected: %v", submitBody)
	}

	// 2) Poll before the callback: 404, keep waiting.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/callback?submissionId=e2e-1", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("pre-callback poll = %d, want 404", w.Code)
	}

	// 3) Out-of-band callback delivery.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/callback?submissionId=e2e-1",
		bytes.NewBufferString(`{"aiResponse":"<div class=\"plan\">ready</div>"}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("callback POST = %d: %s", w.Code, w.Body.String())
	}

	// 4) Poll again: stored (and sanitized) response comes back.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/callback?submissionId=e2e-1", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("post-callback poll = %d: %s", w.Code, w.Body.String())
	}
	var pollBody map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &pollBody)
	if pollBody["aiResponse"] != `<div className="plan">ready</div>` {
		t.Fatalf("aiResponse=%v", pollBody["aiResponse"])
	}

	// 5) Admin sees both records.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin?key=secret", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("admin = %d: %s", w.Code, w.Body.String())
	}
	var adminBody map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &adminBody)
	dbStatus, _ := adminBody["dbStatus"].(map[string]any)
	if dbStatus["mode"] != string(store.ModeMemory) {
		t.Fatalf("dbStatus=%v", dbStatus)
	}
}

func TestEndToEnd_FailingDestinationStillPersists(t *testing.T) {
	dest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer dest.Close()

	r, st := newEngine(t, testConfig(dest.URL))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/proxy",
		bytes.NewBufferString(`{"submissionId":"durable-1"}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("proxy = %d, want 500 on downstream failure", w.Code)
	}

	if _, err := st.GetSubmission(req.Context(), "durable-1"); err != nil {
		t.Fatalf("submission must survive a failed forward: %v", err)
	}
}
