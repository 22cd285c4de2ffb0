// Webhook proxy HTTP handler.
//
// This file exposes the submission intake endpoint:
//   - POST /proxy  (persist the submission, forward it to the automation
//     endpoint, return any inline AI response)
//
// The handler exists because the browser cannot call the automation endpoint
// directly (CORS); having the request originate server-side also lets us
// persist the submission before the forward, so a slow or failing
// destination never loses data.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/frayze/stackbuilder-backend/internal/http/middleware"
	"github.com/frayze/stackbuilder-backend/internal/services"
	"github.com/frayze/stackbuilder-backend/internal/store"
)

// IntakeService is the surface the handlers need from the service layer.
// Declared here (consumer side) so tests can substitute stubs.
type IntakeService interface {
	Submit(ctx context.Context, payload map[string]any, callbackURL string) (*services.SubmitResult, error)
	AcceptCallback(ctx context.Context, submissionID string, body map[string]any) (*services.CallbackResult, error)
	LookupResponse(ctx context.Context, submissionID string) (*services.LookupResult, error)
}

// Handlers bundles the HTTP endpoints with their dependencies.
type Handlers struct {
	svc IntakeService

	// st is read directly by the admin inspector; the service layer adds
	// nothing for a raw listing.
	st store.Store

	// publicBaseURL, when set, overrides the request Host when computing the
	// callback URL advertised to the automation endpoint.
	publicBaseURL string

	adminKey      string
	maxContentLen int
}

// New constructs the handler set.
func New(svc IntakeService, st store.Store, publicBaseURL, adminKey string, maxContentLen int) *Handlers {
	return &Handlers{
		svc:           svc,
		st:            st,
		publicBaseURL: publicBaseURL,
		adminKey:      adminKey,
		maxContentLen: maxContentLen,
	}
}

// Proxy handles POST /proxy. OPTIONS is answered with a permissive preflight;
// other methods get 405.
func (h *Handlers) Proxy(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodOptions:
		preflight(c)
		return
	case http.MethodPost:
	default:
		c.Header("Allow", "POST, OPTIONS")
		fail(c, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	payload, err := decodeJSONObject(c.Request.Body)
	if err != nil {
		// A body that does not parse fails the same way any later step
		// would, so the client sees one error status for the whole pipeline.
		fail(c, http.StatusInternalServerError, "request body must be a JSON object", "")
		return
	}

	submissionID, _ := payload["submissionId"].(string)
	callbackURL := h.callbackURL(c, submissionID)

	result, err := h.svc.Submit(c.Request.Context(), payload, callbackURL)
	if err != nil {
		middleware.CountForward("error")
		switch {
		case errors.Is(err, services.ErrNoDestination):
			fail(c, http.StatusInternalServerError, "webhook destination is not configured", submissionID)
		case errors.Is(err, services.ErrForwardFailed):
			fail(c, http.StatusInternalServerError, "failed to reach automation endpoint", submissionID)
		default:
			fail(c, http.StatusInternalServerError, err.Error(), submissionID)
		}
		return
	}
	middleware.CountForward("ok")

	body := gin.H{
		"success":      true,
		"submissionId": result.SubmissionID,
	}
	if result.AIResponse != "" {
		body["aiResponse"] = result.AIResponse
	}
	ok(c, http.StatusOK, body)
}

// callbackURL computes the absolute address of this process's callback
// endpoint with the submission id appended, so the automation endpoint knows
// where to post its asynchronous result.
func (h *Handlers) callbackURL(c *gin.Context, submissionID string) string {
	base := h.publicBaseURL
	if base == "" {
		scheme := "https"
		host := c.Request.Host
		if host == "" {
			host = "localhost"
		}
		if strings.Contains(host, "localhost") || strings.HasPrefix(host, "127.") {
			scheme = "http"
		}
		base = scheme + "://" + host
	}
	base = strings.TrimRight(base, "/")

	u := base + "/api/v1/callback"
	if submissionID != "" {
		u += "?submissionId=" + url.QueryEscape(submissionID)
	}
	return u
}

// decodeJSONObject reads a request body as a single JSON object.
func decodeJSONObject(r io.Reader) (map[string]any, error) {
	var payload map[string]any
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("empty payload")
	}
	return payload, nil
}
