// Callback receiver HTTP handler.
//
// This file exposes the asynchronous delivery endpoint:
//   - POST /callback?submissionId=<id>  (out-of-band delivery from the
//     automation endpoint; idempotent under retry)
//   - GET  /callback?submissionId=<id>  (browser poll for the stored result)
//
// Absence of a response on GET is a 404, an expected and retriable "not yet"
// condition, never a 500.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frayze/stackbuilder-backend/internal/http/middleware"
	"github.com/frayze/stackbuilder-backend/internal/services"
)

// Callback dispatches on method: GET polls, POST ingests, OPTIONS preflights.
func (h *Handlers) Callback(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodOptions:
		preflight(c)
	case http.MethodGet:
		h.callbackGet(c)
	case http.MethodPost:
		h.callbackPost(c)
	default:
		c.Header("Allow", "POST, GET, OPTIONS")
		fail(c, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

// callbackGet answers a poll for the AI response of one submission.
func (h *Handlers) callbackGet(c *gin.Context) {
	submissionID := c.Query("submissionId")
	if submissionID == "" {
		submissionID = "unknown"
	}

	res, err := h.svc.LookupResponse(c.Request.Context(), submissionID)
	switch {
	case err == nil:
		body := gin.H{
			"success":      true,
			"submissionId": res.SubmissionID,
			"aiResponse":   res.AIResponse,
			"timestamp":    res.Timestamp.UTC().Format(time.RFC3339),
		}
		if res.Fallback {
			// Callers must be able to tell an exact match from this
			// diagnostic substitute.
			body["originalSubmissionId"] = res.OriginalSubmissionID
			body["note"] = "Using response from latest submission"
		}
		ok(c, http.StatusOK, body)
	case errors.Is(err, services.ErrNoResponseYet):
		fail(c, http.StatusNotFound, "no response available yet for submissionId: "+submissionID, submissionID)
	default:
		fail(c, http.StatusInternalServerError, "error retrieving response", submissionID)
	}
}

// callbackPost ingests a delivery from the automation endpoint. The endpoint
// is safely callable multiple times for the same submission id: the write is
// an upsert and the last delivery wins.
func (h *Handlers) callbackPost(c *gin.Context) {
	submissionID := c.Query("submissionId")
	if submissionID == "" {
		submissionID = "unknown"
	}

	body, err := decodeJSONObject(c.Request.Body)
	if err != nil {
		middleware.CountCallback("error")
		fail(c, http.StatusInternalServerError, "invalid callback body", submissionID)
		return
	}

	res, err := h.svc.AcceptCallback(c.Request.Context(), submissionID, body)
	if err != nil {
		middleware.CountCallback("error")
		fail(c, http.StatusInternalServerError, "error storing callback", submissionID)
		return
	}

	if res.AIResponse != "" {
		middleware.CountCallback("stored")
	} else {
		middleware.CountCallback("empty")
	}

	lg := middleware.LoggerFrom(c)
	lg.Info().
		Str("submission_id", res.SubmissionID).
		Int("content_len", len(res.AIResponse)).
		Msg("callback received")

	var aiResponse any
	if res.AIResponse != "" {
		aiResponse = res.AIResponse
	}
	ok(c, http.StatusOK, gin.H{
		"success":      true,
		"message":      "Callback received successfully",
		"submissionId": res.SubmissionID,
		"aiResponse":   aiResponse,
		"timestamp":    res.Timestamp.UTC().Format(time.RFC3339),
	})
}
