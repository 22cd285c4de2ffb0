// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all
// endpoints. Unlike a conventional REST envelope, the wire format here is
// dictated by the browser and automation clients that already speak it:
// every body carries `success`, errors carry `message`, and `submissionId`
// is echoed whenever it is known, success or failure, so callers can always
// correlate.
//
// Conventions:
//   - `fail()` centralizes error formatting and logs 5xx responses with
//     request context.
//   - `ok()` writes success bodies as-is.
//   - CORS preflights are terminated with 204 and permissive allow headers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frayze/stackbuilder-backend/internal/http/middleware"
)

// fail aborts the request with a structured error body. submissionID may be
// empty when the failure happened before the payload was parsed.
//
// Server errors (>=500) are logged using the request-scoped logger.
func fail(c *gin.Context, status int, msg, submissionID string) {
	body := gin.H{
		"success": false,
		"message": msg,
	}
	if submissionID != "" {
		body["submissionId"] = submissionID
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("submission_id", submissionID).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, body)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, msg, submissionID string) {
	fail(c, status, msg, submissionID)
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// preflight answers an OPTIONS request with permissive cross-origin allow
// headers and no body, the way automation callers expect.
func preflight(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Status(http.StatusNoContent)
}
