// Admin inspector HTTP handler.
//
// This file exposes a read-only dump of recent submissions and AI responses:
//   - GET /admin?key=<secret>&table=forms|responses|all&limit=N
//
// The endpoint is a debug tool gated by a static shared secret; it is
// insecure by design and must not be exposed on a public deployment without
// network-level protection. Listings are bounded and content is truncated so
// the response size stays predictable.
package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frayze/stackbuilder-backend/internal/utils"
)

// adminListLimit is the default and upper bound for rows of each kind
// returned per request; a limit query parameter may shrink it.
const adminListLimit = 50

// Admin handles GET /admin. Non-GET methods are rejected, as are requests
// whose key query parameter does not match the configured secret.
func (h *Handlers) Admin(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodOptions:
		preflight(c)
		return
	case http.MethodGet:
	default:
		c.Header("Allow", "GET, OPTIONS")
		fail(c, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	key := c.Query("key")
	if h.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.adminKey)) != 1 {
		fail(c, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	table := c.DefaultQuery("table", "all")
	limit := utils.AtoiDefault(c.Query("limit"), adminListLimit)
	if limit < 1 || limit > adminListLimit {
		limit = adminListLimit
	}
	ctx := c.Request.Context()

	data := gin.H{}

	if table == "forms" || table == "all" {
		rows, err := h.st.ListSubmissions(ctx, limit)
		if err != nil {
			data["formSubmissions"] = "error: " + err.Error()
		} else {
			out := make([]gin.H, 0, len(rows))
			for _, r := range rows {
				entry := gin.H{
					"submissionId": r.SubmissionID,
					"createdAt":    r.CreatedAt,
				}
				// A malformed stored payload degrades to an inline error
				// string for that row, not a failed request.
				var payload map[string]any
				if err := json.Unmarshal([]byte(r.Payload), &payload); err != nil {
					entry["payload"] = "error: unreadable payload: " + err.Error()
				} else {
					entry["payload"] = payload
				}
				out = append(out, entry)
			}
			data["formSubmissions"] = out
		}
	}

	if table == "responses" || table == "all" {
		rows, err := h.st.ListResponses(ctx, limit)
		if err != nil {
			data["aiResponses"] = "error: " + err.Error()
		} else {
			out := make([]gin.H, 0, len(rows))
			for _, r := range rows {
				out = append(out, gin.H{
					"submissionId": r.SubmissionID,
					"contentType":  r.ContentType,
					"createdAt":    r.CreatedAt,
					"content":      utils.Truncate(r.Content, h.maxContentLen),
				})
			}
			data["aiResponses"] = out
		}
	}

	ok(c, http.StatusOK, gin.H{
		"success": true,
		"dbStatus": gin.H{
			"mode": string(h.st.Mode()),
			"path": h.st.Path(),
		},
		"data": data,
	})
}
