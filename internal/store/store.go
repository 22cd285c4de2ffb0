// Package store implements keyed persistence for submissions and their AI
// responses, abstracting over an embedded SQLite database and an in-process
// volatile fallback. Callers never branch on the backend: Open selects one
// implementation at process start and everything behind the Store interface
// behaves the same, modulo durability.
package store

import (
	"context"
	"errors"

	"github.com/frayze/stackbuilder-backend/internal/domain"
)

// ErrNotFound is returned by point lookups when no record exists for the
// given submission id. It marks an expected, retriable condition ("callback
// not arrived yet"), not a failure.
var ErrNotFound = errors.New("record not found")

// Mode identifies which backend a Store instance is running on.
type Mode string

const (
	// ModeSQLite means a durable embedded database is in use.
	ModeSQLite Mode = "sqlite"
	// ModeMemory means the volatile in-process fallback is in use. Data is
	// lost on restart; this is a deliberate degraded-availability tradeoff.
	ModeMemory Mode = "in-memory fallback"
)

// Store is the capability set shared by both backends.
//
// Upserts are insert-or-replace keyed by submission id: calling twice for
// the same id leaves exactly one row holding the last write. Concurrent
// writers to the same id race last-write-wins, which is acceptable because
// a submission id is generated once per browser submission.
type Store interface {
	UpsertSubmission(ctx context.Context, submissionID, payload string) error
	UpsertResponse(ctx context.Context, submissionID, content, contentType string) error
	GetSubmission(ctx context.Context, submissionID string) (*domain.Submission, error)
	GetResponse(ctx context.Context, submissionID string) (*domain.AIResponse, error)

	// LatestSubmission returns the submission with the maximum CreatedAt, or
	// ErrNotFound when the store is empty. Diagnostic convenience only.
	LatestSubmission(ctx context.Context) (*domain.Submission, error)

	// ListSubmissions and ListResponses power the admin inspector. Both
	// return newest-first, capped at limit.
	ListSubmissions(ctx context.Context, limit int) ([]domain.Submission, error)
	ListResponses(ctx context.Context, limit int) ([]domain.AIResponse, error)

	// Mode reports which backend is serving, so operators can tell a durable
	// store from the degraded fallback.
	Mode() Mode

	// Path returns the database file location, or "" for the memory backend.
	Path() string
}
