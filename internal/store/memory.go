// Package store implements keyed persistence for submissions and AI
// responses. This file contains the volatile in-process fallback used when
// no SQLite driver can open a database.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/frayze/stackbuilder-backend/internal/domain"
)

// MemoryStore is the process-lifetime fallback backend. It cannot fail to
// write, but every record is lost on restart, and in a multi-instance
// deployment each instance sees only its own writes. Treat it as a known
// consistency hazard inherent to the degraded tier, not a bug.
type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[string]domain.Submission
	responses   map[string]domain.AIResponse
}

// NewMemoryStore constructs an empty volatile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		submissions: make(map[string]domain.Submission),
		responses:   make(map[string]domain.AIResponse),
	}
}

// UpsertSubmission inserts or replaces the submission row. Last write wins.
func (m *MemoryStore) UpsertSubmission(_ context.Context, submissionID, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[submissionID] = domain.Submission{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		Payload:      payload,
		CreatedAt:    time.Now().UTC(),
	}
	return nil
}

// UpsertResponse inserts or replaces the AI response row. Last write wins.
func (m *MemoryStore) UpsertResponse(_ context.Context, submissionID, content, contentType string) error {
	if contentType == "" {
		contentType = "html"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[submissionID] = domain.AIResponse{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		Content:      content,
		ContentType:  contentType,
		CreatedAt:    time.Now().UTC(),
	}
	return nil
}

// GetSubmission returns a copy of the stored submission, or ErrNotFound.
func (m *MemoryStore) GetSubmission(_ context.Context, submissionID string) (*domain.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.submissions[submissionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

// GetResponse returns a copy of the stored AI response, or ErrNotFound.
func (m *MemoryStore) GetResponse(_ context.Context, submissionID string) (*domain.AIResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.responses[submissionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

// LatestSubmission returns the submission with the maximum CreatedAt.
func (m *MemoryStore) LatestSubmission(_ context.Context) (*domain.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.Submission
	for id := range m.submissions {
		row := m.submissions[id]
		if latest == nil || row.CreatedAt.After(latest.CreatedAt) {
			latest = &row
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	out := *latest
	return &out, nil
}

// ListSubmissions returns up to limit submissions, newest first.
func (m *MemoryStore) ListSubmissions(_ context.Context, limit int) ([]domain.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Submission, 0, len(m.submissions))
	for id := range m.submissions {
		out = append(out, m.submissions[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListResponses returns up to limit AI responses, newest first.
func (m *MemoryStore) ListResponses(_ context.Context, limit int) ([]domain.AIResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.AIResponse, 0, len(m.responses))
	for id := range m.responses {
		out = append(out, m.responses[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Mode reports the degraded backend marker.
func (m *MemoryStore) Mode() Mode { return ModeMemory }

// Path returns "" because the memory backend has no file.
func (m *MemoryStore) Path() string { return "" }
