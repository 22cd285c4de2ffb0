// Package domain defines the persistence models for quote submissions and
// their AI-generated action plans. These types are mapped with GORM and form
// the core data layer of the stack-builder backend.
package domain

import "time"

// Submission represents one customer quote request received by the webhook
// proxy. The payload is stored as serialized JSON text and is opaque to the
// server; the browser generates SubmissionID at submit time and uses it as
// the join key across every store.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - SubmissionID: browser-generated correlation token; unique, so a
//     resubmission under the same id replaces the row rather than duplicating it.
//   - Payload: the raw form payload (contact info, add-ons, total) as text.
//   - CreatedAt: server-assigned at first persistence.
type Submission struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	SubmissionID string    `json:"submission_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_submission_id"`
	Payload      string    `json:"payload"       gorm:"type:text;not null"`
	CreatedAt    time.Time `json:"created_at"    gorm:"index"`
}

// TableName returns the database table name for Submission.
func (Submission) TableName() string { return "form_submissions" }

// AIResponse is the action-plan content the automation endpoint produced for
// a submission, delivered either inline with the proxy call or later via the
// callback endpoint. Both paths write through the same upsert, so readers are
// agnostic to which one populated the row.
//
// Absence of a row for a submission is a normal state (the callback has not
// arrived yet), not an error.
type AIResponse struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	SubmissionID string    `json:"submission_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_response_submission_id"`
	Content      string    `json:"content"       gorm:"type:text;not null"`
	ContentType  string    `json:"content_type"  gorm:"type:varchar(32);not null;default:'html'"`
	CreatedAt    time.Time `json:"created_at"    gorm:"index"`
}

// TableName returns the database table name for AIResponse.
func (AIResponse) TableName() string { return "ai_responses" }
