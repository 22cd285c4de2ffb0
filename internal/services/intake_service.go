// Package services defines the business logic for submission intake and
// asynchronous response delivery.
//
// This file implements IntakeService, the application-level component that
// owns the lifecycle of a quote submission: persist it, forward it to the
// external automation endpoint with a callback address injected, capture any
// inline AI response, ingest later out-of-band callbacks, and answer polls.
//
// Ordering is a correctness requirement: the submission is persisted before
// the forward begins, so a crash or timeout mid-forward still leaves a
// durable record the callback path can complete later.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the submission id for correlation.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/frayze/stackbuilder-backend/internal/forward"
	"github.com/frayze/stackbuilder-backend/internal/sanitize"
	"github.com/frayze/stackbuilder-backend/internal/store"
)

const defaultContentType = "html"

// SubmitResult is what the webhook proxy returns to the browser: the
// correlation id, and the AI response when the automation endpoint completed
// synchronously. AIResponse empty means "await the callback".
type SubmitResult struct {
	SubmissionID string
	AIResponse   string
}

// LookupResult carries a polled AI response. Fallback marks a hit that came
// from the latest-submission diagnostic path rather than an exact id match;
// callers must be able to tell the two apart.
type LookupResult struct {
	SubmissionID string
	AIResponse   string
	Timestamp    time.Time
	Fallback     bool
	// OriginalSubmissionID is the id the caller asked for when Fallback is set.
	OriginalSubmissionID string
}

// CallbackResult echoes what a callback POST delivered.
type CallbackResult struct {
	SubmissionID string
	AIResponse   string
	Timestamp    time.Time
}

// IntakeService coordinates persistence and forwarding for submissions.
type IntakeService struct {
	Store     store.Store
	Forwarder *forward.Forwarder

	// DestinationURL is the automation endpoint. Empty makes Submit fail
	// with ErrNoDestination at request time.
	DestinationURL string

	// AllowLatestFallback enables the demo-only latest-submission answer on
	// lookups for unknown ids.
	AllowLatestFallback bool
}

// Submit persists the submission, forwards it to the automation endpoint
// with callbackURL injected, and captures any inline AI response.
//
// A payload without a submissionId is still forwarded (the caller receives
// any synchronous result directly), but nothing can be persisted for later
// correlation. An accepted degraded path.
func (s *IntakeService) Submit(ctx context.Context, payload map[string]any, callbackURL string) (*SubmitResult, error) {
	tr := otel.Tracer("services/IntakeService")
	submissionID, _ := payload["submissionId"].(string)
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("submission.id", submissionID)),
	)
	defer span.End()

	if s.DestinationURL == "" {
		return nil, ErrNoDestination
	}

	// Durability first: persist what we received even if the downstream
	// call later fails.
	if submissionID != "" {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode submission: %w", err)
		}
		if err := s.Store.UpsertSubmission(ctx, submissionID, string(raw)); err != nil {
			log.Error().Err(err).Str("submission_id", submissionID).Msg("persist submission failed")
		}
	} else {
		log.Warn().Msg("submission without submissionId; response cannot be correlated later")
	}

	// Tell the automation endpoint where to post its asynchronous result.
	payload["callbackUrl"] = callbackURL

	respBody, err := s.Forwarder.Forward(ctx, s.DestinationURL, payload)
	if err != nil {
		// Salvage any inline content the destination returned before failing.
		s.captureInlineResponse(ctx, submissionID, respBody)
		log.Error().Err(err).Str("submission_id", submissionID).Msg("forward failed")
		return &SubmitResult{SubmissionID: submissionID}, fmt.Errorf("%w: %v", ErrForwardFailed, err)
	}

	result := &SubmitResult{SubmissionID: submissionID}
	if content := s.captureInlineResponse(ctx, submissionID, respBody); content != "" {
		result.AIResponse = content
	}
	return result, nil
}

// captureInlineResponse sanitizes and persists an aiResponse field when the
// destination body carries one. Returns the sanitized content or "".
func (s *IntakeService) captureInlineResponse(ctx context.Context, submissionID string, body map[string]any) string {
	if body == nil {
		return ""
	}
	content, _ := body["aiResponse"].(string)
	if content == "" {
		return ""
	}
	clean := sanitize.PrepareHTML(content)
	if submissionID != "" {
		if err := s.Store.UpsertResponse(ctx, submissionID, clean, defaultContentType); err != nil {
			log.Error().Err(err).Str("submission_id", submissionID).Msg("persist inline response failed")
		}
	}
	return clean
}

// AcceptCallback ingests an out-of-band POST from the automation endpoint.
// Safe to call repeatedly for the same submission id: the write is an
// idempotent upsert and the last delivery wins.
func (s *IntakeService) AcceptCallback(ctx context.Context, submissionID string, body map[string]any) (*CallbackResult, error) {
	tr := otel.Tracer("services/IntakeService")
	ctx, span := tr.Start(ctx, "AcceptCallback",
		trace.WithAttributes(attribute.String("submission.id", submissionID)),
	)
	defer span.End()

	if submissionID == "" {
		submissionID = "unknown"
	}

	res := &CallbackResult{SubmissionID: submissionID, Timestamp: time.Now().UTC()}

	content, _ := body["aiResponse"].(string)
	if content == "" {
		log.Warn().Str("submission_id", submissionID).Msg("callback without aiResponse")
		return res, nil
	}

	clean := sanitize.PrepareHTML(content)
	if err := s.Store.UpsertResponse(ctx, submissionID, clean, defaultContentType); err != nil {
		return nil, err
	}
	res.AIResponse = clean
	return res, nil
}

// LookupResponse answers a poll for a submission id. An exact match is
// preferred; when none exists and the latest fallback is enabled, the most
// recent submission's response is returned labelled as a fallback. Absence
// of both is ErrNoResponseYet, which is retriable, not a failure.
func (s *IntakeService) LookupResponse(ctx context.Context, submissionID string) (*LookupResult, error) {
	tr := otel.Tracer("services/IntakeService")
	ctx, span := tr.Start(ctx, "LookupResponse",
		trace.WithAttributes(attribute.String("submission.id", submissionID)),
	)
	defer span.End()

	if submissionID == "" {
		submissionID = "unknown"
	}

	if row, err := s.Store.GetResponse(ctx, submissionID); err == nil {
		return &LookupResult{
			SubmissionID: submissionID,
			AIResponse:   row.Content,
			Timestamp:    row.CreatedAt,
		}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if s.AllowLatestFallback {
		if latest, err := s.Store.LatestSubmission(ctx); err == nil && latest.SubmissionID != submissionID {
			if row, err := s.Store.GetResponse(ctx, latest.SubmissionID); err == nil {
				return &LookupResult{
					SubmissionID:         latest.SubmissionID,
					AIResponse:           row.Content,
					Timestamp:            row.CreatedAt,
					Fallback:             true,
					OriginalSubmissionID: submissionID,
				}, nil
			}
		}
	}

	return nil, ErrNoResponseYet
}
