// Package services defines the business logic for submission intake and
// asynchronous response delivery. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

var (
	// ErrNoDestination indicates the automation endpoint URL is not
	// configured. Fatal for the single request, never retried automatically.
	ErrNoDestination = errors.New("webhook destination not configured")

	// ErrForwardFailed indicates the outbound call to the automation endpoint
	// failed. The submission was already persisted, so the callback path can
	// still complete the job later.
	ErrForwardFailed = errors.New("forward to destination failed")

	// ErrNoResponseYet indicates no AI response has been recorded for the
	// submission id. Expected and retriable; callers should keep polling.
	ErrNoResponseYet = errors.New("no response available yet")
)
