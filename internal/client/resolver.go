package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// State labels where a resolution attempt ended up.
type State string

const (
	// StateImmediate means the submit call itself carried the response.
	StateImmediate State = "immediate"
	// StateAwaiting means no response has been found yet.
	StateAwaiting State = "awaiting"
	// StateResolved means a response was obtained from cache or network.
	StateResolved State = "resolved"
	// StateTimedOut means the attempt budget ran out and the fixed fallback
	// notice was rendered instead.
	StateTimedOut State = "timed_out"
	// StateErrored means polling hit the error budget; the caller should
	// surface a visible error rather than the soft fallback.
	StateErrored State = "errored"
)

// ErrTooManyFailures is returned by Await when polling aborts after repeated
// transport or server errors.
var ErrTooManyFailures = errors.New("too many polling failures")

// fallbackNotice is rendered when polling exhausts its attempt budget. It is
// deliberately generic; a later real callback can still overwrite it upstream
// because server-side writes are idempotent upserts.
const fallbackNotice = `<div className="p-6 bg-white rounded-lg shadow-md">
  <h2 className="text-2xl font-bold mb-4">Thanks for your submission!</h2>
  <p className="mb-4">
    Your custom action plan is still being prepared. We'll be in touch shortly with the full details.
  </p>
  <p className="mb-4">
    In the meantime, you can schedule your kickoff call using the following link:
    <a href="https://calendly.com/frayze/demo" className="text-blue-500 underline">Schedule Kickoff Call</a>
  </p>
</div>`

// Config controls a Resolver. Zero values fall back to the defaults noted on
// each field.
type Config struct {
	// Endpoint is the callback lookup URL, e.g. "http://host/api/v1/callback".
	Endpoint string
	// Interval between polling attempts. Default 3s.
	Interval time.Duration
	// MaxAttempts is the not-found budget before giving up. Default 12.
	MaxAttempts int
	// MaxErrors is the transport/server error budget. Default 5.
	MaxErrors int
	// HTTPClient used for lookups. Default http.Client with the poll
	// interval as its timeout.
	HTTPClient *http.Client
}

// Result is the outcome of a resolution pass.
type Result struct {
	State    State
	Response *CachedResponse
	Attempts int
}

// Resolver drives the cache-first resolution cascade for a submission:
// consult the shared cache, then the callback endpoint, and after a bounded
// number of not-found ticks render the fallback notice. A Resolver is safe
// for concurrent use; all per-submission state lives on the stack of each
// Await call.
type Resolver struct {
	cache Cache
	cfg   Config
}

// NewResolver builds a Resolver over the given cache, applying defaults for
// unset Config fields.
func NewResolver(cache Cache, cfg Config) *Resolver {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 12
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 5
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Interval}
	}
	return &Resolver{cache: cache, cfg: cfg}
}

// Resolve records an inline response returned by the submit call itself.
// When immediate is empty it reports StateAwaiting so the caller knows to
// start polling.
func (r *Resolver) Resolve(id, immediate string) Result {
	if immediate == "" {
		return Result{State: StateAwaiting}
	}
	resp := CachedResponse{
		SubmissionID: id,
		Content:      immediate,
		Timestamp:    time.Now().UTC(),
		Source:       "immediate",
	}
	r.cache.Put(id, resp)
	return Result{State: StateImmediate, Response: &resp}
}

// CheckNow runs the resolution cascade exactly once: cache, then network,
// then not-found. It never sleeps and never touches the polling budgets, so
// it is safe to call from a manual "check now" action while Await is running.
func (r *Resolver) CheckNow(ctx context.Context, id string) (Result, error) {
	if cached, ok := r.cache.Get(id); ok {
		return Result{State: StateResolved, Response: cached}, nil
	}
	resp, found, err := r.fetch(ctx, id)
	if err != nil {
		return Result{State: StateAwaiting}, err
	}
	if !found {
		return Result{State: StateAwaiting}, nil
	}
	r.cache.Put(id, *resp)
	return Result{State: StateResolved, Response: resp}, nil
}

// Await polls until the submission resolves, the attempt budget runs out, or
// ctx is cancelled. The ticker is always stopped before return.
//
// Each tick consults the cache before the network; once any path has cached a
// response for id, no further network calls are made for it. Not-found counts
// toward MaxAttempts; transport and server errors count toward MaxErrors.
// On timeout the fallback notice is cached under id (source "fallback") and
// returned, so a later manual check is consistent with what was shown.
func (r *Resolver) Await(ctx context.Context, id string) (Result, error) {
	if res, done := r.tick(ctx, id, nil, nil); done {
		return res, nil
	}

	var attempts, errCount int
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{State: StateAwaiting, Attempts: attempts}, ctx.Err()
		case <-ticker.C:
			res, done := r.tick(ctx, id, &attempts, &errCount)
			if done {
				res.Attempts = attempts
				return res, nil
			}
			if errCount >= r.cfg.MaxErrors {
				return Result{State: StateErrored, Attempts: attempts},
					fmt.Errorf("%w: %d consecutive errors", ErrTooManyFailures, errCount)
			}
			if attempts >= r.cfg.MaxAttempts {
				return r.timeout(id, attempts), nil
			}
		}
	}
}

// tick runs one cache-then-network pass. attempts and errCount may be nil for
// the pre-loop check, which must not consume any budget.
func (r *Resolver) tick(ctx context.Context, id string, attempts, errCount *int) (Result, bool) {
	if cached, ok := r.cache.Get(id); ok {
		return Result{State: StateResolved, Response: cached}, true
	}
	resp, found, err := r.fetch(ctx, id)
	if err != nil {
		if errCount != nil {
			*errCount++
		}
		return Result{}, false
	}
	if errCount != nil {
		*errCount = 0
	}
	if !found {
		if attempts != nil {
			*attempts++
		}
		return Result{}, false
	}
	r.cache.Put(id, *resp)
	return Result{State: StateResolved, Response: resp}, true
}

// timeout caches and returns the fixed fallback notice. The cache write makes
// the notice sticky for this process, so it is rendered once and repeat
// lookups see the same content.
func (r *Resolver) timeout(id string, attempts int) Result {
	resp := CachedResponse{
		SubmissionID: id,
		Content:      fallbackNotice,
		Timestamp:    time.Now().UTC(),
		Source:       "fallback",
	}
	r.cache.Put(id, resp)
	return Result{State: StateTimedOut, Response: &resp, Attempts: attempts}
}

// fetch queries the callback endpoint for id. found is false on 404, which
// the state machine treats as "keep polling" rather than an error.
func (r *Resolver) fetch(ctx context.Context, id string) (resp *CachedResponse, found bool, err error) {
	u := r.cfg.Endpoint + "?submissionId=" + url.QueryEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", id, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return nil, false, nil
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, false, fmt.Errorf("lookup %s: unexpected status %d", id, httpResp.StatusCode)
	}

	var body struct {
		Success      bool   `json:"success"`
		SubmissionID string `json:"submissionId"`
		AIResponse   string `json:"aiResponse"`
		Timestamp    string `json:"timestamp"`
	}
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 4<<20)).Decode(&body); err != nil {
		return nil, false, fmt.Errorf("decode lookup response: %w", err)
	}
	if !body.Success || body.AIResponse == "" {
		return nil, false, nil
	}

	ts := time.Now().UTC()
	if t, perr := time.Parse(time.RFC3339, body.Timestamp); perr == nil {
		ts = t
	}
	return &CachedResponse{
		SubmissionID: id,
		Content:      body.AIResponse,
		Timestamp:    ts,
		Source:       "callback",
	}, true, nil
}
