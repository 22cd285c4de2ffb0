package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newResolver(endpoint string, maxAttempts, maxErrors int) (*Resolver, *MemoryCache) {
	cache := NewMemoryCache()
	r := NewResolver(cache, Config{
		Endpoint:    endpoint,
		Interval:    2 * time.Millisecond,
		MaxAttempts: maxAttempts,
		MaxErrors:   maxErrors,
		HTTPClient:  &http.Client{Timeout: time.Second},
	})
	return r, cache
}

func notFoundServer(calls *atomic.Int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"message":"no response available yet"}`))
	}))
}

func TestResolve_ImmediateCachesContent(t *testing.T) {
	r, cache := newResolver("http://unused", 3, 3)

	res := r.Resolve("s1", "<p>plan</p>")
	if res.State != StateImmediate || res.Response == nil {
		t.Fatalf("res=%+v", res)
	}
	cached, ok := cache.Get("s1")
	if !ok || cached.Content != "<p>plan</p>" || cached.Source != "immediate" {
		t.Fatalf("cached=%+v ok=%v", cached, ok)
	}
}

func TestResolve_EmptyMeansAwaiting(t *testing.T) {
	r, cache := newResolver("http://unused", 3, 3)

	res := r.Resolve("s1", "")
	if res.State != StateAwaiting || res.Response != nil {
		t.Fatalf("res=%+v", res)
	}
	if _, ok := cache.Get("s1"); ok {
		t.Fatalf("nothing should be cached")
	}
}

func TestCheckNow_CacheFirstSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := notFoundServer(&calls)
	defer srv.Close()

	r, cache := newResolver(srv.URL, 3, 3)
	cache.Put("s1", CachedResponse{SubmissionID: "s1", Content: "<p>cached</p>", Source: "callback"})

	res, err := r.CheckNow(context.Background(), "s1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.State != StateResolved || res.Response.Content != "<p>cached</p>" {
		t.Fatalf("res=%+v", res)
	}
	if calls.Load() != 0 {
		t.Fatalf("cache hit must not touch the network, got %d calls", calls.Load())
	}
}

func TestCheckNow_NetworkHitPopulatesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("submissionId"); got != "s1" {
			t.Errorf("submissionId=%q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"submissionId":"s1","aiResponse":"<p>net</p>","timestamp":"2025-06-01T12:00:00Z"}`))
	}))
	defer srv.Close()

	r, cache := newResolver(srv.URL, 3, 3)

	res, err := r.CheckNow(context.Background(), "s1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.State != StateResolved || res.Response.Source != "callback" {
		t.Fatalf("res=%+v", res)
	}
	cached, ok := cache.Get("s1")
	if !ok || cached.Content != "<p>net</p>" {
		t.Fatalf("cache not populated: %+v", cached)
	}
	if !cached.Timestamp.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp=%v", cached.Timestamp)
	}
}

func TestCheckNow_NotFoundStaysAwaiting(t *testing.T) {
	var calls atomic.Int64
	srv := notFoundServer(&calls)
	defer srv.Close()

	r, _ := newResolver(srv.URL, 3, 3)

	res, err := r.CheckNow(context.Background(), "s1")
	if err != nil {
		t.Fatalf("not-found is not an error: %v", err)
	}
	if res.State != StateAwaiting {
		t.Fatalf("res=%+v", res)
	}
}

func TestAwait_ResolvesWhenResponseAppears(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Not found for the first two polls, then available.
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"submissionId":"s1","aiResponse":"<p>late</p>"}`))
	}))
	defer srv.Close()

	r, _ := newResolver(srv.URL, 10, 3)

	res, err := r.Await(context.Background(), "s1")
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if res.State != StateResolved || res.Response.Content != "<p>late</p>" {
		t.Fatalf("res=%+v", res)
	}
}

func TestAwait_BoundedPollingRendersFallbackOnce(t *testing.T) {
	var calls atomic.Int64
	srv := notFoundServer(&calls)
	defer srv.Close()

	r, cache := newResolver(srv.URL, 4, 3)

	res, err := r.Await(context.Background(), "s1")
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if res.State != StateTimedOut {
		t.Fatalf("state=%v, want timed out", res.State)
	}
	if res.Response == nil || res.Response.Source != "fallback" {
		t.Fatalf("res=%+v", res)
	}
	if res.Attempts != 4 {
		t.Fatalf("attempts=%d, want exactly the configured bound", res.Attempts)
	}

	// The fallback is cached, so every later read is consistent and quiet.
	cached, ok := cache.Get("s1")
	if !ok || cached.Content != res.Response.Content {
		t.Fatalf("fallback not cached: %+v", cached)
	}
	callsBefore := calls.Load()

	again, err := r.Await(context.Background(), "s1")
	if err != nil {
		t.Fatalf("second await: %v", err)
	}
	if again.State != StateResolved {
		t.Fatalf("second await should resolve from cache, got %v", again.State)
	}
	if calls.Load() != callsBefore {
		t.Fatalf("cached fallback must not trigger more polls")
	}
}

func TestAwait_ContextCancelStopsPolling(t *testing.T) {
	var calls atomic.Int64
	srv := notFoundServer(&calls)
	defer srv.Close()

	// Large budgets; only cancellation can end this await.
	r, _ := newResolver(srv.URL, 100000, 100000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var res Result
	var err error
	go func() {
		res, err = r.Await(ctx, "s1")
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("await did not stop after cancel")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if res.State != StateAwaiting {
		t.Fatalf("state=%v", res.State)
	}

	// No leaked ticker: the poll count must stop growing. Quiesce any
	// request still in flight at cancel time before sampling the counter.
	srv.CloseClientConnections()
	settled := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != settled {
		t.Fatalf("polling continued after teardown")
	}
}

func TestAwait_RepeatedServerErrorsGiveUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, cache := newResolver(srv.URL, 100, 3)

	res, err := r.Await(context.Background(), "s1")
	if !errors.Is(err, ErrTooManyFailures) {
		t.Fatalf("err=%v, want ErrTooManyFailures", err)
	}
	if res.State != StateErrored {
		t.Fatalf("state=%v", res.State)
	}
	// A hard error must not masquerade as a resolved response.
	if _, ok := cache.Get("s1"); ok {
		t.Fatalf("errored await must not cache anything")
	}
}

func TestMemoryCache_LastWriteWins(t *testing.T) {
	c := NewMemoryCache()
	if _, ok := c.Get("x"); ok {
		t.Fatalf("empty cache hit")
	}
	c.Put("x", CachedResponse{Content: "a"})
	c.Put("x", CachedResponse{Content: "b"})
	got, ok := c.Get("x")
	if !ok || got.Content != "b" {
		t.Fatalf("got=%+v", got)
	}
	// Mutating the returned copy must not affect the cache.
	got.Content = "mutated"
	again, _ := c.Get("x")
	if again.Content != "b" {
		t.Fatalf("cache entry mutated through returned pointer")
	}
}
