package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
)

type rateCase struct {
	remoteAddr string
	user       string
	header     map[string]string
	want       int
}

func runRateCases(t *testing.T, handler http.Handler, cases []rateCase) {
	t.Helper()
	for i, c := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/points/charge", nil)
		req.RemoteAddr = c.remoteAddr
		for k, v := range c.header {
			req.Header.Set(k, v)
		}
		if c.user != "" {
			req = req.WithContext(WithUserID(req.Context(), c.user))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Fatalf("request %d: expected %d got %d", i, c.want, rec.Code)
		}
	}
}

func TestRateLimitPerUserAcrossAddresses(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("mutations", time.Minute, 0, 2), newCountingStore(), nil)(okHandler())
	runRateCases(t, handler, []rateCase{
		{remoteAddr: "10.0.0.1:1234", user: "buyer-1", want: http.StatusOK},
		{remoteAddr: "10.0.0.2:1234", user: "buyer-1", want: http.StatusOK},
		{remoteAddr: "10.0.0.3:1234", user: "buyer-1", want: http.StatusTooManyRequests},
		{remoteAddr: "10.0.0.3:1234", user: "buyer-2", want: http.StatusOK},
	})
}

func TestRateLimitPerAddressHonoursForwardedFor(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("mutations", time.Minute, 1, 0), newCountingStore(), nil)(okHandler())
	runRateCases(t, handler, []rateCase{
		{remoteAddr: "5.6.7.8:1234", want: http.StatusOK},
		{remoteAddr: "5.6.7.8:9999", want: http.StatusTooManyRequests},
		{remoteAddr: "5.6.7.8:1234", header: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, want: http.StatusOK},
		{remoteAddr: "10.9.9.9:1", header: map[string]string{"X-Real-IP": "203.0.113.9"}, want: http.StatusTooManyRequests},
	})
}

func TestRateLimitRejectionBody(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("mutations", 90*time.Second, 1, 0), newCountingStore(), nil)(okHandler())
	var rec *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "90" {
		t.Fatalf("expected Retry-After 90, got %q", got)
	}
	var payload struct {
		Error struct {
			Code      string         `json:"code"`
			Retryable bool           `json:"retryable"`
			Details   map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeRateLimit) || payload.Error.Details["scope"] != "ip" || !payload.Error.Retryable {
		t.Fatalf("unexpected error body %s", rec.Body.String())
	}
}

func TestRateLimitStoreFailureIsDependencyError(t *testing.T) {
	store := newCountingStore()
	store.err = errors.New("redis down")
	handler := RateLimit(NewRateLimitPolicy("mutations", time.Minute, 5, 5), store, nil)(okHandler())
	runRateCases(t, handler, []rateCase{{remoteAddr: "1.2.3.4:1", want: http.StatusServiceUnavailable}})
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := newCountingStore()
	for _, policy := range []RateLimitPolicy{
		NewRateLimitPolicy("off", 0, 1, 1),
		NewRateLimitPolicy("off", time.Minute, 0, 0),
	} {
		handler := RateLimit(policy, store, nil)(okHandler())
		runRateCases(t, handler, []rateCase{
			{remoteAddr: "1.1.1.1:1", want: http.StatusOK},
			{remoteAddr: "1.1.1.1:1", want: http.StatusOK},
		})
	}
	if len(store.counts) != 0 {
		t.Fatalf("expected no counters, got %v", store.counts)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type countingStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newCountingStore() *countingStore {
	return &countingStore{counts: map[string]int64{}}
}

func (s *countingStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.counts[key]++
	return s.counts[key], nil
}
