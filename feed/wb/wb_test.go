package wb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wb-tariffs-sync/config"
	"wb-tariffs-sync/metrics"
	"wb-tariffs-sync/utils"
)

func newTestClient(t *testing.T, endpoint string, mutate func(cfg *config.Config)) *Client {
	t.Helper()
	cfg := &config.Config{
		TariffsEndpoint:  endpoint,
		APIToken:         "test-token",
		AuthHeaderName:   "Authorization",
		RequestTimeoutMs: 2000,
		FetchMaxAttempts: 3,
	}
	if mutate != nil {
		mutate(cfg)
	}
	c := New(cfg, utils.NewLogger(), metrics.New(prometheus.NewRegistry()))
	// Keep tests fast.
	c.retry.Backoff = utils.Backoff{Base: time.Millisecond, Cap: 5 * time.Millisecond}
	return c
}

func TestFetchSucceedsAfterTransientFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	payload, err := newTestClient(t, srv.URL, nil).Fetch(context.Background(), "2026-09-01")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(payload) != `{"ok": true}` {
		t.Errorf("payload = %s", payload)
	}
	if hits != 3 {
		t.Errorf("server hit %d times, want 3", hits)
	}
}

func TestFetchExhaustsRetryBudget(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "upstream broken", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).Fetch(context.Background(), "2026-09-01")
	if err == nil {
		t.Fatal("expected an error")
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", fe.Attempts)
	}
	if hits != 3 {
		t.Errorf("server hit %d times, want exactly the retry ceiling", hits)
	}
	if !strings.Contains(err.Error(), "http 500") {
		t.Errorf("error should carry the HTTP status: %v", err)
	}
	if !strings.Contains(err.Error(), "upstream broken") {
		t.Errorf("error should carry the response body: %v", err)
	}
}

func TestFetchTruncatesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(strings.Repeat("x", 2000) + "TAIL"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).Fetch(context.Background(), "2026-09-01")
	if err == nil {
		t.Fatal("expected an error")
	}
	if strings.Contains(err.Error(), "TAIL") {
		t.Error("error body was not truncated")
	}
}

func TestFetchRejectsInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>definitely not json</html>"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).Fetch(context.Background(), "2026-09-01")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError for invalid JSON, got %v", err)
	}
}

func TestFetchPerAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *config.Config) {
		cfg.RequestTimeoutMs = 20
		cfg.FetchMaxAttempts = 2
	})
	c.retry.Backoff = utils.Backoff{Base: time.Millisecond, Cap: time.Millisecond}

	start := time.Now()
	_, err := c.Fetch(context.Background(), "2026-09-01")
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("attempts were not bounded by the per-attempt timeout: %v", elapsed)
	}
}

func TestFetchSendsHeaders(t *testing.T) {
	var accept, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL, nil).Fetch(context.Background(), "2026-09-01"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if accept != "application/json" {
		t.Errorf("Accept = %q", accept)
	}
	if auth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want automatic Bearer prefix", auth)
	}
}

func TestAuthHeaderValue(t *testing.T) {
	tests := []struct {
		name   string
		header string
		token  string
		want   string
	}{
		{"bare token gets bearer prefix", "Authorization", "abc123", "Bearer abc123"},
		{"existing prefix kept", "Authorization", "Bearer abc123", "Bearer abc123"},
		{"prefix check is case-insensitive", "Authorization", "bearer abc123", "bearer abc123"},
		{"header name is case-insensitive", "authorization", "abc123", "Bearer abc123"},
		{"custom header left untouched", "X-Api-Key", "abc123", "abc123"},
	}

	for _, tt := range tests {
		c := newTestClient(t, "https://example.com/api", func(cfg *config.Config) {
			cfg.AuthHeaderName = tt.header
			cfg.APIToken = tt.token
		})
		if got := c.authHeaderValue(); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		extra    string
		override string
		day      string
		want     map[string]string
	}{
		{
			name:     "adds date",
			endpoint: "https://api.example.com/tariffs/box",
			day:      "2026-09-01",
			want:     map[string]string{"date": "2026-09-01"},
		},
		{
			name:     "keeps existing date",
			endpoint: "https://api.example.com/tariffs/box?date=2020-01-01",
			day:      "2026-09-01",
			want:     map[string]string{"date": "2020-01-01"},
		},
		{
			name:     "renders today placeholder",
			endpoint: "https://api.example.com/tariffs/box",
			extra:    "from={today}&kind=box",
			day:      "2026-09-01",
			want:     map[string]string{"date": "2026-09-01", "from": "2026-09-01", "kind": "box"},
		},
		{
			name:     "extra params never override",
			endpoint: "https://api.example.com/tariffs/box?kind=pallet",
			extra:    "kind=box",
			day:      "2026-09-01",
			want:     map[string]string{"kind": "pallet"},
		},
		{
			name:     "date override wins",
			endpoint: "https://api.example.com/tariffs/box",
			override: "2025-12-31",
			day:      "2026-09-01",
			want:     map[string]string{"date": "2025-12-31"},
		},
	}

	for _, tt := range tests {
		c := newTestClient(t, tt.endpoint, func(cfg *config.Config) {
			cfg.ExtraQuery = tt.extra
			cfg.DateOverride = tt.override
		})
		got, err := c.buildURL(tt.day)
		if err != nil {
			t.Errorf("%s: buildURL: %v", tt.name, err)
			continue
		}
		u, err := url.Parse(got)
		if err != nil {
			t.Errorf("%s: parse result: %v", tt.name, err)
			continue
		}
		q := u.Query()
		for k, want := range tt.want {
			if q.Get(k) != want {
				t.Errorf("%s: param %s = %q, want %q (url %s)", tt.name, k, q.Get(k), want, got)
			}
		}
	}
}
