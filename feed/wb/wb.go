// Package wb fetches the Wildberries box-tariffs feed. The endpoint returns
// arbitrary JSON; interpreting it is the canonicalizer's job, this package
// only guarantees a syntactically valid payload or a FetchError.
package wb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wb-tariffs-sync/config"
	"wb-tariffs-sync/metrics"
	"wb-tariffs-sync/utils"
)

// errorBodyLimit bounds how much of a non-2xx response body is kept for
// diagnostics.
const errorBodyLimit = 800

// FetchError reports exhaustion of the retry budget against the feed.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client performs resilient GETs against the tariffs endpoint.
type Client struct {
	endpoint     string
	token        string
	authHeader   string
	extraQuery   string
	dateOverride string

	http    *http.Client
	timeout time.Duration
	retry   *utils.RetryConfig
	logger  *utils.Logger
	metrics *metrics.Metrics
}

// New creates a ready-to-use feed Client.
func New(cfg *config.Config, logger *utils.Logger, m *metrics.Metrics) *Client {
	return &Client{
		endpoint:     cfg.TariffsEndpoint,
		token:        strings.TrimSpace(cfg.APIToken),
		authHeader:   cfg.AuthHeaderName,
		extraQuery:   cfg.ExtraQuery,
		dateOverride: strings.TrimSpace(cfg.DateOverride),
		http:         &http.Client{},
		timeout:      time.Duration(cfg.RequestTimeoutMs) * time.Millisecond,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.FetchMaxAttempts,
			Backoff: utils.Backoff{
				Base:   300 * time.Millisecond,
				Cap:    5 * time.Second,
				Jitter: 300 * time.Millisecond,
			},
			Logger: logger,
		},
		logger:  logger,
		metrics: m,
	}
}

// HasToken reports whether a credential is configured. Without one the caller
// skips the cycle instead of fetching.
func (c *Client) HasToken() bool { return c.token != "" }

// Fetch retrieves the raw tariffs payload for the given day, retrying with
// capped linear backoff. The returned bytes are valid JSON.
func (c *Client) Fetch(ctx context.Context, day string) (json.RawMessage, error) {
	u, err := c.buildURL(day)
	if err != nil {
		return nil, fmt.Errorf("wb: build url: %w", err)
	}

	c.logger.Debug("[wb] GET %s", u)

	var payload json.RawMessage
	err = c.retry.Do(ctx, "wb-tariffs-fetch", func() error {
		body, attemptErr := c.attempt(ctx, u)
		if attemptErr != nil {
			c.metrics.FetchAttemptsTotal.WithLabelValues("error").Inc()
			return attemptErr
		}
		c.metrics.FetchAttemptsTotal.WithLabelValues("ok").Inc()
		payload = body
		return nil
	})
	if err != nil {
		return nil, &FetchError{URL: u, Attempts: c.retry.MaxAttempts, Err: err}
	}
	return payload, nil
}

// attempt performs one bounded HTTP round-trip.
func (c *Client) attempt(ctx context.Context, u string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(c.authHeader, c.authHeaderValue())
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet := body
		if len(snippet) > errorBodyLimit {
			snippet = snippet[:errorBodyLimit]
		}
		return nil, fmt.Errorf("http %d %s | %s", res.StatusCode, http.StatusText(res.StatusCode), snippet)
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("response is not valid json (%d bytes)", len(body))
	}
	return body, nil
}

// buildURL appends date and templated extra parameters without overriding
// anything already present in the configured endpoint.
func (c *Client) buildURL(day string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(c.endpoint))
	if err != nil {
		return "", err
	}

	dateStr := day
	if c.dateOverride != "" {
		dateStr = c.dateOverride
	}

	q := u.Query()
	if !q.Has("date") {
		q.Set("date", dateStr)
	}

	if strings.TrimSpace(c.extraQuery) != "" {
		rendered := strings.ReplaceAll(c.extraQuery, "{today}", dateStr)
		extra, err := url.ParseQuery(rendered)
		if err != nil {
			return "", fmt.Errorf("extra query %q: %w", c.extraQuery, err)
		}
		for k, vals := range extra {
			if !q.Has(k) && len(vals) > 0 {
				q.Set(k, vals[0])
			}
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// authHeaderValue prefixes a bare token with the Bearer scheme when it is
// destined for the standard Authorization header.
func (c *Client) authHeaderValue() string {
	if strings.EqualFold(c.authHeader, "Authorization") &&
		!strings.HasPrefix(strings.ToLower(c.token), "bearer ") {
		return "Bearer " + c.token
	}
	return c.token
}
