// Package transport provides HTTP round trippers for talking to model APIs.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMaxWait    = 2 * time.Minute
	DefaultMaxRetries = 5
)

// RateLimitedTransport retries requests that were rejected with 429 Too Many Requests, waiting as long as the server's
// retry-after header asks. Responses without a usable retry-after, or asking for more than the maximum wait, are
// returned to the caller unchanged.
type RateLimitedTransport struct {
	base       http.RoundTripper
	maxWait    time.Duration
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*RateLimitedTransport)

func WithMaxWait(d time.Duration) Option {
	return func(t *RateLimitedTransport) { t.maxWait = d }
}

func WithMaxRetries(n int) Option {
	return func(t *RateLimitedTransport) { t.maxRetries = n }
}

func WithRateLimiting(base http.RoundTripper, opts ...Option) *RateLimitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &RateLimitedTransport{
		base:       base,
		maxWait:    DefaultMaxWait,
		maxRetries: DefaultMaxRetries,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewClient returns an http.Client using a rate-limited default transport
func NewClient(opts ...Option) *http.Client {
	return &http.Client{Transport: WithRateLimiting(nil, opts...)}
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Preserve the original request body for retries
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		err = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to close request body: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		// Restore the request body for each attempt
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return resp, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= t.maxRetries {
			return resp, nil
		}

		waitDuration, ok := parseRetryAfter(resp.Header.Get("retry-after"), time.Now())
		if !ok || waitDuration > t.maxWait {
			return resp, nil
		}

		// Close the response body to free resources
		_, _ = io.Copy(io.Discard, resp.Body)
		if err := resp.Body.Close(); err != nil {
			return nil, fmt.Errorf("failed to close response body: %w", err)
		}

		log.Printf("Rate limited, waiting %s", waitDuration)
		if err := t.sleep(req.Context(), waitDuration); err != nil {
			return nil, err
		}
	}
}

// parseRetryAfter accepts either delay-seconds or an HTTP date
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryTime, err := http.ParseTime(value); err == nil {
		d := retryTime.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
