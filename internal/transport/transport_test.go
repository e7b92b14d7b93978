package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testTransport serves the given statuses in order, each with the given retry-after header, and records request
// bodies and requested waits
func testTransport(t *testing.T, retryAfter string, statuses ...int) (*http.Client, string, func() []string, *[]time.Duration) {
	t.Helper()
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		i := len(bodies) - 1
		mu.Unlock()
		status := http.StatusOK
		if i < len(statuses) {
			status = statuses[i]
		}
		if retryAfter != "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	var waits []time.Duration
	rt := WithRateLimiting(nil, WithMaxWait(10*time.Second), WithMaxRetries(3))
	rt.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	received := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), bodies...)
	}
	return &http.Client{Transport: rt}, srv.URL, received, &waits
}

func TestRateLimitedTransport_RetriesWithBody(t *testing.T) {
	client, url, bodies, waits := testTransport(t, "2", http.StatusTooManyRequests, http.StatusTooManyRequests)

	resp, err := client.Post(url, "text/plain", strings.NewReader("payload"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"payload", "payload", "payload"}, bodies())
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *waits)
}

func TestRateLimitedTransport_NoRetryAfter(t *testing.T) {
	client, url, bodies, waits := testTransport(t, "", http.StatusTooManyRequests)

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Len(t, bodies(), 1)
	require.Empty(t, *waits)
}

func TestRateLimitedTransport_WaitTooLong(t *testing.T) {
	client, url, _, waits := testTransport(t, "3600", http.StatusTooManyRequests)

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Empty(t, *waits)
}

func TestRateLimitedTransport_GivesUpAfterMaxRetries(t *testing.T) {
	client, url, bodies, waits := testTransport(t, "1",
		http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests,
		http.StatusTooManyRequests, http.StatusTooManyRequests)

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Len(t, bodies(), 4)
	require.Len(t, *waits, 3)
}

func TestRateLimitedTransport_ContextCanceled(t *testing.T) {
	client, url, _, _ := testTransport(t, "1", http.StatusTooManyRequests)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitedTransport_OtherStatusesPassThrough(t *testing.T) {
	client, url, bodies, _ := testTransport(t, "1", http.StatusInternalServerError)

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Len(t, bodies(), 1)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	d, ok := parseRetryAfter("30", now)
	require.True(t, ok)
	require.Equal(t, 30*time.Second, d)

	d, ok = parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now)
	require.True(t, ok)
	require.Equal(t, 90*time.Second, d)

	d, ok = parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now)
	require.True(t, ok)
	require.Zero(t, d)

	for _, bad := range []string{"", "  ", "-5", "soon"} {
		_, ok := parseRetryAfter(bad, now)
		require.False(t, ok, bad)
	}
}
