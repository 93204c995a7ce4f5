package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

const (
	maxRetries    = 3
	maxRetryAfter = 60 * time.Second
)

// transientError is a response worth retrying: a 5xx or a rate limit.
type transientError struct {
	status int
	body   string
}

func (e *transientError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

// doWithRetry runs the request up to maxRetries+1 times. Network
// failures, 5xx responses, and 429s are retried. A 429 carrying a
// usable Retry-After header waits exactly that long; everything else
// backs off quadratically with jitter.
func doWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr error
	var wait time.Duration

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if wait <= 0 {
				base := time.Duration(attempt*attempt) * time.Second
				wait = base + time.Duration(rand.Int64N(int64(base/2+1)))
			}
			logger.Warn("retrying request", "attempt", attempt+1, "wait", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait = 0
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request: %w", err)
			logger.Warn("request failed", "err", err)
			continue
		}

		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastErr = &transientError{status: resp.StatusCode, body: string(body)}
		if resp.StatusCode == http.StatusTooManyRequests {
			wait = retryAfter(resp.Header)
		}
		logger.Warn("transient response, will retry",
			"status", resp.StatusCode, "body", string(body))
	}

	return nil, fmt.Errorf("giving up after %d retries: %w", maxRetries, lastErr)
}

// retryAfter reads a delay-seconds Retry-After value; 0 when absent or
// unusable.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}
