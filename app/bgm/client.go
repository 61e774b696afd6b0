package bgm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	ConnectTimeout = 10 * time.Second
	ReadTimeout    = 30 * time.Second
	MaxAttempts    = 3
)

// FetchError describes a request that did not produce a usable response.
// Transient errors (network, 5xx, 429, malformed body) are retried;
// others fail on the first attempt.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s failed after %d attempt(s): HTTP %d: %v", e.URL, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewHTTPClient builds the client shared by the catalog and the lister.
// Every attempt is bounded by the connect and read timeouts.
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   ConnectTimeout,
		ResponseHeaderTimeout: ReadTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   4,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   ConnectTimeout + ReadTimeout,
	}
}

// RetryPolicy retries transient failures. Backoff returns the wait after
// the given failed attempt (1-based).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: MaxAttempts,
		Backoff:     ExponentialBackoff,
	}
}

// ExponentialBackoff waits 2^attempt seconds: 2s, 4s, ...
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Do runs fn until it succeeds, returns a non-transient error, or runs out
// of attempts. The returned error is always a *FetchError.
func (p RetryPolicy) Do(ctx context.Context, what string, fn func(ctx context.Context) error) error {
	maxAttempts := max(p.MaxAttempts, 1)

	var lastErr *FetchError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			fetchErr = &FetchError{Transient: true, Err: err}
		}
		fetchErr.Attempts = attempt
		lastErr = fetchErr

		if !fetchErr.Transient {
			slog.Error("Request failed permanently", "target", what, "attempt", attempt, "error", fetchErr.Err)
			return fetchErr
		}

		if attempt == maxAttempts {
			slog.Error("Request failed, retries exhausted", "target", what, "attempts", attempt, "error", fetchErr.Err)
			break
		}

		wait := time.Duration(0)
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		slog.Warn("Request failed, retrying", "target", what, "attempt", attempt, "wait", wait.String(), "error", fetchErr.Err)

		if err := Sleep(ctx, wait); err != nil {
			lastErr.Err = fmt.Errorf("%w (retry aborted: %v)", lastErr.Err, err)
			return lastErr
		}
	}

	return lastErr
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// get performs one GET attempt and classifies its failure.
func get(ctx context.Context, httpClient *http.Client, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Transient: ctx.Err() == nil, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Transient:  isTransientStatus(resp.StatusCode),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Transient: true, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return data, nil
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
