package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"
)

// DefaultUserAgent is sent when no agent is configured. Wikipedia rejects
// requests without one.
const DefaultUserAgent = "analyst/1.0 (+https://github.com/KaramelBytes/analyst)"

// maxPageBytes caps how much of a page is read into memory.
const maxPageBytes = 16 << 20

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("fetch %s: status=%d retry_after=%s", e.URL, e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("fetch %s: status=%d", e.URL, e.StatusCode)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || (e.StatusCode >= 500 && e.StatusCode <= 599)
}

// Fetcher downloads pages with bounded retries.
type Fetcher struct {
	client    *http.Client
	retryMax  int
	baseDelay time.Duration
	maxDelay  time.Duration
	userAgent string
}

// NewFetcher returns a Fetcher; zero values pick the defaults used by the CLI.
func NewFetcher(timeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		retryMax:  retryMax,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		userAgent: DefaultUserAgent,
	}
}

// WithUserAgent overrides the User-Agent header.
func (f *Fetcher) WithUserAgent(ua string) *Fetcher {
	if ua != "" {
		f.userAgent = ua
	}
	return f
}

// Fetch GETs url and returns the body. Timeouts, 429 and 5xx are retried
// with jittered exponential backoff; Retry-After is honoured when present.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	backoff := f.baseDelay
	var lastErr error
	for attempt := 1; attempt <= f.retryMax; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := f.once(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if attempt == f.retryMax || !retryable(err) {
			break
		}
		wait := withJitter(backoff)
		if wait > f.maxDelay {
			wait = f.maxDelay
		}
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > 0 {
			wait = se.RetryAfter
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (f *Fetcher) once(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 8<<10))
		se := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := parseRetryAfterSeconds(ra); err == nil && secs > 0 {
				se.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, se
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// parseRetryAfterSeconds accepts delta-seconds or an HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// withJitter spreads d by +/- 20%.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	out := time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
	if out <= 0 {
		return d
	}
	return out
}
