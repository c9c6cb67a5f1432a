// Package httpds implements a data source that downloads its input over
// HTTP, retrying transient failures with exponential backoff.
package httpds

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lverweijen/fellegiholt/internal/datasource"
)

// ErrStatus is returned for a final non-2xx response.
var ErrStatus = errors.New("httpds: unexpected status")

// Config configures a Source. Zero values get defaults:
//   - Timeout:        30s
//   - MaxRetries:     3
//   - InitialBackoff: 200ms
//   - MaxBackoff:     5s
type Config struct {
	Timeout time.Duration
	// MaxRetries counts attempts after the first one. Negative means none.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	InsecureSkipVerify bool
	Headers            http.Header

	// Transport replaces the default transport, mostly for tests.
	Transport http.RoundTripper
}

// Source fetches one URL with GET.
type Source struct {
	url            string
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	headers        http.Header
}

var _ datasource.Source = (*Source)(nil)

// New returns a Source bound to url.
//
// Behavior:
//   - Zero fields of cfg get the defaults listed on Config. A negative
//     MaxRetries disables retries.
//   - Without cfg.Transport a transport honoring the proxy environment is
//     built; InsecureSkipVerify only applies to that transport.
//   - cfg.Headers is copied, so later changes by the caller have no effect.
//
// New does no I/O. An empty url is reported by Open.
func New(url string, cfg Config) *Source {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	tr := cfg.Transport
	if tr == nil {
		tr = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // opt-in
		}
	}
	return &Source{
		url:            url,
		client:         &http.Client{Timeout: cfg.Timeout, Transport: tr},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		headers:        cfg.Headers.Clone(),
	}
}

// URL returns the configured URL.
func (s *Source) URL() string { return s.url }

// Open issues a GET and returns the response body.
//
// Behavior:
//   - Transport errors, 429 and 5xx responses are retried up to MaxRetries
//     times. The wait starts at InitialBackoff and doubles per attempt,
//     capped at MaxBackoff.
//   - Any other non-2xx status fails at once with ErrStatus and is not
//     retried.
//   - When retries run out, the last error is returned (ErrStatus for a
//     status failure).
//   - Cancelling ctx stops both the request and the backoff wait, returning
//     ctx.Err().
//
// Returns the body of the first 2xx response. The caller must Close it.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.url == "" {
		return nil, errors.New("httpds: url must not be empty")
	}
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return nil, fmt.Errorf("httpds: build request: %w", err)
		}
		for k, vs := range s.headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := s.client.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("get %s: %w", s.url, err)
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp.Body, nil
		case retryable(resp.StatusCode):
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("%w %d from %s", ErrStatus, resp.StatusCode, s.url)
		default:
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%w %d from %s", ErrStatus, resp.StatusCode, s.url)
		}

		if attempt == s.maxRetries {
			break
		}
		if err := wait(ctx, backoff(s.initialBackoff, attempt, s.maxBackoff)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// backoff returns initial*2^attempt clamped to max.
func backoff(initial time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return max
	}
	d := initial << attempt
	if d > max || d <= 0 {
		return max
	}
	return d
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
