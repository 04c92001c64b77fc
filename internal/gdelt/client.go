// Package gdelt talks to the GDELT TV API over HTTP.
package gdelt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/gdelt-news-cache/internal/news"
)

// DefaultBaseURL is the TV API endpoint.
const DefaultBaseURL = "https://api.gdeltproject.org/api/v2/tv/tv"

// BackoffConfig controls retries of throttled and server-failed requests.
// MaxRetries is zero by default: a failed fetch is cached as it is.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config bundles the HTTP client and resilience settings.
type Config struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	Timeout    time.Duration
	Backoff    BackoffConfig
}

var (
	// ErrCircuitOpen is returned while the breaker refuses requests. It
	// wraps news.ErrRejected, so nothing is cached.
	ErrCircuitOpen = fmt.Errorf("circuit breaker open: %w", news.ErrRejected)

	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errInvalidURL  = errors.New("invalid base url")
)

// StatusError captures a non-success status code and body.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// userAgentRoundTripper sets the User-Agent header on every request.
type userAgentRoundTripper struct {
	wrapped   http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.userAgent)
	return rt.wrapped.RoundTrip(clone)
}

// Client implements news.Client against the TV API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
}

var _ news.Client = (*Client)(nil)

// New builds a Client. Zero values in cfg fall back to defaults.
func New(cfg Config) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", errInvalidURL, raw)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	if cfg.UserAgent != "" {
		transport := hc.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		hc.Transport = &userAgentRoundTripper{wrapped: transport, userAgent: cfg.UserAgent}
	}

	backoff := cfg.Backoff
	if backoff.InitialInterval <= 0 {
		backoff.InitialInterval = 500 * time.Millisecond
	}
	if backoff.MaxRetries < 0 {
		backoff.MaxRetries = 0
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gdelt",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	return &Client{baseURL: base, http: hc, backoff: backoff, circuit: cb}, nil
}

// Get sends params as the query string. On a non-2xx status it returns the
// response together with a *StatusError.
func (c *Client) Get(ctx context.Context, params news.Params) (*news.Response, error) {
	u := *c.baseURL
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	u.RawQuery = values.Encode()

	var attempt int
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := c.circuit.Execute(func() (interface{}, error) {
			return c.do(ctx, u.String())
		})
		resp, _ := result.(*news.Response)

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		if err == nil {
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return resp, &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
			}
			return resp, nil
		}
		if attempt >= c.backoff.MaxRetries || !retryable(err) {
			if resp != nil {
				return resp, &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
			}
			if timedOut(err) {
				return nil, fmt.Errorf("%w: %w", news.ErrIncomplete, err)
			}
			return nil, err
		}

		delay := c.backoff.InitialInterval << attempt
		if c.backoff.MaxInterval > 0 && delay > c.backoff.MaxInterval {
			delay = c.backoff.MaxInterval
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}

// do performs one request. Throttling and server errors count against the
// breaker; other statuses are returned without error and judged by Get.
func (c *Client) do(ctx context.Context, target string) (*news.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	resp := &news.Response{StatusCode: httpResp.StatusCode, Body: body}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return resp, errRateLimited
	case httpResp.StatusCode >= 500:
		return resp, errServerError
	}
	return resp, nil
}

// timedOut reports whether err is a request or body-read timeout.
func timedOut(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

func retryable(err error) bool {
	return errors.Is(err, errRateLimited) || errors.Is(err, errServerError)
}
