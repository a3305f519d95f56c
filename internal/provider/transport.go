package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// RetryPolicy bounds how often a single call is retried on rate limiting
// or server errors.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy returns three attempts with exponential backoff from one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
	}
}

// Transport executes HTTP requests for one adapter: rate limiting, standard
// headers, status mapping into the typed error set, and bounded retries.
type Transport struct {
	Name      ProviderName
	Client    *http.Client
	Limiter   *RateLimiterMap
	Logger    *slog.Logger
	UserAgent string
	Policy    RetryPolicy

	// Decorate, if set, is called on every outgoing request (auth headers).
	Decorate func(*http.Request)
}

// NewTransport builds a Transport using the provider's documented timeout.
func NewTransport(name ProviderName, limiter *RateLimiterMap, logger *slog.Logger, userAgent string) *Transport {
	timeout := 15 * time.Second
	if c, ok := ProviderCapabilities()[name]; ok && c.Timeout > 0 {
		timeout = c.Timeout
	}
	return &Transport{
		Name:      name,
		Client:    &http.Client{Timeout: timeout},
		Limiter:   limiter,
		Logger:    logger,
		UserAgent: userAgent,
		Policy:    DefaultRetryPolicy(),
	}
}

// Get performs a GET request. id names the looked-up entity in ErrNotFound.
func (t *Transport) Get(ctx context.Context, reqURL, id string) ([]byte, error) {
	return t.Do(ctx, http.MethodGet, reqURL, nil, id)
}

// Do performs a request, retrying rate-limited and 5xx responses according
// to the policy.
func (t *Transport) Do(ctx context.Context, method, reqURL string, body []byte, id string) ([]byte, error) {
	var result []byte
	err := Retry(ctx, t.Policy, t.Logger, func(ctx context.Context) error {
		b, err := t.once(ctx, method, reqURL, body, id)
		if err != nil {
			return err
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// policy's attempts are used up. Only ErrRateLimited and 5xx ErrHTTPStatus
// are retried. A provider-supplied RetryAfter takes priority over the
// computed backoff.
func Retry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, fn func(ctx context.Context) error) error {
	var hint time.Duration
	return retry.Do(ctx, policy.backoff(&hint), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var rl *ErrRateLimited
		if errors.As(err, &rl) {
			hint = rl.RetryAfter
			logger.Debug("rate limited, backing off",
				slog.String("provider", string(rl.Provider)),
				slog.Duration("retry_after", rl.RetryAfter))
			return retry.RetryableError(err)
		}

		var hs *ErrHTTPStatus
		if errors.As(err, &hs) && hs.Code >= http.StatusInternalServerError {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (p RetryPolicy) backoff(hint *time.Duration) retry.Backoff {
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	retries := uint64(max(p.Attempts-1, 0))
	base := retry.WithCappedDuration(p.MaxDelay, retry.WithMaxRetries(retries, retry.NewExponential(p.BaseDelay)))

	return retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := base.Next()
		if stop {
			return 0, true
		}
		if *hint > 0 {
			next = min(*hint, p.MaxDelay)
			*hint = 0
		}
		return next, false
	})
}

func (t *Transport) once(ctx context.Context, method, reqURL string, body []byte, id string) ([]byte, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx, t.Name); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &ErrNetwork{Provider: t.Name, Cause: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.Decorate != nil {
		t.Decorate(req)
	}

	t.Logger.Debug("requesting", slog.String("method", method), slog.String("url", reqURL))

	resp, err := t.Client.Do(req) //nolint:gosec // URL constructed from trusted base + escaped ids
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ErrNetwork{Provider: t.Name, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &ErrNetwork{Provider: t.Name, Cause: fmt.Errorf("reading body: %w", err)}
		}
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ErrNotFound{Provider: t.Name, ID: id}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ErrAuthRequired{Provider: t.Name}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ErrRateLimited{
			Provider:   t.Name,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ErrHTTPStatus{Provider: t.Name, Code: resp.StatusCode, URL: reqURL}
	}
}

// ParseRetryAfter interprets a Retry-After header given either as delay
// seconds or as an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
