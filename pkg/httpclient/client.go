package httpclient

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/config"
	"github.com/effective-security/toolgate/gateway"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "httpclient")

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 800 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
	DefaultTimeout     = 10 * time.Second
	DefaultMaxInflight = 50
)

// Doer performs a HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Policy controls the retry behavior for transient upstream failures.
type Policy struct {
	// MaxAttempts bounds the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the backoff before the second attempt;
	// it doubles per attempt up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// SleepFunc waits for the given duration or until the context is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client issues outbound HTTP calls with a shared connection pool,
// bounded concurrency, a per-call timeout, and a uniform retry policy.
// It is safe for concurrent use.
type Client struct {
	http     Doer
	policy   Policy
	sleep    SleepFunc
	timeout  time.Duration
	inflight chan struct{}
}

// Option configures the Client.
type Option func(*Client)

// WithDoer replaces the underlying HTTP transport.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithPolicy replaces the retry policy.
func WithPolicy(p Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithMaxInflight bounds the number of concurrent outbound requests.
func WithMaxInflight(n int) Option {
	return func(c *Client) { c.inflight = make(chan struct{}, n) }
}

// WithSleep replaces the backoff sleep, used by tests to avoid real timers.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithTimeout sets the per-call timeout of the default transport.
// Ignored when WithDoer is also given.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New returns a Client with the default transport and retry policy.
func New(opts ...Option) *Client {
	c := &Client{
		policy: Policy{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   DefaultBaseDelay,
			MaxDelay:    DefaultMaxDelay,
		},
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		timeout := c.timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if c.inflight == nil {
		c.inflight = make(chan struct{}, DefaultMaxInflight)
	}
	return c
}

// NewFromConfig returns a Client configured from the client section.
// Zero fields keep their defaults; extra options apply on top.
func NewFromConfig(cfg *config.Client, opts ...Option) *Client {
	if cfg == nil {
		cfg = &config.Client{}
	}
	base := []Option{
		WithPolicy(Policy{
			MaxAttempts: values.NumbersCoalesce(cfg.MaxAttempts, DefaultMaxAttempts),
			BaseDelay:   time.Duration(values.NumbersCoalesce(cfg.BaseDelayMS, int(DefaultBaseDelay/time.Millisecond))) * time.Millisecond,
			MaxDelay:    time.Duration(values.NumbersCoalesce(cfg.MaxDelayMS, int(DefaultMaxDelay/time.Millisecond))) * time.Millisecond,
		}),
		WithMaxInflight(values.NumbersCoalesce(cfg.MaxInflight, DefaultMaxInflight)),
		WithTimeout(time.Duration(values.NumbersCoalesce(cfg.TimeoutSec, int(DefaultTimeout/time.Second))) * time.Second),
	}
	return New(append(base, opts...)...)
}

// Do issues the request, retrying connection-level failures and
// HTTP 429/5xx responses with exponential backoff. The final response is
// returned regardless of its status code; callers own status handling.
// Network failures that outlive the retry budget surface as a
// gateway.Error with kind timeout or connection.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, classify(err)
	}
	defer c.release()

	host := req.URL.Host
	started := time.Now()
	defer metricskey.PerfUpstreamCall.MeasureSince(started, host)

	attempts := c.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		r, err := cloneRequest(ctx, req)
		if err != nil {
			return nil, errors.Wrap(err, "clone request")
		}

		resp, err := c.http.Do(r)
		if err == nil {
			if !retryableStatus(resp.StatusCode) || attempt == attempts {
				return resp, nil
			}
			drainClose(resp)
			lastErr = errors.Errorf("upstream returned status %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		if attempt == attempts {
			break
		}

		delay := backoffDelay(attempt, c.policy)
		metricskey.StatsUpstreamRetries.IncrCounter(1, host)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "retrying",
			"host", host,
			"attempt", attempt,
			"delay", delay.String(),
			"err", lastErr.Error(),
		)
		if err := c.sleep(ctx, delay); err != nil {
			// deadline elapsed mid-retry, abandon further attempts
			return nil, classify(err)
		}
	}

	return nil, classify(lastErr)
}

func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.inflight <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	<-c.inflight
}

// cloneRequest rebinds the request to ctx and rewinds the body so the
// request can be reissued on retry.
func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	r := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	return r, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

// classify translates a transport error into the taxonomy after the
// retry budget is exhausted.
func classify(err error) error {
	var te *gateway.Error
	if errors.As(err, &te) {
		return te
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return gateway.NewError(gateway.KindTimeout, "upstream request did not complete in time")
	case isNetTimeout(err):
		return gateway.NewError(gateway.KindTimeout, "upstream request timed out")
	default:
		return gateway.NewError(gateway.KindConnection, "upstream is unreachable")
	}
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
