package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without calling the provider while its
	// breaker is open or probing.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	errBodyNotReplayable = errors.New("request body cannot be replayed for retry")
)

// ClientConfig configures a Client. Zero durations and retry counts take
// the values from DefaultClientConfig.
type ClientConfig struct {
	// Name labels the breaker and the registry entry.
	Name string

	Timeout         time.Duration // per attempt
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration

	CircuitBreaker *CircuitBreakerConfig
	Registry       *Registry
	Transport      http.RoundTripper
}

// DefaultClientConfig returns the settings used for the geo providers.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cb,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig(c.Name)
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.CircuitBreaker == nil {
		c.CircuitBreaker = d.CircuitBreaker
	}
	if c.Transport == nil {
		c.Transport = http.DefaultTransport
	}
	return c
}

// Client sends provider requests through a circuit breaker and retries
// transient failures with exponential backoff. It is also an
// http.RoundTripper so SDKs that take an *http.Client can use it.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewClient builds a client and registers it with cfg.Registry if set.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		breaker: NewCircuitBreaker[*http.Response](*cfg.CircuitBreaker), //nolint:bodyclose // type parameter
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the breaker and registry name.
func (c *Client) Name() string { return c.cfg.Name }

// CircuitBreakerState returns the breaker state.
func (c *Client) CircuitBreakerState() gobreaker.State { return c.breaker.State() }

// CircuitBreakerCounts returns the breaker's counts for the current interval.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts { return c.breaker.Counts() }

// RoundTrip implements http.RoundTripper.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) { return c.Do(req) }

// Do sends req, retrying network errors, 5xx and 429 responses. When the
// retries run out on an HTTP error status the last response is returned
// with a nil error so callers can map the status themselves.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialInterval
	policy.MaxInterval = c.cfg.MaxInterval
	policy.MaxElapsedTime = 0

	var (
		last    *http.Response
		attempt int
	)
	keep := func(resp *http.Response) {
		if last != nil {
			drainAndClose(last)
		}
		last = resp
	}

	err := backoff.Retry(func() error {
		attempt++
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // handed to keep
			return c.send(ctx, req, attempt)
		})
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case resp != nil:
			keep(resp)
		}
		var statusErr *ServerError
		if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
			// Honour the provider's hint, but never beyond our own ceiling.
			select {
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			case <-time.After(min(statusErr.RetryAfter, c.cfg.MaxInterval)):
			}
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, c.cfg.MaxRetries), ctx))

	if err != nil {
		c.record(err)
		if last != nil {
			return last, nil
		}
		return nil, err
	}
	c.record(nil)
	return last, nil
}

// send performs one attempt. Retryable statuses come back as a
// *ServerError alongside the response so the breaker counts them.
func (c *Client) send(ctx context.Context, req *http.Request, attempt int) (*http.Response, error) {
	out := req.Clone(ctx)
	if attempt > 1 && req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, backoff.Permanent(errBodyNotReplayable)
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		out.Body = body
	}

	resp, err := c.http.Do(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return resp, &ServerError{StatusCode: resp.StatusCode, RetryAfter: retryAfter(resp.Header)}
	}
	return resp, nil
}

func (c *Client) record(err error) {
	switch {
	case c.cfg.Registry == nil:
	case err == nil:
		c.cfg.Registry.RecordSuccess(c.cfg.Name)
	default:
		c.cfg.Registry.RecordFailure(c.cfg.Name, err)
	}
}

// ServerError is a retryable HTTP status from a provider.
type ServerError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *ServerError) Error() string {
	return "provider returned " + strconv.Itoa(e.StatusCode) + " " + http.StatusText(e.StatusCode)
}

// retryAfter parses a delta-seconds Retry-After header. HTTP dates are
// ignored and fall back to the backoff schedule.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
