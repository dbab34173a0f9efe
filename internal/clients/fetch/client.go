package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Options configures a fetcher.
type Options struct {
	Timeout       time.Duration // per attempt page-load timeout
	Attempts      int           // transport attempts before giving up
	RatePerSecond float64       // outbound request budget, all hosts together
	RetryWait     time.Duration // first backoff interval
	UserAgents    *UserAgents
	Proxies       *ProxyPool
	Validator     Validator
	Observer      Observer
}

func (o *Options) withDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 2
	}
	if o.RetryWait <= 0 {
		o.RetryWait = 500 * time.Millisecond
	}
	if o.UserAgents == nil {
		o.UserAgents = NewUserAgents(nil)
	}
	if o.Proxies == nil {
		o.Proxies = NewProxyPool(nil)
	}
	if o.Validator == nil {
		o.Validator = func(Request, *Response) error { return nil }
	}
}

type proxyKey struct{}

// Client fetches over plain HTTP.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient creates an HTTP fetcher.
func NewClient(opts Options, log zerolog.Logger) *Client {
	opts.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// the proxy is chosen per attempt and travels in the request context
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		if p, ok := req.Context().Value(proxyKey{}).(*url.URL); ok && p != nil {
			return p, nil
		}
		return nil, nil
	}

	return &Client{
		opts:     opts,
		http:     &http.Client{Timeout: opts.Timeout, Transport: transport},
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		log:      log.With().Str("client", "fetch").Logger(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// HTTPClient exposes the underlying client for auxiliary downloads such as
// the proxy list.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Fetch retrieves req.URL, retrying transport failures, retryable statuses
// and validator rejections up to the configured number of attempts.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", req.URL, err)
	}
	breaker := c.breaker(u.Host)

	attempts := 0
	resp, err := backoff.Retry(ctx, func() (*Response, error) {
		attempts++
		resp, err := c.attempt(ctx, breaker, req)
		if c.opts.Observer != nil {
			c.opts.Observer.FetchAttempt(u.Host, outcomeOf(err))
		}
		if err == nil {
			return resp, nil
		}
		if isPermanent(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxTries(uint(c.opts.Attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Debug().Err(err).Str("url", req.URL).Dur("retry_in", next).Msg("Fetch attempt failed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch %s failed after %d attempts: %w", req.URL, attempts, err)
	}
	resp.Attempts = attempts
	return resp, nil
}

func (c *Client) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryWait
	b.MaxInterval = 10 * c.opts.RetryWait
	return b
}

func (c *Client) attempt(ctx context.Context, breaker *gobreaker.CircuitBreaker, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	ua := c.opts.UserAgents.Next()
	proxy := c.opts.Proxies.Next()

	out, err := breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, req, ua, proxy)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(fmt.Errorf("%s: %w", req.URL, err))
		}
		return nil, err
	}
	resp := out.(*Response)
	if err := c.opts.Validator(req, resp); err != nil {
		return nil, fmt.Errorf("%s: %w", req.URL, err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, req Request, ua string, proxy *url.URL) (*Response, error) {
	if proxy != nil {
		ctx = context.WithValue(ctx, proxyKey{}, proxy)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	httpReq.Header.Set("User-Agent", ua)
	httpReq.Header.Set("Accept", acceptHeader(req.Kind))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", req.URL, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: req.URL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req.URL, err)
	}

	out := &Response{URL: req.URL, Status: resp.StatusCode, Body: body, UserAgent: ua}
	if proxy != nil {
		out.Proxy = proxy.Host
	}
	return out, nil
}

// breaker returns the circuit breaker of a host. Five consecutive failures
// open it for 30 seconds.
func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a missing page says nothing about the host's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("host", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
	c.breakers[host] = cb
	return cb
}

func isPermanent(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Retryable()
	}
	return false
}

func acceptHeader(kind Kind) string {
	switch kind {
	case KindPDF:
		return "application/pdf,*/*;q=0.8"
	case KindJSON:
		return "application/json,*/*;q=0.8"
	default:
		return "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	}
}
