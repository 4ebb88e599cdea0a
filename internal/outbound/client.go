// Package outbound calls other nodes with the caller's scope attached.
//
// Every call derives a child of the caller's scope, so the receiver sees the
// same correlation id and the calling operation as its cause. Calls are
// rate limited, retried on transport errors and 5xx responses, and guarded
// by one circuit breaker per node.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/scopectx/internal/domain/identity"
	"github.com/GriffinCanCode/scopectx/internal/domain/operation"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/scopectx/internal/transport"
)

// ErrNoBaseURL is returned for nodes registered without a base URL.
var ErrNoBaseURL = errors.New("node has no base URL")

// StatusError reports a 5xx response that exhausted retries.
type StatusError struct {
	Node   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("call to %s failed with status %d", e.Node, e.Status)
}

// Settings configures a Client. Zero values select defaults.
type Settings struct {
	Timeout           time.Duration
	RetryMax          int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
	UserAgent         string
}

// DefaultSettings returns production-ready client settings.
func DefaultSettings() Settings {
	return Settings{
		Timeout:         10 * time.Second,
		RetryMax:        2,
		RetryWaitMin:    100 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		Burst:           50,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		UserAgent:       "scopectx/1.0",
	}
}

// Client calls registered nodes.
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	registry *identity.Registry
	factory  *operation.ChildFactory
	mapper   *transport.HTTPMapper
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	settings Settings

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records outbound calls and breaker transitions.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the nodes in registry. One breaker is created
// per registered node.
func New(registry *identity.Registry, mapper *transport.HTTPMapper, settings Settings, opts ...Option) *Client {
	defaults := DefaultSettings()
	if settings.Timeout <= 0 {
		settings.Timeout = defaults.Timeout
	}
	if settings.RetryMax < 0 {
		settings.RetryMax = 0
	}
	if settings.RetryWaitMin <= 0 {
		settings.RetryWaitMin = defaults.RetryWaitMin
	}
	if settings.RetryWaitMax <= 0 {
		settings.RetryWaitMax = defaults.RetryWaitMax
	}
	if settings.BreakerFailures == 0 {
		settings.BreakerFailures = defaults.BreakerFailures
	}
	if settings.BreakerTimeout <= 0 {
		settings.BreakerTimeout = defaults.BreakerTimeout
	}
	if settings.UserAgent == "" {
		settings.UserAgent = defaults.UserAgent
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = settings.RetryMax
	retryClient.RetryWaitMin = settings.RetryWaitMin
	retryClient.RetryWaitMax = settings.RetryWaitMax
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(settings.Timeout).
		SetHeader("User-Agent", settings.UserAgent)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if settings.RequestsPerSecond > 0 {
		burst := settings.Burst
		if burst <= 0 {
			burst = int(settings.RequestsPerSecond)
		}
		limiter = rate.NewLimiter(rate.Limit(settings.RequestsPerSecond), burst)
	}

	c := &Client{
		resty:    restyClient,
		limiter:  limiter,
		registry: registry,
		factory:  operation.NewChildFactory(registry),
		mapper:   mapper,
		logger:   logging.NewNop(),
		settings: settings,
		breakers: make(map[string]*resilience.Breaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, n := range registry.Nodes() {
		c.Breaker(n.ID)
	}
	return c
}

// Breaker returns the breaker guarding node, creating it on first use.
func (c *Client) Breaker(node string) *resilience.Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[node]; ok {
		return b
	}
	b := resilience.New(node, resilience.Settings{
		Timeout: c.settings.BreakerTimeout,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= c.settings.BreakerFailures
		},
		OnStateChange: func(name string, from, to resilience.State) {
			c.logger.Warn("Breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
			if c.metrics != nil {
				c.metrics.RecordBreakerChange(name, to.String())
			}
		},
	})
	c.breakers[node] = b
	return b
}

// Breakers returns every breaker, sorted by node.
func (c *Client) Breakers() []*resilience.Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*resilience.Breaker, 0, len(c.breakers))
	for _, b := range c.breakers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Do calls method path on node with the scope bound to ctx. body may be nil.
// A 5xx response is returned together with a *StatusError.
func (c *Client) Do(ctx context.Context, node, method, path string, body any) (*resty.Response, error) {
	target, err := c.registry.Lookup(node)
	if err != nil {
		return nil, err
	}
	if target.BaseURL == "" {
		return nil, fmt.Errorf("call to %s: %w", node, ErrNoBaseURL)
	}

	child, err := c.factory.ForContext(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("call to %s: %w", node, err)
	}
	defer child.MarkDisposed()

	headers := http.Header{}
	if err := c.mapper.InjectHeaders(headers, child); err != nil {
		return nil, fmt.Errorf("call to %s: %w", node, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	url := strings.TrimRight(target.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	resp, err := resilience.Call(ctx, c.Breaker(node), func(ctx context.Context) (*resty.Response, error) {
		req := c.resty.R().SetContext(ctx).SetHeaderMultiValues(headers)
		if body != nil {
			req.SetBody(body)
		}
		resp, err := req.Execute(method, url)
		if err != nil {
			return resp, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, &StatusError{Node: node, Status: resp.StatusCode()}
		}
		return resp, nil
	})

	c.record(ctx, node, resp, err)
	return resp, err
}

// Get is Do with GET and no body.
func (c *Client) Get(ctx context.Context, node, path string) (*resty.Response, error) {
	return c.Do(ctx, node, http.MethodGet, path, nil)
}

// Post is Do with POST.
func (c *Client) Post(ctx context.Context, node, path string, body any) (*resty.Response, error) {
	return c.Do(ctx, node, http.MethodPost, path, body)
}

func (c *Client) record(ctx context.Context, node string, resp *resty.Response, err error) {
	label := "error"
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		label = "rejected"
	case resp != nil && resp.RawResponse != nil:
		label = strconv.Itoa(resp.StatusCode())
	}
	if err != nil {
		c.logger.For(ctx).Debug("Outbound call failed", zap.String("node", node), zap.Error(err))
	}
	if c.metrics != nil {
		c.metrics.RecordOutboundCall(node, label)
	}
}
