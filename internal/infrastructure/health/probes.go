package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/scopectx/internal/domain/identity"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/resilience"
)

// FuncProbe adapts a function to Probe.
type FuncProbe struct {
	name string
	fn   func(ctx context.Context) (Status, error)
}

// NewFuncProbe creates a probe from fn.
func NewFuncProbe(name string, fn func(ctx context.Context) (Status, error)) *FuncProbe {
	return &FuncProbe{name: name, fn: fn}
}

func (p *FuncProbe) Name() string { return p.name }

func (p *FuncProbe) Check(ctx context.Context) (Status, error) {
	return p.fn(ctx)
}

// Static returns a probe that always reports s.
func Static(name string, s Status) *FuncProbe {
	return NewFuncProbe(name, func(context.Context) (Status, error) { return s, nil })
}

// optional downgrades failures of a non-critical dependency to Degraded.
type optional struct {
	Probe
}

// Optional wraps p so that errors and Unhealthy results report Degraded.
func Optional(p Probe) Probe {
	return optional{Probe: p}
}

func (o optional) Check(ctx context.Context) (Status, error) {
	s, err := o.Probe.Check(ctx)
	if err != nil || s.normalize() == Unhealthy {
		return Degraded, nil
	}
	return s, nil
}

// HTTPProbe calls a node's HTTP health endpoint.
type HTTPProbe struct {
	name   string
	url    string
	client *retryablehttp.Client
}

// NewHTTPProbe creates a probe for url. A nil client gets a quiet client
// with one retry.
func NewHTTPProbe(name, url string, client *retryablehttp.Client) *HTTPProbe {
	if client == nil {
		client = retryablehttp.NewClient()
		client.RetryMax = 1
		client.RetryWaitMin = 50 * time.Millisecond
		client.RetryWaitMax = 200 * time.Millisecond
		client.Logger = nil
		client.CheckRetry = retryTransportErrors
		client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	}
	return &HTTPProbe{name: name, url: url, client: client}
}

func (p *HTTPProbe) Name() string { return p.name }

// Check maps 2xx to Healthy, 429 and 503 to Degraded and everything else to
// an error.
func (p *HTTPProbe) Check(ctx context.Context) (Status, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Unhealthy, fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Unhealthy, fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Healthy, nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusServiceUnavailable:
		return Degraded, nil
	default:
		return Unhealthy, fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
}

// retryTransportErrors retries connection failures only; a status code is
// an answer and is classified by Check.
func retryTransportErrors(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil, nil
}

// GRPCProbe calls the standard grpc.health.v1 service of a node.
type GRPCProbe struct {
	name    string
	service string
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
}

// NewGRPCProbe creates a probe for target. The connection is established
// lazily by grpc; Close releases it.
func NewGRPCProbe(name, target, service string, opts ...grpc.DialOption) (*GRPCProbe, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create health client for %s: %w", target, err)
	}
	return &GRPCProbe{name: name, service: service, conn: conn, client: healthpb.NewHealthClient(conn)}, nil
}

func (p *GRPCProbe) Name() string { return p.name }

func (p *GRPCProbe) Check(ctx context.Context) (Status, error) {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return Unhealthy, fmt.Errorf("grpc health check failed: %w", err)
	}
	switch resp.GetStatus() {
	case healthpb.HealthCheckResponse_SERVING:
		return Healthy, nil
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return Unhealthy, nil
	default:
		return Degraded, nil
	}
}

// Close releases the connection.
func (p *GRPCProbe) Close() error {
	return p.conn.Close()
}

// BreakerProbe reports the state of a circuit breaker: closed is Healthy,
// half-open is Degraded and open is Unhealthy.
type BreakerProbe struct {
	breaker *resilience.Breaker
}

// NewBreakerProbe creates a probe named after the breaker.
func NewBreakerProbe(b *resilience.Breaker) *BreakerProbe {
	return &BreakerProbe{breaker: b}
}

func (p *BreakerProbe) Name() string { return "breaker:" + p.breaker.Name() }

func (p *BreakerProbe) Check(context.Context) (Status, error) {
	switch p.breaker.State() {
	case resilience.StateClosed:
		return Healthy, nil
	case resilience.StateHalfOpen:
		return Degraded, nil
	default:
		return Unhealthy, nil
	}
}

// ProbesFromRegistry builds one probe per registered node that declares a
// health endpoint. gRPC endpoints are preferred over HTTP. Non-critical
// nodes are wrapped with Optional. The returned closer releases gRPC
// connections.
func ProbesFromRegistry(reg *identity.Registry, client *retryablehttp.Client) ([]Probe, func() error, error) {
	var (
		probes []Probe
		grpcs  []*GRPCProbe
	)
	closeAll := func() error {
		var errs []error
		for _, g := range grpcs {
			errs = append(errs, g.Close())
		}
		return errors.Join(errs...)
	}

	for _, n := range reg.Nodes() {
		var p Probe
		switch {
		case n.GRPCHealthAddr != "":
			g, err := NewGRPCProbe(n.ID, n.GRPCHealthAddr, "")
			if err != nil {
				_ = closeAll()
				return nil, nil, err
			}
			grpcs = append(grpcs, g)
			p = g
		case n.HealthURL != "":
			p = NewHTTPProbe(n.ID, n.HealthURL, client)
		default:
			continue
		}
		if !n.Critical {
			p = Optional(p)
		}
		probes = append(probes, p)
	}
	return probes, closeAll, nil
}
