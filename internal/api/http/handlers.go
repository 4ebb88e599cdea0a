package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scopectx/internal/api/middleware"
	"github.com/GriffinCanCode/scopectx/internal/domain/identity"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/health"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/scopectx/internal/outbound"
)

// Version is reported by the info endpoint.
const Version = "1.0.0"

// Deps are the collaborators the handlers read from. Outbound and Registry
// may be nil; the node endpoints then report an empty catalog.
type Deps struct {
	Identity   identity.Identity
	Logger     *logging.Logger
	Metrics    *monitoring.Metrics
	Aggregator *health.Aggregator
	Registry   *identity.Registry
	Outbound   *outbound.Client
}

// Handlers serves the HTTP API.
type Handlers struct {
	identity   identity.Identity
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	aggregator *health.Aggregator
	registry   *identity.Registry
	outbound   *outbound.Client
	started    time.Time
}

// NewHandlers creates HTTP handlers.
func NewHandlers(d Deps) *Handlers {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Aggregator == nil {
		d.Aggregator = health.NewAggregator(nil)
	}
	return &Handlers{
		identity:   d.Identity,
		logger:     d.Logger,
		metrics:    d.Metrics,
		aggregator: d.Aggregator,
		registry:   d.Registry,
		outbound:   d.Outbound,
		started:    time.Now(),
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/health/report", h.HealthReport)
	r.GET("/context", h.Context)
	r.GET("/nodes", h.Nodes)
	r.GET("/nodes/:id/call", h.CallNode)
	r.POST("/logs", h.StreamLogs)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
		r.GET("/metrics/json", h.MetricsJSON)
	}
}

// Root returns service information.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     "scopectx",
		"version":     Version,
		"node_id":     h.identity.NodeID,
		"studio_id":   h.identity.StudioID,
		"environment": h.identity.Environment,
	})
}

// Health is the liveness endpoint. It never consults probes.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"node_id":        h.identity.NodeID,
		"uptime_seconds": time.Since(h.started).Seconds(),
	})
}

// Ready is the readiness endpoint. Degraded is still ready.
func (h *Handlers) Ready(c *gin.Context) {
	status, err := h.aggregator.Check(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": health.Unhealthy, "error": err.Error()})
		return
	}
	code := http.StatusOK
	if status == health.Unhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status})
}

// HealthReport returns every probe result. The status code follows Ready.
func (h *Handlers) HealthReport(c *gin.Context) {
	report, err := h.aggregator.Report(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": health.Unhealthy, "error": err.Error()})
		return
	}
	code := http.StatusOK
	if report.Status == health.Unhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// Context echoes the scope resolved for this request.
func (h *Handlers) Context(c *gin.Context) {
	sc, err := middleware.ScopeFrom(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	snap, err := sc.Snapshot()
	if err != nil {
		h.logger.Error("Failed to snapshot scope", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{"scope": snap}
	if t, ok := middleware.TrackerFrom(c); ok {
		body["operation"] = t.Name()
	}
	c.JSON(http.StatusOK, body)
}

// Nodes lists the node registry.
func (h *Handlers) Nodes(c *gin.Context) {
	nodes := h.registry.Nodes()
	if nodes == nil {
		nodes = []identity.Node{}
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes, "count": len(nodes)})
}

// CallNode makes a propagated GET to a registered node. The target path is
// taken from the path query parameter and defaults to /health.
func (h *Handlers) CallNode(c *gin.Context) {
	if h.outbound == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outbound calls are disabled"})
		return
	}
	node := c.Param("id")
	path := c.DefaultQuery("path", "/health")

	resp, err := h.outbound.Get(c.Request.Context(), node, path)
	if err != nil {
		h.logger.For(c.Request.Context()).Warn("Outbound call failed",
			zap.String("node", node), zap.String("path", path), zap.Error(err))
		c.JSON(callErrorStatus(err), gin.H{"node": node, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"node":   node,
		"status": resp.StatusCode(),
		"body":   resp.String(),
	})
}

// MetricsJSON returns a metrics snapshot plus breaker states.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	breakers := make(map[string]string)
	if h.outbound != nil {
		for _, b := range h.outbound.Breakers() {
			breakers[b.Name()] = b.State().String()
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"node_id":  h.identity.NodeID,
		"metrics":  h.metrics.Snapshot(),
		"breakers": breakers,
	})
}

func callErrorStatus(err error) int {
	switch {
	case errors.Is(err, identity.ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, outbound.ErrNoBaseURL):
		return http.StatusBadRequest
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
