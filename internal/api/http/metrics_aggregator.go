package http

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scopectx/internal/domain/identity"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scopectx/internal/outbound"
)

// PeerMetricsPath is where every node serves its JSON metrics.
const PeerMetricsPath = "/metrics/json"

// MetricsAggregator merges this node's metrics with those of its peers.
// Peer calls go through the outbound client, so each one carries the
// request scope and is guarded by that node's breaker.
type MetricsAggregator struct {
	identity identity.Identity
	metrics  *monitoring.Metrics
	registry *identity.Registry
	outbound *outbound.Client
	logger   *logging.Logger
}

// NewMetricsAggregator creates a metrics aggregator.
func NewMetricsAggregator(d Deps) *MetricsAggregator {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	return &MetricsAggregator{
		identity: d.Identity,
		metrics:  d.Metrics,
		registry: d.Registry,
		outbound: d.Outbound,
		logger:   d.Logger,
	}
}

// AggregatedMetrics is the merged view across nodes.
type AggregatedMetrics struct {
	Timestamp time.Time                 `json:"timestamp"`
	Local     monitoring.MetricsSnapshot `json:"local"`
	Peers     map[string]map[string]any `json:"peers"`
	Errors    map[string]string         `json:"errors,omitempty"`
	Summary   MetricsSummary            `json:"summary"`
}

// MetricsSummary is the high-level view of the local node.
type MetricsSummary struct {
	NodeID           string  `json:"node_id"`
	TotalRequests    int64   `json:"total_requests"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	ErrorRate        float64 `json:"error_rate"`
	OperationFailure float64 `json:"operation_failure_rate"`
	ActiveScopes     int64   `json:"active_scopes"`
	PeersReachable   int     `json:"peers_reachable"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// Register mounts the aggregate route.
func (ma *MetricsAggregator) Register(r gin.IRoutes) {
	r.GET("/metrics/aggregate", ma.GetAggregatedMetrics)
}

// GetAggregatedMetrics returns local metrics plus every reachable peer's.
// An unreachable peer is reported under errors and never fails the request.
func (ma *MetricsAggregator) GetAggregatedMetrics(c *gin.Context) {
	out := ma.Collect(c.Request.Context())
	c.JSON(http.StatusOK, out)
}

// Collect gathers the aggregate view.
func (ma *MetricsAggregator) Collect(ctx context.Context) AggregatedMetrics {
	local := ma.metrics.Snapshot()
	out := AggregatedMetrics{
		Timestamp: time.Now(),
		Local:     local,
		Peers:     make(map[string]map[string]any),
		Errors:    make(map[string]string),
	}

	if ma.outbound != nil {
		for _, n := range ma.registry.Nodes() {
			if n.BaseURL == "" || n.ID == ma.identity.NodeID {
				continue
			}
			peer, err := ma.peerMetrics(ctx, n.ID)
			if err != nil {
				ma.logger.For(ctx).Debug("Peer metrics unavailable", zap.String("node", n.ID), zap.Error(err))
				out.Errors[n.ID] = err.Error()
				continue
			}
			out.Peers[n.ID] = peer
		}
	}

	out.Summary = summarize(ma.identity.NodeID, local, len(out.Peers))
	return out
}

func (ma *MetricsAggregator) peerMetrics(ctx context.Context, node string) (map[string]any, error) {
	resp, err := ma.outbound.Get(ctx, node, PeerMetricsPath)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := sonic.Unmarshal(resp.Body(), &body); err != nil {
		return nil, err
	}
	return body, nil
}

func summarize(nodeID string, s monitoring.MetricsSnapshot, peers int) MetricsSummary {
	sum := MetricsSummary{
		NodeID:           nodeID,
		TotalRequests:    s.TotalRequests,
		AverageLatencyMs: s.AverageDurationMS,
		ActiveScopes:     s.ActiveScopes,
		PeersReachable:   peers,
		UptimeSeconds:    s.UptimeSeconds,
	}
	if s.TotalRequests > 0 {
		sum.ErrorRate = float64(s.TotalErrors) / float64(s.TotalRequests)
	}
	if s.TotalOperations > 0 {
		sum.OperationFailure = float64(s.FailedOperations) / float64(s.TotalOperations)
	}
	return sum
}
