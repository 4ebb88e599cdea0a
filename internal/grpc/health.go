package grpc

import (
	"context"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/scopectx/internal/infrastructure/health"
)

// HealthServer answers grpc.health.v1 checks from a health aggregator. The
// empty service name reports the aggregate; any other name reports the
// probe with that name.
type HealthServer struct {
	healthpb.UnimplementedHealthServer
	aggregator *health.Aggregator
}

// NewHealthServer creates a health server backed by agg.
func NewHealthServer(agg *health.Aggregator) *HealthServer {
	return &HealthServer{aggregator: agg}
}

// Check runs the aggregator and maps the result.
func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	report, err := s.aggregator.Report(ctx)
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}

	st := report.Status
	if svc := req.GetService(); svc != "" {
		found := false
		for _, r := range report.Results {
			if r.Name == svc {
				st, found = r.Status, true
				break
			}
		}
		if !found {
			return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
		}
	}
	return &healthpb.HealthCheckResponse{Status: servingStatus(st)}, nil
}

// Degraded still serves.
func servingStatus(s health.Status) healthpb.HealthCheckResponse_ServingStatus {
	if s == health.Unhealthy {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
