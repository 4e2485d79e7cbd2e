package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"coffee-shop-demo/internal/health"
)

// GRPCServer implements grpc.health.v1.Health for health checkers that speak gRPC.
// Only the overall service ("") is known.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer
	svc *health.Service
}

// NewGRPCServer returns a Health server backed by svc.
func NewGRPCServer(svc *health.Service) *GRPCServer {
	return &GRPCServer{svc: svc}
}

// Check maps the aggregated report to SERVING / NOT_SERVING.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if req.GetService() != "" {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	st := healthpb.HealthCheckResponse_SERVING
	if s.svc.Check(ctx).Status != health.StatusUp {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	return &healthpb.HealthCheckResponse{Status: st}, nil
}
