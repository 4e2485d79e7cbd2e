package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"coffee-shop-demo/internal/health"
	healthhandler "coffee-shop-demo/internal/health/handler"
)

// NewGRPCServer returns a gRPC server exposing only grpc.health.v1.Health, backed by svc.
func NewGRPCServer(svc *health.Service) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(s, healthhandler.NewGRPCServer(svc))
	return s
}
