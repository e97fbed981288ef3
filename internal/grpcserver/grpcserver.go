// Package grpcserver hosts the simulator's gRPC health endpoint.
package grpcserver

import (
	"context"
	"fmt"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/directional-radio-medium/internal/logging"
)

const requestIDMetadataKey = "x-request-id"

// RequestLoggingInterceptor attaches a per-call logger annotated with the
// method and, when the caller sent one, its x-request-id. Failed calls are
// logged at warn.
func RequestLoggingInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		reqLog := base.With(logging.String("method", info.FullMethod))
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if id := firstHeader(md, requestIDMetadataKey); id != "" {
				reqLog = reqLog.With(logging.String("request_id", id))
			}
		}
		ctx = logging.ContextWithLogger(ctx, reqLog)

		resp, err := handler(ctx, req)
		if err != nil {
			reqLog.Warn(ctx, "rpc failed", logging.Err(err))
		} else {
			reqLog.Debug(ctx, "rpc served")
		}
		return resp, err
	}
}

func firstHeader(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// HealthServer is a running gRPC server exposing grpc.health.v1.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	addr   string
}

// ServeHealth listens on addr and serves the health service with tracing
// and request logging. The overall status starts as SERVING.
func ServeHealth(ctx context.Context, addr string, log logging.Logger) (*HealthServer, error) {
	if log == nil {
		log = logging.Noop()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for gRPC on %s: %w", addr, err)
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(RequestLoggingInterceptor(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	log.Info(ctx, "serving gRPC health", logging.String("addr", lis.Addr().String()))
	go func() {
		if err := server.Serve(lis); err != nil {
			log.Error(ctx, "gRPC server exited", logging.Err(err))
		}
	}()

	return &HealthServer{server: server, health: hs, addr: lis.Addr().String()}, nil
}

// Addr returns the bound listen address.
func (s *HealthServer) Addr() string { return s.addr }

// SetServing updates the overall serving status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Stop flips every service to NOT_SERVING and drains in-flight calls.
func (s *HealthServer) Stop() {
	if s == nil {
		return
	}
	s.health.Shutdown()
	s.server.GracefulStop()
}
