package grpcsvc

import (
	"context"
	"runtime/debug"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// NewServer собирает grpc.Server с OrderService и health.
// metrics может быть nil; иначе коллектор уже должен быть зарегистрирован.
func NewServer(svc OrderServiceServer, metrics *promgrpc.ServerMetrics, logger *log.Entry) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = log.WithField("component", "grpc")
	}

	interceptors := []grpc.UnaryServerInterceptor{recoveryInterceptor(logger)}
	if metrics != nil {
		interceptors = append([]grpc.UnaryServerInterceptor{metrics.UnaryServerInterceptor()}, interceptors...)
	}
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))

	RegisterOrderServiceServer(server, svc)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	if metrics != nil {
		metrics.InitializeMetrics(server)
	}
	return server, healthServer
}

// recoveryInterceptor превращает панику обработчика в codes.Internal.
func recoveryInterceptor(logger *log.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(log.Fields{
					"method": info.FullMethod,
					"panic":  r,
					"stack":  string(debug.Stack()),
				}).Error("grpc handler panicked")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
