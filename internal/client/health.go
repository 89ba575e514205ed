package client

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Health wraps the standard gRPC health service.
type Health struct {
	conn *grpc.ClientConn
	svc  healthpb.HealthClient
}

// DialHealth connects to target. Without options the transport is insecure.
func DialHealth(target string, opts ...grpc.DialOption) (*Health, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Health{conn: conn, svc: healthpb.NewHealthClient(conn)}, nil
}

func (h *Health) Close() error {
	if h == nil || h.conn == nil {
		return nil
	}
	return h.conn.Close()
}

// Check reports whether service is SERVING. An empty service asks about the server.
func (h *Health) Check(ctx context.Context, service string) (bool, error) {
	resp, err := h.svc.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}
