// Package grpcx centralizes gRPC client/server construction so every
// service picks up the same instrumentation and credentials posture.
package grpcx

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type DialOptions struct {
	Timeout time.Duration
}

// Dial opens an insecure client connection with otel instrumentation.
// Internal services talk over the compose/cluster network only.
func Dial(ctx context.Context, addr string, opts DialOptions) (*grpc.ClientConn, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpcx: dial %s: %w", addr, err)
	}
	return conn, nil
}

// NewServer returns a server with otel instrumentation installed.
func NewServer() *grpc.Server {
	return grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
}
