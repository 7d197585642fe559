//go:build protogen

package main

import (
	"context"
	"log/slog"

	"github.com/salonbookhq/salonbook/libs/runtime"
	"github.com/salonbookhq/salonbook/services/salon-service/internal/grpcserver"
	"github.com/salonbookhq/salonbook/services/salon-service/internal/storage"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, repo *storage.Repository) {
	addr := runtime.Getenv("GRPC_ADDR", ":9090")
	go func() {
		if err := grpcserver.New(repo, logger).Serve(ctx, addr); err != nil {
			logger.Error("grpc server stopped", "err", err)
		}
	}()
}
