//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/salonbookhq/salonbook/services/salon-service/internal/storage"
)

func startGrpcServer(_ context.Context, _ *slog.Logger, _ *storage.Repository) {}
