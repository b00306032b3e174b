//go:build protogen

package main

import (
	"context"
	"log/slog"

	"github.com/digos-health/himsog/libs/config"
	"github.com/digos-health/himsog/libs/db"
	"github.com/digos-health/himsog/libs/grpcx"
	"github.com/digos-health/himsog/services/billing-service/internal/entitlements"
	"github.com/digos-health/himsog/services/billing-service/internal/storage"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, pool *db.Pool) error {
	srv := grpcx.NewServer()
	entitlements.Register(srv, storage.NewRepository(pool))
	return grpcx.Serve(ctx, logger, srv, ":"+config.String("GRPC_PORT", "9091"))
}
