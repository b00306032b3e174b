//go:build protogen

package main

import (
	"context"
	"log/slog"

	"github.com/digos-health/himsog/libs/config"
	"github.com/digos-health/himsog/libs/db"
	"github.com/digos-health/himsog/libs/grpcx"
	"github.com/digos-health/himsog/services/provider-service/internal/grpcserver"
	"github.com/digos-health/himsog/services/provider-service/internal/storage"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, pool *db.Pool, repo *storage.Repository) error {
	port, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		return err
	}
	srv := grpcx.NewServer()
	grpcserver.Register(srv, pool, repo)
	return grpcx.Serve(ctx, logger, srv, ":"+port)
}
