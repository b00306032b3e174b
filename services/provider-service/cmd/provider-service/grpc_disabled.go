//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/digos-health/himsog/libs/db"
	"github.com/digos-health/himsog/services/provider-service/internal/storage"
)

func startGrpcServer(_ context.Context, _ *slog.Logger, _ *db.Pool, _ *storage.Repository) error {
	return nil
}
