//go:build protogen

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/digos-health/himsog/libs/config"
	"github.com/digos-health/himsog/services/booking-service/internal/entitlements"
)

// setupEntitlementsRoutes exposes the billing gRPC lookup as a debug
// endpoint. The client owns its own per-call timeout.
func setupEntitlementsRoutes(ctx context.Context, mux *http.ServeMux, logger *slog.Logger) {
	addr := config.String("BILLING_GRPC_ADDR", "billing-service:9091")
	client, err := entitlements.NewClient(addr)
	if err != nil {
		logger.Error("entitlements client init failed", "err", err)
		return
	}

	go func() {
		<-ctx.Done()
		_ = client.Close()
	}()

	mux.HandleFunc("/debug/entitlements", func(w http.ResponseWriter, r *http.Request) {
		providerID := r.URL.Query().Get("provider_id")
		if providerID == "" {
			http.Error(w, "provider_id is required", http.StatusBadRequest)
			return
		}

		snap, err := client.GetEntitlements(r.Context(), providerID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})
}
