//go:build protogen

package entitlements

import (
	"context"

	entitlementsv1 "github.com/digos-health/himsog/protos/gen/entitlements/v1"
	"github.com/digos-health/himsog/services/billing-service/internal/storage"
	"google.golang.org/grpc"
)

type server struct {
	entitlementsv1.UnimplementedEntitlementsServiceServer
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, repo *storage.Repository) {
	entitlementsv1.RegisterEntitlementsServiceServer(grpcServer, &server{repo: repo})
}

// GetEntitlements never fails. Unknown providers, inactive subscriptions
// and lookup errors all resolve to the free tier so callers keep working.
func (s *server) GetEntitlements(ctx context.Context, req *entitlementsv1.EntitlementsRequest) (*entitlementsv1.EntitlementsResponse, error) {
	limits := s.resolveLimits(ctx, req.GetProviderId())
	return &entitlementsv1.EntitlementsResponse{
		Tier:                   limits.Tier,
		MaxServices:            uint32(limits.MaxServices),
		MaxMonthlyAppointments: uint32(limits.MaxMonthlyAppointments),
	}, nil
}

func (s *server) resolveLimits(ctx context.Context, providerID string) Limits {
	if s.repo == nil || providerID == "" {
		return LimitsForTier("free")
	}
	sub, err := s.repo.GetSubscription(ctx, providerID)
	if err != nil || sub.Status != "active" {
		return LimitsForTier("free")
	}
	return LimitsForTier(sub.Tier)
}
