package subscriptions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/digos-health/himsog/libs/events"
	"github.com/digos-health/himsog/services/billing-service/internal/entitlements"
	"github.com/digos-health/himsog/services/billing-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

// Service owns subscription state transitions and their outbox side
// effects, shared by the HTTP handlers, the Stripe webhook, and the
// reconciler.
type Service struct {
	repo       *storage.Repository
	outboxRepo *events.Outbox
}

func New(repo *storage.Repository, outboxRepo *events.Outbox) *Service {
	return &Service{repo: repo, outboxRepo: outboxRepo}
}

// transition is the target state of a subscription plus the event to
// announce when the effective entitlement changes.
type transition struct {
	tier      string
	status    string
	eventType string
	stampKey  string
	stampAt   time.Time
}

func (s *Service) ApplyActivated(ctx context.Context, tx pgx.Tx, providerID, tier string, activatedAt time.Time, gateway string, stripeCustomerID string, stripeSubscriptionID string, periodStart, periodEnd *time.Time) error {
	return s.apply(ctx, tx, storage.Subscription{
		ProviderID:           providerID,
		Gateway:              gateway,
		StripeCustomerID:     stripeCustomerID,
		StripeSubscriptionID: stripeSubscriptionID,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
	}, transition{
		tier:      tier,
		status:    "active",
		eventType: "billing.subscription.activated.v1",
		stampKey:  "activated_at",
		stampAt:   activatedAt,
	})
}

func (s *Service) ApplyCanceled(ctx context.Context, tx pgx.Tx, providerID string, canceledAt time.Time, gateway string, stripeCustomerID string, stripeSubscriptionID string, periodStart, periodEnd *time.Time) error {
	return s.apply(ctx, tx, storage.Subscription{
		ProviderID:           providerID,
		Gateway:              gateway,
		StripeCustomerID:     stripeCustomerID,
		StripeSubscriptionID: stripeSubscriptionID,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
	}, transition{
		tier:      "free",
		status:    "canceled",
		eventType: "billing.subscription.canceled.v1",
		stampKey:  "canceled_at",
		stampAt:   canceledAt,
	})
}

func (s *Service) apply(ctx context.Context, tx pgx.Tx, sub storage.Subscription, tr transition) error {
	existing, ok, err := s.repo.GetSubscriptionForUpdate(ctx, tx, sub.ProviderID)
	if err != nil {
		return err
	}

	sub.Tier = tr.tier
	sub.Status = tr.status
	if err := s.repo.UpsertSubscription(ctx, tx, sub); err != nil {
		return err
	}

	// Emit only when the effective entitlement changes.
	if ok && existing.Status == tr.status && existing.Tier == tr.tier {
		return nil
	}

	limits := entitlements.LimitsForTier(tr.tier)
	payload, err := json.Marshal(map[string]any{
		"provider_id":              sub.ProviderID,
		"tier":                     limits.Tier,
		"max_monthly_appointments": limits.MaxMonthlyAppointments,
		tr.stampKey:                tr.stampAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	return s.outboxRepo.Stage(ctx, tx, events.Event{
		AggregateType: "subscription",
		AggregateID:   sub.ProviderID,
		EventType:     tr.eventType,
		Payload:       payload,
	})
}
