package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/digos-health/himsog/libs/db"
	"github.com/digos-health/himsog/services/billing-service/internal/storage"
	"github.com/digos-health/himsog/services/billing-service/internal/subscriptions"
	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	stripesubscription "github.com/stripe/stripe-go/v79/subscription"
)

const defaultAdvisoryKey = 4242001

// StripeReconciler periodically re-reads subscription state from Stripe
// and reapplies it locally, healing entitlements that drifted while
// webhooks were down. Only one billing instance reconciles at a time;
// instances race for a Postgres advisory lock.
type StripeReconciler struct {
	pool        *db.Pool
	repo        *storage.Repository
	subSvc      *subscriptions.Service
	logger      *slog.Logger
	stripeKey   string
	batchSize   int
	advisoryKey int64
}

type StripeReconcilerConfig struct {
	StripeSecretKey string
	Interval        time.Duration
	BatchSize       int
	AdvisoryLockKey int64
}

func NewStripeReconciler(pool *db.Pool, repo *storage.Repository, subSvc *subscriptions.Service, logger *slog.Logger, cfg StripeReconcilerConfig) *StripeReconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.AdvisoryLockKey == 0 {
		cfg.AdvisoryLockKey = defaultAdvisoryKey
	}
	return &StripeReconciler{
		pool:        pool,
		repo:        repo,
		subSvc:      subSvc,
		logger:      logger,
		stripeKey:   strings.TrimSpace(cfg.StripeSecretKey),
		batchSize:   cfg.BatchSize,
		advisoryKey: cfg.AdvisoryLockKey,
	}
}

func (r *StripeReconciler) Run(ctx context.Context, interval time.Duration) {
	if r.stripeKey == "" {
		r.logger.Warn("stripe reconcile disabled: STRIPE_SECRET_KEY missing")
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if !r.acquireLock(ctx) {
		return
	}
	defer func() {
		_, _ = r.pool.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, r.advisoryKey)
	}()

	stripe.Key = r.stripeKey
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First pass runs immediately so a restart heals drift without
	// waiting a full interval.
	r.reconcileOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

// acquireLock blocks until this instance holds the advisory lock or the
// context is canceled.
func (r *StripeReconciler) acquireLock(ctx context.Context) bool {
	for ctx.Err() == nil {
		var locked bool
		if err := r.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, r.advisoryKey).Scan(&locked); err != nil {
			r.logger.Error("stripe reconcile: failed to acquire advisory lock", "err", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if locked {
			r.logger.Info("stripe reconcile: advisory lock acquired", "lock_key", r.advisoryKey)
			return true
		}
		r.logger.Info("stripe reconcile: advisory lock held by another instance", "lock_key", r.advisoryKey)
		time.Sleep(30 * time.Second)
	}
	return false
}

func (r *StripeReconciler) reconcileOnce(ctx context.Context) {
	subs, err := r.repo.ListStripeSubscriptionsForReconcile(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("stripe reconcile: failed to list subscriptions", "err", err)
		return
	}
	for _, s := range subs {
		if ctx.Err() != nil {
			return
		}
		if strings.TrimSpace(s.StripeSubscriptionID) == "" || strings.TrimSpace(s.ProviderID) == "" {
			continue
		}
		r.syncSubscription(ctx, s)
	}
}

func (r *StripeReconciler) syncSubscription(ctx context.Context, s storage.Subscription) {
	stripeSub, err := stripesubscription.Get(s.StripeSubscriptionID, nil)
	if err != nil {
		r.logger.Warn("stripe reconcile: failed to fetch subscription", "err", err, "stripe_subscription_id", s.StripeSubscriptionID, "provider_id", s.ProviderID)
		return
	}

	tx, err := r.repo.Begin(ctx)
	if err != nil {
		r.logger.Error("stripe reconcile: db begin failed", "err", err)
		return
	}
	if err := r.apply(ctx, tx, s, stripeSub); err != nil {
		_ = tx.Rollback(ctx)
		r.logger.Warn("stripe reconcile: apply failed", "err", err, "provider_id", s.ProviderID, "stripe_subscription_id", stripeSub.ID)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		r.logger.Warn("stripe reconcile: commit failed", "err", err, "provider_id", s.ProviderID, "stripe_subscription_id", stripeSub.ID)
	}
}

// apply pushes Stripe's view of the subscription into local state.
// Stripe is authoritative for lifecycle status; active and trialing
// count as entitled, everything else cancels.
func (r *StripeReconciler) apply(ctx context.Context, tx pgx.Tx, s storage.Subscription, stripeSub *stripe.Subscription) error {
	customerID := ""
	if stripeSub.Customer != nil {
		customerID = stripeSub.Customer.ID
	}
	cps := unixTime(stripeSub.CurrentPeriodStart)
	cpe := unixTime(stripeSub.CurrentPeriodEnd)

	tier := strings.TrimSpace(strings.ToLower(stripeSub.Metadata["tier"]))
	if tier == "" {
		// Missing metadata keeps the current tier rather than guessing.
		tier = s.Tier
	}

	if stripeSub.Status == stripe.SubscriptionStatusActive || stripeSub.Status == stripe.SubscriptionStatusTrialing {
		occurredAt := time.Unix(stripeSub.Created, 0).UTC()
		return r.subSvc.ApplyActivated(ctx, tx, s.ProviderID, tier, occurredAt, "stripe", customerID, stripeSub.ID, cps, cpe)
	}
	occurredAt := time.Now().UTC()
	if stripeSub.CanceledAt > 0 {
		occurredAt = time.Unix(stripeSub.CanceledAt, 0).UTC()
	}
	return r.subSvc.ApplyCanceled(ctx, tx, s.ProviderID, occurredAt, "stripe", customerID, stripeSub.ID, cps, cpe)
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
