// internal/service/subscription/subscription_service.go
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"astrobot-service/internal/client/lago"
	"astrobot-service/internal/domain/billing"
	"astrobot-service/internal/domain/user"
	xerrors "astrobot-service/internal/pkg/errors"
	"astrobot-service/internal/pkg/metrics"
)

// Termination reasons recorded in the activity log.
const (
	ReasonNewActivation  = "new_activation"
	ReasonUserDelete     = "user_delete"
	ReasonLimitReached   = "limit_reached"
	ReasonProviderEnded  = "provider_terminated"
	ReasonOpsTermination = "ops_request"
)

// BillingProvider is the remote billing system.
type BillingProvider interface {
	UpsertCustomer(ctx context.Context, externalID string) error
	CreateSubscription(ctx context.Context, externalCustomerID, planCode, externalID string, startAt time.Time) (*lago.Subscription, error)
	TerminateSubscription(ctx context.Context, externalID string) error
	GetActiveSubscription(ctx context.Context, externalCustomerID string) (*lago.Subscription, error)
	EnsurePlan(ctx context.Context, plan lago.Plan) (bool, error)
}

// Activation is the result of a successful Activate.
type Activation struct {
	Subscription *billing.Subscription `json:"subscription"`
	Plan         billing.PaymentPlan   `json:"plan"`
	Quota        billing.PlanQuota     `json:"quota"`
	ExternalID   string                `json:"external_id"`
}

// LifecycleService activates and terminates subscriptions so that a user never
// holds two windows at once.
type LifecycleService struct {
	store    billing.UsageStore
	provider BillingProvider
	catalog  *billing.Catalog
	activity billing.ActivityLogger
	logger   *zap.Logger
	now      func() time.Time
}

func NewLifecycleService(
	store billing.UsageStore,
	provider BillingProvider,
	catalog *billing.Catalog,
	activity billing.ActivityLogger,
	logger *zap.Logger,
) *LifecycleService {
	return &LifecycleService{
		store:    store,
		provider: provider,
		catalog:  catalog,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
}

// Activate puts the user on planID. Any existing subscription is terminated
// first. Billing provider failures abort before a local row is written.
func (s *LifecycleService) Activate(ctx context.Context, rawUserID, planID, externalSubID string) (*Activation, error) {
	userID := user.NormalizeID(rawUserID)

	plan, ok := s.catalog.PaymentPlan(planID)
	if !ok {
		return nil, fmt.Errorf("plan id %q: %w", planID, xerrors.ErrUnknownPlan)
	}
	quota, ok := s.catalog.Quota(plan.PlanCode)
	if !ok {
		return nil, fmt.Errorf("plan code %q: %w", plan.PlanCode, xerrors.ErrUnknownPlan)
	}

	if err := s.Terminate(ctx, userID, ReasonNewActivation); err != nil {
		return nil, fmt.Errorf("failed to clear previous subscription: %w", err)
	}

	if err := s.provider.UpsertCustomer(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to register billing customer: %w", err)
	}
	now := s.now().UTC()
	remote, err := s.provider.CreateSubscription(ctx, userID, plan.PlanCode, externalSubID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing subscription: %w", err)
	}
	externalID := remote.ExternalID
	if externalID == "" {
		externalID = externalSubID
	}

	start, end := billing.PeriodWindow(now, quota.Days)
	sub := &billing.Subscription{
		UserID:                 userID,
		PlanCode:               plan.PlanCode,
		ExternalSubscriptionID: externalID,
		PeriodStart:            start,
		PeriodEnd:              end,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.writeLocal(ctx, sub); err != nil {
		if terr := s.provider.TerminateSubscription(ctx, externalID); terr != nil {
			s.logger.Error("failed to roll back billing subscription",
				zap.String("user_id", userID),
				zap.String("external_id", externalID),
				zap.Error(terr),
			)
		}
		return nil, err
	}

	if err := s.store.ResetFreeCounter(ctx, userID, now); err != nil {
		s.logger.Warn("failed to reset free counter", zap.String("user_id", userID), zap.Error(err))
	}
	s.logActivity(ctx, userID, billing.ActionSubscriptionActivated, fmt.Sprintf("plan: %s, quota: %d", planID, quota.Questions))
	metrics.RecordSubscriptionEvent("activated", plan.PlanCode)

	s.logger.Info("subscription activated",
		zap.String("user_id", userID),
		zap.String("plan_id", planID),
		zap.String("plan_code", plan.PlanCode),
		zap.String("external_id", externalID),
		zap.Time("period_end", end),
	)
	return &Activation{Subscription: sub, Plan: plan, Quota: quota, ExternalID: externalID}, nil
}

func (s *LifecycleService) writeLocal(ctx context.Context, sub *billing.Subscription) error {
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to store subscription: %w", err)
	}
	if err := s.store.EnsureUsageRow(ctx, sub.UserID, sub.PeriodStart, sub.PeriodEnd, sub.PlanCode); err != nil {
		if derr := s.store.DeleteSubscription(ctx, sub.UserID); derr != nil {
			s.logger.Error("failed to remove half-written subscription",
				zap.String("user_id", sub.UserID),
				zap.Error(derr),
			)
		}
		return fmt.Errorf("failed to create usage row: %w", err)
	}
	return nil
}

// Terminate removes the user's subscription. Having none is not an error.
// The remote call is best effort; local rows are always removed.
func (s *LifecycleService) Terminate(ctx context.Context, rawUserID, reason string) error {
	userID := user.NormalizeID(rawUserID)

	sub, err := s.store.GetSubscription(ctx, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		s.logger.Debug("no subscription to terminate", zap.String("user_id", userID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}
	return s.terminate(ctx, sub, reason, true)
}

func (s *LifecycleService) terminate(ctx context.Context, sub *billing.Subscription, reason string, remote bool) error {
	if remote && sub.ExternalSubscriptionID != "" {
		if err := s.provider.TerminateSubscription(ctx, sub.ExternalSubscriptionID); err != nil {
			s.logger.Error("failed to terminate billing subscription",
				zap.String("user_id", sub.UserID),
				zap.String("external_id", sub.ExternalSubscriptionID),
				zap.Error(err),
			)
		}
	}

	var errs []error
	if err := s.store.DeleteSubscription(ctx, sub.UserID); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete subscription: %w", err))
	}
	if err := s.store.DeleteUsage(ctx, sub.UserID); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete usage: %w", err))
	}
	if err := s.store.ResetFreeCounter(ctx, sub.UserID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to reset free counter", zap.String("user_id", sub.UserID), zap.Error(err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.logActivity(ctx, sub.UserID, billing.ActionSubscriptionTerminated, "reason: "+reason)
	metrics.RecordSubscriptionEvent("terminated", sub.PlanCode)
	s.logger.Info("subscription terminated",
		zap.String("user_id", sub.UserID),
		zap.String("plan_code", sub.PlanCode),
		zap.String("reason", reason),
	)
	return nil
}

// SyncRemoteTermination drops the local subscription when the billing
// provider reports that externalID ended. It reports whether anything changed.
func (s *LifecycleService) SyncRemoteTermination(ctx context.Context, rawCustomerID, externalID string) (bool, error) {
	userID := user.NormalizeID(rawCustomerID)
	sub, err := s.store.GetSubscription(ctx, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.ExternalSubscriptionID != externalID {
		s.logger.Info("ignoring termination of a stale subscription",
			zap.String("user_id", userID),
			zap.String("external_id", externalID),
			zap.String("current_external_id", sub.ExternalSubscriptionID),
		)
		return false, nil
	}
	if err := s.terminate(ctx, sub, ReasonProviderEnded, false); err != nil {
		return false, err
	}
	return true, nil
}

// RemoteStatus returns the user's active subscription as the provider sees it.
func (s *LifecycleService) RemoteStatus(ctx context.Context, rawUserID string) (*lago.Subscription, error) {
	return s.provider.GetActiveSubscription(ctx, user.NormalizeID(rawUserID))
}

// EnsurePlans creates every purchasable plan the provider does not know yet.
func (s *LifecycleService) EnsurePlans(ctx context.Context) error {
	var errs []error
	for _, p := range s.catalog.PurchasablePlans() {
		created, err := s.provider.EnsurePlan(ctx, lago.Plan{
			Name:           p.DisplayPrice + " " + p.Interval,
			Code:           p.PlanCode,
			Interval:       p.Interval,
			AmountCents:    p.AmountPaise,
			AmountCurrency: "INR",
			PayInAdvance:   true,
			Description:    p.Description,
		})
		if err != nil {
			s.logger.Error("failed to ensure billing plan", zap.String("plan_code", p.PlanCode), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if created {
			s.logger.Info("billing plan created", zap.String("plan_code", p.PlanCode))
		}
	}
	return errors.Join(errs...)
}

// Current returns the local subscription row.
func (s *LifecycleService) Current(ctx context.Context, rawUserID string) (*billing.Subscription, error) {
	return s.store.GetSubscription(ctx, user.NormalizeID(rawUserID))
}

func (s *LifecycleService) logActivity(ctx context.Context, userID, action, details string) {
	if s.activity == nil {
		return
	}
	entry := &billing.ActivityLog{UserID: userID, Action: action, Details: details, CreatedAt: s.now().UTC()}
	if err := s.activity.LogActivity(ctx, entry); err != nil {
		s.logger.Warn("failed to write activity log",
			zap.String("user_id", userID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
