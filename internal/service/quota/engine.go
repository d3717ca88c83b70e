// internal/service/quota/engine.go
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"astrobot-service/internal/domain/billing"
	"astrobot-service/internal/domain/user"
	xerrors "astrobot-service/internal/pkg/errors"
	"astrobot-service/internal/pkg/metrics"
)

// Denial reasons reported in Decision.Reason.
const (
	ReasonExhausted   = "quota_exhausted"
	ReasonUnknownPlan = "unknown_plan"
	ReasonStoreError  = "store_error"
)

// Status is a user's quota position inside the current window.
type Status struct {
	UserID      string    `json:"user_id"`
	PlanCode    string    `json:"plan_code"`
	Quota       int       `json:"quota"`
	Used        int       `json:"used"`
	Remaining   int       `json:"remaining"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Decision is the outcome of one CheckAndConsume call.
type Decision struct {
	Status
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Engine decides whether a heavy request may proceed and records consumption.
//
// The read-compare-write sequence is not atomic against the store. Two
// concurrent requests for one user may both be allowed; the counter stays
// eventually accurate.
type Engine struct {
	store    billing.UsageStore
	catalog  *billing.Catalog
	activity billing.ActivityLogger
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(store billing.UsageStore, catalog *billing.Catalog, activity billing.ActivityLogger, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		catalog:  catalog,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckAndConsume allows and records one heavy request, or denies it without
// mutating the counter. Store failures deny and return the error.
func (e *Engine) CheckAndConsume(ctx context.Context, rawUserID string) (*Decision, error) {
	userID := user.NormalizeID(rawUserID)
	now := e.now().UTC()

	sub, err := e.current(ctx, userID, now)
	if err != nil {
		return e.deny(userID, "", ReasonStoreError), err
	}

	q, ok := e.catalog.Quota(sub.PlanCode)
	if !ok {
		e.logger.Error("subscription references a plan without quota",
			zap.String("user_id", userID),
			zap.String("plan_code", sub.PlanCode),
		)
		return e.deny(userID, sub.PlanCode, ReasonUnknownPlan), nil
	}

	var d *Decision
	if sub.IsFree() {
		d, err = e.consumeFree(ctx, sub, q, now)
	} else {
		d, err = e.consumePeriod(ctx, sub, q)
	}
	if err != nil {
		return e.deny(userID, sub.PlanCode, ReasonStoreError), err
	}

	result := "allowed"
	if !d.Allowed {
		result = "denied"
		e.logger.Info("quota exhausted",
			zap.String("user_id", userID),
			zap.String("plan_code", sub.PlanCode),
			zap.Int("used", d.Used),
			zap.Int("quota", d.Quota),
		)
	}
	metrics.RecordQuotaDecision(sub.PlanCode, result)
	return d, nil
}

// Remaining reports the user's position without consuming. It provisions and
// rolls over like CheckAndConsume.
func (e *Engine) Remaining(ctx context.Context, rawUserID string) (*Status, error) {
	userID := user.NormalizeID(rawUserID)
	now := e.now().UTC()

	sub, err := e.current(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	q, ok := e.catalog.Quota(sub.PlanCode)
	if !ok {
		return nil, fmt.Errorf("plan %q: %w", sub.PlanCode, xerrors.ErrUnknownPlan)
	}

	used := 0
	if sub.IsFree() {
		if used, _, err = e.freeCount(ctx, sub, now); err != nil {
			return nil, err
		}
	} else {
		usage, err := e.store.GetUsage(ctx, userID, sub.PeriodStart, sub.PeriodEnd)
		switch {
		case err == nil:
			used = usage.UsedCount
		case !errors.Is(err, xerrors.ErrNotFound):
			return nil, fmt.Errorf("failed to get usage: %w", err)
		}
	}

	st := status(sub, q, used)
	return &st, nil
}

// EnsureFreeTier provisions the free-tier row when the user has no subscription.
// It reports whether a row was created.
func (e *Engine) EnsureFreeTier(ctx context.Context, rawUserID string) (bool, error) {
	userID := user.NormalizeID(rawUserID)
	_, err := e.store.GetSubscription(ctx, userID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return false, fmt.Errorf("failed to get subscription: %w", err)
	}
	if _, err := e.provisionFree(ctx, userID, e.now().UTC()); err != nil {
		return false, err
	}
	return true, nil
}

// current returns the user's subscription for the window containing now,
// provisioning the free tier and rolling over expired windows first.
func (e *Engine) current(ctx context.Context, userID string, now time.Time) (*billing.Subscription, error) {
	sub, err := e.store.GetSubscription(ctx, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return e.provisionFree(ctx, userID, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.IsCurrent(now) {
		return sub, nil
	}

	if err := e.rollover(ctx, sub, now); err != nil {
		return nil, err
	}
	sub, err = e.store.GetSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload subscription after rollover: %w", err)
	}
	if !sub.IsCurrent(now) {
		return nil, fmt.Errorf("subscription window still expired after rollover: %w", xerrors.ErrStoreUnavailable)
	}
	return sub, nil
}

// rollover advances the window contiguously until it contains now. The new
// usage row is created only if absent, so repeating it for the same window
// never resets consumption.
func (e *Engine) rollover(ctx context.Context, sub *billing.Subscription, now time.Time) error {
	q, ok := e.catalog.Quota(sub.PlanCode)
	if !ok {
		return fmt.Errorf("cannot roll over plan %q: %w", sub.PlanCode, xerrors.ErrUnknownPlan)
	}
	days := q.Days
	if days <= 0 {
		days = 1
	}

	start, end := sub.PeriodStart, sub.PeriodEnd
	windows := 0
	for !now.Before(end) {
		start, end = end, end.AddDate(0, 0, days)
		windows++
	}

	next := *sub
	next.PeriodStart = start
	next.PeriodEnd = end
	next.UpdatedAt = now
	if err := e.store.UpsertSubscription(ctx, &next); err != nil {
		return fmt.Errorf("failed to roll subscription window: %w", err)
	}
	if err := e.store.EnsureUsageRow(ctx, sub.UserID, start, end, sub.PlanCode); err != nil {
		return fmt.Errorf("failed to initialise usage row: %w", err)
	}
	if next.IsFree() {
		if err := e.store.ResetFreeCounter(ctx, sub.UserID, now); err != nil {
			e.logger.Warn("failed to reset free counter on rollover",
				zap.String("user_id", sub.UserID),
				zap.Error(err),
			)
		}
	}

	metrics.RecordRollover(sub.PlanCode)
	e.logger.Info("subscription window rolled over",
		zap.String("user_id", sub.UserID),
		zap.String("plan_code", sub.PlanCode),
		zap.Time("period_start", start),
		zap.Time("period_end", end),
		zap.Int("windows", windows),
	)
	return nil
}

func (e *Engine) provisionFree(ctx context.Context, userID string, now time.Time) (*billing.Subscription, error) {
	q, ok := e.catalog.Quota(billing.FreePlanCode)
	if !ok {
		return nil, fmt.Errorf("free tier: %w", xerrors.ErrUnknownPlan)
	}
	start, end := billing.PeriodWindow(now, q.Days)
	sub := &billing.Subscription{
		UserID:      userID,
		PlanCode:    billing.FreePlanCode,
		PeriodStart: start,
		PeriodEnd:   end,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.UpsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to provision free tier: %w", err)
	}
	if err := e.store.EnsureUsageRow(ctx, userID, start, end, billing.FreePlanCode); err != nil {
		return nil, fmt.Errorf("failed to initialise free usage row: %w", err)
	}

	e.logActivity(ctx, userID, billing.ActionFreeTierProvisioned, fmt.Sprintf("window %s..%s", start.Format(time.RFC3339), end.Format(time.RFC3339)))
	e.logger.Info("free tier provisioned", zap.String("user_id", userID))
	return sub, nil
}

func (e *Engine) consumePeriod(ctx context.Context, sub *billing.Subscription, q billing.PlanQuota) (*Decision, error) {
	usage, err := e.store.GetUsage(ctx, sub.UserID, sub.PeriodStart, sub.PeriodEnd)
	if errors.Is(err, xerrors.ErrNotFound) {
		if err := e.store.EnsureUsageRow(ctx, sub.UserID, sub.PeriodStart, sub.PeriodEnd, sub.PlanCode); err != nil {
			return nil, fmt.Errorf("failed to create usage row: %w", err)
		}
		usage, err = &billing.UsagePeriod{UserID: sub.UserID, PeriodStart: sub.PeriodStart, PeriodEnd: sub.PeriodEnd}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}

	used := usage.UsedCount
	if used+1 > q.Questions {
		return &Decision{Status: status(sub, q, used), Reason: ReasonExhausted}, nil
	}
	if err := e.store.IncrementUsage(ctx, sub.UserID, sub.PeriodStart, sub.PeriodEnd, used+1); err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}
	return &Decision{Status: status(sub, q, used+1), Allowed: true}, nil
}

func (e *Engine) consumeFree(ctx context.Context, sub *billing.Subscription, q billing.PlanQuota, now time.Time) (*Decision, error) {
	used, lastReset, err := e.freeCount(ctx, sub, now)
	if err != nil {
		return nil, err
	}
	if used+1 > q.Questions {
		return &Decision{Status: status(sub, q, used), Reason: ReasonExhausted}, nil
	}
	if err := e.store.SetFreeCounter(ctx, sub.UserID, used+1, lastReset); err != nil {
		return nil, fmt.Errorf("failed to record free usage: %w", err)
	}
	return &Decision{Status: status(sub, q, used+1), Allowed: true}, nil
}

// freeCount reads the free counter. A counter last reset before the current
// window started counts as zero.
func (e *Engine) freeCount(ctx context.Context, sub *billing.Subscription, now time.Time) (int, time.Time, error) {
	c, err := e.store.GetFreeCounter(ctx, sub.UserID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return 0, now, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get free counter: %w", err)
	}
	if c.LastReset.Before(sub.PeriodStart) {
		return 0, now, nil
	}
	return c.Count, c.LastReset, nil
}

func (e *Engine) deny(userID, planCode, reason string) *Decision {
	metrics.RecordQuotaDecision(planCode, reason)
	return &Decision{Status: Status{UserID: userID, PlanCode: planCode}, Reason: reason}
}

func (e *Engine) logActivity(ctx context.Context, userID, action, details string) {
	if e.activity == nil {
		return
	}
	entry := &billing.ActivityLog{UserID: userID, Action: action, Details: details, CreatedAt: e.now().UTC()}
	if err := e.activity.LogActivity(ctx, entry); err != nil {
		e.logger.Warn("failed to write activity log",
			zap.String("user_id", userID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func status(sub *billing.Subscription, q billing.PlanQuota, used int) Status {
	remaining := q.Questions - used
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		UserID:      sub.UserID,
		PlanCode:    sub.PlanCode,
		Quota:       q.Questions,
		Used:        used,
		Remaining:   remaining,
		PeriodStart: sub.PeriodStart,
		PeriodEnd:   sub.PeriodEnd,
	}
}
