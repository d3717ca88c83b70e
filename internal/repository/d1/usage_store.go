package d1

import (
	"context"
	"fmt"
	"time"

	"astrobot-service/internal/domain/billing"
	xerrors "astrobot-service/internal/pkg/errors"
)

// UsageStore implements billing.UsageStore in the D1 dialect.
type UsageStore struct {
	exec Executor
}

func NewUsageStore(exec Executor) *UsageStore {
	return &UsageStore{exec: exec}
}

func (s *UsageStore) GetSubscription(ctx context.Context, userID string) (*billing.Subscription, error) {
	rows, err := s.exec.Execute(ctx, `
		SELECT user_id, plan_code, sub_external_id, period_start, period_end, created_at, updated_at
		FROM wa_subscriptions
		WHERE user_id = ?
		ORDER BY period_end DESC
		LIMIT 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if len(rows) == 0 {
		return nil, xerrors.ErrNotFound
	}
	return subscriptionFromRow(rows[0])
}

func (s *UsageStore) UpsertSubscription(ctx context.Context, sub *billing.Subscription) error {
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	_, err := s.exec.Execute(ctx, `
		INSERT INTO wa_subscriptions
			(user_id, plan_code, sub_external_id, period_start, period_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			plan_code = excluded.plan_code,
			sub_external_id = excluded.sub_external_id,
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			updated_at = excluded.updated_at`,
		sub.UserID, sub.PlanCode, sub.ExternalSubscriptionID,
		formatTime(sub.PeriodStart), formatTime(sub.PeriodEnd),
		formatTime(sub.CreatedAt), formatTime(sub.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (s *UsageStore) DeleteSubscription(ctx context.Context, userID string) error {
	if _, err := s.exec.Execute(ctx, `DELETE FROM wa_subscriptions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *UsageStore) GetUsage(ctx context.Context, userID string, periodStart, periodEnd time.Time) (*billing.UsagePeriod, error) {
	rows, err := s.exec.Execute(ctx, `
		SELECT user_id, period_start, period_end, COALESCE(used, 0) AS used, plan_code
		FROM wa_usage_periods
		WHERE user_id = ? AND period_start = ? AND period_end = ?
		LIMIT 1`, userID, formatTime(periodStart), formatTime(periodEnd))
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	if len(rows) == 0 {
		return nil, xerrors.ErrNotFound
	}

	row := rows[0]
	u := &billing.UsagePeriod{
		UserID:    row.String("user_id"),
		UsedCount: row.Int("used"),
		PlanCode:  row.String("plan_code"),
	}
	if u.PeriodStart, err = row.Time("period_start"); err != nil {
		return nil, err
	}
	if u.PeriodEnd, err = row.Time("period_end"); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UsageStore) EnsureUsageRow(ctx context.Context, userID string, periodStart, periodEnd time.Time, planCode string) error {
	_, err := s.exec.Execute(ctx, `
		INSERT OR IGNORE INTO wa_usage_periods (user_id, period_start, period_end, used, plan_code)
		VALUES (?, ?, ?, 0, ?)`,
		userID, formatTime(periodStart), formatTime(periodEnd), planCode)
	if err != nil {
		return fmt.Errorf("failed to ensure usage row: %w", err)
	}
	return nil
}

func (s *UsageStore) IncrementUsage(ctx context.Context, userID string, periodStart, periodEnd time.Time, newCount int) error {
	_, err := s.exec.Execute(ctx, `
		UPDATE wa_usage_periods SET used = ?
		WHERE user_id = ? AND period_start = ? AND period_end = ?`,
		newCount, userID, formatTime(periodStart), formatTime(periodEnd))
	if err != nil {
		return fmt.Errorf("failed to update usage: %w", err)
	}
	return nil
}

func (s *UsageStore) DeleteUsage(ctx context.Context, userID string) error {
	if _, err := s.exec.Execute(ctx, `DELETE FROM wa_usage_periods WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete usage: %w", err)
	}
	return nil
}

func (s *UsageStore) GetFreeCounter(ctx context.Context, userID string) (*billing.FreeCounter, error) {
	rows, err := s.exec.Execute(ctx, `
		SELECT user_id, COALESCE(count, 0) AS count, last_reset
		FROM user_message_counters
		WHERE user_id = ?
		LIMIT 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get free counter: %w", err)
	}
	if len(rows) == 0 {
		return nil, xerrors.ErrNotFound
	}

	c := &billing.FreeCounter{UserID: rows[0].String("user_id"), Count: rows[0].Int("count")}
	if c.LastReset, err = rows[0].Time("last_reset"); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *UsageStore) SetFreeCounter(ctx context.Context, userID string, count int, at time.Time) error {
	_, err := s.exec.Execute(ctx, `
		INSERT INTO user_message_counters (user_id, count, last_reset)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET count = excluded.count, last_reset = excluded.last_reset`,
		userID, count, formatTime(at))
	if err != nil {
		return fmt.Errorf("failed to set free counter: %w", err)
	}
	return nil
}

func (s *UsageStore) ResetFreeCounter(ctx context.Context, userID string, at time.Time) error {
	_, err := s.exec.Execute(ctx, `
		UPDATE user_message_counters SET count = 0, last_reset = ? WHERE user_id = ?`,
		formatTime(at), userID)
	if err != nil {
		return fmt.Errorf("failed to reset free counter: %w", err)
	}
	return nil
}

func subscriptionFromRow(row Row) (*billing.Subscription, error) {
	sub := &billing.Subscription{
		UserID:                 row.String("user_id"),
		PlanCode:               row.String("plan_code"),
		ExternalSubscriptionID: row.String("sub_external_id"),
	}
	var err error
	if sub.PeriodStart, err = row.Time("period_start"); err != nil {
		return nil, err
	}
	if sub.PeriodEnd, err = row.Time("period_end"); err != nil {
		return nil, err
	}
	if sub.CreatedAt, err = row.Time("created_at"); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = row.Time("updated_at"); err != nil {
		return nil, err
	}
	return sub, nil
}
