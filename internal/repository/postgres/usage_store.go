package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"astrobot-service/internal/domain/billing"
	xerrors "astrobot-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageStore implements billing.UsageStore on postgres.
type UsageStore struct {
	db *pgxpool.Pool
}

func NewUsageStore(db *pgxpool.Pool) *UsageStore {
	return &UsageStore{db: db}
}

func (s *UsageStore) GetSubscription(ctx context.Context, userID string) (*billing.Subscription, error) {
	query := `
		SELECT user_id, plan_code, sub_external_id, period_start, period_end, created_at, updated_at
		FROM wa_subscriptions
		WHERE user_id = $1
		ORDER BY period_end DESC
		LIMIT 1
	`
	var sub billing.Subscription
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&sub.UserID, &sub.PlanCode, &sub.ExternalSubscriptionID,
		&sub.PeriodStart, &sub.PeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	sub.PeriodStart, sub.PeriodEnd = sub.PeriodStart.UTC(), sub.PeriodEnd.UTC()
	return &sub, nil
}

func (s *UsageStore) UpsertSubscription(ctx context.Context, sub *billing.Subscription) error {
	query := `
		INSERT INTO wa_subscriptions (user_id, plan_code, sub_external_id, period_start, period_end)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_code = EXCLUDED.plan_code,
			sub_external_id = EXCLUDED.sub_external_id,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRow(ctx, query,
		sub.UserID, sub.PlanCode, sub.ExternalSubscriptionID, sub.PeriodStart, sub.PeriodEnd,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (s *UsageStore) DeleteSubscription(ctx context.Context, userID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM wa_subscriptions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *UsageStore) GetUsage(ctx context.Context, userID string, periodStart, periodEnd time.Time) (*billing.UsagePeriod, error) {
	query := `
		SELECT user_id, period_start, period_end, used, plan_code
		FROM wa_usage_periods
		WHERE user_id = $1 AND period_start = $2 AND period_end = $3
	`
	var u billing.UsagePeriod
	err := s.db.QueryRow(ctx, query, userID, periodStart, periodEnd).Scan(
		&u.UserID, &u.PeriodStart, &u.PeriodEnd, &u.UsedCount, &u.PlanCode,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	u.PeriodStart, u.PeriodEnd = u.PeriodStart.UTC(), u.PeriodEnd.UTC()
	return &u, nil
}

func (s *UsageStore) EnsureUsageRow(ctx context.Context, userID string, periodStart, periodEnd time.Time, planCode string) error {
	query := `
		INSERT INTO wa_usage_periods (user_id, period_start, period_end, used, plan_code)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (user_id, period_start, period_end) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, query, userID, periodStart, periodEnd, planCode); err != nil {
		return fmt.Errorf("failed to ensure usage row: %w", err)
	}
	return nil
}

func (s *UsageStore) IncrementUsage(ctx context.Context, userID string, periodStart, periodEnd time.Time, newCount int) error {
	query := `
		UPDATE wa_usage_periods SET used = $1
		WHERE user_id = $2 AND period_start = $3 AND period_end = $4
	`
	if _, err := s.db.Exec(ctx, query, newCount, userID, periodStart, periodEnd); err != nil {
		return fmt.Errorf("failed to update usage: %w", err)
	}
	return nil
}

func (s *UsageStore) DeleteUsage(ctx context.Context, userID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM wa_usage_periods WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete usage: %w", err)
	}
	return nil
}

func (s *UsageStore) GetFreeCounter(ctx context.Context, userID string) (*billing.FreeCounter, error) {
	var c billing.FreeCounter
	err := s.db.QueryRow(ctx,
		`SELECT user_id, count, last_reset FROM user_message_counters WHERE user_id = $1`, userID,
	).Scan(&c.UserID, &c.Count, &c.LastReset)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get free counter: %w", err)
	}
	return &c, nil
}

func (s *UsageStore) SetFreeCounter(ctx context.Context, userID string, count int, at time.Time) error {
	query := `
		INSERT INTO user_message_counters (user_id, count, last_reset)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET count = EXCLUDED.count, last_reset = EXCLUDED.last_reset
	`
	if _, err := s.db.Exec(ctx, query, userID, count, at); err != nil {
		return fmt.Errorf("failed to set free counter: %w", err)
	}
	return nil
}

func (s *UsageStore) ResetFreeCounter(ctx context.Context, userID string, at time.Time) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE user_message_counters SET count = 0, last_reset = $1 WHERE user_id = $2`, at, userID,
	); err != nil {
		return fmt.Errorf("failed to reset free counter: %w", err)
	}
	return nil
}
