// internal/repository/postgres/db.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS wa_subscriptions (
		user_id TEXT PRIMARY KEY,
		plan_code TEXT NOT NULL,
		sub_external_id TEXT NOT NULL DEFAULT '',
		period_start TIMESTAMPTZ NOT NULL,
		period_end TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (period_start <= period_end)
	)`,
	`CREATE TABLE IF NOT EXISTS wa_usage_periods (
		user_id TEXT NOT NULL,
		period_start TIMESTAMPTZ NOT NULL,
		period_end TIMESTAMPTZ NOT NULL,
		used INTEGER NOT NULL DEFAULT 0 CHECK (used >= 0),
		plan_code TEXT NOT NULL,
		PRIMARY KEY (user_id, period_start, period_end)
	)`,
	`CREATE TABLE IF NOT EXISTS user_message_counters (
		user_id TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0,
		last_reset TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wa_payments (
		reference_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		plan_id TEXT NOT NULL DEFAULT '',
		amount_paise BIGINT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'INR',
		status TEXT NOT NULL CHECK (status IN ('created','pending','paid','failed','refunded')),
		raw_event TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS payment_activity_log (
		log_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT 'en',
		birth_date DATE,
		birth_hour INTEGER NOT NULL DEFAULT 12,
		birth_minute INTEGER NOT NULL DEFAULT 0,
		birth_place TEXT NOT NULL DEFAULT '',
		lat DOUBLE PRECISION NOT NULL DEFAULT 0,
		lng DOUBLE PRECISION NOT NULL DEFAULT 0,
		timezone TEXT NOT NULL DEFAULT 'Asia/Kolkata',
		natal_chart JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		profile_id TEXT PRIMARY KEY,
		owner_user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		birth_date DATE,
		birth_hour INTEGER NOT NULL DEFAULT 12,
		birth_minute INTEGER NOT NULL DEFAULT 0,
		birth_place TEXT NOT NULL DEFAULT '',
		lat DOUBLE PRECISION NOT NULL DEFAULT 0,
		lng DOUBLE PRECISION NOT NULL DEFAULT 0,
		timezone TEXT NOT NULL DEFAULT 'Asia/Kolkata',
		natal_chart JSONB,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_profiles_owner ON user_profiles (owner_user_id)`,
	`CREATE TABLE IF NOT EXISTS user_feedback (
		feedback_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		message_id TEXT,
		rating TEXT NOT NULL,
		comments TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS compatibility_results (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		partner_name TEXT NOT NULL,
		partner_birth JSONB,
		report TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates missing tables.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
