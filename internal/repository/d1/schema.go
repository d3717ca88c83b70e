package d1

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS wa_subscriptions (
		user_id TEXT PRIMARY KEY,
		plan_code TEXT NOT NULL,
		sub_external_id TEXT NOT NULL DEFAULT '',
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wa_usage_periods (
		user_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		used INTEGER NOT NULL DEFAULT 0,
		plan_code TEXT NOT NULL,
		PRIMARY KEY (user_id, period_start, period_end)
	)`,
	`CREATE TABLE IF NOT EXISTS user_message_counters (
		user_id TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0,
		last_reset TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wa_payments (
		reference_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		plan_id TEXT NOT NULL DEFAULT '',
		amount_paise INTEGER NOT NULL,
		currency TEXT NOT NULL DEFAULT 'INR',
		status TEXT NOT NULL CHECK (status IN ('created','pending','paid','failed','refunded')),
		raw_event TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payment_activity_log (
		log_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT 'en',
		birth_date TEXT,
		birth_hour INTEGER,
		birth_minute INTEGER,
		birth_place TEXT,
		lat REAL,
		lng REAL,
		timezone TEXT,
		natal_chart TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		profile_id TEXT PRIMARY KEY,
		owner_user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		birth_date TEXT,
		birth_hour INTEGER,
		birth_minute INTEGER,
		birth_place TEXT,
		lat REAL,
		lng REAL,
		timezone TEXT,
		natal_chart TEXT,
		is_active INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_profiles_owner ON user_profiles (owner_user_id)`,
	`CREATE TABLE IF NOT EXISTS user_feedback (
		feedback_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		message_id TEXT,
		rating TEXT NOT NULL,
		comments TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS compatibility_results (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		partner_name TEXT NOT NULL,
		partner_birth TEXT,
		report TEXT,
		created_at TEXT NOT NULL
	)`,
}

// normalize rewrites usage windows stored without a zone suffix into the
// RFC3339 UTC form the lookups bind. A legacy row that collides with an
// already normalised window is folded into it, keeping the larger count.
var normalize = []string{
	`UPDATE OR IGNORE wa_usage_periods
	SET period_start = strftime('%Y-%m-%dT%H:%M:%SZ', period_start),
		period_end = strftime('%Y-%m-%dT%H:%M:%SZ', period_end)
	WHERE (period_start NOT LIKE '%Z' OR period_end NOT LIKE '%Z')
		AND strftime('%s', period_start) IS NOT NULL
		AND strftime('%s', period_end) IS NOT NULL`,
	`UPDATE wa_usage_periods
	SET used = MAX(used, (
		SELECT MAX(l.used) FROM wa_usage_periods l
		WHERE l.user_id = wa_usage_periods.user_id
			AND (l.period_start NOT LIKE '%Z' OR l.period_end NOT LIKE '%Z')
			AND strftime('%Y-%m-%dT%H:%M:%SZ', l.period_start) = wa_usage_periods.period_start
			AND strftime('%Y-%m-%dT%H:%M:%SZ', l.period_end) = wa_usage_periods.period_end
	))
	WHERE period_start LIKE '%Z' AND period_end LIKE '%Z'
		AND EXISTS (
			SELECT 1 FROM wa_usage_periods l
			WHERE l.user_id = wa_usage_periods.user_id
				AND (l.period_start NOT LIKE '%Z' OR l.period_end NOT LIKE '%Z')
				AND strftime('%Y-%m-%dT%H:%M:%SZ', l.period_start) = wa_usage_periods.period_start
				AND strftime('%Y-%m-%dT%H:%M:%SZ', l.period_end) = wa_usage_periods.period_end
		)`,
	`DELETE FROM wa_usage_periods
	WHERE (period_start NOT LIKE '%Z' OR period_end NOT LIKE '%Z')
		AND strftime('%s', period_start) IS NOT NULL
		AND strftime('%s', period_end) IS NOT NULL`,
}

// Migrate creates missing tables and normalises legacy usage windows. D1
// accepts one statement per call.
func Migrate(ctx context.Context, exec Executor) error {
	for _, stmt := range schema {
		if _, err := exec.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	for _, stmt := range normalize {
		if _, err := exec.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("failed to normalise usage periods: %w", err)
		}
	}
	return nil
}
