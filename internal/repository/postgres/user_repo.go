package postgres

import (
	"context"
	"errors"
	"fmt"

	"astrobot-service/internal/domain/astro"
	"astrobot-service/internal/domain/user"
	xerrors "astrobot-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, userID string) (*user.User, error) {
	query := `
		SELECT user_id, name, language, birth_date, birth_hour, birth_minute, birth_place,
		       lat, lng, timezone, natal_chart, created_at, updated_at
		FROM users WHERE user_id = $1
	`
	var u user.User
	var chart []byte
	b := &u.Birth
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&u.ID, &u.Name, &u.Language, &b.Date, &b.Hour, &b.Minute, &b.Location.Name,
		&b.Location.Lat, &b.Location.Lng, &b.Location.Timezone, &chart, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Chart = astro.Chart(chart)
	return &u, nil
}

func (r *UserRepository) SaveUser(ctx context.Context, u *user.User) error {
	if u.Language == "" {
		u.Language = "en"
	}
	b := u.Birth
	query := `
		INSERT INTO users (user_id, name, language, birth_date, birth_hour, birth_minute, birth_place,
		                   lat, lng, timezone, natal_chart)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			language = EXCLUDED.language,
			birth_date = EXCLUDED.birth_date,
			birth_hour = EXCLUDED.birth_hour,
			birth_minute = EXCLUDED.birth_minute,
			birth_place = EXCLUDED.birth_place,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			timezone = EXCLUDED.timezone,
			natal_chart = EXCLUDED.natal_chart,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		u.ID, u.Name, u.Language, b.Date, b.Hour, b.Minute, b.Location.Name,
		b.Location.Lat, b.Location.Lng, b.Location.Timezone, chartParam(u.Chart),
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateLanguage(ctx context.Context, userID, language string) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE users SET language = $1, updated_at = NOW() WHERE user_id = $2`, language, userID,
	); err != nil {
		return fmt.Errorf("failed to update language: %w", err)
	}
	return nil
}

// DeleteUser removes the user with their profiles, feedback and readings in one transaction.
func (r *UserRepository) DeleteUser(ctx context.Context, userID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		`DELETE FROM user_profiles WHERE owner_user_id = $1`,
		`DELETE FROM user_feedback WHERE user_id = $1`,
		`DELETE FROM compatibility_results WHERE user_id = $1`,
		`DELETE FROM users WHERE user_id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, userID); err != nil {
			return fmt.Errorf("failed to delete user data: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *UserRepository) CreateProfile(ctx context.Context, p *user.Profile) error {
	b := p.Birth
	query := `
		INSERT INTO user_profiles (profile_id, owner_user_id, name, birth_date, birth_hour, birth_minute,
		                           birth_place, lat, lng, timezone, natal_chart, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		p.ID, p.OwnerUserID, p.Name, b.Date, b.Hour, b.Minute, b.Location.Name,
		b.Location.Lat, b.Location.Lng, b.Location.Timezone, chartParam(p.Chart), p.IsActive,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

const profileColumns = `profile_id, owner_user_id, name, birth_date, birth_hour, birth_minute, birth_place,
	lat, lng, timezone, natal_chart, is_active, created_at`

func scanProfile(row pgx.Row) (*user.Profile, error) {
	var p user.Profile
	var chart []byte
	b := &p.Birth
	err := row.Scan(
		&p.ID, &p.OwnerUserID, &p.Name, &b.Date, &b.Hour, &b.Minute, &b.Location.Name,
		&b.Location.Lat, &b.Location.Lng, &b.Location.Timezone, &chart, &p.IsActive, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Chart = astro.Chart(chart)
	return &p, nil
}

func (r *UserRepository) ListProfiles(ctx context.Context, ownerUserID string) ([]user.Profile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE owner_user_id = $1 ORDER BY created_at`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []user.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *UserRepository) ActivateProfile(ctx context.Context, ownerUserID, profileID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_profiles SET is_active = (profile_id = $1)
		WHERE owner_user_id = $2`, profileID, ownerUserID)
	if err != nil {
		return fmt.Errorf("failed to activate profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *UserRepository) GetActiveProfile(ctx context.Context, ownerUserID string) (*user.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE owner_user_id = $1 AND is_active LIMIT 1`, ownerUserID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active profile: %w", err)
	}
	return p, nil
}

func chartParam(c astro.Chart) any {
	if c.Empty() {
		return nil
	}
	return []byte(c)
}
