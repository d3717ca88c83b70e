package d1

import (
	"context"
	"fmt"
	"time"

	"astrobot-service/internal/domain/astro"
	"astrobot-service/internal/domain/user"
	xerrors "astrobot-service/internal/pkg/errors"
)

type UserRepository struct {
	exec Executor
}

func NewUserRepository(exec Executor) *UserRepository {
	return &UserRepository{exec: exec}
}

func (r *UserRepository) GetUser(ctx context.Context, userID string) (*user.User, error) {
	rows, err := r.exec.Execute(ctx, `
		SELECT user_id, name, language, birth_date, birth_hour, birth_minute, birth_place,
		       lat, lng, timezone, natal_chart, created_at, updated_at
		FROM users WHERE user_id = ? LIMIT 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(rows) == 0 {
		return nil, xerrors.ErrNotFound
	}

	row := rows[0]
	u := &user.User{
		ID:       row.String("user_id"),
		Name:     row.String("name"),
		Language: row.String("language"),
		Chart:    chartFromRow(row),
	}
	if u.Birth, err = birthFromRow(row); err != nil {
		return nil, err
	}
	if u.CreatedAt, err = row.Time("created_at"); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = row.Time("updated_at"); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) SaveUser(ctx context.Context, u *user.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Language == "" {
		u.Language = "en"
	}

	b := u.Birth
	_, err := r.exec.Execute(ctx, `
		INSERT INTO users
			(user_id, name, language, birth_date, birth_hour, birth_minute, birth_place,
			 lat, lng, timezone, natal_chart, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			language = excluded.language,
			birth_date = excluded.birth_date,
			birth_hour = excluded.birth_hour,
			birth_minute = excluded.birth_minute,
			birth_place = excluded.birth_place,
			lat = excluded.lat,
			lng = excluded.lng,
			timezone = excluded.timezone,
			natal_chart = excluded.natal_chart,
			updated_at = excluded.updated_at`,
		u.ID, u.Name, u.Language, b.Date.Format(time.DateOnly), b.Hour, b.Minute, b.Location.Name,
		b.Location.Lat, b.Location.Lng, b.Location.Timezone, string(u.Chart),
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateLanguage(ctx context.Context, userID, language string) error {
	_, err := r.exec.Execute(ctx, `UPDATE users SET language = ?, updated_at = ? WHERE user_id = ?`,
		language, formatTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("failed to update language: %w", err)
	}
	return nil
}

// DeleteUser removes the user with their profiles, feedback and readings.
func (r *UserRepository) DeleteUser(ctx context.Context, userID string) error {
	for _, stmt := range []string{
		`DELETE FROM user_profiles WHERE owner_user_id = ?`,
		`DELETE FROM user_feedback WHERE user_id = ?`,
		`DELETE FROM compatibility_results WHERE user_id = ?`,
		`DELETE FROM users WHERE user_id = ?`,
	} {
		if _, err := r.exec.Execute(ctx, stmt, userID); err != nil {
			return fmt.Errorf("failed to delete user data: %w", err)
		}
	}
	return nil
}

func (r *UserRepository) CreateProfile(ctx context.Context, p *user.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	b := p.Birth
	_, err := r.exec.Execute(ctx, `
		INSERT INTO user_profiles
			(profile_id, owner_user_id, name, birth_date, birth_hour, birth_minute, birth_place,
			 lat, lng, timezone, natal_chart, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerUserID, p.Name, b.Date.Format(time.DateOnly), b.Hour, b.Minute, b.Location.Name,
		b.Location.Lat, b.Location.Lng, b.Location.Timezone, string(p.Chart), boolToInt(p.IsActive),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (r *UserRepository) ListProfiles(ctx context.Context, ownerUserID string) ([]user.Profile, error) {
	rows, err := r.exec.Execute(ctx, `
		SELECT profile_id, owner_user_id, name, birth_date, birth_hour, birth_minute, birth_place,
		       lat, lng, timezone, natal_chart, is_active, created_at
		FROM user_profiles WHERE owner_user_id = ?
		ORDER BY created_at`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	out := make([]user.Profile, 0, len(rows))
	for _, row := range rows {
		p, err := profileFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *UserRepository) ActivateProfile(ctx context.Context, ownerUserID, profileID string) error {
	rows, err := r.exec.Execute(ctx, `
		UPDATE user_profiles SET is_active = CASE WHEN profile_id = ? THEN 1 ELSE 0 END
		WHERE owner_user_id = ?
		RETURNING profile_id, is_active`, profileID, ownerUserID)
	if err != nil {
		return fmt.Errorf("failed to activate profile: %w", err)
	}
	for _, row := range rows {
		if row.String("profile_id") == profileID {
			return nil
		}
	}
	return xerrors.ErrNotFound
}

func (r *UserRepository) GetActiveProfile(ctx context.Context, ownerUserID string) (*user.Profile, error) {
	rows, err := r.exec.Execute(ctx, `
		SELECT profile_id, owner_user_id, name, birth_date, birth_hour, birth_minute, birth_place,
		       lat, lng, timezone, natal_chart, is_active, created_at
		FROM user_profiles WHERE owner_user_id = ? AND is_active = 1
		LIMIT 1`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, xerrors.ErrNotFound
	}
	return profileFromRow(rows[0])
}

func profileFromRow(row Row) (*user.Profile, error) {
	p := &user.Profile{
		ID:          row.String("profile_id"),
		OwnerUserID: row.String("owner_user_id"),
		Name:        row.String("name"),
		Chart:       chartFromRow(row),
		IsActive:    row.Bool("is_active"),
	}
	var err error
	if p.Birth, err = birthFromRow(row); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = row.Time("created_at"); err != nil {
		return nil, err
	}
	return p, nil
}

func birthFromRow(row Row) (astro.BirthDetails, error) {
	b := astro.BirthDetails{
		Hour:   row.Int("birth_hour"),
		Minute: row.Int("birth_minute"),
		Location: astro.Location{
			Name:     row.String("birth_place"),
			Lat:      row.Float("lat"),
			Lng:      row.Float("lng"),
			Timezone: row.String("timezone"),
		},
	}
	if raw := row.String("birth_date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return b, fmt.Errorf("invalid birth_date %q: %w", raw, err)
		}
		b.Date = d
	}
	return b, nil
}

func chartFromRow(row Row) astro.Chart {
	raw := row.String("natal_chart")
	if raw == "" {
		return nil
	}
	return astro.Chart(raw)
}
