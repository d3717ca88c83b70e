// internal/domain/user/entity.go
package user

import (
	"context"
	"time"

	"astrobot-service/internal/domain/astro"
)

// User is a registered WhatsApp user with their own birth details.
type User struct {
	ID        string             `json:"user_id" db:"user_id"`
	Name      string             `json:"name" db:"name"`
	Language  string             `json:"language" db:"language"`
	Birth     astro.BirthDetails `json:"birth"`
	Chart     astro.Chart        `json:"natal_chart,omitempty" db:"natal_chart"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"`
}

// Profile is an additional person managed by a user, such as a family member.
type Profile struct {
	ID          string             `json:"profile_id" db:"profile_id"`
	OwnerUserID string             `json:"owner_user_id" db:"owner_user_id"`
	Name        string             `json:"name" db:"name"`
	Birth       astro.BirthDetails `json:"birth"`
	Chart       astro.Chart        `json:"natal_chart,omitempty" db:"natal_chart"`
	IsActive    bool               `json:"is_active" db:"is_active"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
}

// Repository persists users and their profiles.
type Repository interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	SaveUser(ctx context.Context, u *User) error
	UpdateLanguage(ctx context.Context, userID, language string) error
	DeleteUser(ctx context.Context, userID string) error

	CreateProfile(ctx context.Context, p *Profile) error
	ListProfiles(ctx context.Context, ownerUserID string) ([]Profile, error)
	// ActivateProfile marks one profile active and every other profile of the owner inactive.
	ActivateProfile(ctx context.Context, ownerUserID, profileID string) error
	GetActiveProfile(ctx context.Context, ownerUserID string) (*Profile, error)
}
