package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"astrobot-service/internal/domain/astro"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AstroRepository struct {
	db *pgxpool.Pool
}

func NewAstroRepository(db *pgxpool.Pool) *AstroRepository {
	return &AstroRepository{db: db}
}

func (r *AstroRepository) SaveCompatibility(ctx context.Context, res *astro.CompatibilityResult) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	partner, err := json.Marshal(res.Partner)
	if err != nil {
		return fmt.Errorf("failed to encode partner details: %w", err)
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO compatibility_results (id, user_id, partner_name, partner_birth, report)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		res.ID, res.UserID, res.PartnerName, partner, res.Report,
	).Scan(&res.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save compatibility result: %w", err)
	}
	return nil
}

func (r *AstroRepository) SaveFeedback(ctx context.Context, f *astro.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO user_feedback (feedback_id, user_id, message_id, rating, comments)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		f.ID, f.UserID, f.MessageID, f.Rating, f.Comments,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}
