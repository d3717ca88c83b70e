package d1

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"astrobot-service/internal/domain/astro"

	"github.com/google/uuid"
)

// AstroRepository stores compatibility readings and feedback.
type AstroRepository struct {
	exec Executor
}

func NewAstroRepository(exec Executor) *AstroRepository {
	return &AstroRepository{exec: exec}
}

func (r *AstroRepository) SaveCompatibility(ctx context.Context, res *astro.CompatibilityResult) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	partner, err := json.Marshal(res.Partner)
	if err != nil {
		return fmt.Errorf("failed to encode partner details: %w", err)
	}

	_, err = r.exec.Execute(ctx, `
		INSERT INTO compatibility_results (id, user_id, partner_name, partner_birth, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		res.ID, res.UserID, res.PartnerName, string(partner), res.Report, formatTime(res.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save compatibility result: %w", err)
	}
	return nil
}

func (r *AstroRepository) SaveFeedback(ctx context.Context, f *astro.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := r.exec.Execute(ctx, `
		INSERT INTO user_feedback (feedback_id, user_id, message_id, rating, comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.MessageID, f.Rating, f.Comments, formatTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}
