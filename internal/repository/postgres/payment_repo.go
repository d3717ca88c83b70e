package postgres

import (
	"context"
	"errors"
	"fmt"

	"astrobot-service/internal/domain/billing"
	xerrors "astrobot-service/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) CreatePayment(ctx context.Context, p *billing.Payment) error {
	if p.Currency == "" {
		p.Currency = "INR"
	}
	if p.Status == "" {
		p.Status = billing.PaymentCreated
	}
	query := `
		INSERT INTO wa_payments (reference_id, user_id, plan_id, amount_paise, currency, status, raw_event)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.ReferenceID, p.UserID, p.PlanID, p.AmountPaise, p.Currency, string(p.Status), p.RawEvent,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return xerrors.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetPayment(ctx context.Context, referenceID string) (*billing.Payment, error) {
	query := `
		SELECT reference_id, user_id, plan_id, amount_paise, currency, status,
		       COALESCE(raw_event, ''), created_at, updated_at
		FROM wa_payments WHERE reference_id = $1
	`
	var p billing.Payment
	var status string
	err := r.db.QueryRow(ctx, query, referenceID).Scan(
		&p.ReferenceID, &p.UserID, &p.PlanID, &p.AmountPaise, &p.Currency, &status,
		&p.RawEvent, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	p.Status = billing.PaymentStatus(status)
	return &p, nil
}

func (r *PaymentRepository) UpdatePaymentStatus(ctx context.Context, referenceID string, status billing.PaymentStatus, rawEvent string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE wa_payments SET status = $1, raw_event = $2, updated_at = NOW() WHERE reference_id = $3`,
		string(status), rawEvent, referenceID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ActivityRepository appends to payment_activity_log.
type ActivityRepository struct {
	db *pgxpool.Pool
}

func NewActivityRepository(db *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) LogActivity(ctx context.Context, entry *billing.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO payment_activity_log (log_id, user_id, action, details)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		entry.ID, entry.UserID, entry.Action, entry.Details,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}
