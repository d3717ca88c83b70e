package d1

import (
	"context"
	"fmt"
	"time"

	"astrobot-service/internal/domain/billing"
	xerrors "astrobot-service/internal/pkg/errors"

	"github.com/google/uuid"
)

type PaymentRepository struct {
	exec Executor
}

func NewPaymentRepository(exec Executor) *PaymentRepository {
	return &PaymentRepository{exec: exec}
}

func (r *PaymentRepository) CreatePayment(ctx context.Context, p *billing.Payment) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Currency == "" {
		p.Currency = "INR"
	}
	if p.Status == "" {
		p.Status = billing.PaymentCreated
	}

	_, err := r.exec.Execute(ctx, `
		INSERT INTO wa_payments
			(reference_id, user_id, plan_id, amount_paise, currency, status, raw_event, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ReferenceID, p.UserID, p.PlanID, p.AmountPaise, p.Currency, string(p.Status), p.RawEvent,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetPayment(ctx context.Context, referenceID string) (*billing.Payment, error) {
	rows, err := r.exec.Execute(ctx, `
		SELECT reference_id, user_id, plan_id, amount_paise, currency, status, raw_event, created_at, updated_at
		FROM wa_payments WHERE reference_id = ? LIMIT 1`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if len(rows) == 0 {
		return nil, xerrors.ErrNotFound
	}

	row := rows[0]
	p := &billing.Payment{
		ReferenceID: row.String("reference_id"),
		UserID:      row.String("user_id"),
		PlanID:      row.String("plan_id"),
		AmountPaise: int64(row.Int("amount_paise")),
		Currency:    row.String("currency"),
		Status:      billing.PaymentStatus(row.String("status")),
		RawEvent:    row.String("raw_event"),
	}
	if p.CreatedAt, err = row.Time("created_at"); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = row.Time("updated_at"); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PaymentRepository) UpdatePaymentStatus(ctx context.Context, referenceID string, status billing.PaymentStatus, rawEvent string) error {
	rows, err := r.exec.Execute(ctx, `
		UPDATE wa_payments SET status = ?, raw_event = ?, updated_at = ?
		WHERE reference_id = ?
		RETURNING reference_id`,
		string(status), rawEvent, formatTime(time.Now()), referenceID)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if len(rows) == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ActivityRepository appends to payment_activity_log.
type ActivityRepository struct {
	exec Executor
}

func NewActivityRepository(exec Executor) *ActivityRepository {
	return &ActivityRepository{exec: exec}
}

func (r *ActivityRepository) LogActivity(ctx context.Context, entry *billing.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.exec.Execute(ctx, `
		INSERT INTO payment_activity_log (log_id, user_id, action, details, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Action, entry.Details, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}
