package billing

import (
	"context"
	"time"
)

// UsageStore persists subscription and usage rows.
// Every method is a remote call and may fail; callers sequence reads and writes.
type UsageStore interface {
	GetSubscription(ctx context.Context, userID string) (*Subscription, error)
	UpsertSubscription(ctx context.Context, sub *Subscription) error
	DeleteSubscription(ctx context.Context, userID string) error

	GetUsage(ctx context.Context, userID string, periodStart, periodEnd time.Time) (*UsagePeriod, error)
	// EnsureUsageRow creates a zero row for the window and never overwrites an existing one.
	EnsureUsageRow(ctx context.Context, userID string, periodStart, periodEnd time.Time, planCode string) error
	// IncrementUsage sets used to newCount unconditionally.
	IncrementUsage(ctx context.Context, userID string, periodStart, periodEnd time.Time, newCount int) error
	DeleteUsage(ctx context.Context, userID string) error

	GetFreeCounter(ctx context.Context, userID string) (*FreeCounter, error)
	SetFreeCounter(ctx context.Context, userID string, count int, at time.Time) error
	ResetFreeCounter(ctx context.Context, userID string, at time.Time) error
}

// ActivityLogger appends billing events.
type ActivityLogger interface {
	LogActivity(ctx context.Context, entry *ActivityLog) error
}

// PaymentRepository stores payment intents.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, referenceID string) (*Payment, error)
	UpdatePaymentStatus(ctx context.Context, referenceID string, status PaymentStatus, rawEvent string) error
}
