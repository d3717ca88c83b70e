// internal/domain/billing/entity.go
package billing

import "time"

// FreePlanCode is the reserved plan every user falls back to.
const FreePlanCode = "free_tier"

// Subscription is the single current subscription row of a user.
type Subscription struct {
	UserID                 string    `json:"user_id" db:"user_id"`
	PlanCode               string    `json:"plan_code" db:"plan_code"`
	ExternalSubscriptionID string    `json:"sub_external_id" db:"sub_external_id"`
	PeriodStart            time.Time `json:"period_start" db:"period_start"`
	PeriodEnd              time.Time `json:"period_end" db:"period_end"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time `json:"updated_at" db:"updated_at"`
}

// IsCurrent reports whether now falls before the end of the window.
func (s *Subscription) IsCurrent(now time.Time) bool {
	return now.Before(s.PeriodEnd)
}

// IsFree reports whether the row is on the free tier.
func (s *Subscription) IsFree() bool {
	return s.PlanCode == FreePlanCode
}

// UsagePeriod counts consumption inside one [PeriodStart, PeriodEnd) window.
type UsagePeriod struct {
	UserID      string    `json:"user_id" db:"user_id"`
	PeriodStart time.Time `json:"period_start" db:"period_start"`
	PeriodEnd   time.Time `json:"period_end" db:"period_end"`
	UsedCount   int       `json:"used" db:"used"`
	PlanCode    string    `json:"plan_code" db:"plan_code"`
}

// FreeCounter is the per-user free-tier message counter.
type FreeCounter struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Count     int       `json:"count" db:"count"`
	LastReset time.Time `json:"last_reset" db:"last_reset"`
}

type PaymentStatus string

const (
	PaymentCreated  PaymentStatus = "created"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// IsTerminal reports whether no further transition is expected.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentPaid || s == PaymentFailed || s == PaymentRefunded
}

// Payment is a pending or resolved payment intent.
type Payment struct {
	ReferenceID string        `json:"reference_id" db:"reference_id"`
	UserID      string        `json:"user_id" db:"user_id"`
	PlanID      string        `json:"plan_id" db:"plan_id"`
	AmountPaise int64         `json:"amount_paise" db:"amount_paise"`
	Currency    string        `json:"currency" db:"currency"`
	Status      PaymentStatus `json:"status" db:"status"`
	RawEvent    string        `json:"raw_event,omitempty" db:"raw_event"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// Activity actions recorded in the append-only log.
const (
	ActionSubscriptionActivated  = "subscription_activated"
	ActionSubscriptionTerminated = "subscription_terminated"
	ActionFreeTierProvisioned    = "free_tier_provisioned"
	ActionPaymentCreated         = "payment_created"
	ActionPaymentStatus          = "payment_status"
)

// ActivityLog is one append-only billing event.
type ActivityLog struct {
	ID        string    `json:"log_id" db:"log_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Action    string    `json:"action" db:"action"`
	Details   string    `json:"details" db:"details"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
