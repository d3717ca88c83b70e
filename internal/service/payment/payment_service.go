// internal/service/payment/payment_service.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"astrobot-service/internal/domain/billing"
	"astrobot-service/internal/domain/conversation"
	"astrobot-service/internal/domain/user"
	wa "astrobot-service/internal/domain/whatsapp"
	xerrors "astrobot-service/internal/pkg/errors"
	"astrobot-service/internal/service/subscription"
)

// Activator puts a user on a plan.
type Activator interface {
	Activate(ctx context.Context, userID, planID, externalSubID string) (*subscription.Activation, error)
}

type PaymentService struct {
	payments  billing.PaymentRepository
	activity  billing.ActivityLogger
	activator Activator
	messenger wa.Messenger
	sessions  conversation.SessionStore
	catalog   *billing.Catalog
	logger    *zap.Logger
	now       func() time.Time
	newRef    func() string
}

func NewPaymentService(
	payments billing.PaymentRepository,
	activity billing.ActivityLogger,
	activator Activator,
	messenger wa.Messenger,
	sessions conversation.SessionStore,
	catalog *billing.Catalog,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		payments:  payments,
		activity:  activity,
		activator: activator,
		messenger: messenger,
		sessions:  sessions,
		catalog:   catalog,
		logger:    logger,
		now:       time.Now,
		newRef:    func() string { return "ORDER-" + ulid.Make().String() },
	}
}

// CreateIntent records a payment and sends the in-chat order for planID.
func (s *PaymentService) CreateIntent(ctx context.Context, rawUserID, planID string) (*billing.Payment, error) {
	userID := user.NormalizeID(rawUserID)
	plan, ok := s.catalog.PaymentPlan(planID)
	if !ok || planID == billing.PlanIDCustom {
		return nil, fmt.Errorf("plan id %q: %w", planID, xerrors.ErrUnknownPlan)
	}

	now := s.now().UTC()
	p := &billing.Payment{
		ReferenceID: s.newRef(),
		UserID:      userID,
		PlanID:      planID,
		AmountPaise: plan.AmountPaise,
		Currency:    "INR",
		Status:      billing.PaymentCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.payments.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	s.logActivity(ctx, userID, billing.ActionPaymentCreated, fmt.Sprintf("ref: %s, plan: %s, amount: %d", p.ReferenceID, planID, p.AmountPaise))

	order := wa.OrderDetails{
		ReferenceID: p.ReferenceID,
		AmountPaise: p.AmountPaise,
		Currency:    p.Currency,
		ItemName:    plan.Description,
		Body: fmt.Sprintf("✨ %s\n\nTap below to pay %s with UPI. Reference: %s",
			plan.Description, plan.DisplayPrice, p.ReferenceID),
	}
	if err := s.messenger.SendOrderDetails(ctx, userID, order); err != nil {
		s.setStatus(ctx, p.ReferenceID, billing.PaymentFailed, reasonJSON("send_error", err.Error()))
		return nil, fmt.Errorf("failed to send payment request: %w", err)
	}

	s.setStatus(ctx, p.ReferenceID, billing.PaymentPending, reasonJSON("upi_intent_sent", ""))
	p.Status = billing.PaymentPending

	s.logger.Info("payment intent created",
		zap.String("user_id", userID),
		zap.String("reference_id", p.ReferenceID),
		zap.String("plan_id", planID),
	)
	return p, nil
}

// Confirm handles a manual "paid <ref>" confirmation from the user.
func (s *PaymentService) Confirm(ctx context.Context, rawUserID, referenceID string) (*subscription.Activation, error) {
	userID := user.NormalizeID(rawUserID)
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		s.notify(ctx, userID, "Please send: paid <your reference id>")
		return nil, fmt.Errorf("missing reference: %w", xerrors.ErrInvalidInput)
	}

	p, err := s.payments.GetPayment(ctx, referenceID)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if p == nil || p.UserID != userID {
		s.notify(ctx, userID, "Reference not found for this number. Please verify the ID.")
		return nil, fmt.Errorf("reference %s: %w", referenceID, xerrors.ErrNotFound)
	}
	if p.Status == billing.PaymentPaid {
		s.notify(ctx, userID, "This payment is already confirmed. Your plan is active ✨")
		return nil, fmt.Errorf("reference %s already paid: %w", referenceID, xerrors.ErrConflict)
	}

	planID, ok := s.catalog.PlanForAmount(p.AmountPaise)
	if !ok {
		s.setStatus(ctx, referenceID, billing.PaymentFailed, reasonJSON("unsupported_amount", ""))
		s.notify(ctx, userID, "Unsupported amount on the reference. Contact support.")
		return nil, fmt.Errorf("amount %d: %w", p.AmountPaise, xerrors.ErrInvalidInput)
	}

	act, err := s.activator.Activate(ctx, userID, planID, "ext_"+referenceID)
	if err != nil {
		s.logger.Error("activation via user confirmation failed",
			zap.String("user_id", userID),
			zap.String("reference_id", referenceID),
			zap.Error(err),
		)
		s.notify(ctx, userID, "Payment received but activation failed. Support will assist.")
		return nil, err
	}

	s.setStatus(ctx, referenceID, billing.PaymentPaid, reasonJSON("user_confirmed", ""))
	s.logActivity(ctx, userID, billing.ActionPaymentStatus, fmt.Sprintf("ref: %s, status: paid, source: user_confirmed", referenceID))
	s.clearPaymentSession(ctx, userID)
	s.notify(ctx, userID, confirmation(act))
	return act, nil
}

// HandleStatus applies a payment status reported by WhatsApp or a gateway.
// Repeated success events for a paid reference are ignored. A success for a
// reference this service never issued is only honoured from a signed delivery.
func (s *PaymentService) HandleStatus(ctx context.Context, ev wa.PaymentEvent) error {
	if ev.ReferenceID == "" {
		return fmt.Errorf("payment event without reference: %w", xerrors.ErrInvalidInput)
	}
	userID := user.NormalizeID(ev.UserID)

	p, err := s.payments.GetPayment(ctx, ev.ReferenceID)
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		p = nil
	case err != nil:
		return fmt.Errorf("failed to get payment: %w", err)
	}
	if userID == "" && p != nil {
		userID = p.UserID
	}
	if userID == "" {
		return fmt.Errorf("payment %s has no payer: %w", ev.ReferenceID, xerrors.ErrInvalidInput)
	}

	log := s.logger.With(
		zap.String("user_id", userID),
		zap.String("reference_id", ev.ReferenceID),
		zap.String("status", ev.Status),
		zap.String("source", ev.Source),
	)

	if !ev.Succeeded() {
		status := mapStatus(ev.Status)
		if p == nil {
			log.Warn("status for unknown payment reference")
			return nil
		}
		if p.Status == billing.PaymentPaid {
			log.Info("ignoring status for a paid reference")
			return nil
		}
		s.setStatus(ctx, ev.ReferenceID, status, ev.Raw)
		s.logActivity(ctx, userID, billing.ActionPaymentStatus, fmt.Sprintf("ref: %s, status: %s", ev.ReferenceID, status))
		if status == billing.PaymentFailed {
			s.notify(ctx, userID, fmt.Sprintf("❌ Payment failed for %s. Try again.", ev.ReferenceID))
		}
		log.Info("payment status recorded")
		return nil
	}

	if p != nil && p.Status == billing.PaymentPaid {
		log.Info("duplicate success event ignored")
		return nil
	}
	if p == nil && !ev.Verified {
		log.Warn("unsigned success event for unknown payment reference refused")
		return fmt.Errorf("payment %s: %w", ev.ReferenceID, xerrors.ErrNotFound)
	}

	amount := ev.AmountPaise
	if amount == 0 && p != nil {
		amount = p.AmountPaise
	}
	planID, _ := s.catalog.PlanForAmount(amount)

	if p == nil {
		now := s.now().UTC()
		p = &billing.Payment{
			ReferenceID: ev.ReferenceID,
			UserID:      userID,
			PlanID:      planID,
			AmountPaise: amount,
			Currency:    ev.Currency,
			Status:      billing.PaymentPaid,
			RawEvent:    ev.Raw,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.payments.CreatePayment(ctx, p); err != nil {
			log.Error("failed to record unsolicited payment", zap.Error(err))
		}
	} else {
		s.setStatus(ctx, ev.ReferenceID, billing.PaymentPaid, ev.Raw)
	}
	s.logActivity(ctx, userID, billing.ActionPaymentStatus, fmt.Sprintf("ref: %s, status: paid, amount: %d", ev.ReferenceID, amount))

	act, err := s.activator.Activate(ctx, userID, planID, "ext_"+ev.ReferenceID)
	if err != nil {
		log.Error("activation after payment failed", zap.Error(err))
		s.notify(ctx, userID, "Payment received but activation failed. Please contact support with reference "+ev.ReferenceID+".")
		return err
	}

	s.clearPaymentSession(ctx, userID)
	s.notify(ctx, userID, confirmation(act))
	log.Info("payment captured and plan activated", zap.String("plan_id", planID))
	return nil
}

func (s *PaymentService) clearPaymentSession(ctx context.Context, userID string) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.Delete(ctx, userID, conversation.FlowPayment); err != nil {
		s.logger.Warn("failed to clear payment session", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *PaymentService) setStatus(ctx context.Context, ref string, status billing.PaymentStatus, raw string) {
	if err := s.payments.UpdatePaymentStatus(ctx, ref, status, raw); err != nil {
		s.logger.Error("failed to update payment status",
			zap.String("reference_id", ref),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (s *PaymentService) notify(ctx context.Context, userID, body string) {
	if err := s.messenger.SendText(ctx, userID, body); err != nil {
		s.logger.Warn("failed to notify user", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *PaymentService) logActivity(ctx context.Context, userID, action, details string) {
	if s.activity == nil {
		return
	}
	entry := &billing.ActivityLog{UserID: userID, Action: action, Details: details, CreatedAt: s.now().UTC()}
	if err := s.activity.LogActivity(ctx, entry); err != nil {
		s.logger.Warn("failed to write activity log", zap.String("action", action), zap.Error(err))
	}
}

func confirmation(act *subscription.Activation) string {
	return fmt.Sprintf("✅ *Payment Confirmed!* ✅\n\nYour %s is now active!\n\n"+
		"💫 Ask away, the cosmos awaits your questions! ✨\n\n"+
		"You now have %d questions available.", act.Plan.Description, act.Quota.Questions)
}

func mapStatus(raw string) billing.PaymentStatus {
	switch strings.ToLower(raw) {
	case "pending", "processing", "initiated":
		return billing.PaymentPending
	case "refunded":
		return billing.PaymentRefunded
	default:
		return billing.PaymentFailed
	}
}

func reasonJSON(reason, detail string) string {
	m := map[string]string{"reason": reason}
	if detail != "" {
		m["detail"] = detail
	}
	b, _ := json.Marshal(m)
	return string(b)
}
