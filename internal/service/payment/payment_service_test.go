package payment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"astrobot-service/internal/domain/billing"
	"astrobot-service/internal/domain/conversation"
	wa "astrobot-service/internal/domain/whatsapp"
	xerrors "astrobot-service/internal/pkg/errors"
	"astrobot-service/internal/pkg/session"
	"astrobot-service/internal/service/subscription"
	"astrobot-service/internal/testutil"
)

type fixture struct {
	store     *testutil.MockUsageStore
	payments  *testutil.MockPaymentRepository
	provider  *testutil.MockBillingProvider
	messenger *testutil.MockMessenger
	sessions  *session.MemoryStore
	svc       *PaymentService
}

func newFixture() *fixture {
	f := &fixture{
		store:     testutil.NewMockUsageStore(),
		payments:  testutil.NewMockPaymentRepository(),
		provider:  testutil.NewMockBillingProvider(),
		messenger: &testutil.MockMessenger{},
		sessions:  session.NewMemoryStore(time.Hour),
	}
	catalog := billing.NewCatalog("daily_9", "weekly_49", 3)
	activity := &testutil.MockActivityLogger{}
	lifecycle := subscription.NewLifecycleService(f.store, f.provider, catalog, activity, zap.NewNop())
	f.svc = NewPaymentService(f.payments, activity, lifecycle, f.messenger, f.sessions, catalog, zap.NewNop())
	f.svc.newRef = func() string { return "ORDER-TEST" }
	return f
}

func TestCreateIntent(t *testing.T) {
	f := newFixture()
	p, err := f.svc.CreateIntent(context.Background(), "whatsapp:+919800000001", billing.PlanIDWeekly)
	if err != nil {
		t.Fatal(err)
	}
	if p.ReferenceID != "ORDER-TEST" || p.AmountPaise != 4900 || p.Status != billing.PaymentPending {
		t.Errorf("payment = %+v", p)
	}
	if got := f.payments.Status("ORDER-TEST"); got != billing.PaymentPending {
		t.Errorf("stored status = %s", got)
	}
	last := f.messenger.Last()
	if last.Kind != "order_details" || last.To != "919800000001" || last.Order.AmountPaise != 4900 {
		t.Errorf("sent = %+v", last)
	}
}

func TestCreateIntentRejectsUnknownPlan(t *testing.T) {
	f := newFixture()
	for _, id := range []string{"99", billing.PlanIDCustom} {
		if _, err := f.svc.CreateIntent(context.Background(), "u1", id); !errors.Is(err, xerrors.ErrUnknownPlan) {
			t.Errorf("plan %s: err = %v", id, err)
		}
	}
}

func TestCreateIntentSendFailureMarksFailed(t *testing.T) {
	f := newFixture()
	f.messenger.Err = errors.New("graph api down")
	if _, err := f.svc.CreateIntent(context.Background(), "u1", billing.PlanIDDaily); err == nil {
		t.Fatal("expected error")
	}
	if got := f.payments.Status("ORDER-TEST"); got != billing.PaymentFailed {
		t.Errorf("status = %s, want failed", got)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name    string
		payment *billing.Payment
		user    string
		ref     string
		wantErr error
		want    billing.PaymentStatus
	}{
		{
			name:    "daily amount",
			payment: &billing.Payment{ReferenceID: "R1", UserID: "u1", AmountPaise: 900, Status: billing.PaymentPending},
			user:    "u1", ref: "R1", want: billing.PaymentPaid,
		},
		{
			name:    "other user's reference",
			payment: &billing.Payment{ReferenceID: "R1", UserID: "u2", AmountPaise: 900, Status: billing.PaymentPending},
			user:    "u1", ref: "R1", wantErr: xerrors.ErrNotFound, want: billing.PaymentPending,
		},
		{
			name:    "unsupported amount",
			payment: &billing.Payment{ReferenceID: "R1", UserID: "u1", AmountPaise: 1500, Status: billing.PaymentPending},
			user:    "u1", ref: "R1", wantErr: xerrors.ErrInvalidInput, want: billing.PaymentFailed,
		},
		{
			name:    "already paid",
			payment: &billing.Payment{ReferenceID: "R1", UserID: "u1", AmountPaise: 900, Status: billing.PaymentPaid},
			user:    "u1", ref: "R1", wantErr: xerrors.ErrConflict, want: billing.PaymentPaid,
		},
		{
			name: "missing reference", user: "u1", ref: " ", wantErr: xerrors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.payment != nil {
				f.payments.Payments[tt.payment.ReferenceID] = tt.payment
			}

			act, err := f.svc.Confirm(context.Background(), tt.user, tt.ref)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatal(err)
			} else if act.Subscription.PlanCode != "daily_9" || act.ExternalID != "ext_R1" {
				t.Errorf("activation = %+v", act)
			}
			if tt.payment != nil {
				if got := f.payments.Status(tt.ref); got != tt.want {
					t.Errorf("status = %s, want %s", got, tt.want)
				}
			}
			if len(f.messenger.Sent) == 0 {
				t.Error("user was not told anything")
			}
		})
	}
}

func TestHandleStatusSuccessActivatesOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.payments.Payments["R9"] = &billing.Payment{ReferenceID: "R9", UserID: "u1", AmountPaise: 4900, Status: billing.PaymentPending}
	f.sessions.Save(ctx, &conversation.Session{UserID: "u1", Kind: conversation.FlowPayment, Stage: conversation.StageAwaitingPayment})

	ev := wa.PaymentEvent{ReferenceID: "R9", UserID: "u1", Status: "captured", AmountPaise: 4900, Source: "wa_status_payment"}
	for i := 0; i < 2; i++ {
		if err := f.svc.HandleStatus(ctx, ev); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	if got := f.store.Subs["u1"]; got == nil || got.PlanCode != "weekly_49" {
		t.Fatalf("subscription = %+v", got)
	}
	if len(f.provider.Subs) != 1 {
		t.Errorf("remote subscriptions = %d, want 1", len(f.provider.Subs))
	}
	if f.payments.Status("R9") != billing.PaymentPaid {
		t.Errorf("status = %s", f.payments.Status("R9"))
	}
	if _, err := f.sessions.Get(ctx, "u1", conversation.FlowPayment); !errors.Is(err, xerrors.ErrNotFound) {
		t.Error("payment session not cleared")
	}
}

func TestHandleStatusUnknownAmountUsesCustomPlan(t *testing.T) {
	f := newFixture()
	ev := wa.PaymentEvent{ReferenceID: "R7", UserID: "u1", Status: "success", AmountPaise: 1234, Verified: true}
	if err := f.svc.HandleStatus(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if f.store.Subs["u1"] == nil {
		t.Fatal("no subscription activated")
	}
	if p := f.payments.Payments["R7"]; p == nil || p.PlanID != billing.PlanIDCustom {
		t.Errorf("payment = %+v", p)
	}
}

func TestHandleStatusFailure(t *testing.T) {
	f := newFixture()
	f.payments.Payments["R2"] = &billing.Payment{ReferenceID: "R2", UserID: "u1", AmountPaise: 900, Status: billing.PaymentPending}

	err := f.svc.HandleStatus(context.Background(), wa.PaymentEvent{ReferenceID: "R2", Status: "failed"})
	if err != nil {
		t.Fatal(err)
	}
	if f.payments.Status("R2") != billing.PaymentFailed {
		t.Errorf("status = %s", f.payments.Status("R2"))
	}
	if len(f.store.Subs) != 0 {
		t.Error("failed payment activated a plan")
	}
	if !strings.Contains(f.messenger.Last().Body, "Payment failed") {
		t.Errorf("message = %q", f.messenger.Last().Body)
	}
}

func TestHandleStatusActivationFailureKeepsPaid(t *testing.T) {
	f := newFixture()
	f.provider.CreateErr = xerrors.ErrBillingProvider
	f.payments.Payments["R3"] = &billing.Payment{ReferenceID: "R3", UserID: "u1", AmountPaise: 900, Status: billing.PaymentPending}

	err := f.svc.HandleStatus(context.Background(), wa.PaymentEvent{ReferenceID: "R3", Status: "completed"})
	if !errors.Is(err, xerrors.ErrBillingProvider) {
		t.Fatalf("err = %v", err)
	}
	if f.payments.Status("R3") != billing.PaymentPaid {
		t.Errorf("status = %s, want paid", f.payments.Status("R3"))
	}
	if !strings.Contains(f.messenger.Last().Body, "contact support") {
		t.Errorf("message = %q", f.messenger.Last().Body)
	}
}

func TestHandleStatusRefusesUnsignedUnknownReference(t *testing.T) {
	f := newFixture()
	ev := wa.PaymentEvent{ReferenceID: "FORGED-1", UserID: "u1", Status: "captured", AmountPaise: 4900, Source: "payment_webhook"}

	err := f.svc.HandleStatus(context.Background(), ev)
	if !errors.Is(err, xerrors.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(f.store.Subs) != 0 || len(f.provider.Subs) != 0 {
		t.Error("unsigned event for an unknown reference activated a plan")
	}
	if _, ok := f.payments.Payments["FORGED-1"]; ok {
		t.Error("unsigned event created a payment row")
	}
	if len(f.messenger.Sent) != 0 {
		t.Errorf("user was messaged: %+v", f.messenger.Sent)
	}
}

func TestHandleStatusUnsignedKnownReferenceActivates(t *testing.T) {
	f := newFixture()
	f.payments.Payments["R5"] = &billing.Payment{ReferenceID: "R5", UserID: "u1", AmountPaise: 900, Status: billing.PaymentPending}

	if err := f.svc.HandleStatus(context.Background(), wa.PaymentEvent{ReferenceID: "R5", Status: "captured"}); err != nil {
		t.Fatal(err)
	}
	if got := f.store.Subs["u1"]; got == nil || got.PlanCode != "daily_9" {
		t.Fatalf("subscription = %+v", got)
	}
}
