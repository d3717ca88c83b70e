package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"astrobot-service/internal/domain/billing"
	"astrobot-service/internal/testutil"
)

const (
	dailyCode  = "daily_9"
	weeklyCode = "weekly_49"
)

var testNow = time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

func newTestEngine(store *testutil.MockUsageStore) (*Engine, *testutil.MockActivityLogger) {
	activity := &testutil.MockActivityLogger{}
	e := NewEngine(store, billing.NewCatalog(dailyCode, weeklyCode, 3), activity, zap.NewNop())
	e.now = func() time.Time { return testNow }
	return e, activity
}

func TestCheckAndConsumeFreeTier(t *testing.T) {
	store := testutil.NewMockUsageStore()
	e, activity := newTestEngine(store)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := e.CheckAndConsume(ctx, "whatsapp:+91 98000 00001")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("call %d denied, want allowed", i)
		}
		if d.Remaining != 3-i {
			t.Errorf("call %d remaining = %d, want %d", i, d.Remaining, 3-i)
		}
	}

	d, err := e.CheckAndConsume(ctx, "919800000001")
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Reason != ReasonExhausted {
		t.Fatalf("4th call = %+v, want exhausted denial", d)
	}
	if got := store.Counters["919800000001"].Count; got != 3 {
		t.Errorf("counter = %d after denial, want 3", got)
	}

	sub := store.Subs["919800000001"]
	if sub == nil || sub.PlanCode != billing.FreePlanCode {
		t.Fatalf("free tier not provisioned: %+v", sub)
	}
	wantStart := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if !sub.PeriodStart.Equal(wantStart) || !sub.PeriodEnd.Equal(wantStart.AddDate(0, 0, 1)) {
		t.Errorf("window = %s..%s", sub.PeriodStart, sub.PeriodEnd)
	}
	if acts := activity.Actions("919800000001"); len(acts) != 1 || acts[0] != billing.ActionFreeTierProvisioned {
		t.Errorf("activity = %v", acts)
	}
}

func TestCheckAndConsumePaidPlan(t *testing.T) {
	tests := []struct {
		name  string
		plan  string
		quota int
		days  int
	}{
		{"daily", dailyCode, 2, 1},
		{"weekly", weeklyCode, 20, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockUsageStore()
			e, _ := newTestEngine(store)
			start, end := billing.PeriodWindow(testNow, tt.days)
			store.Subs["u1"] = &billing.Subscription{UserID: "u1", PlanCode: tt.plan, PeriodStart: start, PeriodEnd: end}

			for i := 0; i < tt.quota; i++ {
				d, err := e.CheckAndConsume(context.Background(), "u1")
				if err != nil || !d.Allowed {
					t.Fatalf("call %d: decision %+v err %v", i+1, d, err)
				}
			}
			d, err := e.CheckAndConsume(context.Background(), "u1")
			if err != nil {
				t.Fatal(err)
			}
			if d.Allowed {
				t.Fatalf("call %d allowed, want denied", tt.quota+1)
			}
			if d.Used != tt.quota || d.Remaining != 0 {
				t.Errorf("used/remaining = %d/%d", d.Used, d.Remaining)
			}
		})
	}
}

func TestRolloverIsContiguousAndIdempotent(t *testing.T) {
	store := testutil.NewMockUsageStore()
	e, _ := newTestEngine(store)

	oldStart := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	oldEnd := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	store.Subs["u1"] = &billing.Subscription{UserID: "u1", PlanCode: dailyCode, PeriodStart: oldStart, PeriodEnd: oldEnd}
	store.Usage[key("u1", oldStart, oldEnd)] = &billing.UsagePeriod{UserID: "u1", PeriodStart: oldStart, PeriodEnd: oldEnd, UsedCount: 2}

	d, err := e.CheckAndConsume(context.Background(), "u1")
	if err != nil || !d.Allowed {
		t.Fatalf("decision %+v err %v", d, err)
	}

	sub := store.Subs["u1"]
	if !sub.PeriodStart.Equal(oldEnd) || !sub.PeriodEnd.Equal(oldEnd.AddDate(0, 0, 1)) {
		t.Fatalf("window = %s..%s, want %s..+1d", sub.PeriodStart, sub.PeriodEnd, oldEnd)
	}
	if sub.PlanCode != dailyCode {
		t.Errorf("plan changed to %s", sub.PlanCode)
	}
	if d.Used != 1 {
		t.Errorf("used = %d, want 1 in the fresh window", d.Used)
	}

	upserts := store.Calls["UpsertSubscription"]
	if _, err := e.CheckAndConsume(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if store.Calls["UpsertSubscription"] != upserts {
		t.Errorf("second call rolled over again")
	}
	if got := store.Usage[key("u1", oldEnd, oldEnd.AddDate(0, 0, 1))].UsedCount; got != 2 {
		t.Errorf("used = %d, want 2", got)
	}
}

func TestRolloverSkipsLapsedWindows(t *testing.T) {
	store := testutil.NewMockUsageStore()
	e, _ := newTestEngine(store)

	oldStart := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	store.Subs["u1"] = &billing.Subscription{UserID: "u1", PlanCode: weeklyCode, PeriodStart: oldStart, PeriodEnd: oldStart.AddDate(0, 0, 7)}

	if _, err := e.CheckAndConsume(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	sub := store.Subs["u1"]
	if testNow.Before(sub.PeriodStart) || !testNow.Before(sub.PeriodEnd) {
		t.Fatalf("window %s..%s does not contain now", sub.PeriodStart, sub.PeriodEnd)
	}
	if d := sub.PeriodStart.Sub(oldStart); d%(7*24*time.Hour) != 0 {
		t.Errorf("window drifted from weekly anchor by %s", d)
	}
	if store.UsageRows("u1") != 1 {
		t.Errorf("usage rows = %d, want 1", store.UsageRows("u1"))
	}
}

func TestFreeRolloverResetsCounter(t *testing.T) {
	store := testutil.NewMockUsageStore()
	e, _ := newTestEngine(store)

	yesterday := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	store.Subs["u1"] = &billing.Subscription{UserID: "u1", PlanCode: billing.FreePlanCode, PeriodStart: yesterday, PeriodEnd: yesterday.AddDate(0, 0, 1)}
	store.Counters["u1"] = &billing.FreeCounter{UserID: "u1", Count: 3, LastReset: yesterday.Add(time.Hour)}

	d, err := e.CheckAndConsume(context.Background(), "u1")
	if err != nil || !d.Allowed {
		t.Fatalf("decision %+v err %v", d, err)
	}
	if got := store.Counters["u1"].Count; got != 1 {
		t.Errorf("counter = %d, want 1", got)
	}
}

func TestStaleFreeCounterCountsAsZero(t *testing.T) {
	store := testutil.NewMockUsageStore()
	e, _ := newTestEngine(store)
	store.Fail["ResetFreeCounter"] = errors.New("d1 down")

	yesterday := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	store.Subs["u1"] = &billing.Subscription{UserID: "u1", PlanCode: billing.FreePlanCode, PeriodStart: yesterday, PeriodEnd: yesterday.AddDate(0, 0, 1)}
	store.Counters["u1"] = &billing.FreeCounter{UserID: "u1", Count: 3, LastReset: yesterday}

	d, err := e.CheckAndConsume(context.Background(), "u1")
	if err != nil || !d.Allowed {
		t.Fatalf("decision %+v err %v", d, err)
	}
}

func TestUnknownPlanFailsClosed(t *testing.T) {
	store := testutil.NewMockUsageStore()
	e, _ := newTestEngine(store)
	start, end := billing.PeriodWindow(testNow, 1)
	store.Subs["u1"] = &billing.Subscription{UserID: "u1", PlanCode: "legacy_99", PeriodStart: start, PeriodEnd: end}

	d, err := e.CheckAndConsume(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Reason != ReasonUnknownPlan {
		t.Fatalf("decision = %+v", d)
	}
	if store.Calls["IncrementUsage"] != 0 || store.Calls["SetFreeCounter"] != 0 {
		t.Errorf("denial mutated usage")
	}
}

func TestStoreErrorsFailClosed(t *testing.T) {
	tests := []string{"GetSubscription", "UpsertSubscription", "GetUsage", "IncrementUsage"}

	for _, method := range tests {
		t.Run(method, func(t *testing.T) {
			store := testutil.NewMockUsageStore()
			e, _ := newTestEngine(store)
			start, end := billing.PeriodWindow(testNow.AddDate(0, 0, -1), 1)
			store.Subs["u1"] = &billing.Subscription{UserID: "u1", PlanCode: dailyCode, PeriodStart: start, PeriodEnd: end}
			store.Fail[method] = errors.New("timeout")

			d, err := e.CheckAndConsume(context.Background(), "u1")
			if err == nil {
				t.Fatal("expected error")
			}
			if d == nil || d.Allowed || d.Reason != ReasonStoreError {
				t.Fatalf("decision = %+v", d)
			}
		})
	}
}

func TestRemainingDoesNotConsume(t *testing.T) {
	store := testutil.NewMockUsageStore()
	e, _ := newTestEngine(store)

	if _, err := e.CheckAndConsume(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	st, err := e.Remaining(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Used != 1 || st.Remaining != 2 || st.Quota != 3 {
		t.Errorf("status = %+v", st)
	}
	st, _ = e.Remaining(context.Background(), "u1")
	if st.Used != 1 {
		t.Errorf("Remaining consumed quota: %+v", st)
	}
}

func TestEnsureFreeTier(t *testing.T) {
	store := testutil.NewMockUsageStore()
	e, _ := newTestEngine(store)

	created, err := e.EnsureFreeTier(context.Background(), "u1")
	if err != nil || !created {
		t.Fatalf("created=%v err=%v", created, err)
	}
	created, err = e.EnsureFreeTier(context.Background(), "u1")
	if err != nil || created {
		t.Fatalf("second call created=%v err=%v", created, err)
	}
}

func key(userID string, start, end time.Time) string {
	return testutil.UsageKey(userID, start, end)
}
