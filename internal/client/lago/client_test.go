package lago

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "astrobot-service/internal/pkg/errors"
)

func TestUpsertCustomerCreatesWhenMissing(t *testing.T) {
	var created Customer
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/customers/919800000001":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/customers":
			var body map[string]Customer
			json.NewDecoder(r.Body).Decode(&body)
			created = body["customer"]
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"customer":{}}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key"})
	if err := c.UpsertCustomer(context.Background(), "919800000001"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created.ExternalID != "919800000001" || created.Currency != "INR" || created.Timezone != "Asia/Kolkata" {
		t.Errorf("unexpected customer payload: %+v", created)
	}
}

func TestCreateSubscription(t *testing.T) {
	var sent Subscription
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]Subscription
		json.NewDecoder(r.Body).Decode(&body)
		sent = body["subscription"]
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]Subscription{"subscription": {
			LagoID: "lago-1", ExternalID: sent.ExternalID, PlanCode: sent.PlanCode, Status: "active",
		}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	sub, err := c.CreateSubscription(context.Background(), "u1", "daily_9", "", start)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sent.ExternalID != "sub_u1_1740823200" || sent.BillingTime != "anniversary" || sent.PlanCode != "daily_9" {
		t.Errorf("unexpected request payload: %+v", sent)
	}
	if sub.LagoID != "lago-1" || sub.ExternalID != sent.ExternalID {
		t.Errorf("unexpected subscription: %+v", sub)
	}
}

func TestCreateSubscriptionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"plan not found"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.CreateSubscription(context.Background(), "u1", "nope", "ext", time.Now())
	if !errors.Is(err, xerrors.ErrBillingProvider) {
		t.Fatalf("expected ErrBillingProvider, got %v", err)
	}
}

func TestTerminateSubscriptionStatuses(t *testing.T) {
	tests := []struct {
		status  int
		wantErr bool
	}{
		{http.StatusOK, false},
		{http.StatusNoContent, false},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/subscriptions/ext_1" {
					t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := NewClient(Config{BaseURL: srv.URL}).TerminateSubscription(context.Background(), "ext_1")
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetActiveSubscriptionPicksMostRecent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("external_customer_id") != "u1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"subscriptions":[
			{"external_id":"old","plan_code":"daily_9","subscription_at":"2025-01-01T00:00:00Z"},
			{"external_id":"new","plan_code":"weekly_49","subscription_at":"2025-02-01T00:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	sub, err := NewClient(Config{BaseURL: srv.URL}).GetActiveSubscription(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if sub.ExternalID != "new" {
		t.Errorf("picked %s, want new", sub.ExternalID)
	}
}

func TestEnsurePlan(t *testing.T) {
	var posted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPost:
			posted = true
			var body map[string]Plan
			json.NewDecoder(r.Body).Decode(&body)
			if body["plan"].AmountCurrency != "INR" || body["plan"].Interval != "weekly" {
				t.Errorf("unexpected plan payload: %+v", body["plan"])
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	created, err := NewClient(Config{BaseURL: srv.URL}).EnsurePlan(context.Background(), Plan{
		Name: "Weekly", Code: "weekly_49", Interval: "weekly", AmountCents: 4900, PayInAdvance: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !created || !posted {
		t.Errorf("expected plan to be created")
	}
}
