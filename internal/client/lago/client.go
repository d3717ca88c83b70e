// Package lago talks to the Lago billing API.
package lago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	xerrors "astrobot-service/internal/pkg/errors"
	"astrobot-service/internal/pkg/metrics"
)

const (
	defaultCurrency = "INR"
	defaultTimezone = "Asia/Kolkata"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Customer is the subset of the Lago customer we use.
type Customer struct {
	LagoID     string `json:"lago_id,omitempty"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Currency   string `json:"currency,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
}

// Subscription is the subset of the Lago subscription we use.
type Subscription struct {
	LagoID             string     `json:"lago_id,omitempty"`
	ExternalID         string     `json:"external_id"`
	ExternalCustomerID string     `json:"external_customer_id"`
	PlanCode           string     `json:"plan_code"`
	Status             string     `json:"status,omitempty"`
	BillingTime        string     `json:"billing_time,omitempty"`
	SubscriptionAt     *time.Time `json:"subscription_at,omitempty"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
}

// Plan is the subset of the Lago plan we create.
type Plan struct {
	Name           string `json:"name"`
	Code           string `json:"code"`
	Interval       string `json:"interval"`
	AmountCents    int64  `json:"amount_cents"`
	AmountCurrency string `json:"amount_currency"`
	PayInAdvance   bool   `json:"pay_in_advance"`
	Description    string `json:"description,omitempty"`
}

// UpsertCustomer creates the customer unless it already exists.
func (c *Client) UpsertCustomer(ctx context.Context, externalID string) error {
	status, _, err := c.do(ctx, "get_customer", http.MethodGet, "/api/v1/customers/"+url.PathEscape(externalID), nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("%w: customer lookup returned %d", xerrors.ErrBillingProvider, status)
	}

	body := map[string]Customer{"customer": {
		ExternalID: externalID,
		Name:       externalID,
		Currency:   defaultCurrency,
		Timezone:   defaultTimezone,
	}}
	status, raw, err := c.do(ctx, "create_customer", http.MethodPost, "/api/v1/customers", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("%w: customer create returned %d: %s", xerrors.ErrBillingProvider, status, raw)
	}
	return nil
}

// CreateSubscription subscribes a customer to a plan with anniversary billing.
func (c *Client) CreateSubscription(ctx context.Context, externalCustomerID, planCode, externalID string, startAt time.Time) (*Subscription, error) {
	if externalID == "" {
		externalID = fmt.Sprintf("sub_%s_%d", externalCustomerID, startAt.Unix())
	}
	at := startAt.UTC().Truncate(time.Second)
	body := map[string]Subscription{"subscription": {
		ExternalCustomerID: externalCustomerID,
		PlanCode:           planCode,
		ExternalID:         externalID,
		SubscriptionAt:     &at,
		BillingTime:        "anniversary",
	}}

	status, raw, err := c.do(ctx, "create_subscription", http.MethodPost, "/api/v1/subscriptions", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("%w: subscription create returned %d: %s", xerrors.ErrBillingProvider, status, raw)
	}

	var out struct {
		Subscription Subscription `json:"subscription"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decoding subscription: %v", xerrors.ErrBillingProvider, err)
	}
	if out.Subscription.ExternalID == "" {
		out.Subscription.ExternalID = externalID
	}
	return &out.Subscription, nil
}

// TerminateSubscription ends a subscription. An unknown id is not an error.
func (c *Client) TerminateSubscription(ctx context.Context, externalID string) error {
	status, raw, err := c.do(ctx, "terminate_subscription", http.MethodDelete, "/api/v1/subscriptions/"+url.PathEscape(externalID), nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return fmt.Errorf("%w: terminate returned %d: %s", xerrors.ErrBillingProvider, status, raw)
}

// GetActiveSubscription returns the most recent active subscription or xerrors.ErrNotFound.
func (c *Client) GetActiveSubscription(ctx context.Context, externalCustomerID string) (*Subscription, error) {
	path := "/api/v1/subscriptions?" + url.Values{
		"external_customer_id": {externalCustomerID},
		"status[]":             {"active"},
	}.Encode()
	status, raw, err := c.do(ctx, "list_subscriptions", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, xerrors.ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: subscription list returned %d", xerrors.ErrBillingProvider, status)
	}

	var out struct {
		Subscriptions []Subscription `json:"subscriptions"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decoding subscriptions: %v", xerrors.ErrBillingProvider, err)
	}
	if len(out.Subscriptions) == 0 {
		return nil, xerrors.ErrNotFound
	}
	sort.Slice(out.Subscriptions, func(i, j int) bool {
		return startedAt(out.Subscriptions[i]).After(startedAt(out.Subscriptions[j]))
	})
	return &out.Subscriptions[0], nil
}

// EnsurePlan creates the plan when Lago does not know its code.
func (c *Client) EnsurePlan(ctx context.Context, plan Plan) (bool, error) {
	status, _, err := c.do(ctx, "get_plan", http.MethodGet, "/api/v1/plans/"+url.PathEscape(plan.Code), nil)
	if err != nil {
		return false, err
	}
	if status == http.StatusOK {
		return false, nil
	}
	if status != http.StatusNotFound {
		return false, fmt.Errorf("%w: plan lookup returned %d", xerrors.ErrBillingProvider, status)
	}

	if plan.AmountCurrency == "" {
		plan.AmountCurrency = defaultCurrency
	}
	status, raw, err := c.do(ctx, "create_plan", http.MethodPost, "/api/v1/plans", map[string]Plan{"plan": plan})
	if err != nil {
		return false, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return false, fmt.Errorf("%w: plan create returned %d: %s", xerrors.ErrBillingProvider, status, raw)
	}
	return true, nil
}

// WebhookPublicKey fetches the base64 encoded PEM key Lago signs webhooks with.
func (c *Client) WebhookPublicKey(ctx context.Context) ([]byte, error) {
	status, raw, err := c.do(ctx, "webhook_public_key", http.MethodGet, "/api/v1/webhooks/public_key", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: public key returned %d", xerrors.ErrBillingProvider, status)
	}
	return bytes.TrimSpace(raw), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (status int, raw []byte, err error) {
	defer func(start time.Time) {
		metrics.ObserveExternalCall("lago", op, err, start)
	}(time.Now())

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s: %v", xerrors.ErrBillingProvider, op, err)
	}
	defer resp.Body.Close()

	raw, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: reading %s response: %v", xerrors.ErrBillingProvider, op, err)
	}
	return resp.StatusCode, raw, nil
}

func startedAt(s Subscription) time.Time {
	if s.SubscriptionAt != nil {
		return *s.SubscriptionAt
	}
	if s.CreatedAt != nil {
		return *s.CreatedAt
	}
	return time.Time{}
}
