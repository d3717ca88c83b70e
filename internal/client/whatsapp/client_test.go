package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	wa "astrobot-service/internal/domain/whatsapp"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		GraphURL:             srv.URL,
		PhoneNumberID:        "12345",
		AccessToken:          "token",
		PaymentConfiguration: "astro-upi",
	}, zap.NewNop())
}

func decode(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestSendText(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/12345/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("missing bearer token")
		}
		got = decode(t, r)
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	})

	if err := c.SendText(context.Background(), "whatsapp:919800000001", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["to"] != "919800000001" || got["type"] != "text" || got["messaging_product"] != "whatsapp" {
		t.Errorf("unexpected payload: %v", got)
	}
}

func TestSendInteractiveTruncates(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = decode(t, r)
	})

	buttons := []wa.Button{
		{ID: "a", Title: "A very long button title indeed"},
		{ID: "b", Title: "B"},
		{ID: "c", Title: "C"},
		{ID: "d", Title: "D"},
	}
	if err := c.SendInteractive(context.Background(), "91", strings.Repeat("x", 2000), buttons); err != nil {
		t.Fatalf("send: %v", err)
	}

	in := got["interactive"].(map[string]any)
	body := in["body"].(map[string]any)["text"].(string)
	if len(body) != maxBodyLen {
		t.Errorf("body length = %d, want %d", len(body), maxBodyLen)
	}
	replies := in["action"].(map[string]any)["buttons"].([]any)
	if len(replies) != maxButtons {
		t.Fatalf("buttons = %d, want %d", len(replies), maxButtons)
	}
	title := replies[0].(map[string]any)["reply"].(map[string]any)["title"].(string)
	if title != "A very long button t" {
		t.Errorf("title = %q", title)
	}
}

func TestSendOrderDetails(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = decode(t, r)
	})
	c.now = func() time.Time { return time.Unix(1000, 0) }

	err := c.SendOrderDetails(context.Background(), "91", wa.OrderDetails{
		ReferenceID: "ORDER-1",
		AmountPaise: 4900,
		ItemName:    "weekly",
		Body:        "Pay",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	action := got["interactive"].(map[string]any)["action"].(map[string]any)
	params := action["parameters"].(map[string]any)
	if params["reference_id"] != "ORDER-1" || params["payment_configuration"] != "astro-upi" || params["currency"] != "INR" {
		t.Errorf("unexpected parameters: %v", params)
	}
	total := params["total_amount"].(map[string]any)
	if total["value"].(float64) != 4900 || total["offset"].(float64) != 100 {
		t.Errorf("unexpected total: %v", total)
	}
	exp := params["order"].(map[string]any)["expiration"].(map[string]any)
	if exp["timestamp"].(float64) != 1600 {
		t.Errorf("expiration = %v, want 1600", exp["timestamp"])
	}
}

func TestSendRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad"}}`))
	})
	if err := c.SendText(context.Background(), "91", "x"); err == nil {
		t.Fatal("expected error on 400")
	}
}
