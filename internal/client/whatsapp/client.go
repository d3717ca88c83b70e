// Package whatsapp sends messages through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	wa "astrobot-service/internal/domain/whatsapp"
	"astrobot-service/internal/pkg/metrics"
)

const (
	DefaultGraphURL = "https://graph.facebook.com/v22.0"

	maxBodyLen        = 1024
	maxButtonTitleLen = 20
	maxButtons        = 3
	orderValidity     = 10 * time.Minute
)

type Config struct {
	GraphURL             string
	PhoneNumberID        string
	AccessToken          string
	PaymentConfiguration string
	SendRate             float64
	SendBurst            int
	Timeout              time.Duration
}

// Client implements whatsapp.Messenger. Sends are throttled by a shared token bucket.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.GraphURL == "" {
		cfg.GraphURL = DefaultGraphURL
	}
	cfg.GraphURL = strings.TrimRight(cfg.GraphURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = 20
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 40
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		logger:  logger,
		now:     time.Now,
	}
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type interactive struct {
	Type   string        `json:"type"`
	Body   interactiveTx `json:"body"`
	Action any           `json:"action"`
}

type interactiveTx struct {
	Text string `json:"text"`
}

type outbound struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textBody    `json:"text,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
}

type replyButton struct {
	Type  string    `json:"type"`
	Reply wa.Button `json:"reply"`
}

type money struct {
	Value  int64 `json:"value"`
	Offset int   `json:"offset"`
}

func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.send(ctx, "send_text", outbound{
		Type: "text",
		To:   to,
		Text: &textBody{Body: body},
	})
}

// SendInteractive sends up to three reply buttons. Titles longer than the
// provider limit are truncated.
func (c *Client) SendInteractive(ctx context.Context, to, body string, buttons []wa.Button) error {
	if body == "" {
		body = "Please select an option below:"
	}
	if len(buttons) > maxButtons {
		buttons = buttons[:maxButtons]
	}
	replies := make([]replyButton, 0, len(buttons))
	for _, b := range buttons {
		replies = append(replies, replyButton{
			Type:  "reply",
			Reply: wa.Button{ID: b.ID, Title: truncate(b.Title, maxButtonTitleLen)},
		})
	}
	return c.send(ctx, "send_interactive", outbound{
		Type: "interactive",
		To:   to,
		Interactive: &interactive{
			Type:   "button",
			Body:   interactiveTx{Text: truncate(body, maxBodyLen)},
			Action: map[string]any{"buttons": replies},
		},
	})
}

// SendOrderDetails sends a review_and_pay UPI order valid for ten minutes.
func (c *Client) SendOrderDetails(ctx context.Context, to string, order wa.OrderDetails) error {
	currency := order.Currency
	if currency == "" {
		currency = "INR"
	}
	amount := money{Value: order.AmountPaise, Offset: 100}
	zero := money{Offset: 100}

	params := map[string]any{
		"reference_id":          order.ReferenceID,
		"type":                  "digital-goods",
		"payment_type":          "payment_gateway:razorpay",
		"payment_configuration": c.cfg.PaymentConfiguration,
		"currency":              currency,
		"total_amount":          amount,
		"order": map[string]any{
			"status": "pending",
			"expiration": map[string]any{
				"timestamp":   c.now().Add(orderValidity).Unix(),
				"description": "Payment link valid for 10 minutes",
			},
			"subtotal": amount,
			"tax":      zero,
			"shipping": zero,
			"discount": zero,
			"items": []map[string]any{{
				"retailer_id": order.ReferenceID,
				"name":        order.ItemName,
				"amount":      amount,
				"quantity":    1,
			}},
		},
	}

	return c.send(ctx, "send_order_details", outbound{
		Type: "interactive",
		To:   to,
		Interactive: &interactive{
			Type:   "order_details",
			Body:   interactiveTx{Text: truncate(order.Body, maxBodyLen)},
			Action: map[string]any{"name": "review_and_pay", "parameters": params},
		},
	})
}

func (c *Client) send(ctx context.Context, op string, msg outbound) (err error) {
	defer func(start time.Time) {
		metrics.ObserveExternalCall("whatsapp", op, err, start)
	}(time.Now())

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to acquire send slot: %w", err)
	}

	msg.MessagingProduct = "whatsapp"
	msg.RecipientType = "individual"
	msg.To = strings.TrimPrefix(msg.To, "whatsapp:")

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.cfg.GraphURL, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("whatsapp send rejected",
			zap.String("op", op),
			zap.String("to", msg.To),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return fmt.Errorf("whatsapp %s returned %d", op, resp.StatusCode)
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
