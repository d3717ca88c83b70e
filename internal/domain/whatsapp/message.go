package whatsapp

import (
	"context"
	"fmt"
	"strings"
)

// Button is a reply button in an interactive message.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Inbound is a transport-neutral view of one user message.
type Inbound struct {
	MessageID   string
	From        string
	DisplayName string
	Type        string
	Text        string
	ButtonID    string
	ListID      string
	Location    *Location
}

// PaymentEvent is a payment status reported by the provider or a gateway.
type PaymentEvent struct {
	ReferenceID string
	UserID      string
	Status      string
	AmountPaise int64
	Currency    string
	Source      string
	Raw         string
	// Verified is set when the delivery carried a valid app signature.
	Verified bool
}

// Succeeded reports whether the status means money was captured.
func (e PaymentEvent) Succeeded() bool {
	switch strings.ToLower(e.Status) {
	case "success", "captured", "completed":
		return true
	}
	return false
}

// DedupKey identifies the event for the duplicate filter.
func (e PaymentEvent) DedupKey() string {
	return fmt.Sprintf("payment:%s:%s", e.ReferenceID, strings.ToLower(e.Status))
}

// OrderDetails is an in-chat UPI payment request.
type OrderDetails struct {
	ReferenceID string
	AmountPaise int64
	Currency    string
	ItemName    string
	Body        string
}

// Messenger sends messages to users.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendInteractive(ctx context.Context, to, body string, buttons []Button) error
	SendOrderDetails(ctx context.Context, to string, order OrderDetails) error
}
