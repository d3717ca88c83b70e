// internal/domain/whatsapp/webhook.go
package whatsapp

import "encoding/json"

// Envelope is the body Meta posts to the webhook.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
	Payment          *Payment  `json:"payment,omitempty"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type Message struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Button      *QuickReply  `json:"button,omitempty"`
	Location    *Location    `json:"location,omitempty"`
	Reaction    *Reaction    `json:"reaction,omitempty"`
	Payment     *Payment     `json:"payment,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *Reply `json:"button_reply,omitempty"`
	ListReply   *Reply `json:"list_reply,omitempty"`
}

type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type QuickReply struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
}

type Reaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type Status struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Type        string   `json:"type"`
	RecipientID string   `json:"recipient_id"`
	Payment     *Payment `json:"payment,omitempty"`
}

type Payment struct {
	ReferenceID   string  `json:"reference_id"`
	TransactionID string  `json:"transaction_id,omitempty"`
	Status        string  `json:"status,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	Amount        *Amount `json:"amount,omitempty"`
	Payer         *struct {
		WaID string `json:"wa_id"`
	} `json:"payer,omitempty"`
	Transaction *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"transaction,omitempty"`
}

// Amount is value / offset in currency units; value is paise when offset is 100.
type Amount struct {
	Value  int64 `json:"value"`
	Offset int64 `json:"offset"`
}

// UnmarshalJSON accepts both {"value","offset"} and a bare paise number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		v, err := n.Int64()
		if err != nil {
			return err
		}
		a.Value, a.Offset = v, 100
		return nil
	}
	type plain Amount
	return json.Unmarshal(data, (*plain)(a))
}

// Paise converts the amount to paise.
func (a *Amount) Paise() int64 {
	if a == nil {
		return 0
	}
	offset := a.Offset
	if offset == 0 {
		offset = 100
	}
	return a.Value * 100 / offset
}

// FirstValue returns the change value of a single-delivery envelope.
func (e *Envelope) FirstValue() (*Value, bool) {
	if len(e.Entry) == 0 || len(e.Entry[0].Changes) == 0 {
		return nil, false
	}
	return &e.Entry[0].Changes[0].Value, true
}
