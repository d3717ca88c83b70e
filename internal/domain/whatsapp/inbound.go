package whatsapp

import "strings"

// ToInbound flattens a provider message into an Inbound.
func ToInbound(msg Message, contacts []Contact) Inbound {
	in := Inbound{
		MessageID: msg.ID,
		From:      msg.From,
		Type:      msg.Type,
	}
	if len(contacts) > 0 {
		in.DisplayName = contacts[0].Profile.Name
	}

	switch msg.Type {
	case "text":
		if msg.Text != nil {
			in.Text = strings.TrimSpace(msg.Text.Body)
		}
	case "interactive":
		if msg.Interactive == nil {
			break
		}
		if r := msg.Interactive.ButtonReply; r != nil {
			in.ButtonID = r.ID
			in.Text = strings.TrimSpace(r.Title)
		}
		if r := msg.Interactive.ListReply; r != nil {
			in.ListID = r.ID
			in.Text = strings.TrimSpace(r.Title)
		}
	case "button":
		if msg.Button != nil {
			in.ButtonID = msg.Button.Payload
			in.Text = strings.TrimSpace(msg.Button.Text)
		}
	case "location":
		in.Location = msg.Location
	case "reaction":
		if msg.Reaction != nil {
			in.Text = msg.Reaction.Emoji
		}
	}
	return in
}

// PaymentEvents extracts payment statuses carried by a webhook value.
func PaymentEvents(v *Value, raw string) []PaymentEvent {
	var events []PaymentEvent
	for _, st := range v.Statuses {
		if st.Type != "payment" || st.Payment == nil {
			continue
		}
		events = append(events, paymentEvent(st.Payment, st.Status, st.RecipientID, "wa_status_payment", raw))
	}
	if p := v.Payment; p != nil {
		payer := ""
		if p.Payer != nil {
			payer = p.Payer.WaID
		}
		if payer == "" && len(v.Statuses) > 0 {
			payer = v.Statuses[0].RecipientID
		}
		events = append(events, paymentEvent(p, p.Status, payer, "wa_payment_root", raw))
	}
	return events
}

func paymentEvent(p *Payment, status, payer, source, raw string) PaymentEvent {
	ref := p.ReferenceID
	if ref == "" && p.Transaction != nil {
		ref = p.Transaction.ID
	}
	if ref == "" {
		ref = p.TransactionID
	}
	currency := p.Currency
	if currency == "" {
		currency = "INR"
	}
	return PaymentEvent{
		ReferenceID: ref,
		UserID:      payer,
		Status:      strings.ToLower(status),
		AmountPaise: p.Amount.Paise(),
		Currency:    currency,
		Source:      source,
		Raw:         raw,
	}
}
