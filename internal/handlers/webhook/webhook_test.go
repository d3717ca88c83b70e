package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	wa "astrobot-service/internal/domain/whatsapp"
	"astrobot-service/internal/pkg/dedup"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type fakeProcessor struct {
	mu        sync.Mutex
	filter    *dedup.RingFilter
	processed []wa.Inbound
	payments  []wa.PaymentEvent
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{filter: dedup.NewRingFilter(10)}
}

func (f *fakeProcessor) Accept(ctx context.Context, id string) bool {
	dup, _ := f.filter.IsDuplicate(ctx, id)
	return !dup
}

func (f *fakeProcessor) Process(_ context.Context, in wa.Inbound) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, in)
}

func (f *fakeProcessor) HandlePaymentEvent(_ context.Context, ev wa.PaymentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, ev)
	return nil
}

const textDelivery = `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{
	"contacts":[{"wa_id":"919800000001","profile":{"name":"Asha"}}],
	"messages":[{"id":"wamid.1","from":"919800000001","type":"text","text":{"body":"hi"}}]}}]}]}`

const paymentDelivery = `{"entry":[{"changes":[{"value":{"statuses":[
	{"id":"s1","type":"payment","status":"captured","recipient_id":"919800000001",
	 "payment":{"reference_id":"ORDER-1","amount":{"value":900,"offset":100}}}]}}]}]}`

func setup(cfg Config) (*gin.Engine, *WhatsAppHandler, *fakeProcessor) {
	gin.SetMode(gin.TestMode)
	p := newFakeProcessor()
	h := NewWhatsAppHandler(p, cfg, zap.NewNop())
	r := gin.New()
	r.GET("/whatsapp", h.Verify)
	r.POST("/whatsapp", h.Receive)
	r.POST("/webhook/payment", h.Payment)
	return r, h, p
}

func post(r *gin.Engine, path, body, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func wait(t *testing.T, h *WhatsAppHandler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Wait(ctx); err != nil {
		t.Fatalf("dispatched work did not finish: %v", err)
	}
}

func TestVerify(t *testing.T) {
	r, _, _ := setup(Config{VerifyToken: "tok"})

	tests := []struct {
		name  string
		query string
		want  int
		body  string
	}{
		{"match", "hub.mode=subscribe&hub.verify_token=tok&hub.challenge=42", http.StatusOK, "42"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=bad&hub.challenge=42", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=tok&hub.challenge=42", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whatsapp?"+tt.query, nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.body)
			}
		})
	}
}

func TestReceiveDeduplicatesBeforeAck(t *testing.T) {
	r, h, p := setup(Config{})

	for i := 0; i < 2; i++ {
		if w := post(r, "/whatsapp", textDelivery, ""); w.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d", i, w.Code)
		}
	}
	wait(t, h)

	if len(p.processed) != 1 {
		t.Fatalf("processed = %d, want 1", len(p.processed))
	}
	in := p.processed[0]
	if in.Text != "hi" || in.DisplayName != "Asha" {
		t.Errorf("inbound = %+v", in)
	}
}

func TestReceiveSignature(t *testing.T) {
	r, h, p := setup(Config{AppSecret: "s3cret"})

	if w := post(r, "/whatsapp", textDelivery, "sha256=deadbeef"); w.Code != http.StatusUnauthorized {
		t.Errorf("bad signature status = %d, want 401", w.Code)
	}
	if w := post(r, "/whatsapp", textDelivery, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing signature status = %d, want 401", w.Code)
	}
	if w := post(r, "/whatsapp", textDelivery, Sign("s3cret", []byte(textDelivery))); w.Code != http.StatusOK {
		t.Errorf("good signature status = %d, want 200", w.Code)
	}
	wait(t, h)
	if len(p.processed) != 1 {
		t.Errorf("processed = %d, want 1", len(p.processed))
	}
}

func TestReceiveRejectsInvalidJSON(t *testing.T) {
	r, _, _ := setup(Config{})
	if w := post(r, "/whatsapp", "{", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPaymentEndpoint(t *testing.T) {
	r, h, p := setup(Config{})

	w := post(r, "/webhook/payment", paymentDelivery, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	wait(t, h)

	if len(p.payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(p.payments))
	}
	ev := p.payments[0]
	if ev.ReferenceID != "ORDER-1" || ev.AmountPaise != 900 || !ev.Succeeded() {
		t.Errorf("event = %+v", ev)
	}
}

func TestPaymentEventsCarrySignatureState(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		path   string
		want   bool
	}{
		{"payment endpoint unsigned", "", "/webhook/payment", false},
		{"payment endpoint signed", "s3cret", "/webhook/payment", true},
		{"status delivery unsigned", "", "/whatsapp", false},
		{"status delivery signed", "s3cret", "/whatsapp", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, h, p := setup(Config{AppSecret: tt.secret})
			sig := ""
			if tt.secret != "" {
				sig = Sign(tt.secret, []byte(paymentDelivery))
			}
			if w := post(r, tt.path, paymentDelivery, sig); w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			wait(t, h)
			if len(p.payments) != 1 {
				t.Fatalf("payments = %d, want 1", len(p.payments))
			}
			if p.payments[0].Verified != tt.want {
				t.Errorf("Verified = %v, want %v", p.payments[0].Verified, tt.want)
			}
		})
	}
}

type fakeVerifier struct{ err error }

func (f fakeVerifier) VerifyBody(string, []byte) error { return f.err }

type fakeSyncer struct {
	calls []string
	err   error
}

func (f *fakeSyncer) SyncRemoteTermination(_ context.Context, customerID, externalID string) (bool, error) {
	f.calls = append(f.calls, customerID+"/"+externalID)
	return f.err == nil, f.err
}

func TestLagoHandler(t *testing.T) {
	terminated := `{"webhook_type":"subscription.terminated","object_type":"subscription",
		"subscription":{"external_id":"sub_919800000001_1740823200","external_customer_id":"919800000001","plan_code":"daily_9","status":"terminated"}}`

	tests := []struct {
		name      string
		verifier  BodyVerifier
		syncErr   error
		body      string
		want      int
		wantCalls int
	}{
		{"terminated", fakeVerifier{}, nil, terminated, http.StatusOK, 1},
		{"unsigned accepted without verifier", nil, nil, terminated, http.StatusOK, 1},
		{"bad signature", fakeVerifier{err: errors.New("bad")}, nil, terminated, http.StatusUnauthorized, 0},
		{"other event ignored", fakeVerifier{}, nil, `{"webhook_type":"invoice.created"}`, http.StatusOK, 0},
		{"sync failure", fakeVerifier{}, errors.New("store down"), terminated, http.StatusInternalServerError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			syncer := &fakeSyncer{err: tt.syncErr}
			h := NewLagoHandler(tt.verifier, syncer, zap.NewNop())
			r := gin.New()
			r.POST("/webhook/lago", h.Receive)

			w := post(r, "/webhook/lago", tt.body, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if len(syncer.calls) != tt.wantCalls {
				t.Fatalf("sync calls = %v", syncer.calls)
			}
			if tt.wantCalls == 1 && syncer.calls[0] != "919800000001/sub_919800000001_1740823200" {
				t.Errorf("sync call = %s", syncer.calls[0])
			}
		})
	}
}
