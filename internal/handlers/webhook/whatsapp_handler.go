// internal/handlers/webhook/whatsapp_handler.go
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	wa "astrobot-service/internal/domain/whatsapp"
	"astrobot-service/internal/pkg/metrics"
	"astrobot-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// MessageProcessor is the conversation entry point.
type MessageProcessor interface {
	Accept(ctx context.Context, messageID string) bool
	Process(ctx context.Context, in wa.Inbound)
	HandlePaymentEvent(ctx context.Context, ev wa.PaymentEvent) error
}

type Config struct {
	VerifyToken    string
	AppSecret      string
	ProcessTimeout time.Duration
}

type WhatsAppHandler struct {
	processor MessageProcessor
	cfg       Config
	logger    *zap.Logger
	inflight  sync.WaitGroup
}

func NewWhatsAppHandler(processor MessageProcessor, cfg Config, logger *zap.Logger) *WhatsAppHandler {
	if cfg.ProcessTimeout == 0 {
		cfg.ProcessTimeout = 60 * time.Second
	}
	if cfg.AppSecret == "" {
		logger.Warn("META_APP_SECRET is not set, webhook signatures will not be checked and payments for unknown references will be refused")
	}
	return &WhatsAppHandler{
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Verify answers the subscription handshake.
func (h *WhatsAppHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && h.cfg.VerifyToken != "" && token == h.cfg.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	h.logger.Warn("webhook verification failed", zap.String("mode", mode))
	response.Forbidden(c, "verification failed")
}

// Receive acknowledges a delivery at once. Duplicate filtering runs before
// the acknowledgement, the conversation work after it.
func (h *WhatsAppHandler) Receive(c *gin.Context) {
	metrics.RecordWebhook("whatsapp")

	env, raw, ok := h.readEnvelope(c)
	if !ok {
		return
	}

	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			for _, ev := range wa.PaymentEvents(&v, string(raw)) {
				ev.Verified = h.signed()
				h.dispatch(func(ctx context.Context) {
					if err := h.processor.HandlePaymentEvent(ctx, ev); err != nil {
						h.logger.Error("failed to apply payment event", zap.String("reference_id", ev.ReferenceID), zap.Error(err))
					}
				})
			}
			for _, msg := range v.Messages {
				in := wa.ToInbound(msg, v.Contacts)
				if !h.processor.Accept(c.Request.Context(), in.MessageID) {
					continue
				}
				h.dispatch(func(ctx context.Context) { h.processor.Process(ctx, in) })
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Payment receives payment status deliveries on their own endpoint.
func (h *WhatsAppHandler) Payment(c *gin.Context) {
	metrics.RecordWebhook("payment")

	env, raw, ok := h.readEnvelope(c)
	if !ok {
		return
	}

	handled := 0
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			for _, ev := range wa.PaymentEvents(&v, string(raw)) {
				if ev.ReferenceID == "" {
					continue
				}
				handled++
				ev.Verified = h.signed()
				h.dispatch(func(ctx context.Context) {
					if err := h.processor.HandlePaymentEvent(ctx, ev); err != nil {
						h.logger.Error("failed to apply payment event", zap.String("reference_id", ev.ReferenceID), zap.Error(err))
					}
				})
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "events": handled})
}

// Wait blocks until dispatched work finishes or ctx ends.
func (h *WhatsAppHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// signed reports whether deliveries reaching the handlers passed the
// signature check.
func (h *WhatsAppHandler) signed() bool {
	return h.cfg.AppSecret != ""
}

func (h *WhatsAppHandler) readEnvelope(c *gin.Context) (*wa.Envelope, []byte, bool) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		response.ValidationError(c, "failed to read body", err)
		return nil, nil, false
	}

	if h.cfg.AppSecret != "" && !validSignature(h.cfg.AppSecret, raw, c.GetHeader(SignatureHeader)) {
		h.logger.Warn("invalid webhook signature", zap.String("path", c.FullPath()))
		response.Unauthorized(c, "invalid signature")
		return nil, nil, false
	}

	var env wa.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		response.ValidationError(c, "invalid payload", err)
		return nil, nil, false
	}
	return &env, raw, true
}

// dispatch runs fn detached from the request with its own deadline.
func (h *WhatsAppHandler) dispatch(fn func(ctx context.Context)) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ProcessTimeout)
		defer cancel()
		fn(ctx)
	}()
}
