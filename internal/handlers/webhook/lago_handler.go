// internal/handlers/webhook/lago_handler.go
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"astrobot-service/internal/client/lago"
	"astrobot-service/internal/pkg/metrics"
	"astrobot-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	LagoSignatureHeader = "X-Lago-Signature"

	eventSubscriptionTerminated = "subscription.terminated"
)

// BodyVerifier checks a signature token against the raw body.
type BodyVerifier interface {
	VerifyBody(token string, body []byte) error
}

// RemoteTerminationSyncer applies a provider-side termination locally.
type RemoteTerminationSyncer interface {
	SyncRemoteTermination(ctx context.Context, customerID, externalID string) (bool, error)
}

type lagoEvent struct {
	WebhookType  string             `json:"webhook_type"`
	ObjectType   string             `json:"object_type"`
	Subscription *lago.Subscription `json:"subscription,omitempty"`
}

type LagoHandler struct {
	verifier BodyVerifier
	syncer   RemoteTerminationSyncer
	logger   *zap.Logger
}

// NewLagoHandler builds the billing webhook handler. A nil verifier accepts
// unsigned deliveries.
func NewLagoHandler(verifier BodyVerifier, syncer RemoteTerminationSyncer, logger *zap.Logger) *LagoHandler {
	return &LagoHandler{
		verifier: verifier,
		syncer:   syncer,
		logger:   logger,
	}
}

func (h *LagoHandler) Receive(c *gin.Context) {
	metrics.RecordWebhook("lago")

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		response.ValidationError(c, "failed to read body", err)
		return
	}

	if h.verifier != nil {
		if err := h.verifier.VerifyBody(c.GetHeader(LagoSignatureHeader), raw); err != nil {
			h.logger.Warn("invalid billing webhook signature", zap.Error(err))
			response.Unauthorized(c, "invalid signature")
			return
		}
	}

	var ev lagoEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		response.ValidationError(c, "invalid payload", err)
		return
	}

	log := h.logger.With(zap.String("webhook_type", ev.WebhookType))
	if ev.WebhookType != eventSubscriptionTerminated || ev.Subscription == nil {
		log.Debug("billing webhook ignored")
		response.Success(c, http.StatusOK, "ignored", nil)
		return
	}

	sub := ev.Subscription
	log = log.With(zap.String("customer_id", sub.ExternalCustomerID), zap.String("external_id", sub.ExternalID))
	log.Info("subscription terminated by provider")

	applied, err := h.syncer.SyncRemoteTermination(c.Request.Context(), sub.ExternalCustomerID, sub.ExternalID)
	if err != nil {
		log.Error("failed to apply remote termination", zap.Error(err))
		response.FromError(c, "failed to apply termination", err)
		return
	}

	response.Success(c, http.StatusOK, "processed", gin.H{"applied": applied})
}
