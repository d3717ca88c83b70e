// internal/handlers/ops/ops_handler.go
package ops

import (
	"context"
	"net/http"

	"astrobot-service/internal/client/lago"
	"astrobot-service/internal/domain/billing"
	"astrobot-service/internal/pkg/response"
	"astrobot-service/internal/service/quota"
	"astrobot-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type QuotaReader interface {
	Remaining(ctx context.Context, userID string) (*quota.Status, error)
}

type SubscriptionManager interface {
	Activate(ctx context.Context, userID, planID, externalSubID string) (*subscription.Activation, error)
	Terminate(ctx context.Context, userID, reason string) error
	Current(ctx context.Context, userID string) (*billing.Subscription, error)
	RemoteStatus(ctx context.Context, userID string) (*lago.Subscription, error)
}

// ActivateRequest is the body of a manual plan activation.
type ActivateRequest struct {
	PlanID     string `json:"plan_id" binding:"required,oneof=9 49 custom"`
	ExternalID string `json:"external_id" binding:"omitempty,max=128"`
}

type OpsHandler struct {
	quota         QuotaReader
	subscriptions SubscriptionManager
	logger        *zap.Logger
}

func NewOpsHandler(q QuotaReader, subs SubscriptionManager, logger *zap.Logger) *OpsHandler {
	return &OpsHandler{
		quota:         q,
		subscriptions: subs,
		logger:        logger,
	}
}

// GetQuota reports remaining heavy requests for a user.
func (h *OpsHandler) GetQuota(c *gin.Context) {
	st, err := h.quota.Remaining(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to read quota", err)
		return
	}
	response.Success(c, http.StatusOK, "quota retrieved", st)
}

func (h *OpsHandler) GetSubscription(c *gin.Context) {
	sub, err := h.subscriptions.Current(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "subscription not found", err)
		return
	}
	response.Success(c, http.StatusOK, "subscription retrieved", sub)
}

// Activate puts a user on a plan without a payment.
func (h *OpsHandler) Activate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	userID := c.Param("id")
	act, err := h.subscriptions.Activate(c.Request.Context(), userID, req.PlanID, req.ExternalID)
	if err != nil {
		response.FromError(c, "failed to activate subscription", err)
		return
	}

	h.logger.Info("subscription activated by operator",
		zap.String("user_id", userID),
		zap.String("plan_id", req.PlanID),
	)
	response.Success(c, http.StatusCreated, "subscription activated", act)
}

func (h *OpsHandler) Terminate(c *gin.Context) {
	reason := c.DefaultQuery("reason", subscription.ReasonOpsTermination)
	userID := c.Param("id")

	if err := h.subscriptions.Terminate(c.Request.Context(), userID, reason); err != nil {
		response.FromError(c, "failed to terminate subscription", err)
		return
	}

	h.logger.Info("subscription terminated by operator",
		zap.String("user_id", userID),
		zap.String("reason", reason),
	)
	response.Success(c, http.StatusOK, "subscription terminated", nil)
}

// RemoteStatus shows the provider's view of the user's subscription.
func (h *OpsHandler) RemoteStatus(c *gin.Context) {
	sub, err := h.subscriptions.RemoteStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to read remote subscription", err)
		return
	}
	response.Success(c, http.StatusOK, "remote subscription retrieved", sub)
}
