// internal/app/router.go
package app

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	opsHandler "astrobot-service/internal/handlers/ops"
	webhookHandler "astrobot-service/internal/handlers/webhook"
	"astrobot-service/internal/middleware"
	"astrobot-service/internal/pkg/metrics"
)

type Handlers struct {
	WhatsAppHandler *webhookHandler.WhatsAppHandler
	LagoHandler     *webhookHandler.LagoHandler
	OpsHandler      *opsHandler.OpsHandler
	AuthMiddleware  *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	// ==================== WhatsApp Cloud API ====================
	r.GET("/whatsapp", h.WhatsAppHandler.Verify)
	r.POST("/whatsapp", h.WhatsAppHandler.Receive)

	// ==================== Provider Webhooks ====================
	hooks := r.Group("/webhook")
	{
		hooks.POST("/payment", h.WhatsAppHandler.Payment)
		hooks.POST("/lago", h.LagoHandler.Receive)
	}

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Operator Routes ====================
	ops := api.Group("/ops/users/:id")
	ops.Use(h.AuthMiddleware.APIKey())
	{
		ops.GET("/quota", h.OpsHandler.GetQuota)
		ops.GET("/subscription", h.OpsHandler.GetSubscription)
		ops.POST("/subscription", h.OpsHandler.Activate)
		ops.DELETE("/subscription", h.OpsHandler.Terminate)
		ops.GET("/subscription/remote", h.OpsHandler.RemoteStatus)
	}

	logger.Info("routes registered", zap.Int("count", len(r.Routes())))
}
