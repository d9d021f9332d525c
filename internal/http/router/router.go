package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/gigradar-integrations/internal/config"
	"github.com/ignatzorin/gigradar-integrations/internal/http/handlers"
	"github.com/ignatzorin/gigradar-integrations/internal/http/middleware"
)

func SetupRouter(
	cfg *config.Config,
	webhookHandler *handlers.WebhookHandler,
	proposalHandler *handlers.ProposalHandler,
	healthHandler *handlers.HealthHandler,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	// Входящие webhook от Gigradar. Токен валидируется внутри handler,
	// чтобы самим управлять кодом ответа.
	r.POST("/hooks/catch/:token/", webhookHandler.Handle)
	r.GET("/webhooks/health", webhookHandler.Health)

	// Query API для операторов.
	api := r.Group("/api")
	api.Use(middleware.BasicAuth(cfg.WebhookUsername, cfg.WebhookPassword))
	{
		api.GET("/proposals", proposalHandler.ListProposals)
		api.GET("/proposals/:proposalId", proposalHandler.GetProposal)
	}

	return r
}
