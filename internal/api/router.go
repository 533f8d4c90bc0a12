package api

import (
	"github.com/subplane/subplane/internal/api/v1"
	"github.com/subplane/subplane/internal/config"
	"github.com/subplane/subplane/internal/logger"
	"github.com/subplane/subplane/internal/rest/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health       *v1.HealthHandler
	Plan         *v1.PlanHandler
	Subscription *v1.SubscriptionHandler
	Webhook      *v1.WebhookHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)

	v1Group := router.Group("/v1")

	// webhook deliveries authenticate by signature, not caller identity
	webhooks := v1Group.Group("/webhooks")
	webhooks.Use(middleware.RateLimitMiddleware(cfg, log))
	{
		webhooks.POST("/billing", handlers.Webhook.HandleBillingWebhook)
	}

	// plan catalog is public read-only
	plans := v1Group.Group("/plans")
	{
		plans.GET("", handlers.Plan.ListPlans)
		plans.GET("/:id", handlers.Plan.GetPlan)
	}

	private := v1Group.Group("")
	private.Use(middleware.IdentityMiddleware(cfg))
	{
		subscriptions := private.Group("/subscriptions")
		{
			subscriptions.POST("", handlers.Subscription.CreateSubscription)
			subscriptions.GET("/current", handlers.Subscription.GetCurrentSubscription)
			subscriptions.POST("/change", handlers.Subscription.RequestPlanChange)
			subscriptions.POST("/cancel", handlers.Subscription.CancelSubscription)
			subscriptions.POST("/reactivate", handlers.Subscription.ReactivateSubscription)
		}

		admin := private.Group("/admin")
		admin.Use(middleware.AdminMiddleware(cfg, log))
		{
			admin.POST("/subscriptions/cancel", handlers.Subscription.AdminCancelSubscription)
		}
	}

	return router
}
