package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/subplane/subplane/internal/api"
	v1 "github.com/subplane/subplane/internal/api/v1"
	"github.com/subplane/subplane/internal/config"
	"github.com/subplane/subplane/internal/domain/billingevent"
	"github.com/subplane/subplane/internal/domain/plan"
	"github.com/subplane/subplane/internal/domain/subscription"
	"github.com/subplane/subplane/internal/gateway"
	"github.com/subplane/subplane/internal/gateway/stripegw"
	"github.com/subplane/subplane/internal/logger"
	"github.com/subplane/subplane/internal/postgres"
	"github.com/subplane/subplane/internal/publisher"
	"github.com/subplane/subplane/internal/repository"
	"github.com/subplane/subplane/internal/service"
	"github.com/subplane/subplane/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	// load .env for local development; ignored when absent
	_ = godotenv.Load()

	app := fx.New(
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			postgres.NewDB,

			provideCatalog,
			provideGateway,
			provideVerifier,

			// Repositories
			repository.NewSubscriptionRepository,
			repository.NewBillingEventRepository,

			// Publishers
			publisher.NewFactPublisher,

			// Services
			provideServiceParams,
			service.NewSubscriptionService,
			service.NewReconcilerService,

			// API
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			startFactConsumer,
			startServer,
		),
	)
	app.Run()
}

func provideCatalog(cfg *config.Configuration) (*plan.Catalog, error) {
	return plan.LoadCatalog(cfg.Plans.CatalogPath)
}

func provideGateway(cfg *config.Configuration, log *logger.Logger) gateway.BillingGateway {
	return stripegw.NewGateway(cfg, log)
}

func provideVerifier(cfg *config.Configuration, log *logger.Logger) gateway.EventVerifier {
	return stripegw.NewVerifier(cfg, log)
}

func provideServiceParams(
	log *logger.Logger,
	cfg *config.Configuration,
	catalog *plan.Catalog,
	db *postgres.DB,
	billingGateway gateway.BillingGateway,
	verifier gateway.EventVerifier,
	subRepo subscription.Repository,
	billingEventRepo billingevent.Repository,
	factPublisher publisher.FactPublisher,
) service.ServiceParams {
	return service.ServiceParams{
		Logger:           log,
		Config:           cfg,
		Catalog:          catalog,
		DB:               db,
		Gateway:          billingGateway,
		Verifier:         verifier,
		SubRepo:          subRepo,
		BillingEventRepo: billingEventRepo,
		FactPublisher:    factPublisher,
	}
}

func provideHandlers(
	params service.ServiceParams,
	subscriptionService service.SubscriptionService,
	reconcilerService service.ReconcilerService,
) api.Handlers {
	return api.Handlers{
		Health:       v1.NewHealthHandler(params.Logger),
		Plan:         v1.NewPlanHandler(params.Catalog, params.Logger),
		Subscription: v1.NewSubscriptionHandler(subscriptionService, params.Logger),
		Webhook:      v1.NewWebhookHandler(reconcilerService, params.Logger),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	if cfg.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.NewRouter(handlers, cfg, log)
}

// startFactConsumer drains the plan-change fact topic and logs each fact.
// A real analytics sink would hang off this subscription.
func startFactConsumer(
	lc fx.Lifecycle,
	factPublisher publisher.FactPublisher,
	log *logger.Logger,
) {
	consumerCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			messages, err := factPublisher.Subscribe(consumerCtx, publisher.TopicPlanChangeRequested)
			if err != nil {
				cancel()
				return err
			}
			go func() {
				for msg := range messages {
					var fact publisher.PlanChangeFact
					if err := json.Unmarshal(msg.Payload, &fact); err != nil {
						log.Errorw("dropping undecodable plan change fact",
							"message_id", msg.UUID,
							"error", err,
						)
						msg.Ack()
						continue
					}
					log.Infow("plan change fact",
						"fact_id", fact.ID,
						"user_id", fact.UserID,
						"from_plan_id", fact.FromPlanID,
						"to_plan_id", fact.ToPlanID,
						"strategy", fact.Strategy,
					)
					msg.Ack()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return factPublisher.Close()
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infof("Starting API server at %s", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return nil
		},
	})
}
