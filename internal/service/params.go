package service

import (
	"github.com/subplane/subplane/internal/config"
	"github.com/subplane/subplane/internal/domain/billingevent"
	"github.com/subplane/subplane/internal/domain/plan"
	"github.com/subplane/subplane/internal/domain/subscription"
	"github.com/subplane/subplane/internal/gateway"
	"github.com/subplane/subplane/internal/logger"
	"github.com/subplane/subplane/internal/postgres"
	"github.com/subplane/subplane/internal/publisher"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger   *logger.Logger
	Config   *config.Configuration
	Catalog  *plan.Catalog
	Gateway  gateway.BillingGateway
	Verifier gateway.EventVerifier
	DB       postgres.TxRunner

	// Repositories
	SubRepo          subscription.Repository
	BillingEventRepo billingevent.Repository

	// Publishers
	FactPublisher publisher.FactPublisher
}
