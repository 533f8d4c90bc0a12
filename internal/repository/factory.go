package repository

import (
	"github.com/subplane/subplane/internal/domain/billingevent"
	"github.com/subplane/subplane/internal/domain/subscription"
	"github.com/subplane/subplane/internal/logger"
	"github.com/subplane/subplane/internal/postgres"
	postgresRepo "github.com/subplane/subplane/internal/repository/postgres"
)

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}

func NewBillingEventRepository(db *postgres.DB, logger *logger.Logger) billingevent.Repository {
	return postgresRepo.NewBillingEventRepository(db, logger)
}
