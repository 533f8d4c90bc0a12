package postgres

import (
	"context"
	"time"

	"github.com/subplane/subplane/internal/domain/subscription"
	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/logger"
	"github.com/subplane/subplane/internal/postgres"
	"github.com/subplane/subplane/internal/types"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

const subscriptionColumns = `
	id,
	user_id,
	remote_subscription_id,
	remote_customer_id,
	plan_id,
	billing_interval,
	subscription_status,
	current_period_start,
	current_period_end,
	cancel_at_period_end,
	cancellation_reason,
	last_proration_amount,
	sched_target_plan_id,
	sched_target_interval,
	sched_target_price_ref,
	sched_effective_at,
	sched_reason,
	sched_remote_schedule_id,
	tenant_id,
	status,
	created_at,
	updated_at,
	created_by,
	updated_by
`

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `) VALUES (
			:id,
			:user_id,
			:remote_subscription_id,
			:remote_customer_id,
			:plan_id,
			:billing_interval,
			:subscription_status,
			:current_period_start,
			:current_period_end,
			:cancel_at_period_end,
			:cancellation_reason,
			:last_proration_amount,
			:sched_target_plan_id,
			:sched_target_interval,
			:sched_target_price_ref,
			:sched_effective_at,
			:sched_reason,
			:sched_remote_schedule_id,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("User already has a subscription").
				WithReportableDetails(map[string]any{"user_id": sub.UserID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create subscription").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE
			id = :id AND
			tenant_id = :tenant_id AND
			status != :deleted
	`
	return r.getOne(ctx, query, map[string]interface{}{
		"id":        id,
		"tenant_id": types.GetTenantID(ctx),
		"deleted":   types.StatusDeleted,
	})
}

func (r *subscriptionRepository) GetByUserID(ctx context.Context, userID string) (*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE
			user_id = :user_id AND
			tenant_id = :tenant_id AND
			status = :published
	`
	return r.getOne(ctx, query, map[string]interface{}{
		"user_id":   userID,
		"tenant_id": types.GetTenantID(ctx),
		"published": types.StatusPublished,
	})
}

func (r *subscriptionRepository) GetByRemoteSubscriptionID(ctx context.Context, remoteID string) (*subscription.Subscription, error) {
	// no tenant filter: webhook ingestion resolves the row before any
	// tenant context exists, and remote ids are globally unique
	query := `
		SELECT * FROM subscriptions
		WHERE
			remote_subscription_id = :remote_subscription_id AND
			status = :published
	`
	return r.getOne(ctx, query, map[string]interface{}{
		"remote_subscription_id": remoteID,
		"published":              types.StatusPublished,
	})
}

func (r *subscriptionRepository) getOne(ctx context.Context, query string, params map[string]interface{}) (*subscription.Subscription, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("subscription not found").
			WithHint("Subscription not found").
			Mark(ierr.ErrNotFound)
	}

	var sub subscription.Subscription
	if err := rows.StructScan(&sub); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan subscription").
			Mark(ierr.ErrDatabase)
	}

	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	sub.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE subscriptions SET
			remote_subscription_id = :remote_subscription_id,
			remote_customer_id = :remote_customer_id,
			plan_id = :plan_id,
			billing_interval = :billing_interval,
			subscription_status = :subscription_status,
			current_period_start = :current_period_start,
			current_period_end = :current_period_end,
			cancel_at_period_end = :cancel_at_period_end,
			cancellation_reason = :cancellation_reason,
			last_proration_amount = :last_proration_amount,
			sched_target_plan_id = :sched_target_plan_id,
			sched_target_interval = :sched_target_interval,
			sched_target_price_ref = :sched_target_price_ref,
			sched_effective_at = :sched_effective_at,
			sched_reason = :sched_reason,
			sched_remote_schedule_id = :sched_remote_schedule_id,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE
			id = :id
	`

	result, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update subscription").
			Mark(ierr.ErrDatabase)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return ierr.NewError("subscription not found").
			WithHint("Subscription not found").
			WithReportableDetails(map[string]any{"id": sub.ID}).
			Mark(ierr.ErrNotFound)
	}

	return nil
}

func (r *subscriptionRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE subscriptions
		SET
			status = :status,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE
			id = :id AND
			tenant_id = :tenant_id
	`

	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"status":     types.StatusDeleted,
		"updated_at": time.Now().UTC(),
		"updated_by": types.GetUserID(ctx),
		"id":         id,
		"tenant_id":  types.GetTenantID(ctx),
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete subscription").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
