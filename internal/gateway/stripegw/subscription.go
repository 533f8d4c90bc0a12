package stripegw

import (
	"context"
	"time"

	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/gateway"
	"github.com/subplane/subplane/internal/types"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

const maxStateReadRetries = 3

// CreateSubscription opens a Stripe customer and subscription for the user.
// The subscription is created default_incomplete; it stays incomplete until
// the first payment settles, which arrives as a webhook.
func (g *Gateway) CreateSubscription(ctx context.Context, input gateway.CreateSubscriptionInput) (*gateway.SubscriptionState, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	customerParams := &stripe.CustomerCreateParams{
		Email: stripe.String(input.Email),
		Metadata: map[string]string{
			"subplane_user_id": input.UserID,
		},
	}

	customer, err := g.client.V1Customers.Create(ctx, customerParams)
	if err != nil {
		g.logger.Errorw("failed to create customer at provider",
			"error", err,
			"user_id", input.UserID,
		)
		return nil, ierr.WithError(err).
			WithHint("Could not create billing customer").
			Mark(ierr.ErrGateway)
	}

	subParams := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(customer.ID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{Price: stripe.String(input.PriceRef)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		Metadata: map[string]string{
			"subplane_user_id": input.UserID,
		},
	}

	sub, err := g.client.V1Subscriptions.Create(ctx, subParams)
	if err != nil {
		g.logger.Errorw("failed to create subscription at provider",
			"error", err,
			"user_id", input.UserID,
			"price_ref", input.PriceRef,
		)
		return nil, ierr.WithError(err).
			WithHint("Could not create subscription at billing provider").
			Mark(ierr.ErrGateway)
	}

	return subscriptionState(sub), nil
}

// GetSubscription re-reads remote state. Reads are idempotent so transient
// failures are retried with exponential backoff, bounded by the context.
func (g *Gateway) GetSubscription(ctx context.Context, remoteSubscriptionID string) (*gateway.SubscriptionState, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionRetrieveParams{
		Expand: []*string{
			stripe.String("items.data.price"),
			stripe.String("schedule"),
		},
	}

	var sub *stripe.Subscription
	operation := func() error {
		var err error
		sub, err = g.client.V1Subscriptions.Retrieve(ctx, remoteSubscriptionID, params)
		if err != nil {
			if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.HTTPStatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxStateReadRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		g.logger.Errorw("failed to retrieve subscription from provider",
			"error", err,
			"remote_subscription_id", remoteSubscriptionID,
		)
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.HTTPStatusCode == 404 {
			return nil, ierr.WithError(err).
				WithHint("Subscription not found at billing provider").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Could not fetch subscription from billing provider").
			Mark(ierr.ErrGateway)
	}

	return subscriptionState(sub), nil
}

// UpdateSubscriptionPrice swaps the subscription's single price in place.
// Stripe computes the proration; we record what it returns.
func (g *Gateway) UpdateSubscriptionPrice(ctx context.Context, remoteSubscriptionID, priceRef string) (*gateway.SubscriptionState, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	current, err := g.client.V1Subscriptions.Retrieve(ctx, remoteSubscriptionID, nil)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Could not fetch subscription from billing provider").
			Mark(ierr.ErrGateway)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, ierr.NewError("subscription has no items at provider").
			WithReportableDetails(map[string]any{
				"remote_subscription_id": remoteSubscriptionID,
			}).
			Mark(ierr.ErrGateway)
	}

	params := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{
				ID:    stripe.String(current.Items.Data[0].ID),
				Price: stripe.String(priceRef),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
		Expand: []*string{
			stripe.String("latest_invoice"),
		},
	}

	sub, err := g.client.V1Subscriptions.Update(ctx, remoteSubscriptionID, params)
	if err != nil {
		g.logger.Errorw("failed to update subscription price at provider",
			"error", err,
			"remote_subscription_id", remoteSubscriptionID,
			"price_ref", priceRef,
		)
		return nil, ierr.WithError(err).
			WithHint("Could not apply plan change at billing provider").
			Mark(ierr.ErrGateway)
	}

	state := subscriptionState(sub)
	if sub.LatestInvoice != nil {
		amount := decimal.New(sub.LatestInvoice.Total, -2)
		state.ProrationAmount = &amount
	}
	return state, nil
}

// ScheduleChange parks a deferred price flip on a subscription schedule.
// The schedule is created from the live subscription, then rewritten with
// two phases: the current price until the boundary, the target price after.
// Stripe is the timer; we never fire this locally.
func (g *Gateway) ScheduleChange(ctx context.Context, input gateway.ScheduleChangeInput) (*gateway.ScheduleState, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	schedule, err := g.client.V1SubscriptionSchedules.Create(ctx, &stripe.SubscriptionScheduleCreateParams{
		FromSubscription: stripe.String(input.RemoteSubscriptionID),
	})
	if err != nil {
		g.logger.Errorw("failed to create schedule at provider",
			"error", err,
			"remote_subscription_id", input.RemoteSubscriptionID,
		)
		return nil, ierr.WithError(err).
			WithHint("Could not create schedule at billing provider").
			Mark(ierr.ErrGateway)
	}

	scheduleID := schedule.ID
	boundary := input.EffectiveAt.UTC().Unix()
	updateParams := &stripe.SubscriptionScheduleUpdateParams{
		EndBehavior: stripe.String("release"),
		Phases: []*stripe.SubscriptionScheduleUpdatePhaseParams{
			{
				Items: []*stripe.SubscriptionScheduleUpdatePhaseItemParams{
					{Price: stripe.String(input.CurrentPriceRef), Quantity: stripe.Int64(1)},
				},
				StartDate: stripe.Int64(schedule.Phases[0].StartDate),
				EndDate:   stripe.Int64(boundary),
			},
			{
				Items: []*stripe.SubscriptionScheduleUpdatePhaseItemParams{
					{Price: stripe.String(input.TargetPriceRef), Quantity: stripe.Int64(1)},
				},
				StartDate: stripe.Int64(boundary),
			},
		},
		Metadata: map[string]string{
			"subplane_reason": input.Reason.String(),
		},
	}

	if _, err = g.client.V1SubscriptionSchedules.Update(ctx, scheduleID, updateParams); err != nil {
		g.logger.Errorw("failed to set schedule phases at provider",
			"error", err,
			"schedule_id", scheduleID,
		)
		// best effort detach so the subscription is not left pinned to a
		// half-written schedule
		if _, releaseErr := g.client.V1SubscriptionSchedules.Release(ctx, scheduleID, nil); releaseErr != nil {
			g.logger.Errorw("failed to release half-written schedule",
				"error", releaseErr,
				"schedule_id", scheduleID,
			)
		}
		return nil, ierr.WithError(err).
			WithHint("Could not park deferred change at billing provider").
			Mark(ierr.ErrGateway)
	}

	return &gateway.ScheduleState{
		ScheduleID:     scheduleID,
		EffectiveAt:    time.Unix(boundary, 0).UTC(),
		TargetPriceRef: input.TargetPriceRef,
	}, nil
}

// ReleaseSchedule detaches a schedule from its subscription
func (g *Gateway) ReleaseSchedule(ctx context.Context, scheduleID string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if _, err := g.client.V1SubscriptionSchedules.Release(ctx, scheduleID, nil); err != nil {
		g.logger.Errorw("failed to release schedule at provider",
			"error", err,
			"schedule_id", scheduleID,
		)
		return ierr.WithError(err).
			WithHint("Could not release schedule at billing provider").
			Mark(ierr.ErrGateway)
	}
	return nil
}

// CancelSubscription terminates the subscription now. With prorate set,
// Stripe issues a prorated final invoice immediately.
func (g *Gateway) CancelSubscription(ctx context.Context, remoteSubscriptionID string, prorate bool) (*gateway.SubscriptionState, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionCancelParams{
		Prorate:    stripe.Bool(prorate),
		InvoiceNow: stripe.Bool(prorate),
	}

	sub, err := g.client.V1Subscriptions.Cancel(ctx, remoteSubscriptionID, params)
	if err != nil {
		g.logger.Errorw("failed to cancel subscription at provider",
			"error", err,
			"remote_subscription_id", remoteSubscriptionID,
		)
		return nil, ierr.WithError(err).
			WithHint("Could not cancel subscription at billing provider").
			Mark(ierr.ErrGateway)
	}

	return subscriptionState(sub), nil
}

// subscriptionState maps a Stripe subscription to the gateway state type.
// Period bounds live on the subscription item since the Basil API.
func subscriptionState(sub *stripe.Subscription) *gateway.SubscriptionState {
	state := &gateway.SubscriptionState{
		RemoteSubscriptionID: sub.ID,
		Status:               types.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		state.RemoteCustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		state.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		state.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		if item.Price != nil {
			state.PriceRef = item.Price.ID
		}
	}
	return state
}
