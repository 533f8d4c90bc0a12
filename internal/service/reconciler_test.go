package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/subplane/subplane/internal/config"
	"github.com/subplane/subplane/internal/domain/subscription"
	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/gateway"
	"github.com/subplane/subplane/internal/logger"
	"github.com/subplane/subplane/internal/testutil"
	"github.com/subplane/subplane/internal/types"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type ReconcilerServiceSuite struct {
	suite.Suite
	ctx       context.Context
	service   ReconcilerService
	subRepo   *testutil.InMemorySubscriptionStore
	eventRepo *testutil.InMemoryBillingEventStore
	gw        *testutil.FakeBillingGateway
	params    ServiceParams
}

func TestReconcilerService(t *testing.T) {
	suite.Run(t, new(ReconcilerServiceSuite))
}

func (s *ReconcilerServiceSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.subRepo = testutil.NewInMemorySubscriptionStore()
	s.eventRepo = testutil.NewInMemoryBillingEventStore()
	s.gw = testutil.NewFakeBillingGateway()

	s.params = ServiceParams{
		Logger:           logger.GetLogger(),
		Config:           config.GetDefaultConfig(),
		Catalog:          testCatalog(s.T()),
		Gateway:          s.gw,
		Verifier:         &testutil.FakeVerifier{},
		DB:               &testutil.FakeTxRunner{Subs: s.subRepo, Events: s.eventRepo},
		SubRepo:          s.subRepo,
		BillingEventRepo: s.eventRepo,
	}
	s.service = NewReconcilerService(s.params)
}

// delivery builds the signed-envelope JSON the fake verifier understands
func delivery(id, eventType string, created time.Time, object string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":%q,"created":%d,"data":{"object":%s}}`,
		id, eventType, created.Unix(), object,
	))
}

func (s *ReconcilerServiceSuite) seedSubscription(planID string, interval types.BillingInterval, status types.SubscriptionStatus) *subscription.Subscription {
	now := time.Now().UTC()
	priceRef, err := s.params.Catalog.ResolvePriceRef(planID, interval)
	s.Require().NoError(err)

	s.gw.Seed(&gateway.SubscriptionState{
		RemoteSubscriptionID: "sub_seed_1",
		RemoteCustomerID:     "cus_seed_1",
		Status:               types.SubscriptionStatusActive,
		PriceRef:             priceRef,
		CurrentPeriodStart:   now.AddDate(0, 0, -10),
		CurrentPeriodEnd:     now.AddDate(0, 0, 20),
	})

	sub := &subscription.Subscription{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		UserID:               types.DefaultUserID,
		RemoteSubscriptionID: lo.ToPtr("sub_seed_1"),
		RemoteCustomerID:     lo.ToPtr("cus_seed_1"),
		PlanID:               planID,
		BillingInterval:      interval,
		SubscriptionStatus:   status,
		CurrentPeriodStart:   now.AddDate(0, 0, -10),
		CurrentPeriodEnd:     now.AddDate(0, 0, 20),
		BaseModel:            types.GetDefaultBaseModel(s.ctx),
	}
	s.Require().NoError(s.subRepo.Create(s.ctx, sub))
	return sub
}

func (s *ReconcilerServiceSuite) storedSubscription(id string) *subscription.Subscription {
	sub, err := s.subRepo.Get(s.ctx, id)
	s.Require().NoError(err)
	return sub
}

func (s *ReconcilerServiceSuite) TestRejectsBadSignature() {
	payload := delivery("evt_1", types.WebhookEventSubscriptionUpdated, time.Now(), `{}`)

	_, err := s.service.Ingest(s.ctx, payload, "forged")
	s.Error(err)
	s.True(ierr.IsSignature(err))

	processed, _ := s.eventRepo.IsProcessed(s.ctx, "evt_1")
	s.False(processed, "rejected deliveries must not claim the event id")
}

func (s *ReconcilerServiceSuite) TestRejectsStaleEvent() {
	payload := delivery("evt_old", types.WebhookEventSubscriptionUpdated, time.Now().Add(-time.Hour), `{}`)

	_, err := s.service.Ingest(s.ctx, payload, "valid")
	s.Error(err)
	s.True(ierr.IsStaleEvent(err))
}

func (s *ReconcilerServiceSuite) TestRejectsMalformedEvent() {
	// verified and fresh but missing the event id
	payload := delivery("", types.WebhookEventSubscriptionUpdated, time.Now(), `{"id":"sub_seed_1"}`)

	_, err := s.service.Ingest(s.ctx, payload, "valid")
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *ReconcilerServiceSuite) TestIgnoresUnknownEventType() {
	payload := delivery("evt_2", "charge.refunded", time.Now(), `{"id":"ch_1"}`)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeIgnored, ack.Outcome)

	processed, _ := s.eventRepo.IsProcessed(s.ctx, "evt_2")
	s.False(processed, "ignored types are not claimed")
}

func (s *ReconcilerServiceSuite) TestDuplicateDeliveryAckedOnce() {
	sub := s.seedSubscription("pro", types.BillingIntervalMonthly, types.SubscriptionStatusIncomplete)
	payload := delivery("evt_3", types.WebhookEventInvoicePaymentSucceeded, time.Now(),
		`{"id":"in_1","subscription":"sub_seed_1","status":"paid","total":2900}`)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)
	s.Equal(types.SubscriptionStatusActive, s.storedSubscription(sub.ID).SubscriptionStatus)

	callsAfterFirst := len(s.gw.Calls)

	ack, err = s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeDuplicate, ack.Outcome)
	s.Len(s.gw.Calls, callsAfterFirst, "duplicate delivery must not re-run the effect")
}

func (s *ReconcilerServiceSuite) TestInvoicePaymentSucceededActivates() {
	sub := s.seedSubscription("pro", types.BillingIntervalMonthly, types.SubscriptionStatusIncomplete)
	payload := delivery("evt_4", types.WebhookEventInvoicePaymentSucceeded, time.Now(),
		`{"id":"in_1","subscription":"sub_seed_1","status":"paid","total":2900}`)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusActive, stored.SubscriptionStatus, "a settled invoice activates the row")
}

func (s *ReconcilerServiceSuite) TestInvoicePaymentSucceededCopiesPeriodBounds() {
	sub := s.seedSubscription("pro", types.BillingIntervalMonthly, types.SubscriptionStatusActive)

	periodStart := time.Now().UTC().Truncate(time.Second)
	periodEnd := periodStart.AddDate(0, 1, 0)
	object := fmt.Sprintf(
		`{"id":"in_2","subscription":"sub_seed_1","status":"paid","total":2900,"period_start":%d,"period_end":%d}`,
		periodStart.Unix(), periodEnd.Unix(),
	)
	payload := delivery("evt_4b", types.WebhookEventInvoicePaymentSucceeded, time.Now(), object)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.True(stored.CurrentPeriodStart.Equal(periodStart), "period bounds come from the invoice itself")
	s.True(stored.CurrentPeriodEnd.Equal(periodEnd))
	s.Empty(s.gw.Calls, "the invoice effect must not depend on the provider being reachable")
}

func (s *ReconcilerServiceSuite) TestInvoicePaymentFailedMarksPastDue() {
	sub := s.seedSubscription("pro", types.BillingIntervalMonthly, types.SubscriptionStatusActive)

	payload := delivery("evt_4c", types.WebhookEventInvoicePaymentFailed, time.Now(),
		`{"id":"in_3","subscription":"sub_seed_1","status":"open","total":2900}`)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusPastDue, stored.SubscriptionStatus, "the event mandates past_due regardless of live provider state")
}

func (s *ReconcilerServiceSuite) TestSubscriptionUpdatedAppliesEventFields() {
	sub := s.seedSubscription("pro", types.BillingIntervalMonthly, types.SubscriptionStatusActive)

	periodStart := time.Now().UTC().Truncate(time.Second)
	periodEnd := periodStart.AddDate(0, 1, 0)
	object := fmt.Sprintf(
		`{"id":"sub_seed_1","status":"past_due","cancel_at_period_end":false,"items":{"data":[{"current_period_start":%d,"current_period_end":%d,"price":{"id":"price_pro_m"}}]}}`,
		periodStart.Unix(), periodEnd.Unix(),
	)
	payload := delivery("evt_5", types.WebhookEventSubscriptionUpdated, time.Now(), object)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusPastDue, stored.SubscriptionStatus)
	s.True(stored.CurrentPeriodStart.Equal(periodStart))
	s.True(stored.CurrentPeriodEnd.Equal(periodEnd))
}

func (s *ReconcilerServiceSuite) TestSubscriptionUpdatedClearsCancelFlag() {
	sub := s.seedSubscription("pro", types.BillingIntervalMonthly, types.SubscriptionStatusActive)
	sub.CancelAtPeriodEnd = true
	s.Require().NoError(s.subRepo.Update(s.ctx, sub))

	// e.g. a reactivation performed directly in the provider's dashboard
	payload := delivery("evt_5b", types.WebhookEventSubscriptionUpdated, time.Now(),
		`{"id":"sub_seed_1","status":"active","cancel_at_period_end":false}`)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	s.False(s.storedSubscription(sub.ID).CancelAtPeriodEnd, "the event's cleared flag must win over the local one")
}

func (s *ReconcilerServiceSuite) TestSubscriptionUpdatedBogusStatusReleasesClaim() {
	s.seedSubscription("pro", types.BillingIntervalMonthly, types.SubscriptionStatusActive)
	payload := delivery("evt_6", types.WebhookEventSubscriptionUpdated, time.Now(),
		`{"id":"sub_seed_1","status":"hibernating"}`)

	_, err := s.service.Ingest(s.ctx, payload, "valid")
	s.Error(err)
	s.True(ierr.IsValidation(err))

	processed, _ := s.eventRepo.IsProcessed(s.ctx, "evt_6")
	s.False(processed, "failed effect must release the claim for redelivery")
}

func (s *ReconcilerServiceSuite) TestSubscriptionDeletedCancels() {
	sub := s.seedSubscription("pro", types.BillingIntervalMonthly, types.SubscriptionStatusActive)
	sub.SetScheduledChange(subscription.ScheduledChange{
		TargetPlanID:     "free",
		TargetInterval:   types.BillingIntervalMonthly,
		TargetPriceRef:   "price_free_m",
		EffectiveAt:      sub.CurrentPeriodEnd,
		Reason:           types.ScheduledChangeReasonCancellation,
		RemoteScheduleID: "sched_seed_1",
	})
	sub.CancelAtPeriodEnd = true
	s.Require().NoError(s.subRepo.Update(s.ctx, sub))

	payload := delivery("evt_7", types.WebhookEventSubscriptionDeleted, time.Now(),
		`{"id":"sub_seed_1","status":"canceled"}`)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusCanceled, stored.SubscriptionStatus)
	s.False(stored.CancelAtPeriodEnd)
	s.False(stored.HasScheduledChange())
}

func (s *ReconcilerServiceSuite) TestUnknownSubscriptionIsTolerated() {
	payload := delivery("evt_8", types.WebhookEventSubscriptionUpdated, time.Now(),
		`{"id":"sub_stranger","status":"active"}`)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome, "redelivery would not help; acknowledge and move on")
}

func (s *ReconcilerServiceSuite) TestScheduleUpdatedPhaseAdvance() {
	sub := s.seedSubscription("business", types.BillingIntervalMonthly, types.SubscriptionStatusActive)
	effectiveAt := sub.CurrentPeriodEnd
	sub.SetScheduledChange(subscription.ScheduledChange{
		TargetPlanID:     "pro",
		TargetInterval:   types.BillingIntervalAnnual,
		TargetPriceRef:   "price_pro_y",
		EffectiveAt:      effectiveAt,
		Reason:           types.ScheduledChangeReasonDowngrade,
		RemoteScheduleID: "sched_seed_1",
	})
	s.Require().NoError(s.subRepo.Update(s.ctx, sub))

	object := fmt.Sprintf(
		`{"id":"sched_seed_1","subscription":"sub_seed_1","status":"active","current_phase":{"start_date":%d,"end_date":%d}}`,
		effectiveAt.Unix(), effectiveAt.AddDate(0, 1, 0).Unix(),
	)
	payload := delivery("evt_9", types.WebhookEventScheduleUpdated, time.Now(), object)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.Equal("pro", stored.PlanID, "parked change applied at the boundary")
	s.Equal(types.BillingIntervalAnnual, stored.BillingInterval)
	s.False(stored.HasScheduledChange())
}

func (s *ReconcilerServiceSuite) TestScheduleUpdatedPhaseAdvanceSubsecondBoundary() {
	sub := s.seedSubscription("business", types.BillingIntervalMonthly, types.SubscriptionStatusActive)
	// the locally recorded boundary carries sub-second precision; the
	// provider reports whole seconds
	effectiveAt := sub.CurrentPeriodEnd.Truncate(time.Second).Add(500 * time.Millisecond)
	sub.SetScheduledChange(subscription.ScheduledChange{
		TargetPlanID:     "pro",
		TargetInterval:   types.BillingIntervalMonthly,
		TargetPriceRef:   "price_pro_m",
		EffectiveAt:      effectiveAt,
		Reason:           types.ScheduledChangeReasonDowngrade,
		RemoteScheduleID: "sched_seed_1",
	})
	s.Require().NoError(s.subRepo.Update(s.ctx, sub))

	object := fmt.Sprintf(
		`{"id":"sched_seed_1","subscription":"sub_seed_1","status":"active","current_phase":{"start_date":%d,"end_date":%d}}`,
		effectiveAt.Unix(), effectiveAt.AddDate(0, 1, 0).Unix(),
	)
	payload := delivery("evt_9b", types.WebhookEventScheduleUpdated, time.Now(), object)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.Equal("pro", stored.PlanID)
	s.False(stored.HasScheduledChange())
}

func (s *ReconcilerServiceSuite) TestScheduleUpdatedPhaseAdvanceSurvivesRefreshFailure() {
	sub := s.seedSubscription("business", types.BillingIntervalMonthly, types.SubscriptionStatusActive)
	effectiveAt := sub.CurrentPeriodEnd
	sub.SetScheduledChange(subscription.ScheduledChange{
		TargetPlanID:     "pro",
		TargetInterval:   types.BillingIntervalMonthly,
		TargetPriceRef:   "price_pro_m",
		EffectiveAt:      effectiveAt,
		Reason:           types.ScheduledChangeReasonDowngrade,
		RemoteScheduleID: "sched_seed_1",
	})
	s.Require().NoError(s.subRepo.Update(s.ctx, sub))
	s.gw.FailWith = ierr.NewError("provider unavailable").Mark(ierr.ErrGateway)

	object := fmt.Sprintf(
		`{"id":"sched_seed_1","subscription":"sub_seed_1","status":"active","current_phase":{"start_date":%d,"end_date":%d}}`,
		effectiveAt.Unix(), effectiveAt.AddDate(0, 1, 0).Unix(),
	)
	payload := delivery("evt_9c", types.WebhookEventScheduleUpdated, time.Now(), object)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome, "the refresh is supplementary; the flip itself must land")

	stored := s.storedSubscription(sub.ID)
	s.Equal("pro", stored.PlanID)
	s.False(stored.HasScheduledChange())
}

func (s *ReconcilerServiceSuite) TestScheduleUpdatedBeforeBoundaryIsNoop() {
	sub := s.seedSubscription("business", types.BillingIntervalMonthly, types.SubscriptionStatusActive)
	effectiveAt := sub.CurrentPeriodEnd
	sub.SetScheduledChange(subscription.ScheduledChange{
		TargetPlanID:     "pro",
		TargetInterval:   types.BillingIntervalMonthly,
		TargetPriceRef:   "price_pro_m",
		EffectiveAt:      effectiveAt,
		Reason:           types.ScheduledChangeReasonDowngrade,
		RemoteScheduleID: "sched_seed_1",
	})
	s.Require().NoError(s.subRepo.Update(s.ctx, sub))

	// current phase still the pre-change one
	object := fmt.Sprintf(
		`{"id":"sched_seed_1","subscription":"sub_seed_1","status":"active","current_phase":{"start_date":%d,"end_date":%d}}`,
		effectiveAt.AddDate(0, -1, 0).Unix(), effectiveAt.Unix(),
	)
	payload := delivery("evt_10", types.WebhookEventScheduleUpdated, time.Now(), object)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.Equal("business", stored.PlanID)
	s.True(stored.HasScheduledChange())
}

func (s *ReconcilerServiceSuite) TestScheduleUpdatedForUntrackedSchedule() {
	sub := s.seedSubscription("business", types.BillingIntervalMonthly, types.SubscriptionStatusActive)

	payload := delivery("evt_11", types.WebhookEventScheduleUpdated, time.Now(),
		`{"id":"sched_stranger","subscription":"sub_seed_1","status":"active","current_phase":{"start_date":0,"end_date":0}}`)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.Equal("business", stored.PlanID, "conflicting schedule logged, local row untouched")
}

func (s *ReconcilerServiceSuite) TestScheduleReleasedClearsCancellation() {
	sub := s.seedSubscription("pro", types.BillingIntervalMonthly, types.SubscriptionStatusActive)
	sub.CancelAtPeriodEnd = true
	sub.CancellationReason = lo.ToPtr("changed my mind")
	sub.SetScheduledChange(subscription.ScheduledChange{
		TargetPlanID:     "free",
		TargetInterval:   types.BillingIntervalMonthly,
		TargetPriceRef:   "price_free_m",
		EffectiveAt:      sub.CurrentPeriodEnd,
		Reason:           types.ScheduledChangeReasonCancellation,
		RemoteScheduleID: "sched_seed_1",
	})
	s.Require().NoError(s.subRepo.Update(s.ctx, sub))

	payload := delivery("evt_12", types.WebhookEventScheduleReleased, time.Now(),
		`{"id":"sched_seed_1","subscription":"sub_seed_1","status":"released"}`)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.False(stored.CancelAtPeriodEnd)
	s.Nil(stored.CancellationReason)
	s.False(stored.HasScheduledChange())
}

func (s *ReconcilerServiceSuite) TestScheduleCreatedBackfillsScheduleID() {
	sub := s.seedSubscription("business", types.BillingIntervalMonthly, types.SubscriptionStatusActive)
	sub.SetScheduledChange(subscription.ScheduledChange{
		TargetPlanID:   "pro",
		TargetInterval: types.BillingIntervalMonthly,
		TargetPriceRef: "price_pro_m",
		EffectiveAt:    sub.CurrentPeriodEnd,
		Reason:         types.ScheduledChangeReasonDowngrade,
	})
	sub.SchedRemoteScheduleID = nil
	s.Require().NoError(s.subRepo.Update(s.ctx, sub))

	payload := delivery("evt_13", types.WebhookEventScheduleCreated, time.Now(),
		`{"id":"sched_new_1","subscription":"sub_seed_1","status":"active"}`)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.Require().NotNil(stored.SchedRemoteScheduleID)
	s.Equal("sched_new_1", *stored.SchedRemoteScheduleID)
}

func (s *ReconcilerServiceSuite) TestScheduleCreatedDowngradeStopsRenewal() {
	sub := s.seedSubscription("pro", types.BillingIntervalMonthly, types.SubscriptionStatusActive)
	sub.SetScheduledChange(subscription.ScheduledChange{
		TargetPlanID:   "free",
		TargetInterval: types.BillingIntervalMonthly,
		TargetPriceRef: "price_free_m",
		EffectiveAt:    sub.CurrentPeriodEnd,
		Reason:         types.ScheduledChangeReasonDowngrade,
	})
	sub.SchedRemoteScheduleID = nil
	s.Require().NoError(s.subRepo.Update(s.ctx, sub))

	payload := delivery("evt_13b", types.WebhookEventScheduleCreated, time.Now(),
		`{"id":"sched_new_2","subscription":"sub_seed_1","status":"active","metadata":{"subplane_reason":"downgrade"}}`)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.True(stored.CancelAtPeriodEnd, "a downgrade schedule stops the current terms from renewing")
	s.Require().NotNil(stored.SchedRemoteScheduleID)
	s.Equal("sched_new_2", *stored.SchedRemoteScheduleID)
}

func (s *ReconcilerServiceSuite) TestScheduleCreatedIntervalSwitchKeepsRenewal() {
	sub := s.seedSubscription("business", types.BillingIntervalMonthly, types.SubscriptionStatusActive)
	sub.SetScheduledChange(subscription.ScheduledChange{
		TargetPlanID:   "business",
		TargetInterval: types.BillingIntervalAnnual,
		TargetPriceRef: "price_biz_y",
		EffectiveAt:    sub.CurrentPeriodEnd,
		Reason:         types.ScheduledChangeReasonIntervalSwitch,
	})
	sub.SchedRemoteScheduleID = nil
	s.Require().NoError(s.subRepo.Update(s.ctx, sub))

	payload := delivery("evt_13c", types.WebhookEventScheduleCreated, time.Now(),
		`{"id":"sched_new_3","subscription":"sub_seed_1","status":"active","metadata":{"subplane_reason":"interval_switch"}}`)

	ack, err := s.service.Ingest(s.ctx, payload, "valid")
	s.NoError(err)
	s.Equal(types.EventOutcomeApplied, ack.Outcome)

	stored := s.storedSubscription(sub.ID)
	s.False(stored.CancelAtPeriodEnd, "an interval-switch continuation keeps the subscription renewing")
	s.Require().NotNil(stored.SchedRemoteScheduleID)
	s.Equal("sched_new_3", *stored.SchedRemoteScheduleID)
}

func (s *ReconcilerServiceSuite) TestClaimInsertFailurePropagates() {
	s.seedSubscription("pro", types.BillingIntervalMonthly, types.SubscriptionStatusIncomplete)
	s.eventRepo.FailInserts = true

	payload := delivery("evt_15", types.WebhookEventInvoicePaymentSucceeded, time.Now(),
		`{"id":"in_1","subscription":"sub_seed_1","status":"paid","total":2900}`)

	_, err := s.service.Ingest(s.ctx, payload, "valid")
	s.Error(err)
	s.Empty(s.gw.Calls, "effect must not run without a claim")
}
