package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/gateway"
	"github.com/subplane/subplane/internal/types"

	"github.com/shopspring/decimal"
)

// FakeBillingGateway implements gateway.BillingGateway with deterministic
// in-memory behavior. FailWith injects a gateway error into the next call.
type FakeBillingGateway struct {
	mu        sync.Mutex
	seq       int
	subs      map[string]*gateway.SubscriptionState
	schedules map[string]gateway.ScheduleState

	// FailWith, when set, is returned by the next gateway call and cleared
	FailWith error
	// Calls records the method names invoked, in order
	Calls []string
}

func NewFakeBillingGateway() *FakeBillingGateway {
	return &FakeBillingGateway{
		subs:      make(map[string]*gateway.SubscriptionState),
		schedules: make(map[string]gateway.ScheduleState),
	}
}

func (g *FakeBillingGateway) takeFailure(call string) error {
	g.Calls = append(g.Calls, call)
	if g.FailWith != nil {
		err := g.FailWith
		g.FailWith = nil
		return err
	}
	return nil
}

// Seed registers remote state directly, for tests that start mid-lifecycle
func (g *FakeBillingGateway) Seed(state *gateway.SubscriptionState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	copied := *state
	g.subs[state.RemoteSubscriptionID] = &copied
}

func (g *FakeBillingGateway) CreateSubscription(ctx context.Context, input gateway.CreateSubscriptionInput) (*gateway.SubscriptionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeFailure("CreateSubscription"); err != nil {
		return nil, err
	}

	g.seq++
	now := time.Now().UTC()
	state := &gateway.SubscriptionState{
		RemoteSubscriptionID: fmt.Sprintf("sub_fake_%d", g.seq),
		RemoteCustomerID:     fmt.Sprintf("cus_fake_%d", g.seq),
		Status:               types.SubscriptionStatusIncomplete,
		PriceRef:             input.PriceRef,
		CurrentPeriodStart:   now,
		CurrentPeriodEnd:     now.AddDate(0, 1, 0),
	}
	g.subs[state.RemoteSubscriptionID] = state
	copied := *state
	return &copied, nil
}

func (g *FakeBillingGateway) GetSubscription(ctx context.Context, remoteSubscriptionID string) (*gateway.SubscriptionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeFailure("GetSubscription"); err != nil {
		return nil, err
	}

	state, ok := g.subs[remoteSubscriptionID]
	if !ok {
		return nil, ierr.NewError("subscription not found at provider").
			Mark(ierr.ErrNotFound)
	}
	copied := *state
	return &copied, nil
}

func (g *FakeBillingGateway) UpdateSubscriptionPrice(ctx context.Context, remoteSubscriptionID, priceRef string) (*gateway.SubscriptionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeFailure("UpdateSubscriptionPrice"); err != nil {
		return nil, err
	}

	state, ok := g.subs[remoteSubscriptionID]
	if !ok {
		return nil, ierr.NewError("subscription not found at provider").
			Mark(ierr.ErrNotFound)
	}

	state.PriceRef = priceRef
	proration := decimal.NewFromFloat(12.34)
	state.ProrationAmount = &proration

	copied := *state
	return &copied, nil
}

func (g *FakeBillingGateway) ScheduleChange(ctx context.Context, input gateway.ScheduleChangeInput) (*gateway.ScheduleState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeFailure("ScheduleChange"); err != nil {
		return nil, err
	}

	if _, ok := g.subs[input.RemoteSubscriptionID]; !ok {
		return nil, ierr.NewError("subscription not found at provider").
			Mark(ierr.ErrNotFound)
	}

	g.seq++
	state := gateway.ScheduleState{
		ScheduleID:     fmt.Sprintf("sched_fake_%d", g.seq),
		EffectiveAt:    input.EffectiveAt.UTC(),
		TargetPriceRef: input.TargetPriceRef,
	}
	g.schedules[state.ScheduleID] = state
	return &state, nil
}

func (g *FakeBillingGateway) ReleaseSchedule(ctx context.Context, scheduleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeFailure("ReleaseSchedule"); err != nil {
		return err
	}

	if _, ok := g.schedules[scheduleID]; !ok {
		return ierr.NewError("schedule not found at provider").
			Mark(ierr.ErrNotFound)
	}
	delete(g.schedules, scheduleID)
	return nil
}

func (g *FakeBillingGateway) CancelSubscription(ctx context.Context, remoteSubscriptionID string, prorate bool) (*gateway.SubscriptionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeFailure("CancelSubscription"); err != nil {
		return nil, err
	}

	state, ok := g.subs[remoteSubscriptionID]
	if !ok {
		return nil, ierr.NewError("subscription not found at provider").
			Mark(ierr.ErrNotFound)
	}

	state.Status = types.SubscriptionStatusCanceled
	if prorate {
		proration := decimal.NewFromFloat(-5.67)
		state.ProrationAmount = &proration
	}

	copied := *state
	return &copied, nil
}

// HasSchedule reports whether a schedule is still live at the provider
func (g *FakeBillingGateway) HasSchedule(scheduleID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.schedules[scheduleID]
	return ok
}
