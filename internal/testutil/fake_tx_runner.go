package testutil

import "context"

// FakeTxRunner gives the in-memory stores transactional semantics: when
// fn fails, both stores are restored to their pre-call contents, the way
// a rolled-back database transaction would leave them.
type FakeTxRunner struct {
	Subs   *InMemorySubscriptionStore
	Events *InMemoryBillingEventStore
}

func (r *FakeTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	subs := r.Subs.snapshot()
	events := r.Events.snapshot()

	if err := fn(ctx); err != nil {
		r.Subs.restore(subs)
		r.Events.restore(events)
		return err
	}
	return nil
}
