package testutil

import (
	"context"
	"sync"

	"github.com/subplane/subplane/internal/domain/subscription"
	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]*subscription.Subscription
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		subs: make(map[string]*subscription.Subscription),
	}
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subs[sub.ID]; exists {
		return ierr.NewError("subscription already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	for _, existing := range s.subs {
		if existing.UserID == sub.UserID && existing.Status == types.StatusPublished {
			return ierr.NewError("user already has a subscription").
				Mark(ierr.ErrAlreadyExists)
		}
	}

	copied := *sub
	s.subs[sub.ID] = &copied
	return nil
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok || sub.Status == types.StatusDeleted {
		return nil, notFound()
	}
	copied := *sub
	return &copied, nil
}

func (s *InMemorySubscriptionStore) GetByUserID(ctx context.Context, userID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.UserID == userID && sub.Status == types.StatusPublished {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, notFound()
}

func (s *InMemorySubscriptionStore) GetByRemoteSubscriptionID(ctx context.Context, remoteID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.RemoteSubscriptionID != nil && *sub.RemoteSubscriptionID == remoteID && sub.Status == types.StatusPublished {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, notFound()
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub.ID]; !ok {
		return notFound()
	}
	copied := *sub
	s.subs[sub.ID] = &copied
	return nil
}

func (s *InMemorySubscriptionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return notFound()
	}
	sub.Status = types.StatusDeleted
	return nil
}

func (s *InMemorySubscriptionStore) snapshot() map[string]*subscription.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make(map[string]*subscription.Subscription, len(s.subs))
	for id, sub := range s.subs {
		c := *sub
		copied[id] = &c
	}
	return copied
}

func (s *InMemorySubscriptionStore) restore(snap map[string]*subscription.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = snap
}

func notFound() error {
	return ierr.NewError("subscription not found").
		WithHint("Subscription not found").
		Mark(ierr.ErrNotFound)
}
