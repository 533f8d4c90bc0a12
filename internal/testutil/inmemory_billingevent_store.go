package testutil

import (
	"context"
	"sync"

	"github.com/subplane/subplane/internal/domain/billingevent"
	ierr "github.com/subplane/subplane/internal/errors"
)

// InMemoryBillingEventStore implements billingevent.Repository
type InMemoryBillingEventStore struct {
	mu     sync.RWMutex
	events map[string]*billingevent.ProcessedEvent

	// FailInserts makes Insert return a database error, for exercising
	// the reconciler's failure paths
	FailInserts bool
}

func NewInMemoryBillingEventStore() *InMemoryBillingEventStore {
	return &InMemoryBillingEventStore{
		events: make(map[string]*billingevent.ProcessedEvent),
	}
}

func (s *InMemoryBillingEventStore) Insert(ctx context.Context, event *billingevent.ProcessedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInserts {
		return ierr.NewError("insert failed").Mark(ierr.ErrDatabase)
	}
	if _, exists := s.events[event.EventID]; exists {
		return ierr.NewError("event already processed").
			Mark(ierr.ErrAlreadyExists)
	}
	copied := *event
	s.events[event.EventID] = &copied
	return nil
}

func (s *InMemoryBillingEventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.events[eventID]
	return ok, nil
}

func (s *InMemoryBillingEventStore) snapshot() map[string]*billingevent.ProcessedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make(map[string]*billingevent.ProcessedEvent, len(s.events))
	for id, event := range s.events {
		c := *event
		copied[id] = &c
	}
	return copied
}

func (s *InMemoryBillingEventStore) restore(snap map[string]*billingevent.ProcessedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = snap
}
