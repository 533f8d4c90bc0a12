package subscription

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, subscription *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	// GetByUserID returns the user's live subscription row
	GetByUserID(ctx context.Context, userID string) (*Subscription, error)
	// GetByRemoteSubscriptionID resolves the provider's id to our row
	GetByRemoteSubscriptionID(ctx context.Context, remoteID string) (*Subscription, error)
	Update(ctx context.Context, subscription *Subscription) error
	Delete(ctx context.Context, id string) error
}
