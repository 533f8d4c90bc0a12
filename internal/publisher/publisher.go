package publisher

import (
	"context"
	"encoding/json"
	"time"

	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/logger"
	"github.com/subplane/subplane/internal/types"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// TopicPlanChangeRequested carries one fact per accepted plan-change request
const TopicPlanChangeRequested = "plan_change.requested"

// PlanChangeFact is the analytics record published when a plan change is
// accepted. Downstream consumers subscribe in-process; delivery is fire
// and forget relative to the orchestration itself.
type PlanChangeFact struct {
	ID             string                `json:"id"`
	UserID         string                `json:"user_id"`
	SubscriptionID string                `json:"subscription_id"`
	FromPlanID     string                `json:"from_plan_id"`
	ToPlanID       string                `json:"to_plan_id"`
	FromInterval   types.BillingInterval `json:"from_interval"`
	ToInterval     types.BillingInterval `json:"to_interval"`
	Strategy       types.ChangeStrategy  `json:"strategy"`
	RequestedAt    time.Time             `json:"requested_at"`
}

// FactPublisher publishes domain facts for analytics consumers
type FactPublisher interface {
	PublishPlanChange(ctx context.Context, fact *PlanChangeFact) error
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

type factPublisher struct {
	pubsub *gochannel.GoChannel
	logger *logger.Logger
}

// NewFactPublisher creates an in-process watermill publisher
func NewFactPublisher(logger *logger.Logger) FactPublisher {
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:          true,
			OutputChannelBuffer: 100,
		},
		watermill.NewStdLogger(false, false),
	)

	return &factPublisher{
		pubsub: goChannel,
		logger: logger,
	}
}

func (p *factPublisher) PublishPlanChange(ctx context.Context, fact *PlanChangeFact) error {
	payload, err := json.Marshal(fact)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode plan change fact").
			Mark(ierr.ErrInternal)
	}

	msg := message.NewMessage(fact.ID, payload)
	msg.Metadata.Set("user_id", fact.UserID)
	msg.Metadata.Set("strategy", fact.Strategy.String())

	if err := p.pubsub.Publish(TopicPlanChangeRequested, msg); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to publish plan change fact").
			Mark(ierr.ErrInternal)
	}

	p.logger.Debugw("published plan change fact",
		"fact_id", fact.ID,
		"user_id", fact.UserID,
		"strategy", fact.Strategy,
	)
	return nil
}

func (p *factPublisher) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.pubsub.Subscribe(ctx, topic)
}

func (p *factPublisher) Close() error {
	return p.pubsub.Close()
}
