package stripegw

import (
	"context"
	"time"

	"github.com/subplane/subplane/internal/config"
	"github.com/subplane/subplane/internal/gateway"
	"github.com/subplane/subplane/internal/logger"

	"github.com/stripe/stripe-go/v82"
)

// Gateway implements gateway.BillingGateway against Stripe
type Gateway struct {
	client  *stripe.Client
	timeout time.Duration
	logger  *logger.Logger
}

var _ gateway.BillingGateway = (*Gateway)(nil)

// NewGateway creates a Stripe-backed billing gateway
func NewGateway(cfg *config.Configuration, logger *logger.Logger) *Gateway {
	return &Gateway{
		client:  stripe.NewClient(cfg.Billing.SecretKey, nil),
		timeout: cfg.Billing.RequestTimeout,
		logger:  logger,
	}
}

// withTimeout bounds an outbound provider call. Every remote mutation and
// read goes through this; nothing blocks past the configured budget.
func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}
