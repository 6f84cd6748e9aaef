package messaging

import (
	"context"
	"fmt"

	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

// Handler processes one event. A non-nil error means the event was not
// handled and must be delivered again.
type Handler func(ctx context.Context, event models.OrderEvent) error

// SubscribeOptions narrows what a subscription receives.
type SubscribeOptions struct {
	// RestaurantID limits delivery to one restaurant. Empty means all.
	RestaurantID string
	// Queue names a durable broker queue shared by every subscriber using the
	// same name. Empty gives the subscription a private queue that disappears
	// with it. Ignored by MemoryBus.
	Queue string
}

func (o SubscribeOptions) Match(event models.OrderEvent) bool {
	return o.RestaurantID == "" || o.RestaurantID == event.RestaurantID
}

type Subscription interface {
	// Done is closed once the subscription stops delivering.
	Done() <-chan struct{}
	Close() error
}

// Bus carries OrderEvents from the order service to any number of consumers
// with at-least-once delivery.
type Bus interface {
	Publish(ctx context.Context, event models.OrderEvent) error
	Subscribe(ctx context.Context, opts SubscribeOptions, handler Handler) (Subscription, error)
}

// RoutingKey is orders.<restaurant_id>.<event_type>.
func RoutingKey(event models.OrderEvent) string {
	return fmt.Sprintf("orders.%s.%s", event.RestaurantID, event.EventType)
}

func BindingKey(opts SubscribeOptions) string {
	if opts.RestaurantID == "" {
		return "orders.#"
	}
	return fmt.Sprintf("orders.%s.*", opts.RestaurantID)
}
