// Package notification prints order events for kitchen displays.
package notification

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/messaging"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// Subscriber writes a human-readable line per order event.
type Subscriber struct {
	bus    messaging.Bus
	logger *logger.Logger
	opts   messaging.SubscribeOptions

	mu  sync.Mutex
	out io.Writer
}

// NewSubscriber listens for restaurantID's events, or every restaurant's when
// it is empty. A non-empty queue makes the subscription durable and shared.
func NewSubscriber(bus messaging.Bus, log *logger.Logger, out io.Writer, restaurantID, queue string) *Subscriber {
	return &Subscriber{
		bus:    bus,
		logger: log,
		out:    out,
		opts: messaging.SubscribeOptions{
			RestaurantID: restaurantID,
			Queue:        queue,
		},
	}
}

// Run blocks until ctx is cancelled or the subscription ends.
func (s *Subscriber) Run(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	sub, err := s.bus.Subscribe(ctx, s.opts, s.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	s.logger.Info("service_started", "Notification subscriber started", requestID, map[string]interface{}{
		"restaurant_id": s.opts.RestaurantID,
		"queue":         s.opts.Queue,
	})

	select {
	case <-ctx.Done():
		s.logger.Info("graceful_shutdown", "Notification subscriber stopping", requestID, nil)
	case <-sub.Done():
		s.logger.Warn("subscription_ended", "Event subscription ended", requestID, nil)
	}
	return nil
}

func (s *Subscriber) handle(_ context.Context, event models.OrderEvent) error {
	line := Format(event)

	s.mu.Lock()
	_, err := fmt.Fprintln(s.out, line)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}

	s.logger.Debug("notification_displayed", "Notification displayed", "", map[string]interface{}{
		"order_id":      event.OrderID,
		"restaurant_id": event.RestaurantID,
		"status":        event.Status,
		"event_type":    event.EventType,
	})
	return nil
}

// Format renders event as one console line.
func Format(event models.OrderEvent) string {
	ts := event.Timestamp.Format(timeLayout)

	if event.EventType == models.EventCreated {
		return fmt.Sprintf("[%s] New order %s for table %s", ts, event.OrderID, event.TableID)
	}

	switch event.Status {
	case models.StatusPreparing:
		return fmt.Sprintf("[%s] Order %s is being prepared", ts, event.OrderID)
	case models.StatusReady:
		return fmt.Sprintf("[%s] Order %s is ready for table %s", ts, event.OrderID, event.TableID)
	case models.StatusDelivered:
		return fmt.Sprintf("[%s] Order %s was delivered", ts, event.OrderID)
	case models.StatusCancelled:
		return fmt.Sprintf("[%s] Order %s was cancelled", ts, event.OrderID)
	default:
		return fmt.Sprintf("[%s] Order %s is now '%s'", ts, event.OrderID, event.Status)
	}
}
