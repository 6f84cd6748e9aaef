// Package gateway fans order events out to live per-restaurant subscribers.
package gateway

import (
	"context"
	"sync"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/messaging"
	"github.com/ArthurLewyin12/encore-backend/internal/metrics"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

const dedupeWindow = 256

// Gateway registers filtered consumers on the bus. It keeps no history:
// a subscriber sees only events published after it subscribed.
type Gateway struct {
	bus    messaging.Bus
	logger *logger.Logger
	buffer int
}

func New(bus messaging.Bus, log *logger.Logger, buffer int) *Gateway {
	if buffer <= 0 {
		buffer = 64
	}
	return &Gateway{
		bus:    bus,
		logger: log,
		buffer: buffer,
	}
}

// Stream is one live subscription. Events stops receiving once Done is
// closed.
type Stream struct {
	restaurantID string
	events       chan models.StreamRecord
	sub          messaging.Subscription
	closeOnce    sync.Once

	mu   sync.Mutex
	seen map[string]struct{}
	ring []string
	next int
}

// Subscribe streams events for restaurantID until ctx is done or Close is
// called.
func (g *Gateway) Subscribe(ctx context.Context, restaurantID string) (*Stream, error) {
	s := &Stream{
		restaurantID: restaurantID,
		events:       make(chan models.StreamRecord, g.buffer),
		seen:         make(map[string]struct{}, dedupeWindow),
		ring:         make([]string, dedupeWindow),
	}

	sub, err := g.bus.Subscribe(ctx, messaging.SubscribeOptions{RestaurantID: restaurantID}, s.handle)
	if err != nil {
		return nil, err
	}
	s.sub = sub

	metrics.StreamSubscribers.Inc()
	g.logger.Info("stream_subscribed", "Order stream subscriber connected", logger.RequestID(ctx), map[string]interface{}{
		"restaurant_id": restaurantID,
	})

	go func() {
		<-sub.Done()
		s.release()
		g.logger.Info("stream_unsubscribed", "Order stream subscriber disconnected", "", map[string]interface{}{
			"restaurant_id": restaurantID,
		})
	}()

	return s, nil
}

func (s *Stream) handle(ctx context.Context, event models.OrderEvent) error {
	// the broker binding already filters, but a shared exchange is not trusted
	if event.RestaurantID != s.restaurantID {
		return nil
	}
	if s.duplicate(event.EventID) {
		return nil
	}

	select {
	case s.events <- event.Record():
		return nil
	case <-ctx.Done():
		// the bus redelivers on error; the retry must not look like a duplicate
		s.forget(event.EventID)
		return ctx.Err()
	}
}

// duplicate records id and reports whether it was already seen within the
// window.
func (s *Stream) duplicate(id string) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return true
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.seen, old)
	}
	s.ring[s.next] = id
	s.seen[id] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
	return false
}

// forget drops id if it was the last one recorded. Deliveries to one stream
// are serial, so a failed send always concerns the newest entry.
func (s *Stream) forget(id string) {
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last := (s.next + len(s.ring) - 1) % len(s.ring)
	if s.ring[last] != id {
		return
	}
	s.ring[last] = ""
	delete(s.seen, id)
	s.next = last
}

func (s *Stream) Events() <-chan models.StreamRecord {
	return s.events
}

func (s *Stream) Done() <-chan struct{} {
	return s.sub.Done()
}

func (s *Stream) Close() error {
	err := s.sub.Close()
	s.release()
	return err
}

func (s *Stream) release() {
	s.closeOnce.Do(func() {
		metrics.StreamSubscribers.Dec()
	})
}
