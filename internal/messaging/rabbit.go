package messaging

import (
	"context"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

// RabbitBus is the broker-backed Bus. Filtering happens in the broker through
// the queue binding key.
type RabbitBus struct {
	conn      *Connection
	publisher *Publisher
	logger    *logger.Logger
	prefetch  int
}

func NewRabbitBus(conn *Connection, log *logger.Logger, prefetch int) *RabbitBus {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &RabbitBus{
		conn:      conn,
		publisher: NewPublisher(conn, log),
		logger:    log,
		prefetch:  prefetch,
	}
}

func (b *RabbitBus) Publish(ctx context.Context, event models.OrderEvent) error {
	return b.publisher.Publish(ctx, event)
}

func (b *RabbitBus) Subscribe(ctx context.Context, opts SubscribeOptions, handler Handler) (Subscription, error) {
	c := NewConsumer(b.conn, b.logger, opts, handler, b.prefetch)
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (b *RabbitBus) Healthy() bool {
	return !b.conn.IsClosed()
}

func (b *RabbitBus) Close() error {
	b.publisher.Close()
	return b.conn.Close()
}
