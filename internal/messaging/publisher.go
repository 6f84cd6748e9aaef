package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

const publishTimeout = 10 * time.Second

var ErrPublishNacked = errors.New("broker did not confirm publish")

// Publisher sends OrderEvents to the topic exchange on a channel in confirm
// mode. Publishes are serialised so broker order matches call order.
type Publisher struct {
	mu     sync.Mutex
	conn   *Connection
	ch     *amqp091.Channel
	logger *logger.Logger
}

func NewPublisher(conn *Connection, log *logger.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: log,
	}
}

func (p *Publisher) channel(ctx context.Context) (*amqp091.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.conn.Channel(ctx)
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) Publish(ctx context.Context, event models.OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return fmt.Errorf("failed to open publish channel: %w", err)
	}

	routingKey := RoutingKey(event)
	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		p.conn.Exchange(), // exchange
		routingKey,        // routing key
		false,             // mandatory
		false,             // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    event.EventID,
			Type:         string(event.EventType),
			Timestamp:    event.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("message_publish_failed", "Failed to publish order event", "", err, map[string]interface{}{
			"routing_key": routingKey,
			"order_id":    event.OrderID,
		})
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for publish confirm: %w", err)
	}
	if !acked {
		return ErrPublishNacked
	}

	p.logger.Debug("message_published", "Published order event", "", map[string]interface{}{
		"routing_key":  routingKey,
		"event_id":     event.EventID,
		"message_size": len(body),
	})
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch.Close()
	}
	return nil
}
