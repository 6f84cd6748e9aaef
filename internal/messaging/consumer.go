package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

const handlerTimeout = 30 * time.Second

// Consumer binds a queue to the order exchange and feeds deliveries to a
// Handler with manual acks. A handler error nacks with requeue.
type Consumer struct {
	conn     *Connection
	logger   *logger.Logger
	opts     SubscribeOptions
	handler  Handler
	tag      string
	prefetch int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewConsumer(conn *Connection, log *logger.Logger, opts SubscribeOptions, handler Handler, prefetch int) *Consumer {
	return &Consumer{
		conn:     conn,
		logger:   log,
		opts:     opts,
		handler:  handler,
		tag:      "order-events-" + uuid.NewString(),
		prefetch: prefetch,
		done:     make(chan struct{}),
	}
}

// Start declares and binds the queue, then consumes in the background until
// ctx is cancelled or Close is called.
func (c *Consumer) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	ch, msgs, err := c.open(c.ctx)
	if err != nil {
		c.cancel()
		return err
	}

	c.logger.Info("consumer_started", "Started consuming order events", "", map[string]interface{}{
		"binding_key": BindingKey(c.opts),
		"queue":       c.opts.Queue,
		"consumer":    c.tag,
		"prefetch":    c.prefetch,
	})

	go c.loop(ch, msgs)
	return nil
}

func (c *Consumer) open(ctx context.Context) (*amqp091.Channel, <-chan amqp091.Delivery, error) {
	ch, err := c.conn.Channel(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	durable := c.opts.Queue != ""
	q, err := ch.QueueDeclare(
		c.opts.Queue, // name, broker-generated when empty
		durable,      // durable
		!durable,     // delete when unused
		!durable,     // exclusive
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, BindingKey(c.opts), c.conn.Exchange(), false, nil); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
	}

	msgs, err := ch.Consume(
		q.Name, // queue
		c.tag,  // consumer
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	return ch, msgs, nil
}

func (c *Consumer) loop(ch *amqp091.Channel, msgs <-chan amqp091.Delivery) {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			ch.Cancel(c.tag, false)
			ch.Close()
			c.logger.Info("consumer_stopped", "Consumer stopped", "", map[string]interface{}{"consumer": c.tag})
			return
		case d, ok := <-msgs:
			if ok {
				c.process(d)
				continue
			}

			c.logger.Error("consumer_channel_closed", "Delivery channel closed, reconnecting", "", nil, nil)
			var err error
			for attempt := 1; ; attempt++ {
				ch, msgs, err = c.open(c.ctx)
				if err == nil {
					break
				}
				select {
				case <-c.ctx.Done():
					return
				case <-time.After(time.Duration(attempt) * 2 * time.Second):
				}
			}
		}
	}
}

func (c *Consumer) process(d amqp091.Delivery) {
	var event models.OrderEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		c.logger.Error("message_decode_failed", "Dropping malformed order event", "", err, map[string]interface{}{
			"routing_key":  d.RoutingKey,
			"delivery_tag": d.DeliveryTag,
		})
		d.Nack(false, false)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, handlerTimeout)
	defer cancel()

	start := time.Now()
	if err := c.handler(ctx, event); err != nil {
		c.logger.Error("message_processing_failed", "Failed to process order event", "", err, map[string]interface{}{
			"routing_key": d.RoutingKey,
			"event_id":    event.EventID,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("message_nack_failed", "Failed to nack message", "", nackErr, nil)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("message_ack_failed", "Failed to ack message", "", err, nil)
	}
}

func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

func (c *Consumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}
