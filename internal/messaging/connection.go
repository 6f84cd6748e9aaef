package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/ArthurLewyin12/encore-backend/internal/config"
	"github.com/ArthurLewyin12/encore-backend/internal/logger"
)

const dialAttempts = 5

// Connection wraps a RabbitMQ connection with reconnection logic. The
// exchange is declared on every (re)connect.
type Connection struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	url      string
	exchange string
	logger   *logger.Logger
}

func NewConnection(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Connection, error) {
	c := &Connection{
		url:      cfg.RabbitMQURL(),
		exchange: cfg.RabbitMQ.Exchange,
		logger:   log,
	}

	if err := c.connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return c, nil
}

func (c *Connection) connect(ctx context.Context) error {
	var err error

	for i := 0; i < dialAttempts; i++ {
		c.conn, err = amqp091.Dial(c.url)
		if err == nil {
			if err = c.setupTopology(); err == nil {
				return nil
			}
			c.logger.Error("rabbitmq_setup_failed", "Failed to set up topology", "startup", err, nil)
			c.conn.Close()
		}

		if i < dialAttempts-1 {
			wait := time.Duration(i+1) * 2 * time.Second
			c.logger.Error("rabbitmq_connection_failed",
				fmt.Sprintf("Failed to connect to RabbitMQ, retrying in %v", wait),
				"startup", err, nil)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", dialAttempts, err)
}

func (c *Connection) setupTopology() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		c.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", c.exchange, err)
	}
	return nil
}

// Channel opens a fresh channel, reconnecting first if the connection dropped.
func (c *Connection) Channel(ctx context.Context) (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		c.logger.Info("rabbitmq_reconnecting", "Connection lost, reconnecting", "", nil)
		if err := c.connect(ctx); err != nil {
			return nil, err
		}
	}
	return c.conn.Channel()
}

func (c *Connection) Exchange() string {
	return c.exchange
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil || c.conn.IsClosed()
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}
