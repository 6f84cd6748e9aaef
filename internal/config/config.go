package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the ordering backend
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	HTTP      HTTPConfig      `yaml:"http"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Orders    OrdersConfig    `yaml:"orders"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Exchange string `yaml:"exchange"`
	Prefetch int    `yaml:"prefetch"`
}

// RedisConfig is optional; an empty Addr disables idempotency keys.
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	PendingTTL     time.Duration `yaml:"pending_ttl"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CatalogConfig selects how menu prices are resolved: "postgres" or "http".
type CatalogConfig struct {
	Mode    string        `yaml:"mode"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type OrdersConfig struct {
	RecordInitialStatus     bool `yaml:"record_initial_status"`
	StrictStatusTransitions bool `yaml:"strict_status_transitions"`
	MaxConcurrent           int  `yaml:"max_concurrent"`
}

type GatewayConfig struct {
	KeepAlive time.Duration `yaml:"keepalive"`
	Buffer    int           `yaml:"buffer"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	GracePeriod  time.Duration `yaml:"grace_period"`
	BatchSize    int           `yaml:"batch_size"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "restaurant_user", Password: "restaurant_pass", Database: "restaurant_db"},
		RabbitMQ: RabbitMQConfig{Host: "localhost", Port: 5672, User: "guest", Password: "guest", Exchange: "order_events", Prefetch: 10},
		Redis:    RedisConfig{IdempotencyTTL: 24 * time.Hour, PendingTTL: time.Minute},
		HTTP:     HTTPConfig{Port: 3000, ShutdownTimeout: 10 * time.Second},
		Catalog:  CatalogConfig{Mode: "postgres", Timeout: 3 * time.Second},
		Orders:   OrdersConfig{RecordInitialStatus: true, MaxConcurrent: 50},
		Gateway:  GatewayConfig{KeepAlive: 15 * time.Second, Buffer: 64},
		Outbox:   OutboxConfig{PollInterval: 5 * time.Second, GracePeriod: 10 * time.Second, BatchSize: 100},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
		},
	}
}

// Load reads configuration from a YAML file on top of the defaults and then
// applies environment overrides.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)

	c.RabbitMQ.Host = getEnv("RABBITMQ_HOST", c.RabbitMQ.Host)
	c.RabbitMQ.Port = getEnvInt("RABBITMQ_PORT", c.RabbitMQ.Port)
	c.RabbitMQ.User = getEnv("RABBITMQ_USER", c.RabbitMQ.User)
	c.RabbitMQ.Password = getEnv("RABBITMQ_PASSWORD", c.RabbitMQ.Password)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Catalog.Mode = getEnv("CATALOG_MODE", c.Catalog.Mode)
	c.Catalog.BaseURL = getEnv("CATALOG_BASE_URL", c.Catalog.BaseURL)
	c.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
}

func (c *Config) Validate() error {
	switch c.Catalog.Mode {
	case "postgres":
	case "http":
		if c.Catalog.BaseURL == "" {
			return fmt.Errorf("catalog.base_url is required when catalog.mode is http")
		}
	default:
		return fmt.Errorf("unknown catalog.mode: %q", c.Catalog.Mode)
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog.timeout must be positive")
	}
	if c.Orders.MaxConcurrent <= 0 {
		return fmt.Errorf("orders.max_concurrent must be positive")
	}
	return nil
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
