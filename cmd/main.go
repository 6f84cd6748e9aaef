package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArthurLewyin12/encore-backend/internal/cache"
	"github.com/ArthurLewyin12/encore-backend/internal/catalog"
	"github.com/ArthurLewyin12/encore-backend/internal/config"
	"github.com/ArthurLewyin12/encore-backend/internal/database"
	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/messaging"
	"github.com/ArthurLewyin12/encore-backend/internal/services/analytics"
	"github.com/ArthurLewyin12/encore-backend/internal/services/gateway"
	"github.com/ArthurLewyin12/encore-backend/internal/services/notification"
	"github.com/ArthurLewyin12/encore-backend/internal/services/order"
	"github.com/ArthurLewyin12/encore-backend/internal/telemetry"
)

func main() {
	var (
		mode          = flag.String("mode", "", "Service mode (order-service, notification-subscriber, outbox-relay, analytics-aggregator)")
		configPath    = flag.String("config", "config.yaml", "Path to the YAML config file")
		port          = flag.Int("port", 0, "HTTP port (overrides http.port)")
		maxConcurrent = flag.Int("max-concurrent", 0, "Maximum concurrent order creations (overrides orders.max_concurrent)")
		restaurantID  = flag.String("restaurant-id", "", "Only show this restaurant's orders (notification-subscriber)")
		queue         = flag.String("queue", "", "Durable queue name shared by subscriber replicas (notification-subscriber)")
		date          = flag.String("date", "", "Day to aggregate as YYYY-MM-DD, defaults to yesterday (analytics-aggregator)")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.HTTP.Port = *port
	}
	if *maxConcurrent > 0 {
		cfg.Orders.MaxConcurrent = *maxConcurrent
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.SetupTracer(ctx, *mode, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			log.Error("telemetry_failed", "Failed to set up tracing", requestID, err, nil)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				shutdown(shutdownCtx)
			}()
		}
	}

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode":           *mode,
		"port":           cfg.HTTP.Port,
		"max_concurrent": cfg.Orders.MaxConcurrent,
	})

	switch *mode {
	case "order-service":
		err = runOrderService(ctx, cfg, log)
	case "notification-subscriber":
		err = runNotificationSubscriber(ctx, cfg, log, *restaurantID, *queue)
	case "outbox-relay":
		err = runOutboxRelay(ctx, cfg, log)
	case "analytics-aggregator":
		err = runAnalyticsAggregator(ctx, cfg, log, *date)
	default:
		err = fmt.Errorf("unknown mode: %s", *mode)
	}
	if err != nil {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		stop()
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

func runOrderService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, database.Migrations()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := messaging.NewConnection(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}

	bus := messaging.NewRabbitBus(conn, log, cfg.RabbitMQ.Prefetch)
	defer bus.Close()

	var reader catalog.Reader
	switch cfg.Catalog.Mode {
	case "http":
		reader = catalog.NewHTTPReader(cfg.Catalog.BaseURL, log)
	default:
		reader = catalog.NewPostgresReader(db)
	}

	checks := map[string]order.HealthCheck{
		"database": db.Ping,
		"rabbitmq": func(context.Context) error {
			if !bus.Healthy() {
				return errors.New("connection closed")
			}
			return nil
		},
	}

	opts := order.Options{
		RecordInitialStatus: cfg.Orders.RecordInitialStatus,
		StrictTransitions:   cfg.Orders.StrictStatusTransitions,
		CatalogTimeout:      cfg.Catalog.Timeout,
		MaxConcurrent:       cfg.Orders.MaxConcurrent,
		IdempotencyTTL:      cfg.Redis.IdempotencyTTL,
		PendingTTL:          cfg.Redis.PendingTTL,
	}
	if cfg.Redis.Addr != "" {
		keys := cache.NewRedisStore(cfg.Redis.Addr, "order-service")
		defer keys.Close()
		opts.Idempotency = keys
		checks["redis"] = keys.Ping
	}

	store := order.NewPostgresStore(db)
	service := order.NewService(store, reader, bus, log, opts)
	handler := order.NewHandler(service, log, checks)

	gw := gateway.New(bus, log, cfg.Gateway.Buffer)
	stream := gateway.NewHandler(gw, log, cfg.Gateway.KeepAlive)

	relay := order.NewRelay(store, bus, log, cfg.Outbox.PollInterval, cfg.Outbox.GracePeriod, cfg.Outbox.BatchSize)
	go relay.Run(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler.SetupRoutes(stream),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("service_started", fmt.Sprintf("Order Service started on port %d", cfg.HTTP.Port), requestID, map[string]interface{}{
			"port":           cfg.HTTP.Port,
			"max_concurrent": cfg.Orders.MaxConcurrent,
			"catalog_mode":   cfg.Catalog.Mode,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func runNotificationSubscriber(ctx context.Context, cfg *config.Config, log *logger.Logger, restaurantID, queue string) error {
	conn, err := messaging.NewConnection(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}

	bus := messaging.NewRabbitBus(conn, log, cfg.RabbitMQ.Prefetch)
	defer bus.Close()

	return notification.NewSubscriber(bus, log, os.Stdout, restaurantID, queue).Run(ctx)
}

// runOutboxRelay runs the relay on its own so it can be scaled apart from
// the HTTP service; SKIP LOCKED keeps replicas from double publishing.
func runOutboxRelay(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	conn, err := messaging.NewConnection(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}

	bus := messaging.NewRabbitBus(conn, log, cfg.RabbitMQ.Prefetch)
	defer bus.Close()

	relay := order.NewRelay(order.NewPostgresStore(db), bus, log, cfg.Outbox.PollInterval, cfg.Outbox.GracePeriod, cfg.Outbox.BatchSize)
	return relay.Run(ctx)
}

func runAnalyticsAggregator(ctx context.Context, cfg *config.Config, log *logger.Logger, date string) error {
	day := time.Now().UTC().AddDate(0, 0, -1)
	if date != "" {
		parsed, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", date, err)
		}
		day = parsed
	}

	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, database.Migrations()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return analytics.NewJob(db, log).Run(ctx, day)
}
