package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ArthurLewyin12/encore-backend/internal/cache"
	"github.com/ArthurLewyin12/encore-backend/internal/catalog"
	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/messaging"
	"github.com/ArthurLewyin12/encore-backend/internal/metrics"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

const (
	publishTimeout   = 10 * time.Second
	admissionTimeout = time.Second
	catalogFanout    = 8

	completeAttempts = 3
	completeBackoff  = 50 * time.Millisecond
)

type Options struct {
	// RecordInitialStatus appends a "pending" history entry on creation.
	RecordInitialStatus bool
	// StrictTransitions rejects statuses outside the known set and edges
	// missing from the transition graph.
	StrictTransitions bool
	CatalogTimeout    time.Duration
	MaxConcurrent     int

	// Idempotency is optional; nil disables Idempotency-Key handling.
	Idempotency    cache.IdempotencyStore
	IdempotencyTTL time.Duration
	// PendingTTL bounds how long an unfinished key blocks retries when the
	// process dies or cannot record the result.
	PendingTTL time.Duration
}

// Service is the only writer of order state.
type Service struct {
	store   Store
	catalog catalog.Reader
	bus     messaging.Bus
	logger  *logger.Logger
	opts    Options

	admission *semaphore.Weighted
	locks     keyedLock
	tracer    trace.Tracer
	now       func() time.Time
}

func NewService(store Store, reader catalog.Reader, bus messaging.Bus, log *logger.Logger, opts Options) *Service {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 50
	}
	if opts.CatalogTimeout <= 0 {
		opts.CatalogTimeout = 3 * time.Second
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = time.Minute
	}

	return &Service{
		store:     store,
		catalog:   reader,
		bus:       bus,
		logger:    log,
		opts:      opts,
		admission: semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		tracer:    otel.Tracer("order-service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder prices the cart against the catalog, then persists the order
// with its lines, options and initial history in one transaction and
// publishes a created event. idempotencyKey may be empty.
func (s *Service) CreateOrder(ctx context.Context, req *models.CreateOrderRequest, idempotencyKey string) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.create")
	defer span.End()

	requestID := logger.RequestID(ctx)

	if err := req.Validate(); err != nil {
		s.logger.Debug("validation_failed", "Order request validation failed", requestID, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	span.SetAttributes(attribute.String("restaurant_id", req.RestaurantID), attribute.Int("lines", len(req.Items)))

	if idempotencyKey != "" && s.opts.Idempotency != nil {
		existing, reserved, err := s.opts.Idempotency.Reserve(ctx, idempotencyKey, s.opts.PendingTTL)
		if err != nil {
			s.logger.Error("idempotency_reserve_failed", "Failed to reserve idempotency key", requestID, err, nil)
			return nil, status.Error(codes.Unavailable, "idempotency store unavailable")
		}
		if !reserved {
			if existing == cache.Pending {
				return nil, status.Error(codes.Aborted, "a request with this idempotency key is in progress")
			}
			return s.GetOrder(ctx, existing)
		}

		order, err := s.createOrder(ctx, req, requestID)
		if err != nil {
			if relErr := s.opts.Idempotency.Release(context.WithoutCancel(ctx), idempotencyKey); relErr != nil {
				s.logger.Error("idempotency_release_failed", "Failed to release idempotency key", requestID, relErr, nil)
			}
			return nil, err
		}
		s.completeKey(context.WithoutCancel(ctx), idempotencyKey, order.ID, requestID)
		return order, nil
	}

	return s.createOrder(ctx, req, requestID)
}

// completeKey records the created order under key. If every attempt fails the
// pending reservation lapses after PendingTTL.
func (s *Service) completeKey(ctx context.Context, key, orderID, requestID string) {
	var err error
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		if err = s.opts.Idempotency.Complete(ctx, key, orderID, s.opts.IdempotencyTTL); err == nil {
			return
		}
		if attempt < completeAttempts {
			time.Sleep(completeBackoff * time.Duration(attempt))
		}
	}
	s.logger.Error("idempotency_complete_failed", "Failed to store idempotency key", requestID, err, map[string]interface{}{
		"order_id":    orderID,
		"pending_ttl": s.opts.PendingTTL.String(),
	})
}

func (s *Service) createOrder(ctx context.Context, req *models.CreateOrderRequest, requestID string) (*models.Order, error) {
	admitCtx, cancel := context.WithTimeout(ctx, admissionTimeout)
	err := s.admission.Acquire(admitCtx, 1)
	cancel()
	if err != nil {
		metrics.CreateRejected.Inc()
		return nil, status.Error(codes.Unavailable, "order service is at capacity, retry later")
	}
	defer s.admission.Release(1)

	items, err := s.priceCart(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		ID:           uuid.NewString(),
		RestaurantID: req.RestaurantID,
		TableID:      req.TableID,
		ClientID:     req.ClientID,
		ClientName:   req.ClientName,
		Status:       models.StatusPending,
		Notes:        req.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
		Items:        items,
	}
	for i := range order.Items {
		item := &order.Items[i]
		item.ID = uuid.NewString()
		item.OrderID = order.ID
		item.CreatedAt, item.UpdatedAt = now, now
		for j := range item.Options {
			opt := &item.Options[j]
			opt.ID = uuid.NewString()
			opt.OrderItemID = item.ID
			opt.CreatedAt, opt.UpdatedAt = now, now
		}
	}
	order.TotalAmount = models.ComputeTotal(order.Items)

	var initial *models.StatusHistoryEntry
	if s.opts.RecordInitialStatus {
		initial = &models.StatusHistoryEntry{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			Status:    models.StatusPending,
			CreatedAt: now,
		}
	}

	event := newEvent(order, models.EventCreated, uuid.NewString(), now)

	// the write is all-or-nothing; a client hanging up must not abort it halfway
	if err := s.store.CreateOrder(context.WithoutCancel(ctx), order, initial, event); err != nil {
		s.logger.Error("order_creation_failed", "Failed to persist order", requestID, err, map[string]interface{}{
			"restaurant_id": order.RestaurantID,
		})
		return nil, status.Error(codes.Internal, "failed to create order")
	}

	metrics.OrdersCreated.Inc()
	metrics.OrderTotalAmount.Observe(order.TotalAmount.InexactFloat64())

	s.logger.Info("order_created", "Order created", requestID, map[string]interface{}{
		"order_id":      order.ID,
		"restaurant_id": order.RestaurantID,
		"total_amount":  order.TotalAmount.StringFixed(2),
		"lines":         len(order.Items),
	})

	s.publish(ctx, event, requestID)

	return order, nil
}

// priceCart resolves every line and option price before anything is written.
// Lookups run concurrently under one deadline; the first failure cancels the
// rest.
func (s *Service) priceCart(ctx context.Context, cart []models.CreateOrderItem) ([]models.OrderLineItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CatalogTimeout)
	defer cancel()

	items := make([]models.OrderLineItem, len(cart))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(catalogFanout)

	for i, line := range cart {
		g.Go(func() error {
			price, err := s.catalog.MenuItemPrice(gctx, line.MenuItemID)
			if err != nil {
				return catalogError(err, "menu item", line.MenuItemID)
			}

			// totals derive from the stored unit price, never the raw catalog value
			unit := models.Money(price)
			item := models.OrderLineItem{
				MenuItemID: line.MenuItemID,
				Quantity:   line.Quantity,
				UnitPrice:  unit,
				TotalPrice: models.LineTotal(unit, line.Quantity),
				Notes:      line.Notes,
			}

			for _, opt := range line.Options {
				adj, err := s.catalog.OptionPriceAdjustment(gctx, opt.OptionID)
				if err != nil {
					return catalogError(err, "menu item option", opt.OptionID)
				}
				adj = models.Money(adj)
				item.Options = append(item.Options, models.OrderLineItemOption{
					OptionID:             opt.OptionID,
					Quantity:             opt.Quantity,
					UnitPriceAdjustment:  adj,
					TotalPriceAdjustment: models.LineTotal(adj, opt.Quantity),
				})
			}

			items[i] = item
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func catalogError(err error, kind, id string) error {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s %s not found", kind, id)
	case errors.Is(err, catalog.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return status.Error(codes.Unavailable, "menu catalog unavailable")
	default:
		return status.Error(codes.Internal, fmt.Sprintf("failed to price %s", kind))
	}
}

type transitionError struct {
	from, to models.OrderStatus
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.from, e.to)
}

// UpdateStatus sets the order's status, appends a history entry and publishes
// a status_changed event once the write commits. Writes for the same order are
// serialised so events leave in commit order.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, req *models.UpdateStatusRequest) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.update_status")
	defer span.End()

	requestID := logger.RequestID(ctx)

	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !models.IsUUID(orderID) {
		return nil, status.Error(codes.NotFound, "order not found")
	}

	next := models.OrderStatus(strings.TrimSpace(req.Status))
	if s.opts.StrictTransitions && !next.Known() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", next)
	}
	span.SetAttributes(attribute.String("order_id", orderID), attribute.String("status", string(next)))

	var check func(models.OrderStatus) error
	if s.opts.StrictTransitions {
		check = func(current models.OrderStatus) error {
			if !current.CanTransitionTo(next) {
				return &transitionError{from: current, to: next}
			}
			return nil
		}
	}

	// held through publish so this order's events leave in commit order
	unlock := s.locks.Lock(orderID)
	defer unlock()

	change := StatusChange{
		OrderID:   orderID,
		Status:    next,
		Notes:     req.Notes,
		HistoryID: uuid.NewString(),
		EventID:   uuid.NewString(),
	}

	order, err := s.store.UpdateStatus(context.WithoutCancel(ctx), change, check)
	if err != nil {
		var terr *transitionError
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, status.Error(codes.NotFound, "order not found")
		case errors.As(err, &terr):
			return nil, status.Error(codes.FailedPrecondition, terr.Error())
		}
		s.logger.Error("status_update_failed", "Failed to update order status", requestID, err, map[string]interface{}{
			"order_id": orderID,
			"status":   next,
		})
		return nil, status.Error(codes.Internal, "failed to update order status")
	}

	metrics.StatusChanges.WithLabelValues(string(next)).Inc()

	s.logger.Info("order_status_updated", "Order status updated", requestID, map[string]interface{}{
		"order_id": orderID,
		"status":   next,
	})

	s.publish(ctx, newEvent(order, models.EventStatusChanged, change.EventID, order.UpdatedAt), requestID)

	return order, nil
}

// publish hands a committed event to the bus. Failures are logged and left to
// the outbox relay.
func (s *Service) publish(ctx context.Context, event models.OrderEvent, requestID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.bus.Publish(ctx, event); err != nil {
		metrics.EventsPublished.WithLabelValues(string(event.EventType), "failed").Inc()
		s.logger.Error("event_publish_failed", "Failed to publish order event, leaving it to the outbox relay", requestID, err, map[string]interface{}{
			"order_id": event.OrderID,
			"event_id": event.EventID,
		})
		return
	}
	metrics.EventsPublished.WithLabelValues(string(event.EventType), "ok").Inc()

	if err := s.store.MarkPublished(ctx, event.EventID); err != nil {
		s.logger.Error("outbox_mark_failed", "Failed to mark event published", requestID, err, map[string]interface{}{
			"event_id": event.EventID,
		})
	}
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if !models.IsUUID(orderID) {
		return nil, status.Error(codes.NotFound, "order not found")
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		return nil, status.Error(codes.NotFound, "order not found")
	}
	if err != nil {
		s.logger.Error("db_query_failed", "Failed to load order", logger.RequestID(ctx), err, map[string]interface{}{
			"order_id": orderID,
		})
		return nil, status.Error(codes.Internal, "failed to load order")
	}
	return order, nil
}

// ListOrderItems returns the order's lines; an unknown order yields none.
func (s *Service) ListOrderItems(ctx context.Context, orderID string) ([]models.OrderLineItem, error) {
	if !models.IsUUID(orderID) {
		return []models.OrderLineItem{}, nil
	}
	items, err := s.store.ListItems(ctx, orderID)
	if err != nil {
		return nil, s.internal(ctx, "failed to load order items", err)
	}
	return nonNil(items), nil
}

func (s *Service) ListOrderItemOptions(ctx context.Context, orderItemID string) ([]models.OrderLineItemOption, error) {
	if !models.IsUUID(orderItemID) {
		return []models.OrderLineItemOption{}, nil
	}
	options, err := s.store.ListItemOptions(ctx, orderItemID)
	if err != nil {
		return nil, s.internal(ctx, "failed to load order item options", err)
	}
	return nonNil(options), nil
}

// ListStatusHistory returns status entries oldest first.
func (s *Service) ListStatusHistory(ctx context.Context, orderID string) ([]models.StatusHistoryEntry, error) {
	if !models.IsUUID(orderID) {
		return []models.StatusHistoryEntry{}, nil
	}
	history, err := s.store.ListHistory(ctx, orderID)
	if err != nil {
		return nil, s.internal(ctx, "failed to load status history", err)
	}
	return nonNil(history), nil
}

func (s *Service) internal(ctx context.Context, message string, err error) error {
	s.logger.Error("db_query_failed", message, logger.RequestID(ctx), err, nil)
	return status.Error(codes.Internal, message)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
