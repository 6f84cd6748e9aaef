package order

import (
	"context"
	"errors"
	"time"

	"github.com/ArthurLewyin12/encore-backend/internal/messaging"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyReview = errors.New("order already reviewed")
)

// StatusChange describes one status transition to persist. The store stamps
// it while holding the order's row lock.
type StatusChange struct {
	OrderID   string
	Status    models.OrderStatus
	Notes     *string
	HistoryID string
	EventID   string
}

// Store persists orders. Every method that writes more than one row does so
// in a single transaction.
type Store interface {
	// CreateOrder writes the order, its lines and options, the optional
	// initial history entry and the outbox row for event.
	CreateOrder(ctx context.Context, order *models.Order, initial *models.StatusHistoryEntry, event models.OrderEvent) error

	// UpdateStatus locks the order row, runs check against the current
	// status, then updates it, appends history and writes the outbox row.
	// The returned order's UpdatedAt is the stamp shared by all three.
	// check's error is returned unchanged.
	UpdateStatus(ctx context.Context, change StatusChange, check func(current models.OrderStatus) error) (*models.Order, error)

	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListItems(ctx context.Context, orderID string) ([]models.OrderLineItem, error)
	ListItemOptions(ctx context.Context, orderItemID string) ([]models.OrderLineItemOption, error)
	ListHistory(ctx context.Context, orderID string) ([]models.StatusHistoryEntry, error)

	// CreateReview inserts review if the order exists and belongs to
	// review.ClientID, filling in RestaurantID.
	CreateReview(ctx context.Context, review *models.Review) error
	ListReviews(ctx context.Context, restaurantID string) ([]models.Review, error)

	MarkPublished(ctx context.Context, eventID string) error
	// RelayPending publishes outbox events created before olderThan, oldest
	// first, stopping at the first publish failure.
	RelayPending(ctx context.Context, olderThan time.Time, limit int, publish messaging.Handler) (int, error)
}

func newEvent(o *models.Order, eventType models.EventType, eventID string, at time.Time) models.OrderEvent {
	return models.OrderEvent{
		EventID:      eventID,
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		TableID:      o.TableID,
		Status:       o.Status,
		EventType:    eventType,
		Timestamp:    at,
	}
}
