package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ArthurLewyin12/encore-backend/internal/database"
	"github.com/ArthurLewyin12/encore-backend/internal/messaging"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateOrder(ctx context.Context, o *models.Order, initial *models.StatusHistoryEntry, event models.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(database.InsertOrderSQL,
			o.ID, o.RestaurantID, o.TableID, o.ClientID, o.ClientName,
			string(o.Status), o.TotalAmount, o.Notes, o.CreatedAt, o.UpdatedAt)

		for _, item := range o.Items {
			batch.Queue(database.InsertOrderItemSQL,
				item.ID, item.OrderID, item.MenuItemID, item.Quantity,
				item.UnitPrice, item.TotalPrice, item.Notes, item.CreatedAt, item.UpdatedAt)

			for _, opt := range item.Options {
				batch.Queue(database.InsertOrderItemOptionSQL,
					opt.ID, opt.OrderItemID, opt.OptionID, opt.Quantity,
					opt.UnitPriceAdjustment, opt.TotalPriceAdjustment, opt.CreatedAt, opt.UpdatedAt)
			}
		}

		if initial != nil {
			batch.Queue(database.InsertStatusHistorySQL,
				initial.ID, initial.OrderID, string(initial.Status), initial.Notes, initial.CreatedAt)
		}

		batch.Queue(database.InsertOutboxEventSQL,
			event.EventID, event.OrderID, event.RestaurantID, string(event.EventType), payload, event.Timestamp)

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, change StatusChange, check func(models.OrderStatus) error) (*models.Order, error) {
	var o models.Order

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := scanOrder(tx.QueryRow(ctx, database.LockOrderSQL, change.OrderID), &o); err != nil {
			return err
		}

		if check != nil {
			if err := check(o.Status); err != nil {
				return err
			}
		}

		var at time.Time
		err := tx.QueryRow(ctx, database.UpdateOrderStatusSQL, string(change.Status), change.OrderID).Scan(&at)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		at = at.UTC()
		o.Status = change.Status
		o.UpdatedAt = at

		if _, err := tx.Exec(ctx, database.InsertStatusHistorySQL,
			change.HistoryID, change.OrderID, string(change.Status), change.Notes, at); err != nil {
			return fmt.Errorf("failed to append status history: %w", err)
		}

		event := newEvent(&o, models.EventStatusChanged, change.EventID, at)
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		if _, err := tx.Exec(ctx, database.InsertOutboxEventSQL,
			event.EventID, event.OrderID, event.RestaurantID, string(event.EventType), payload, event.Timestamp); err != nil {
			return fmt.Errorf("failed to write outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var o models.Order
	if err := scanOrder(s.db.QueryRow(ctx, database.GetOrderSQL, orderID), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOrder(row pgx.Row, o *models.Order) error {
	err := row.Scan(
		&o.ID,
		&o.RestaurantID,
		&o.TableID,
		&o.ClientID,
		&o.ClientName,
		&o.Status,
		&o.TotalAmount,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read order: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListItems(ctx context.Context, orderID string) ([]models.OrderLineItem, error) {
	rows, err := s.db.Query(ctx, database.ListOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OrderLineItem, error) {
		var it models.OrderLineItem
		err := row.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Quantity,
			&it.UnitPrice, &it.TotalPrice, &it.Notes, &it.CreatedAt, &it.UpdatedAt)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListItemOptions(ctx context.Context, orderItemID string) ([]models.OrderLineItemOption, error) {
	rows, err := s.db.Query(ctx, database.ListOrderItemOptionsSQL, orderItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order item options: %w", err)
	}

	options, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OrderLineItemOption, error) {
		var opt models.OrderLineItemOption
		err := row.Scan(&opt.ID, &opt.OrderItemID, &opt.OptionID, &opt.Quantity,
			&opt.UnitPriceAdjustment, &opt.TotalPriceAdjustment, &opt.CreatedAt, &opt.UpdatedAt)
		return opt, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read order item options: %w", err)
	}
	return options, nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, orderID string) ([]models.StatusHistoryEntry, error) {
	rows, err := s.db.Query(ctx, database.ListStatusHistorySQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}

	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.StatusHistoryEntry, error) {
		var h models.StatusHistoryEntry
		err := row.Scan(&h.ID, &h.OrderID, &h.Status, &h.Notes, &h.CreatedAt)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read status history: %w", err)
	}
	return history, nil
}

func (s *PostgresStore) CreateReview(ctx context.Context, r *models.Review) error {
	err := s.db.QueryRow(ctx, database.InsertReviewSQL,
		r.ID, r.OrderID, r.ClientID, r.ClientName, r.Rating, r.Comment, r.CreatedAt,
	).Scan(&r.RestaurantID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to insert review: %w", err)
	}

	// no row: either the caller does not own the order or it was already reviewed
	var exists bool
	if err := s.db.QueryRow(ctx, database.OwnedReviewExistsSQL, r.OrderID, r.ClientID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check existing review: %w", err)
	}
	if exists {
		return ErrAlreadyReview
	}
	return ErrNotFound
}

func (s *PostgresStore) ListReviews(ctx context.Context, restaurantID string) ([]models.Review, error) {
	rows, err := s.db.Query(ctx, database.ListRestaurantReviewsSQL, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}

	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Review, error) {
		var r models.Review
		err := row.Scan(&r.ID, &r.OrderID, &r.RestaurantID, &r.ClientID, &r.ClientName, &r.Rating, &r.Comment, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read reviews: %w", err)
	}
	return reviews, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, eventID string) error {
	if _, err := s.db.Exec(ctx, database.MarkOutboxPublishedSQL, eventID); err != nil {
		return fmt.Errorf("failed to mark event published: %w", err)
	}
	return nil
}

func (s *PostgresStore) RelayPending(ctx context.Context, olderThan time.Time, limit int, publish messaging.Handler) (int, error) {
	var published []int64

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, database.LockPendingOutboxSQL, olderThan, limit)
		if err != nil {
			return fmt.Errorf("failed to query outbox: %w", err)
		}

		type pending struct {
			id    int64
			event models.OrderEvent
		}
		batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pending, error) {
			var p pending
			var payload []byte
			if err := row.Scan(&p.id, &payload); err != nil {
				return p, err
			}
			return p, json.Unmarshal(payload, &p.event)
		})
		if err != nil {
			return fmt.Errorf("failed to read outbox: %w", err)
		}

		for _, p := range batch {
			if err := publish(ctx, p.event); err != nil {
				break
			}
			published = append(published, p.id)
		}

		if len(published) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, database.MarkOutboxBatchPublishedSQL, published); err != nil {
			return fmt.Errorf("failed to mark outbox batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(published), nil
}
