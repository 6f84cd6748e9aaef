package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArthurLewyin12/encore-backend/internal/cache"
	"github.com/ArthurLewyin12/encore-backend/internal/catalog"
	"github.com/ArthurLewyin12/encore-backend/internal/messaging"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

type outboxRow struct {
	event     models.OrderEvent
	createdAt time.Time
	published bool
}

// memStore is an in-memory Store with the same transactional guarantees as
// PostgresStore within one process.
type memStore struct {
	mu      sync.Mutex
	orders  map[string]models.Order
	items   map[string][]models.OrderLineItem
	options map[string][]models.OrderLineItemOption
	history map[string][]models.StatusHistoryEntry
	reviews []models.Review
	outbox  []*outboxRow
}

func newMemStore() *memStore {
	return &memStore{
		orders:  make(map[string]models.Order),
		items:   make(map[string][]models.OrderLineItem),
		options: make(map[string][]models.OrderLineItemOption),
		history: make(map[string][]models.StatusHistoryEntry),
	}
}

func (m *memStore) CreateOrder(_ context.Context, o *models.Order, initial *models.StatusHistoryEntry, event models.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := *o
	row.Items = nil
	m.orders[o.ID] = row

	for _, item := range o.Items {
		opts := item.Options
		item.Options = nil
		m.items[o.ID] = append(m.items[o.ID], item)
		m.options[item.ID] = append(m.options[item.ID], opts...)
	}
	if initial != nil {
		m.history[o.ID] = append(m.history[o.ID], *initial)
	}
	m.outbox = append(m.outbox, &outboxRow{event: event, createdAt: event.Timestamp})
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, change StatusChange, check func(models.OrderStatus) error) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[change.OrderID]
	if !ok {
		return nil, ErrNotFound
	}
	if check != nil {
		if err := check(o.Status); err != nil {
			return nil, err
		}
	}

	// stamped under the lock, like the row-locked UPDATE
	at := time.Now().UTC()
	if !at.After(o.UpdatedAt) {
		at = o.UpdatedAt.Add(time.Microsecond)
	}
	o.Status = change.Status
	o.UpdatedAt = at
	m.orders[o.ID] = o

	m.history[o.ID] = append(m.history[o.ID], models.StatusHistoryEntry{
		ID:        change.HistoryID,
		OrderID:   o.ID,
		Status:    change.Status,
		Notes:     change.Notes,
		CreatedAt: at,
	})
	m.outbox = append(m.outbox, &outboxRow{
		event:     newEvent(&o, models.EventStatusChanged, change.EventID, at),
		createdAt: at,
	})
	return &o, nil
}

func (m *memStore) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *memStore) ListItems(_ context.Context, orderID string) ([]models.OrderLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderLineItem(nil), m.items[orderID]...), nil
}

func (m *memStore) ListItemOptions(_ context.Context, orderItemID string) ([]models.OrderLineItemOption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderLineItemOption(nil), m.options[orderItemID]...), nil
}

func (m *memStore) ListHistory(_ context.Context, orderID string) ([]models.StatusHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.StatusHistoryEntry(nil), m.history[orderID]...), nil
}

func (m *memStore) CreateReview(_ context.Context, r *models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[r.OrderID]
	if !ok || o.ClientID != r.ClientID {
		return ErrNotFound
	}
	for _, existing := range m.reviews {
		if existing.OrderID == r.OrderID {
			return ErrAlreadyReview
		}
	}
	r.RestaurantID = o.RestaurantID
	m.reviews = append(m.reviews, *r)
	return nil
}

func (m *memStore) ListReviews(_ context.Context, restaurantID string) ([]models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Review
	for _, r := range m.reviews {
		if r.RestaurantID == restaurantID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memStore) MarkPublished(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.outbox {
		if row.event.EventID == eventID {
			row.published = true
		}
	}
	return nil
}

func (m *memStore) RelayPending(ctx context.Context, olderThan time.Time, limit int, publish messaging.Handler) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, row := range m.outbox {
		if n >= limit {
			break
		}
		if row.published || !row.createdAt.Before(olderThan) {
			continue
		}
		if err := publish(ctx, row.event); err != nil {
			return n, err
		}
		row.published = true
		n++
	}
	return n, nil
}

func (m *memStore) unpublished() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.outbox {
		if !row.published {
			n++
		}
	}
	return n
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// fakeCatalog prices from fixed maps. delay simulates a slow catalog.
type fakeCatalog struct {
	prices  map[string]decimal.Decimal
	options map[string]decimal.Decimal
	delay   time.Duration
}

func (c *fakeCatalog) wait(ctx context.Context) error {
	if c.delay == 0 {
		return nil
	}
	select {
	case <-time.After(c.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeCatalog) MenuItemPrice(ctx context.Context, id string) (decimal.Decimal, error) {
	if err := c.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	p, ok := c.prices[id]
	if !ok {
		return decimal.Zero, catalog.ErrNotFound
	}
	return p, nil
}

func (c *fakeCatalog) OptionPriceAdjustment(ctx context.Context, id string) (decimal.Decimal, error) {
	if err := c.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	p, ok := c.options[id]
	if !ok {
		return decimal.Zero, catalog.ErrNotFound
	}
	return p, nil
}

// fakeIdempotency is a map-backed cache.IdempotencyStore. failCompletes
// makes that many Complete calls fail first.
type fakeIdempotency struct {
	mu            sync.Mutex
	keys          map[string]string
	ttls          map[string]time.Duration
	failCompletes int
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeIdempotency) Reserve(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.keys[key]; ok {
		return v, false, nil
	}
	f.keys[key] = cache.Pending
	f.ttls[key] = ttl
	return "", true, nil
}

func (f *fakeIdempotency) Complete(_ context.Context, key, orderID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCompletes > 0 {
		f.failCompletes--
		return errors.New("redis: connection reset")
	}
	f.keys[key] = orderID
	f.ttls[key] = ttl
	return nil
}

func (f *fakeIdempotency) get(key string) (string, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[key], f.ttls[key]
}

func (f *fakeIdempotency) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}
