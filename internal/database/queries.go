package database

// Order queries
const (
	orderColumns = `id, restaurant_id, table_id, client_id, client_name, status, total_amount, notes, created_at, updated_at`

	InsertOrderSQL = `
		INSERT INTO orders (id, restaurant_id, table_id, client_id, client_name, status, total_amount, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	InsertOrderItemSQL = `
		INSERT INTO order_items (id, order_id, menu_item_id, quantity, unit_price, total_price, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	InsertOrderItemOptionSQL = `
		INSERT INTO order_item_options (id, order_item_id, option_id, quantity, unit_price_adjustment, total_price_adjustment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	GetOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	LockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	// UpdateOrderStatusSQL stamps the write with the database clock. It runs
	// after LockOrderSQL, so stamps follow the order in which writers won the
	// row lock.
	UpdateOrderStatusSQL = `
		UPDATE orders SET status = $1, updated_at = GREATEST(clock_timestamp(), updated_at)
		WHERE id = $2
		RETURNING updated_at`

	ListOrderItemsSQL = `
		SELECT id, order_id, menu_item_id, quantity, unit_price, total_price, notes, created_at, updated_at
		FROM order_items WHERE order_id = $1
		ORDER BY created_at, id`

	ListOrderItemOptionsSQL = `
		SELECT id, order_item_id, option_id, quantity, unit_price_adjustment, total_price_adjustment, created_at, updated_at
		FROM order_item_options WHERE order_item_id = $1
		ORDER BY created_at, id`
)

// Status history queries
const (
	InsertStatusHistorySQL = `
		INSERT INTO order_status_history (id, order_id, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	ListStatusHistorySQL = `
		SELECT id, order_id, status, notes, created_at
		FROM order_status_history WHERE order_id = $1
		ORDER BY seq`
)

// Review queries
const (
	// InsertReviewSQL only inserts when the order exists and belongs to the
	// client; it returns no row otherwise or when the order was already reviewed.
	InsertReviewSQL = `
		INSERT INTO reviews (id, order_id, restaurant_id, client_id, client_name, rating, comment, created_at)
		SELECT $1::uuid, o.id, o.restaurant_id, $3::text, $4::varchar, $5::int, $6::text, $7::timestamptz
		FROM orders o
		WHERE o.id = $2::uuid AND o.client_id = $3::text
		ON CONFLICT (order_id) DO NOTHING
		RETURNING restaurant_id`

	OwnedReviewExistsSQL = `
		SELECT EXISTS (
			SELECT 1 FROM reviews r
			JOIN orders o ON o.id = r.order_id
			WHERE r.order_id = $1 AND o.client_id = $2
		)`

	ListRestaurantReviewsSQL = `
		SELECT id, order_id, restaurant_id, client_id, client_name, rating, comment, created_at
		FROM reviews WHERE restaurant_id = $1
		ORDER BY created_at DESC, id DESC`
)

// Outbox queries
const (
	InsertOutboxEventSQL = `
		INSERT INTO order_event_outbox (event_id, order_id, restaurant_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	MarkOutboxPublishedSQL = `
		UPDATE order_event_outbox SET published_at = NOW()
		WHERE event_id = $1 AND published_at IS NULL`

	LockPendingOutboxSQL = `
		SELECT id, payload FROM order_event_outbox
		WHERE published_at IS NULL AND created_at < $1
		ORDER BY id
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	MarkOutboxBatchPublishedSQL = `
		UPDATE order_event_outbox SET published_at = NOW()
		WHERE id = ANY($1)`
)

// Analytics queries
const (
	DailyOrdersSQL = `
		SELECT o.id, o.restaurant_id, o.total_amount, i.menu_item_id, i.quantity, i.total_price
		FROM orders o
		JOIN order_items i ON i.order_id = o.id
		WHERE o.created_at >= $1 AND o.created_at < $2 AND o.status <> 'cancelled'
		ORDER BY o.id`

	UpsertDailyRestaurantMetricsSQL = `
		INSERT INTO daily_restaurant_metrics (restaurant_id, day, total_orders, total_revenue, average_order_value, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (restaurant_id, day) DO UPDATE
		SET total_orders = EXCLUDED.total_orders,
			total_revenue = EXCLUDED.total_revenue,
			average_order_value = EXCLUDED.average_order_value,
			updated_at = NOW()`

	UpsertDailyMenuItemMetricsSQL = `
		INSERT INTO daily_menu_item_metrics (restaurant_id, menu_item_id, day, quantity_sold, revenue, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (restaurant_id, menu_item_id, day) DO UPDATE
		SET quantity_sold = EXCLUDED.quantity_sold,
			revenue = EXCLUDED.revenue,
			updated_at = NOW()`
)
