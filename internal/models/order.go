package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the persisted aggregate root. TotalAmount always equals the sum of
// its line totals plus option adjustments.
type Order struct {
	ID           string          `json:"id" db:"id"`
	RestaurantID string          `json:"restaurant_id" db:"restaurant_id"`
	TableID      string          `json:"table_id" db:"table_id"`
	ClientID     string          `json:"client_id" db:"client_id"`
	ClientName   *string         `json:"client_name,omitempty" db:"client_name"`
	Status       OrderStatus     `json:"status" db:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount" db:"total_amount"`
	Notes        *string         `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`

	Items []OrderLineItem `json:"items,omitempty"`
}

// OrderLineItem snapshots the menu price at creation time.
type OrderLineItem struct {
	ID         string          `json:"id" db:"id"`
	OrderID    string          `json:"order_id" db:"order_id"`
	MenuItemID string          `json:"menu_item_id" db:"menu_item_id"`
	Quantity   int             `json:"quantity" db:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price" db:"total_price"`
	Notes      *string         `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`

	Options []OrderLineItemOption `json:"options,omitempty"`
}

// OrderLineItemOption snapshots an option's price adjustment. Adjustments may
// be negative.
type OrderLineItemOption struct {
	ID                   string          `json:"id" db:"id"`
	OrderItemID          string          `json:"order_item_id" db:"order_item_id"`
	OptionID             string          `json:"option_id" db:"option_id"`
	Quantity             int             `json:"quantity" db:"quantity"`
	UnitPriceAdjustment  decimal.Decimal `json:"unit_price_adjustment" db:"unit_price_adjustment"`
	TotalPriceAdjustment decimal.Decimal `json:"total_price_adjustment" db:"total_price_adjustment"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}

// StatusHistoryEntry is an append-only record of a status transition.
type StatusHistoryEntry struct {
	ID        string      `json:"id" db:"id"`
	OrderID   string      `json:"order_id" db:"order_id"`
	Status    OrderStatus `json:"status" db:"status"`
	Notes     *string     `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// CreateOrderRequest is the cart submitted by a client.
type CreateOrderRequest struct {
	RestaurantID string            `json:"restaurant_id"`
	TableID      string            `json:"table_id"`
	ClientID     string            `json:"client_id"`
	ClientName   *string           `json:"client_name,omitempty"`
	Items        []CreateOrderItem `json:"items"`
	Notes        *string           `json:"notes,omitempty"`
}

type CreateOrderItem struct {
	MenuItemID string              `json:"menu_item_id"`
	Quantity   int                 `json:"quantity"`
	Options    []CreateOrderOption `json:"options,omitempty"`
	Notes      *string             `json:"notes,omitempty"`
}

type CreateOrderOption struct {
	OptionID string `json:"option_id"`
	Quantity int    `json:"quantity"`
}

type UpdateStatusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

// Money rounds an amount to currency precision.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineTotal is unit price times quantity.
func LineTotal(unit decimal.Decimal, quantity int) decimal.Decimal {
	return Money(unit.Mul(decimal.NewFromInt(int64(quantity))))
}

// ComputeTotal sums line totals and option adjustments of fully priced lines.
func ComputeTotal(items []OrderLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalPrice)
		for _, opt := range item.Options {
			total = total.Add(opt.TotalPriceAdjustment)
		}
	}
	return Money(total)
}
