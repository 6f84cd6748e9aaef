package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ArthurLewyin12/encore-backend/internal/database"
)

const (
	menuItemPriceSQL         = `SELECT price FROM menu_items WHERE id = $1`
	optionPriceAdjustmentSQL = `SELECT price_adjustment FROM menu_item_options WHERE id = $1`
)

// PostgresReader reads prices straight from the menu tables.
type PostgresReader struct {
	db *database.DB
}

func NewPostgresReader(db *database.DB) *PostgresReader {
	return &PostgresReader{db: db}
}

func (r *PostgresReader) MenuItemPrice(ctx context.Context, menuItemID string) (decimal.Decimal, error) {
	return r.price(ctx, menuItemPriceSQL, menuItemID)
}

func (r *PostgresReader) OptionPriceAdjustment(ctx context.Context, optionID string) (decimal.Decimal, error) {
	return r.price(ctx, optionPriceAdjustmentSQL, optionID)
}

func (r *PostgresReader) price(ctx context.Context, query, id string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.db.QueryRow(ctx, query, id).Scan(&price)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return decimal.Zero, ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case err != nil:
		return decimal.Zero, fmt.Errorf("failed to read price: %w", err)
	}
	return price, nil
}
