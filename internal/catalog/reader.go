package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound means the menu item or option does not exist.
	ErrNotFound = errors.New("catalog entry not found")
	// ErrUnavailable means the catalog could not answer in time.
	ErrUnavailable = errors.New("catalog unavailable")
)

// Reader resolves current prices from the menu subsystem. Implementations
// must return ErrNotFound for unknown ids.
type Reader interface {
	MenuItemPrice(ctx context.Context, menuItemID string) (decimal.Decimal, error)
	OptionPriceAdjustment(ctx context.Context, optionID string) (decimal.Decimal, error)
}
