// Package analytics rolls a day of orders up into per-restaurant metrics.
package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

// Row is one order line joined with its order.
type Row struct {
	OrderID      string
	RestaurantID string
	OrderTotal   decimal.Decimal
	MenuItemID   string
	Quantity     int
	LineTotal    decimal.Decimal
}

type ItemDay struct {
	MenuItemID string
	Quantity   int
	Revenue    decimal.Decimal
}

type RestaurantDay struct {
	RestaurantID      string
	Orders            int
	Revenue           decimal.Decimal
	AverageOrderValue decimal.Decimal
	Items             []ItemDay
}

type restaurantTotals struct {
	orders  map[string]struct{}
	revenue decimal.Decimal
	items   map[string]*ItemDay
}

// Accumulator is built for a single run and thrown away afterwards. It is
// not safe for concurrent use.
type Accumulator struct {
	restaurants map[string]*restaurantTotals
}

func NewAccumulator() *Accumulator {
	return &Accumulator{restaurants: make(map[string]*restaurantTotals)}
}

// Add folds in one line. An order's total counts once no matter how many of
// its lines are added.
func (a *Accumulator) Add(r Row) {
	t, ok := a.restaurants[r.RestaurantID]
	if !ok {
		t = &restaurantTotals{
			orders: make(map[string]struct{}),
			items:  make(map[string]*ItemDay),
		}
		a.restaurants[r.RestaurantID] = t
	}

	if _, seen := t.orders[r.OrderID]; !seen {
		t.orders[r.OrderID] = struct{}{}
		t.revenue = t.revenue.Add(r.OrderTotal)
	}

	item, ok := t.items[r.MenuItemID]
	if !ok {
		item = &ItemDay{MenuItemID: r.MenuItemID}
		t.items[r.MenuItemID] = item
	}
	item.Quantity += r.Quantity
	item.Revenue = item.Revenue.Add(r.LineTotal)
}

// Results returns one entry per restaurant ordered by id, items ordered by
// menu item id.
func (a *Accumulator) Results() []RestaurantDay {
	out := make([]RestaurantDay, 0, len(a.restaurants))
	for id, t := range a.restaurants {
		day := RestaurantDay{
			RestaurantID: id,
			Orders:       len(t.orders),
			Revenue:      models.Money(t.revenue),
		}
		if day.Orders > 0 {
			day.AverageOrderValue = models.Money(t.revenue.Div(decimal.NewFromInt(int64(day.Orders))))
		}
		for _, item := range t.items {
			day.Items = append(day.Items, ItemDay{
				MenuItemID: item.MenuItemID,
				Quantity:   item.Quantity,
				Revenue:    models.Money(item.Revenue),
			})
		}
		sort.Slice(day.Items, func(i, j int) bool { return day.Items[i].MenuItemID < day.Items[j].MenuItemID })
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RestaurantID < out[j].RestaurantID })
	return out
}
