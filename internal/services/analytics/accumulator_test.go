package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAccumulator(t *testing.T) {
	acc := NewAccumulator()

	// order o1 has two lines, so its total must only count once
	acc.Add(Row{OrderID: "o1", RestaurantID: "r1", OrderTotal: d("30.00"), MenuItemID: "burger", Quantity: 2, LineTotal: d("20.00")})
	acc.Add(Row{OrderID: "o1", RestaurantID: "r1", OrderTotal: d("30.00"), MenuItemID: "fries", Quantity: 1, LineTotal: d("10.00")})
	acc.Add(Row{OrderID: "o2", RestaurantID: "r1", OrderTotal: d("10.01"), MenuItemID: "burger", Quantity: 1, LineTotal: d("10.01")})
	acc.Add(Row{OrderID: "o3", RestaurantID: "r0", OrderTotal: d("5.00"), MenuItemID: "tea", Quantity: 1, LineTotal: d("5.00")})

	got := acc.Results()
	if len(got) != 2 {
		t.Fatalf("got %d restaurants, want 2", len(got))
	}
	if got[0].RestaurantID != "r0" || got[1].RestaurantID != "r1" {
		t.Fatalf("restaurants out of order: %s, %s", got[0].RestaurantID, got[1].RestaurantID)
	}

	r1 := got[1]
	if r1.Orders != 2 {
		t.Errorf("orders = %d, want 2", r1.Orders)
	}
	if !r1.Revenue.Equal(d("40.01")) {
		t.Errorf("revenue = %s, want 40.01", r1.Revenue)
	}
	if !r1.AverageOrderValue.Equal(d("20.01")) {
		t.Errorf("average = %s, want 20.01", r1.AverageOrderValue)
	}

	if len(r1.Items) != 2 || r1.Items[0].MenuItemID != "burger" {
		t.Fatalf("items = %+v", r1.Items)
	}
	burger := r1.Items[0]
	if burger.Quantity != 3 || !burger.Revenue.Equal(d("30.01")) {
		t.Errorf("burger = %+v", burger)
	}
}

func TestAccumulator_Empty(t *testing.T) {
	if got := NewAccumulator().Results(); len(got) != 0 {
		t.Fatalf("Results() = %+v, want empty", got)
	}
}
