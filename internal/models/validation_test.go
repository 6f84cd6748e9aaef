package models

import (
	"errors"
	"strings"
	"testing"
)

const (
	restaurantID = "7b0c8e38-3f57-4e8e-9a59-2f1a4a3c9d01"
	tableID      = "0e5c0f34-6f1e-4d5b-8a0b-3b5c1e2d4f02"
	menuItemID   = "c1d2e3f4-a5b6-4c7d-8e9f-0a1b2c3d4e05"
	optionID     = "d1e2f3a4-b5c6-4d7e-8f9a-0b1c2d3e4f06"
)

func validRequest() *CreateOrderRequest {
	return &CreateOrderRequest{
		RestaurantID: restaurantID,
		TableID:      tableID,
		ClientID:     "client-1",
		Items: []CreateOrderItem{
			{MenuItemID: menuItemID, Quantity: 2, Options: []CreateOrderOption{{OptionID: optionID, Quantity: 1}}},
		},
	}
}

func TestCreateOrderRequestValidate(t *testing.T) {
	long := strings.Repeat("x", MaxNotesLen+1)
	longName := strings.Repeat("n", MaxClientNameLen+1)

	tests := []struct {
		name      string
		mutate    func(r *CreateOrderRequest)
		wantField string
	}{
		{name: "valid request", mutate: func(r *CreateOrderRequest) {}},
		{name: "missing restaurant", mutate: func(r *CreateOrderRequest) { r.RestaurantID = "" }, wantField: "restaurant_id"},
		{name: "malformed table id", mutate: func(r *CreateOrderRequest) { r.TableID = "table-9" }, wantField: "table_id"},
		{name: "missing client", mutate: func(r *CreateOrderRequest) { r.ClientID = "  " }, wantField: "client_id"},
		{name: "client name too long", mutate: func(r *CreateOrderRequest) { r.ClientName = &longName }, wantField: "client_name"},
		{name: "order notes too long", mutate: func(r *CreateOrderRequest) { r.Notes = &long }, wantField: "notes"},
		{name: "empty cart", mutate: func(r *CreateOrderRequest) { r.Items = nil }, wantField: "items"},
		{name: "zero quantity", mutate: func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 }, wantField: "items[0].quantity"},
		{name: "negative quantity", mutate: func(r *CreateOrderRequest) { r.Items[0].Quantity = -3 }, wantField: "items[0].quantity"},
		{name: "missing menu item", mutate: func(r *CreateOrderRequest) { r.Items[0].MenuItemID = "" }, wantField: "items[0].menu_item_id"},
		{name: "option zero quantity", mutate: func(r *CreateOrderRequest) { r.Items[0].Options[0].Quantity = 0 }, wantField: "items[0].options[0].quantity"},
		{name: "option malformed id", mutate: func(r *CreateOrderRequest) { r.Items[0].Options[0].OptionID = "extra-cheese" }, wantField: "items[0].options[0].option_id"},
		{
			name: "too many lines",
			mutate: func(r *CreateOrderRequest) {
				for len(r.Items) <= MaxOrderLines {
					r.Items = append(r.Items, CreateOrderItem{MenuItemID: menuItemID, Quantity: 1})
				}
			},
			wantField: "items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			err := req.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Validate() field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestUpdateStatusRequestValidate(t *testing.T) {
	if err := (&UpdateStatusRequest{Status: ""}).Validate(); err == nil {
		t.Error("expected error for empty status")
	}
	if err := (&UpdateStatusRequest{Status: "preparing"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	// open-string acceptance
	if err := (&UpdateStatusRequest{Status: "plated"}).Validate(); err != nil {
		t.Errorf("unexpected error for custom status: %v", err)
	}
}

func TestSubmitReviewRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     SubmitReviewRequest
		wantErr bool
	}{
		{"valid", SubmitReviewRequest{ClientID: "c", Rating: 5}, false},
		{"lowest rating", SubmitReviewRequest{ClientID: "c", Rating: 1}, false},
		{"rating zero", SubmitReviewRequest{ClientID: "c", Rating: 0}, true},
		{"rating six", SubmitReviewRequest{ClientID: "c", Rating: 6}, true},
		{"missing client", SubmitReviewRequest{Rating: 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
