package models

import "time"

type EventType string

const (
	EventCreated       EventType = "created"
	EventUpdated       EventType = "updated"
	EventStatusChanged EventType = "status_changed"
)

// OrderEvent is published on the event bus after an order write commits.
// Delivery is at-least-once; consumers de-duplicate on EventID.
type OrderEvent struct {
	EventID      string      `json:"event_id"`
	OrderID      string      `json:"order_id"`
	RestaurantID string      `json:"restaurant_id"`
	TableID      string      `json:"table_id"`
	Status       OrderStatus `json:"status"`
	EventType    EventType   `json:"event_type"`
	Timestamp    time.Time   `json:"timestamp"`
}

// StreamRecord is what a streaming subscriber receives for each event.
type StreamRecord struct {
	OrderID   string      `json:"order_id"`
	Status    OrderStatus `json:"status"`
	EventType EventType   `json:"event_type"`
	Timestamp time.Time   `json:"timestamp"`
}

func (e OrderEvent) Record() StreamRecord {
	return StreamRecord{
		OrderID:   e.OrderID,
		Status:    e.Status,
		EventType: e.EventType,
		Timestamp: e.Timestamp,
	}
}
