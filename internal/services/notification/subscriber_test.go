package notification

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/messaging"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

func TestFormat(t *testing.T) {
	at := time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC)
	base := models.OrderEvent{OrderID: "o1", TableID: "t7", Timestamp: at, EventType: models.EventStatusChanged}

	tests := []struct {
		name   string
		mutate func(*models.OrderEvent)
		want   string
	}{
		{"created", func(e *models.OrderEvent) { e.EventType = models.EventCreated; e.Status = models.StatusPending }, "[2024-05-01 18:30:00] New order o1 for table t7"},
		{"preparing", func(e *models.OrderEvent) { e.Status = models.StatusPreparing }, "[2024-05-01 18:30:00] Order o1 is being prepared"},
		{"ready", func(e *models.OrderEvent) { e.Status = models.StatusReady }, "[2024-05-01 18:30:00] Order o1 is ready for table t7"},
		{"delivered", func(e *models.OrderEvent) { e.Status = models.StatusDelivered }, "[2024-05-01 18:30:00] Order o1 was delivered"},
		{"cancelled", func(e *models.OrderEvent) { e.Status = models.StatusCancelled }, "[2024-05-01 18:30:00] Order o1 was cancelled"},
		{"custom status", func(e *models.OrderEvent) { e.Status = "plated" }, "[2024-05-01 18:30:00] Order o1 is now 'plated'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			tt.mutate(&e)
			if got := Format(e); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSubscriber_PrintsOnlyItsRestaurant(t *testing.T) {
	bus := messaging.NewMemoryBus(8)
	defer bus.Close()

	out := &syncBuffer{}
	sub := NewSubscriber(bus, logger.Discard(), out, "r1", "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	now := time.Now()
	bus.Publish(ctx, models.OrderEvent{OrderID: "other", RestaurantID: "r2", Status: models.StatusReady, EventType: models.EventStatusChanged, Timestamp: now})
	bus.Publish(ctx, models.OrderEvent{OrderID: "mine", RestaurantID: "r1", Status: models.StatusReady, EventType: models.EventStatusChanged, Timestamp: now})

	for !strings.Contains(out.String(), "mine") {
		if time.Now().After(deadline) {
			t.Fatalf("output = %q", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if strings.Contains(out.String(), "other") {
		t.Fatalf("printed another restaurant's order: %q", out.String())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
