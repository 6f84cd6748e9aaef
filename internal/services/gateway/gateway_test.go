package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/messaging"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

const (
	restaurantA = "11111111-1111-4111-8111-111111111111"
	restaurantB = "22222222-2222-4222-8222-222222222222"
)

func orderEvent(eventID, restaurantID, orderID string, st models.OrderStatus) models.OrderEvent {
	return models.OrderEvent{
		EventID:      eventID,
		OrderID:      orderID,
		RestaurantID: restaurantID,
		Status:       st,
		EventType:    models.EventStatusChanged,
		Timestamp:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func next(t *testing.T, s *Stream) models.StreamRecord {
	t.Helper()
	select {
	case r := <-s.Events():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream record")
	}
	return models.StreamRecord{}
}

func TestGateway_DeduplicatesByEventID(t *testing.T) {
	bus := messaging.NewMemoryBus(8)
	defer bus.Close()
	g := New(bus, logger.Discard(), 8)

	stream, err := g.Subscribe(context.Background(), restaurantA)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	ctx := context.Background()
	dup := orderEvent("e1", restaurantA, "o1", models.StatusPending)
	for _, e := range []models.OrderEvent{dup, dup, orderEvent("e2", restaurantA, "o1", models.StatusPreparing)} {
		if err := bus.Publish(ctx, e); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if r := next(t, stream); r.Status != models.StatusPending {
		t.Fatalf("first record status = %s", r.Status)
	}
	if r := next(t, stream); r.Status != models.StatusPreparing {
		t.Fatalf("second record status = %s, duplicate was not dropped", r.Status)
	}
}

func TestStream_DuplicateWindowIsBounded(t *testing.T) {
	s := &Stream{
		seen: make(map[string]struct{}),
		ring: make([]string, 2),
	}
	if s.duplicate("a") || s.duplicate("b") {
		t.Fatal("fresh ids reported as duplicates")
	}
	if !s.duplicate("b") {
		t.Fatal("b should be a duplicate")
	}
	s.duplicate("c") // evicts a
	if s.duplicate("a") {
		t.Fatal("a should have left the window")
	}
	if len(s.seen) != 2 {
		t.Fatalf("seen holds %d ids, want 2", len(s.seen))
	}
}

func TestStream_FailedDeliveryIsRedelivered(t *testing.T) {
	s := &Stream{
		restaurantID: restaurantA,
		events:       make(chan models.StreamRecord), // nobody reading: every send blocks
		seen:         make(map[string]struct{}),
		ring:         make([]string, 4),
	}
	e := orderEvent("e1", restaurantA, "o1", models.StatusReady)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.handle(ctx, e); err == nil {
		t.Fatal("handle on a blocked stream returned nil")
	}

	got := make(chan models.StreamRecord, 1)
	go func() { got <- <-s.events }()

	if err := s.handle(context.Background(), e); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	select {
	case r := <-got:
		if r.OrderID != "o1" || r.Status != models.StatusReady {
			t.Fatalf("record = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("redelivered event never reached the stream")
	}

	// delivered now, so a further copy is a duplicate
	if !s.duplicate("e1") {
		t.Fatal("e1 not remembered after successful delivery")
	}
}

func TestGateway_CloseUnsubscribes(t *testing.T) {
	bus := messaging.NewMemoryBus(8)
	defer bus.Close()
	g := New(bus, logger.Discard(), 8)

	stream, err := g.Subscribe(context.Background(), restaurantA)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	stream.Close()

	select {
	case <-stream.Done():
	case <-time.After(time.Second):
		t.Fatal("stream did not stop")
	}
	if n := bus.Subscribers(); n != 0 {
		t.Fatalf("Subscribers() = %d, want 0", n)
	}
}

func newServer(t *testing.T, bus messaging.Bus) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/restaurants/{restaurant_id}/orders/stream",
		NewHandler(New(bus, logger.Discard(), 8), logger.Discard(), 50*time.Millisecond))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandler_StreamsOnlyOwnRestaurant(t *testing.T) {
	bus := messaging.NewMemoryBus(8)
	defer bus.Close()
	srv := newServer(t, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/restaurants/"+restaurantA+"/orders/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("Content-Type = %q", ct)
	}

	for _, e := range []models.OrderEvent{
		orderEvent("e1", restaurantB, "other", models.StatusPending),
		orderEvent("e2", restaurantA, "o1", models.StatusPending),
		orderEvent("e3", restaurantA, "o1", models.StatusPreparing),
	} {
		if err := bus.Publish(context.Background(), e); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	lines := make(chan models.StreamRecord, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if len(sc.Bytes()) == 0 {
				continue // keep-alive
			}
			var rec models.StreamRecord
			if json.Unmarshal(sc.Bytes(), &rec) == nil {
				lines <- rec
			}
		}
	}()

	want := []models.OrderStatus{models.StatusPending, models.StatusPreparing}
	for i, st := range want {
		select {
		case rec := <-lines:
			if rec.OrderID != "o1" || rec.Status != st {
				t.Fatalf("record %d = %+v, want o1/%s", i, rec, st)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for record %d", i)
		}
	}
}

func TestHandler_DisconnectReleasesSubscription(t *testing.T) {
	bus := messaging.NewMemoryBus(8)
	defer bus.Close()
	srv := newServer(t, bus)

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/restaurants/"+restaurantA+"/orders/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	if bus.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d, want 1", bus.Subscribers())
	}

	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription outlived the client")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandler_RejectsInvalidRestaurantID(t *testing.T) {
	bus := messaging.NewMemoryBus(8)
	defer bus.Close()
	srv := newServer(t, bus)

	resp, err := http.Get(srv.URL + "/restaurants/not-a-uuid/orders/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if bus.Subscribers() != 0 {
		t.Fatal("invalid request left a subscription behind")
	}
}
