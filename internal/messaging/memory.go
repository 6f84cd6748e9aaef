package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

var ErrBusClosed = errors.New("event bus closed")

const maxRetryDelay = time.Second

// MemoryBus fans events out to in-process subscribers. Each subscription owns
// a FIFO queue drained by its own goroutine; Publish blocks rather than drop
// when a queue is full.
type MemoryBus struct {
	mu         sync.RWMutex
	subs       map[uint64]*memorySubscription
	nextID     uint64
	closed     bool
	buffer     int
	retryDelay time.Duration
}

func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBus{
		subs:       make(map[uint64]*memorySubscription),
		buffer:     buffer,
		retryDelay: 10 * time.Millisecond,
	}
}

func (b *MemoryBus) Publish(ctx context.Context, event models.OrderEvent) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	targets := make([]*memorySubscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.opts.Match(event) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.queue <- event:
		case <-s.ctx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, opts SubscribeOptions, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &memorySubscription{
		bus:     b,
		id:      b.nextID,
		opts:    opts,
		handler: handler,
		queue:   make(chan models.OrderEvent, b.buffer),
		ctx:     subCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	b.nextID++
	b.subs[s.id] = s

	go s.run()

	return s, nil
}

// Subscribers returns the number of live subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := make([]*memorySubscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
		<-s.done
	}
	return nil
}

func (b *MemoryBus) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

type memorySubscription struct {
	bus     *MemoryBus
	id      uint64
	opts    SubscribeOptions
	handler Handler
	queue   chan models.OrderEvent
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func (s *memorySubscription) run() {
	defer close(s.done)
	defer s.bus.remove(s.id)

	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.queue:
			s.deliver(event)
		}
	}
}

// deliver retries the handler until it succeeds or the subscription ends.
func (s *memorySubscription) deliver(event models.OrderEvent) {
	delay := s.bus.retryDelay
	for {
		if err := s.handler(s.ctx, event); err == nil {
			return
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

func (s *memorySubscription) Done() <-chan struct{} {
	return s.done
}

// Close stops delivery. It does not wait for an in-flight handler, so it is
// safe to call from inside one.
func (s *memorySubscription) Close() error {
	s.cancel()
	s.bus.remove(s.id)
	return nil
}
