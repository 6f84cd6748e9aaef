package order

import (
	"context"
	"time"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/messaging"
	"github.com/ArthurLewyin12/encore-backend/internal/metrics"
)

// Relay republishes committed events whose fast-path publish never landed,
// for instance because the process died between commit and publish.
type Relay struct {
	store    Store
	bus      messaging.Bus
	logger   *logger.Logger
	interval time.Duration
	grace    time.Duration
	batch    int
}

func NewRelay(store Store, bus messaging.Bus, log *logger.Logger, interval, grace time.Duration, batch int) *Relay {
	if batch <= 0 {
		batch = 100
	}
	return &Relay{
		store:    store,
		bus:      bus,
		logger:   log,
		interval: interval,
		grace:    grace,
		batch:    batch,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox_relay_started", "Outbox relay started", "", map[string]interface{}{
		"interval_ms": r.interval.Milliseconds(),
		"grace_ms":    r.grace.Milliseconds(),
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox_relay_failed", "Outbox relay pass failed", "", err, nil)
			}
		}
	}
}

func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	n, err := r.store.RelayPending(ctx, time.Now().Add(-r.grace), r.batch, r.bus.Publish)
	if n > 0 {
		metrics.OutboxRepublished.Add(float64(n))
		r.logger.Info("outbox_relayed", "Republished pending order events", "", map[string]interface{}{
			"count": n,
		})
	}
	return n, err
}
