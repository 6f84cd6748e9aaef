package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/metrics"
)

// Breaker wraps gobreaker and mirrors its state into Prometheus.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker
	name string
}

func NewBreaker(name string, log *logger.Logger) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// an unknown id is a valid answer, not a catalog failure
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(cbName).Set(stateValue(to))
			log.Info("circuit_state_changed", "Circuit breaker state changed", "", map[string]interface{}{
				"circuit": cbName,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return &Breaker{cb: cb, name: name}
}

func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.CircuitBreakerFailures.WithLabelValues(b.name).Inc()
	}
	return result, formatError(b.name, err)
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func formatError(name string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) {
		return fmt.Errorf("%w: circuit breaker %s is open", ErrUnavailable, name)
	}
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit breaker %s: too many requests in half-open state", ErrUnavailable, name)
	}
	return err
}
