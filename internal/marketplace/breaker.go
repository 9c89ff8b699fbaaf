package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/vasiliy-maslov/farm-checkout/internal/metrics"
)

// BreakerSettings tunes the collaborator circuit breaker. Zero values fall
// back to the defaults below.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.MaxRequests == 0 {
		s.MaxRequests = 3
	}
	if s.Interval == 0 {
		s.Interval = 15 * time.Second
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	if s.MinRequests == 0 {
		s.MinRequests = 3
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = 0.6
	}
	return s
}

// breaker wraps gobreaker with Prometheus state tracking.
type breaker[T any] struct {
	*gobreaker.CircuitBreaker[T]
	name    string
	service string
}

func newBreaker[T any](name, service string, settings BreakerSettings) *breaker[T] {
	settings = settings.withDefaults()

	cb := gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= settings.MinRequests && failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(service, cbName).Set(stateValue(to))

			log.Info().
				Str("circuit", cbName).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("marketplace: circuit breaker state changed")
		},
		// A buyer abandoning a request says nothing about collaborator health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	metrics.CircuitBreakerState.WithLabelValues(service, name).Set(0)

	return &breaker[T]{CircuitBreaker: cb, name: name, service: service}
}

func (b *breaker[T]) Execute(fn func() (T, error)) (T, error) {
	result, err := b.CircuitBreaker.Execute(fn)
	if err != nil && !isBreakerRejection(err) {
		metrics.CircuitBreakerFailures.WithLabelValues(b.service, b.name).Inc()
	}
	return result, err
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
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
