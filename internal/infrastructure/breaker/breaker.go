package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	appcheckout "github.com/Zhima-Mochi/minishop-cart/internal/application/checkout"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultFailures    = 5
	defaultOpenTimeout = 30 * time.Second
)

type Settings struct {
	// Failures is the number of consecutive failures that opens the circuit.
	Failures    uint32
	OpenTimeout time.Duration
}

// Breaker guards calls to one upstream. Upstream rejections and caller cancellations do not
// count as failures; an open circuit surfaces as checkout.ErrCircuitOpen.
type Breaker[T any] struct {
	name string
	cb   *gobreaker.CircuitBreaker[T]
}

func New[T any](name string, s Settings, logger observability.Logger) *Breaker[T] {
	if s.Failures == 0 {
		s.Failures = defaultFailures
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = defaultOpenTimeout
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	log := logger.With(observability.F("component", "breaker"), observability.F("peer", name))

	return &Breaker[T]{
		name: name,
		cb: gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= s.Failures
			},
			IsSuccessful: countsAsSuccess,
			OnStateChange: func(_ string, from, to gobreaker.State) {
				log.Warn("breaker_state_changed",
					observability.F("from", from.String()),
					observability.F("to", to.String()),
				)
			},
		}),
	}
}

func (b *Breaker[T]) Do(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (T, error) { return fn(ctx) })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return v, fmt.Errorf("%s: %w", b.name, appcheckout.ErrCircuitOpen)
	}
	return v, err
}

func (b *Breaker[T]) State() string { return b.cb.State().String() }

func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var rejected *appcheckout.RejectedError
	return errors.As(err, &rejected) && rejected.Status < 500
}
