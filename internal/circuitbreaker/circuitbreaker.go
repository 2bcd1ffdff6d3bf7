// Package circuitbreaker wraps sony/gobreaker/v2 with the generic, per-call
// signature the adapter infra packages use around flaky venue REST calls.
package circuitbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Settings mirrors the subset of gobreaker.Settings callers tune in practice.
type Settings struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64 // trip the breaker once failures/total reaches or exceeds this
	MinRequests  uint32  // minimum requests in a window before FailureRatio applies
}

// DefaultSettings returns sane defaults for a venue REST call: trip after
// 60% failures over at least 5 requests, stay open 5s, probe with 1 request.
func DefaultSettings(name string) Settings {
	return Settings{
		Name:         name,
		MaxRequests:  1,
		Interval:     30 * time.Second,
		Timeout:      5 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

// Breaker wraps a typed call behind a gobreaker circuit.
type Breaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New builds a Breaker for results of type T.
func New[T any](settings Settings) *Breaker[T] {
	st := gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
	}
	return &Breaker[T]{cb: gobreaker.NewCircuitBreaker[T](st)}
}

// Execute runs fn through the breaker. When the breaker is open, fn is never
// invoked and gobreaker.ErrOpenState is returned.
func (b *Breaker[T]) Execute(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	return b.cb.Execute(func() (T, error) {
		return fn(ctx)
	})
}

// State exposes the current breaker state for health checks.
func (b *Breaker[T]) State() gobreaker.State {
	return b.cb.State()
}

// Counts exposes the current rolling counts, useful for metrics.
func (b *Breaker[T]) Counts() gobreaker.Counts {
	return b.cb.Counts()
}
