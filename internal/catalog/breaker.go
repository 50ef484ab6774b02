package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	svcErr "github.com/oggyb/moviematch/internal/errors"
	"github.com/oggyb/moviematch/internal/metrics"
)

// BreakerSettings tunes the breaker around a catalog.
type BreakerSettings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// MinRequests and FailureRatio decide when the breaker opens.
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings returns the settings used by the server.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:         "catalog",
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// BreakerCatalog guards a Catalog with a circuit breaker. Failures surface
// as ErrAlgorithmUnavailable so callers can fall back.
type BreakerCatalog struct {
	next Catalog
	cb   *gobreaker.CircuitBreaker[any]
	name string
	log  *slog.Logger
}

// NewBreakerCatalog wraps next.
func NewBreakerCatalog(next Catalog, s BreakerSettings, log *slog.Logger) *BreakerCatalog {
	if log == nil {
		log = slog.Default()
	}
	metrics.CircuitBreakerState.WithLabelValues(s.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		// A missing movie or a caller giving up says nothing about catalog health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, svcErr.ErrMovieNotFound) ||
				errors.Is(err, context.Canceled)
		},
	})

	return &BreakerCatalog{next: next, cb: cb, name: s.Name, log: log}
}

// State reports the breaker state, mainly for health checks.
func (b *BreakerCatalog) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerCatalog) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return result, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, fmt.Errorf("%s: %v: %w", b.name, err, svcErr.ErrAlgorithmUnavailable)
	case errors.Is(err, svcErr.ErrMovieNotFound), errors.Is(err, context.Canceled):
		return nil, err
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, fmt.Errorf("%s: %v: %w", b.name, err, svcErr.ErrAlgorithmUnavailable)
	}
}

func (b *BreakerCatalog) Get(ctx context.Context, id int64) (Movie, error) {
	m, err := castResult[Movie](b.execute(func() (any, error) {
		m, err := b.next.Get(ctx, id)
		return &m, err
	}))
	if err != nil {
		return Movie{}, err
	}
	return *m, nil
}

func (b *BreakerCatalog) Random(ctx context.Context, n int, f Filter) ([]Movie, error) {
	movies, err := castResult[[]Movie](b.execute(func() (any, error) {
		movies, err := b.next.Random(ctx, n, f)
		return &movies, err
	}))
	if err != nil {
		return nil, err
	}
	return *movies, nil
}

func (b *BreakerCatalog) Similar(ctx context.Context, id int64, n int) ([]Movie, error) {
	movies, err := castResult[[]Movie](b.execute(func() (any, error) {
		movies, err := b.next.Similar(ctx, id, n)
		return &movies, err
	}))
	if err != nil {
		return nil, err
	}
	return *movies, nil
}

// castResult type-checks a breaker result.
func castResult[T any](result any, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
