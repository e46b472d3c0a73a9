package fetch

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/r3co87/iris/internal/metrics"
	"github.com/r3co87/iris/internal/model"
)

// breakerRegistry hands out one gobreaker.CircuitBreaker per registrable domain,
// opening on repeated browser_error/connection_error outcomes so a single
// struggling origin can't burn the whole retry budget domain-wide. Grounded
// on Tsuchiya2-catchup-feed-backend's internal/resilience/circuitbreaker.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *zap.Logger
}

func newBreakerRegistry(logger *zap.Logger) *breakerRegistry {
	return &breakerRegistry{breakers: make(map[string]*gobreaker.CircuitBreaker), logger: logger}
}

func (r *breakerRegistry) forDomain(domain string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[domain]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        domain,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var ferr *model.FetchError
			if errors.As(err, &ferr) {
				return ferr.Kind != model.ErrBrowser && ferr.Kind != model.ErrConnection
			}
			return false
		},
		OnStateChange: func(name string, _ gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed", zap.String("domain", name), zap.String("to", to.String()))
			metrics.ObserveCircuitBreakerStateChange(name, to.String())
		},
	})
	r.breakers[domain] = b
	return b
}
