package breaker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/troikatech/voice-core/pkg/metrics"
)

// Registry holds one circuit breaker per external service name. It is the
// single piece of deliberately shared mutable state in the pipeline:
// every provider call from every concurrent call session goes through it.
type Registry struct {
	config Config
	logger *zap.Logger

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry applying config to every breaker it creates.
func NewRegistry(config Config, logger *zap.Logger) *Registry {
	return &Registry{
		config:   config.withDefaults(),
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Call wraps fn with the named service's breaker, creating it on first use.
func (r *Registry) Call(ctx context.Context, service string, fn func(context.Context) error) error {
	b := r.get(service)
	before := b.GetState()

	err := b.Call(ctx, fn)

	after := b.GetState()
	if before != after {
		r.logger.Warn("circuit breaker state changed",
			zap.String("service", service),
			zap.String("from", before.String()),
			zap.String("to", after.String()),
		)
	}
	stats := b.GetStats()
	metrics.UpdateCircuitBreaker(service, stats.State, int64(stats.Failures))
	return err
}

// GetStats returns statistics for the named service's breaker, or a zero
// CLOSED view if the service has never been called.
func (r *Registry) GetStats(service string) Stats {
	return r.get(service).GetStats()
}

// AllStats returns statistics for every known breaker.
func (r *Registry) AllStats() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		stats = append(stats, b.GetStats())
	}
	return stats
}

// Reset forces the named service's breaker back to CLOSED.
func (r *Registry) Reset(service string) {
	r.get(service).Reset()
	r.logger.Info("circuit breaker reset", zap.String("service", service))
	metrics.UpdateCircuitBreaker(service, StateClosed.String(), 0)
}

func (r *Registry) get(service string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[service]; ok {
		return b
	}
	b = New(service, r.config)
	r.breakers[service] = b
	return b
}
