package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hammer-fleet/fleetcache/config"
	"github.com/hammer-fleet/fleetcache/store"
	"github.com/hammer-fleet/fleetcache/storeerr"
)

// Registry hands out one limiter per configured class, constructing each
// lazily on first use and caching it for the process lifetime.
//
// Thread-safety: safe for concurrent use. A concurrent first use of the same
// class may construct the limiter twice; only one wins the cache slot and the
// loser is discarded, which is harmless because limiters hold no state of
// their own beyond configuration.
type Registry struct {
	adapter *store.Adapter
	limits  map[string]config.Limit
	logger  *slog.Logger

	mu       sync.Mutex
	limiters map[Class]*Limiter

	metrics *registryMetrics
}

// registryMetrics holds the optional OpenTelemetry instruments. A nil value
// disables metric recording entirely.
type registryMetrics struct {
	// decisions counts every check, attributed by class and outcome.
	decisions metric.Int64Counter
}

// NewRegistry builds a registry over the configured limit classes. The meter
// may be nil, which disables metrics. Instrument-creation failure is logged
// and disables metrics rather than failing construction.
func NewRegistry(cfg config.Config, adapter *store.Adapter, logger *slog.Logger, meter metric.Meter) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		adapter:  adapter,
		limits:   cfg.RateLimits,
		logger:   logger,
		limiters: make(map[Class]*Limiter),
	}

	if meter != nil {
		decisions, err := meter.Int64Counter(
			"fleetcache.ratelimit.decisions",
			metric.WithDescription("Rate limit checks, by class and outcome"),
			metric.WithUnit("1"),
		)
		if err != nil {
			logger.Warn("failed to create rate limit counter, metrics disabled", "error", err)
		} else {
			r.metrics = &registryMetrics{decisions: decisions}
		}
	}

	return r
}

// Check enforces the class limit for the identifier (typically an IP address
// or user id). Unknown classes are a configuration error.
func (r *Registry) Check(ctx context.Context, class Class, identifier string) (Decision, error) {
	limiter, err := r.limiter(class)
	if err != nil {
		return Decision{}, err
	}

	decision, err := limiter.Check(ctx, identifier)
	if err != nil {
		return Decision{}, err
	}

	if r.metrics != nil {
		outcome := "allowed"
		if !decision.Allowed {
			outcome = "denied"
		}
		r.metrics.decisions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("class", string(class)),
			attribute.String("outcome", outcome),
		))
	}

	return decision, nil
}

func (r *Registry) limiter(class Class) (*Limiter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, ok := r.limiters[class]; ok {
		return limiter, nil
	}

	limit, ok := r.limits[string(class)]
	if !ok {
		return nil, storeerr.Configuration("ratelimit.Check",
			fmt.Errorf("%w: %q", storeerr.ErrUnknownLimitClass, class))
	}

	limiter, err := NewLimiter(class, limit, r.adapter, r.logger)
	if err != nil {
		return nil, err
	}

	r.limiters[class] = limiter
	return limiter, nil
}
