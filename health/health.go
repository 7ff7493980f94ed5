// Package health provides the store health probe: a connectivity ping plus a
// SET/GET round-trip self-test. Data-integrity failures are surfaced as an
// explicit unhealthy status, never swallowed.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hammer-fleet/fleetcache/store"
)

// Health status constants represent the operational state of the store.
const (
	// StatusHealthy indicates the store is fully operational.
	StatusHealthy = "healthy"

	// StatusDegraded indicates the store is operational but experiencing issues.
	StatusDegraded = "degraded"

	// StatusUnhealthy indicates the store is not operational.
	StatusUnhealthy = "unhealthy"
)

// Status represents the health state of the store connection.
type Status struct {
	// State is the current health state (healthy, degraded, or unhealthy).
	State string `json:"status"`

	// Message provides a human-readable description of the health status.
	Message string `json:"message,omitempty"`

	// Details contains additional context and diagnostic information.
	Details map[string]any `json:"details,omitempty"`
}

// IsHealthy returns true if the state is StatusHealthy.
func (s Status) IsHealthy() bool {
	return s.State == StatusHealthy
}

// IsUnhealthy returns true if the state is StatusUnhealthy.
func (s Status) IsUnhealthy() bool {
	return s.State == StatusUnhealthy
}

// probeTTL keeps self-test keys from lingering if the delete is lost.
const probeTTL = 30 * time.Second

// Check probes the store: first a ping, then a SET/GET/DEL round-trip under
// a unique probe key. A round-trip mismatch is a data-integrity failure and
// is reported as unhealthy, not swallowed. A missing read replica is not a
// failure; it is noted in the details.
func Check(ctx context.Context, adapter *store.Adapter) Status {
	if !adapter.Ping(ctx) {
		return Status{
			State:   StatusUnhealthy,
			Message: "store ping failed",
		}
	}

	key := fmt.Sprintf("health:probe:%s", uuid.NewString())
	want := uuid.NewString()

	if err := adapter.Writer().Set(ctx, key, want, probeTTL).Err(); err != nil {
		return Status{
			State:   StatusUnhealthy,
			Message: "self-test write failed",
			Details: map[string]any{"error": err.Error()},
		}
	}

	got, err := adapter.Writer().Get(ctx, key).Result()
	if err != nil {
		return Status{
			State:   StatusUnhealthy,
			Message: "self-test read failed",
			Details: map[string]any{"error": err.Error()},
		}
	}

	if got != want {
		return Status{
			State:   StatusUnhealthy,
			Message: "self-test round-trip mismatch",
			Details: map[string]any{"key": key},
		}
	}

	if err := adapter.Writer().Del(ctx, key).Err(); err != nil {
		// The probe key has a TTL; a lost delete degrades, it does not fail.
		return Status{
			State:   StatusDegraded,
			Message: "self-test cleanup failed",
			Details: map[string]any{"error": err.Error()},
		}
	}

	return Status{
		State:   StatusHealthy,
		Message: "store reachable, self-test passed",
		Details: map[string]any{"readReplica": adapter.HasReplica()},
	}
}
