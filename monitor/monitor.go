// Package monitor parses the store's diagnostic INFO payload into a
// structured map and derives memory and connection summaries from it.
//
// Monitoring must never crash the serving path: fetch or parse failures are
// logged and reported as nil/zero values, never as errors.
package monitor

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hammer-fleet/fleetcache/store"
)

// Memory summarizes the store's memory section.
type Memory struct {
	// Used is the current memory usage in bytes.
	Used int64 `json:"used"`

	// Peak is the peak memory usage in bytes.
	Peak int64 `json:"peak"`

	// Percentage is memory usage relative to the configured maximum.
	Percentage float64 `json:"percentage"`
}

// Monitor is the diagnostics facade over the store's INFO output.
type Monitor struct {
	adapter *store.Adapter
	logger  *slog.Logger
}

// New builds the monitoring facade.
func New(adapter *store.Adapter, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{adapter: adapter, logger: logger}
}

// Info fetches and parses the store's diagnostic text blob. It returns nil
// on any fetch or parse failure; callers must nil-check.
func (m *Monitor) Info(ctx context.Context) map[string]map[string]string {
	raw, err := m.adapter.Writer().Info(ctx).Result()
	if err != nil {
		m.logger.Error("failed to fetch store info", "error", err)
		return nil
	}

	return parseInfo(raw)
}

// parseInfo splits the INFO payload into sections keyed by their
// #-delimited headers, each holding its key:value lines. Lines before the
// first header land in a "general" section.
func parseInfo(raw string) map[string]map[string]string {
	result := make(map[string]map[string]string)
	section := "general"

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")

		switch {
		case strings.HasPrefix(line, "#"):
			section = strings.ToLower(strings.TrimSpace(line[1:]))
			result[section] = make(map[string]string)
		case strings.Contains(line, ":"):
			key, value, _ := strings.Cut(line, ":")
			if result[section] == nil {
				result[section] = make(map[string]string)
			}
			result[section][strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}

	return result
}

// MemoryUsage derives the memory summary from the parsed info, zero-valued
// when the section or fields are absent.
func (m *Monitor) MemoryUsage(ctx context.Context) Memory {
	info := m.Info(ctx)
	if info == nil {
		return Memory{}
	}

	memory, ok := info["memory"]
	if !ok {
		return Memory{}
	}

	used, _ := strconv.ParseInt(memory["used_memory"], 10, 64)
	peak, _ := strconv.ParseInt(memory["used_memory_peak"], 10, 64)
	percentage, _ := strconv.ParseFloat(memory["used_memory_percentage"], 64)

	return Memory{Used: used, Peak: peak, Percentage: percentage}
}

// ConnectionCount derives the connected client count from the parsed info,
// zero when absent.
func (m *Monitor) ConnectionCount(ctx context.Context) int {
	info := m.Info(ctx)
	if info == nil {
		return 0
	}

	count, _ := strconv.Atoi(info["clients"]["connected_clients"])
	return count
}
