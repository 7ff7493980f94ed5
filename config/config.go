// Package config provides loading and parsing of the fleetcache configuration
// document. The document defines, per data structure, TTLs, maximum lengths,
// and rate-limit classes. It is loaded once at construction and never
// hot-reloaded; changing a value requires a process restart.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hammer-fleet/fleetcache/storeerr"
)

// Environment variables holding store credentials.
const (
	// EnvRedisURL names the required primary store endpoint variable.
	EnvRedisURL = "FLEET_REDIS_URL"

	// EnvRedisToken names the required primary store credential variable.
	EnvRedisToken = "FLEET_REDIS_TOKEN"

	// EnvRedisReadOnlyToken names the optional read-replica credential variable.
	EnvRedisReadOnlyToken = "FLEET_REDIS_READONLY_TOKEN"
)

// Credentials holds the environment-supplied store credentials.
type Credentials struct {
	// URL is the store endpoint, in redis URL form (redis://host:port/db).
	URL string

	// Token is the primary (read-write) credential.
	Token string

	// ReadOnlyToken is the optional read-replica credential. Empty means no
	// replica is configured and all reads go to the primary.
	ReadOnlyToken string
}

// FromEnv resolves credentials from the environment. Both EnvRedisURL and
// EnvRedisToken must be present; a missing one is a configuration error and
// the process should not start degraded.
func FromEnv() (Credentials, error) {
	creds := Credentials{
		URL:           os.Getenv(EnvRedisURL),
		Token:         os.Getenv(EnvRedisToken),
		ReadOnlyToken: os.Getenv(EnvRedisReadOnlyToken),
	}

	var missing []string
	if creds.URL == "" {
		missing = append(missing, EnvRedisURL)
	}
	if creds.Token == "" {
		missing = append(missing, EnvRedisToken)
	}

	if len(missing) > 0 {
		return Credentials{}, storeerr.Configuration("config.FromEnv",
			fmt.Errorf("%w: %v", storeerr.ErrMissingCredentials, missing))
	}

	return creds, nil
}

// Connection configures the retry policy shared by every store operation.
type Connection struct {
	// MaxRetries is the number of retries on transient connection failures.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// BackoffMin is the base backoff between retries. The effective backoff
	// is min(retry * BackoffMin, BackoffMax).
	// Format: Go duration string (e.g., "100ms").
	BackoffMin string `yaml:"backoff_min,omitempty"`

	// BackoffMax caps the backoff between retries.
	// Format: Go duration string (e.g., "3s").
	BackoffMax string `yaml:"backoff_max,omitempty"`
}

// GetMaxRetries returns the configured retry count or the default value.
func (c Connection) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

// GetBackoffMin returns the base backoff or the default value.
// Returns the default if the value is not set or invalid.
func (c Connection) GetBackoffMin() time.Duration {
	d, err := time.ParseDuration(c.BackoffMin)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// GetBackoffMax returns the backoff cap or the default value.
// Returns the default if the value is not set or invalid.
func (c Connection) GetBackoffMax() time.Duration {
	d, err := time.ParseDuration(c.BackoffMax)
	if err != nil || d <= 0 {
		return 3 * time.Second
	}
	return d
}

// Structure configures one TTL-bounded data structure.
type Structure struct {
	// TTL is the lifetime of the structure, in seconds.
	TTL int `yaml:"ttl,omitempty"`

	// MaxLength bounds list-shaped structures. Zero means unbounded.
	MaxLength int `yaml:"max_length,omitempty"`
}

// GetTTL returns the configured TTL or the provided fallback.
func (s Structure) GetTTL(fallback time.Duration) time.Duration {
	if s.TTL <= 0 {
		return fallback
	}
	return time.Duration(s.TTL) * time.Second
}

// GetMaxLength returns the configured max length or the provided fallback.
func (s Structure) GetMaxLength(fallback int) int {
	if s.MaxLength <= 0 {
		return fallback
	}
	return s.MaxLength
}

// Limit configures one rate-limit class as a (requests, window) pair.
type Limit struct {
	// Requests is the number of operations admitted per window.
	Requests int `yaml:"requests"`

	// Window is the sliding window length, in seconds.
	Window int `yaml:"window"`
}

// GetWindow returns the window as a duration.
func (l Limit) GetWindow() time.Duration {
	return time.Duration(l.Window) * time.Second
}

// Config is the fleetcache configuration document.
type Config struct {
	Connection Connection `yaml:"connection,omitempty"`

	Sessions             Structure `yaml:"sessions,omitempty"`
	APICache             Structure `yaml:"api_cache,omitempty"`
	TelemetryBuffer      Structure `yaml:"telemetry_buffer,omitempty"`
	TelemetryStream      Structure `yaml:"telemetry_stream,omitempty"`
	WebSocketConnections Structure `yaml:"websocket_connections,omitempty"`
	WebSocketRooms       Structure `yaml:"websocket_rooms,omitempty"`
	Notifications        Structure `yaml:"notifications,omitempty"`
	RobotStatus          Structure `yaml:"robot_status,omitempty"`

	// RateLimits maps a limit class name (api, auth, telemetry) to its pair.
	RateLimits map[string]Limit `yaml:"rate_limits,omitempty"`
}

// Default returns the configuration the platform ships with.
func Default() Config {
	return Config{
		Connection: Connection{
			MaxRetries: 3,
			BackoffMin: "100ms",
			BackoffMax: "3s",
		},
		Sessions:             Structure{TTL: 86400},
		APICache:             Structure{TTL: 300},
		TelemetryBuffer:      Structure{TTL: 3600, MaxLength: 100},
		TelemetryStream:      Structure{MaxLength: 10000},
		WebSocketConnections: Structure{TTL: 3600},
		WebSocketRooms:       Structure{TTL: 3600},
		Notifications:        Structure{TTL: 604800, MaxLength: 50},
		RobotStatus:          Structure{TTL: 60},
		RateLimits: map[string]Limit{
			"api":       {Requests: 100, Window: 60},
			"auth":      {Requests: 5, Window: 900},
			"telemetry": {Requests: 1000, Window: 60},
		},
	}
}

// Load reads a yaml configuration file over the defaults. Values absent from
// the file keep their default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, storeerr.Configuration("config.Load",
			fmt.Errorf("read config file: %w", err))
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, storeerr.Configuration("config.Load",
			fmt.Errorf("parse config file: %w", err))
	}

	return cfg, nil
}
