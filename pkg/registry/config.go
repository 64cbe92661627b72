package registry

import (
	"log/slog"
	"time"

	"github.com/olta-dev/olta/pkg/metrics"
	"go.opentelemetry.io/otel/trace"
)

// Config configures a Registry.
type Config struct {
	// MaxHotSessions caps the number of sessions kept in memory. Sessions
	// with subscribers are never evicted, so the cap can be exceeded.
	// Zero means no cap.
	MaxHotSessions int

	// IdleTTL evicts sessions without subscribers that have not been used
	// for this long. Zero disables idle eviction.
	IdleTTL time.Duration

	// SweepInterval is how often idle sessions are looked for.
	// Default: 1 minute.
	SweepInterval time.Duration

	// LoadTimeout bounds a store read for a cold session.
	// Default: 10 seconds.
	LoadTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Tracer defaults to the global tracer provider's "olta/registry" tracer.
	Tracer trace.Tracer
}

// DefaultConfig returns a Config with eviction disabled.
func DefaultConfig() Config {
	return Config{
		SweepInterval: time.Minute,
		LoadTimeout:   10 * time.Second,
	}
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	// HotSessions is the number of sessions in memory.
	HotSessions int

	// Subscribers is the number of registered subscribers across sessions.
	Subscribers int

	// DirtySessions is the number of sessions with mutations not yet
	// confirmed written.
	DirtySessions int
}
