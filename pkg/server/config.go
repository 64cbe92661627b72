package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/olta-dev/olta/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// ConnConfig configures each websocket connection.
type ConnConfig struct {
	// ReadTimeout is how long the reader waits for any frame, pongs included,
	// before giving up on the peer.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the interval between pings. It must be shorter
	// than ReadTimeout.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// MaxMessageSize is the largest inbound message accepted, in bytes.
	// Default: 64KB.
	MaxMessageSize int64
}

// DefaultConnConfig returns a ConnConfig with sensible defaults.
func DefaultConnConfig() *ConnConfig {
	return &ConnConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    64 * 1024,
	}
}

// Clone returns a copy of the ConnConfig.
func (c *ConnConfig) Clone() *ConnConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

func (c *ConnConfig) withDefaults() *ConnConfig {
	d := DefaultConnConfig()
	if c == nil {
		return d
	}
	out := c.Clone()
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = d.ReadTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.HeartbeatInterval <= 0 || out.HeartbeatInterval >= out.ReadTimeout {
		out.HeartbeatInterval = out.ReadTimeout / 2
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	return out
}

// ServerConfig configures the gateway.
type ServerConfig struct {
	// Address is the TCP address to listen on.
	// Default: ":8080".
	Address string

	// Token is the shared secret clients pass as the "token" query
	// parameter. Empty disables the check.
	Token string

	// ReadBufferSize and WriteBufferSize size the websocket I/O buffers.
	// Default: 4096 each.
	ReadBufferSize  int
	WriteBufferSize int

	// AllowedOrigins lists the Origin values accepted on upgrade. "*"
	// accepts any origin. Ignored when CheckOrigin is set.
	AllowedOrigins []string

	// CheckOrigin decides whether an upgrade request's Origin is acceptable.
	// Default: AllowedOrigins if set, otherwise SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown when Run's context ends.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// MetricsPath is where Prometheus metrics are served. Empty disables
	// the endpoint.
	MetricsPath string

	// Gatherer backs the metrics endpoint.
	// Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Conn configures each websocket connection.
	Conn *ConnConfig

	// Logger is the structured logger. Nil uses slog.Default().
	Logger *slog.Logger

	// Metrics records gateway metrics. Nil disables them.
	Metrics *metrics.Metrics
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":8080",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		Conn:              DefaultConnConfig(),
	}
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Conn != nil {
		clone.Conn = c.Conn.Clone()
	}
	if c.AllowedOrigins != nil {
		clone.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	}
	return &clone
}

// WithAddress sets the server address and returns the config for chaining.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	c.Address = addr
	return c
}

// WithToken sets the shared secret and returns the config for chaining.
func (c *ServerConfig) WithToken(token string) *ServerConfig {
	c.Token = token
	return c
}

// WithAllowedOrigins sets the accepted origins and returns the config for chaining.
func (c *ServerConfig) WithAllowedOrigins(origins ...string) *ServerConfig {
	c.AllowedOrigins = origins
	return c
}

// WithMetricsPath sets the metrics endpoint and returns the config for chaining.
func (c *ServerConfig) WithMetricsPath(path string) *ServerConfig {
	c.MetricsPath = path
	return c
}

// SameOriginCheck accepts requests without an Origin header and requests
// whose Origin host matches the Host header.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if r.Host == "" {
		return false
	}
	return originURL.Host == r.Host
}

// AllowOrigins returns a CheckOrigin func accepting the listed origins, in
// addition to requests without an Origin header. "*" accepts everything.
func AllowOrigins(origins ...string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimSuffix(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}
}
