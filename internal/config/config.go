package config

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/olta-dev/olta/internal/errors"
	"github.com/olta-dev/olta/pkg/persist"
	"github.com/olta-dev/olta/pkg/registry"
	"github.com/olta-dev/olta/pkg/server"
	"github.com/olta-dev/olta/pkg/store"
)

const (
	// DefaultFileName is the configuration file looked for when none is given.
	DefaultFileName = "olta.yaml"

	// DefaultAddress is the default listen address.
	DefaultAddress = ":8080"

	// DefaultSQLiteDSN is the database file used by the default store.
	DefaultSQLiteDSN = "olta.db"

	// DefaultMetricsPath is where metrics are served when enabled.
	DefaultMetricsPath = "/metrics"
)

// Environment variables read by ApplyEnv.
const (
	EnvToken       = "OLTA_TOKEN"
	EnvAddress     = "OLTA_ADDR"
	EnvStore       = "OLTA_STORE"
	EnvDatabaseURL = "DATABASE_URL"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerSection   `yaml:"server"`
	Store    StoreSection    `yaml:"store"`
	Registry RegistrySection `yaml:"registry"`
	Persist  PersistSection  `yaml:"persist"`
	Log      LogSection      `yaml:"log"`
	Metrics  MetricsSection  `yaml:"metrics"`

	// path is the file the config was loaded from, if any.
	path string

	// explicitDriver records that the file named a store driver.
	explicitDriver bool
}

// ServerSection configures the websocket gateway.
type ServerSection struct {
	Address         string        `yaml:"address"`
	Token           string        `yaml:"token"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// StoreSection selects the persistent store.
type StoreSection struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	Migrate  bool   `yaml:"migrate"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// RegistrySection configures the hot-session cache.
type RegistrySection struct {
	MaxHotSessions int           `yaml:"max_hot_sessions"`
	IdleTTL        time.Duration `yaml:"idle_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	LoadTimeout    time.Duration `yaml:"load_timeout"`
}

// PersistSection configures the write-behind queue.
type PersistSection struct {
	SaveTimeout     time.Duration `yaml:"save_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogSection configures the process logger.
type LogSection struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// New returns a Config holding the defaults.
func New() *Config {
	conn := server.DefaultConnConfig()
	srv := server.DefaultServerConfig()
	reg := registry.DefaultConfig()
	return &Config{
		Server: ServerSection{
			Address:         DefaultAddress,
			ReadBufferSize:  srv.ReadBufferSize,
			WriteBufferSize: srv.WriteBufferSize,
			ReadTimeout:     conn.ReadTimeout,
			WriteTimeout:    conn.WriteTimeout,
			Heartbeat:       conn.HeartbeatInterval,
			MaxMessageSize:  conn.MaxMessageSize,
			ShutdownTimeout: srv.ShutdownTimeout,
		},
		Store: StoreSection{
			Driver:  store.DriverSQLite,
			DSN:     DefaultSQLiteDSN,
			Table:   store.DefaultTableName,
			Migrate: true,
		},
		Registry: RegistrySection{
			SweepInterval: reg.SweepInterval,
			LoadTimeout:   reg.LoadTimeout,
		},
		Persist: PersistSection{
			SaveTimeout:     persist.DefaultConfig().SaveTimeout,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogSection{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsSection{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
}

// Load reads path on top of the defaults. A missing file is not an error;
// the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFileName
	}
	cfg, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads path on top of the defaults. The file must exist.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("E100").WithDetail(path).Wrap(err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := New()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.New("E101").Wrap(err)
	}

	var probe struct {
		Store struct {
			Driver string `yaml:"driver"`
		} `yaml:"store"`
	}
	if err := yaml.Unmarshal(data, &probe); err == nil && probe.Store.Driver != "" {
		cfg.explicitDriver = true
	}
	return cfg, nil
}

// Path returns the file the config was loaded from, or "".
func (c *Config) Path() string {
	return c.path
}

// ApplyEnv overrides settings from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvToken); ok {
		c.Server.Token = v
	}
	if v, ok := lookup(EnvAddress); ok && v != "" {
		c.Server.Address = v
	}
	driverFromEnv := false
	if v, ok := lookup(EnvStore); ok && v != "" {
		c.Store.Driver = strings.ToLower(v)
		driverFromEnv = true
	}
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		if !driverFromEnv && !c.explicitDriver {
			c.Store.Driver = store.DriverPostgres
		}
		if c.Store.Driver == store.DriverPostgres || c.Store.Driver == store.DriverSQLite {
			c.Store.DSN = v
		}
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case store.DriverMemory:
	case store.DriverSQLite, store.DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("E103").WithDetail(fmt.Sprintf("store.driver is %q", c.Store.Driver))
		}
	case store.DriverS3:
		if c.Store.Bucket == "" {
			return errors.New("E104")
		}
	default:
		return errors.New("E102").WithDetail(fmt.Sprintf("store.driver is %q", c.Store.Driver))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return errors.New("E105").Wrap(err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("E105").WithDetail(fmt.Sprintf("log.format is %q", c.Log.Format))
	}

	for name, d := range map[string]time.Duration{
		"server.read_timeout":      c.Server.ReadTimeout,
		"server.write_timeout":     c.Server.WriteTimeout,
		"server.heartbeat":         c.Server.Heartbeat,
		"server.shutdown_timeout":  c.Server.ShutdownTimeout,
		"persist.save_timeout":     c.Persist.SaveTimeout,
		"persist.shutdown_timeout": c.Persist.ShutdownTimeout,
	} {
		if d <= 0 {
			return errors.New("E106").WithDetail(fmt.Sprintf("%s is %s", name, d))
		}
	}
	if c.Server.Heartbeat >= c.Server.ReadTimeout {
		return errors.New("E106").WithDetail(fmt.Sprintf(
			"server.heartbeat (%s) must be shorter than server.read_timeout (%s)",
			c.Server.Heartbeat, c.Server.ReadTimeout))
	}
	if c.Registry.IdleTTL < 0 {
		return errors.New("E106").WithDetail("registry.idle_ttl is negative")
	}

	if c.Registry.MaxHotSessions < 0 {
		return errors.New("E107").WithDetail("registry.max_hot_sessions is negative")
	}
	if c.Server.MaxMessageSize < 0 || c.Server.ReadBufferSize < 0 || c.Server.WriteBufferSize < 0 {
		return errors.New("E107").WithDetail("server buffer and message sizes must not be negative")
	}
	return nil
}

// NewLogger builds the process logger described by the log section.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}

// StoreConfig returns the options for store.Open.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Driver:   c.Store.Driver,
		DSN:      c.Store.DSN,
		Table:    c.Store.Table,
		Bucket:   c.Store.Bucket,
		Prefix:   c.Store.Prefix,
		Region:   c.Store.Region,
		Endpoint: c.Store.Endpoint,
		Migrate:  c.Store.Migrate,
	}
}

// RegistryConfig returns the registry options. Logger, metrics and tracer
// are left for the caller.
func (c *Config) RegistryConfig() registry.Config {
	return registry.Config{
		MaxHotSessions: c.Registry.MaxHotSessions,
		IdleTTL:        c.Registry.IdleTTL,
		SweepInterval:  c.Registry.SweepInterval,
		LoadTimeout:    c.Registry.LoadTimeout,
	}
}

// PersistConfig returns the queue options.
func (c *Config) PersistConfig() persist.Config {
	return persist.Config{SaveTimeout: c.Persist.SaveTimeout}
}

// ServerConfig returns the gateway options.
func (c *Config) ServerConfig() *server.ServerConfig {
	sc := server.DefaultServerConfig().
		WithAddress(c.Server.Address).
		WithToken(c.Server.Token).
		WithAllowedOrigins(c.Server.AllowedOrigins...)
	sc.ReadBufferSize = c.Server.ReadBufferSize
	sc.WriteBufferSize = c.Server.WriteBufferSize
	sc.ShutdownTimeout = c.Server.ShutdownTimeout
	sc.Conn = &server.ConnConfig{
		ReadTimeout:       c.Server.ReadTimeout,
		WriteTimeout:      c.Server.WriteTimeout,
		HeartbeatInterval: c.Server.Heartbeat,
		MaxMessageSize:    c.Server.MaxMessageSize,
	}
	if c.Metrics.Enabled {
		sc.MetricsPath = c.Metrics.Path
		if sc.MetricsPath == "" {
			sc.MetricsPath = DefaultMetricsPath
		}
	}
	return sc
}
