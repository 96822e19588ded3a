package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/balco-dev/balco/internal/errors"
	"github.com/balco-dev/balco/pkg/roomstore"
	"github.com/balco-dev/balco/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "balco.json"

	// DefaultPort is the default listening port.
	DefaultPort = 1000

	// DefaultAllowedOrigin is the browser origin allowed by default.
	DefaultAllowedOrigin = "http://localhost:3000"

	// DefaultSQLitePath is the default database file for the sqlite store.
	DefaultSQLitePath = "data/rooms.db"

	// DefaultS3Key is the default object key for the s3 store.
	DefaultS3Key = "rooms.json"
)

// Store kinds.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreS3     = "s3"
	StoreMemory = "memory"
)

// Config represents the complete balco.json configuration.
type Config struct {
	// Port is the listening port.
	Port int `json:"port,omitempty"`

	// Host is the interface to bind. Empty binds all interfaces.
	Host string `json:"host,omitempty"`

	// AllowedOrigin is the single browser origin allowed to connect. "*"
	// allows any origin.
	AllowedOrigin string `json:"allowedOrigin,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `json:"shutdownTimeout,omitempty"`

	// Store selects and configures the durable room store.
	Store StoreConfig `json:"store"`

	// Session contains per-connection tuning.
	Session SessionConfig `json:"session"`

	// Log configures the process logger.
	Log LogConfig `json:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// StoreConfig selects the room store backend.
type StoreConfig struct {
	// Kind is file, sqlite, s3 or memory.
	Kind string `json:"kind,omitempty"`

	// DataFile is the file backend's path.
	DataFile string `json:"dataFile,omitempty"`

	// Format is json or yaml. Empty infers it from DataFile's extension.
	Format string `json:"format,omitempty"`

	// SQLitePath is the sqlite backend's database file.
	SQLitePath string `json:"sqlitePath,omitempty"`

	// S3 configures the s3 backend.
	S3 S3Config `json:"s3"`
}

// S3Config configures the s3 backend. Credentials come from the AWS default
// chain.
type S3Config struct {
	Bucket   string `json:"bucket,omitempty"`
	Key      string `json:"key,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`

	// UsePathStyle addresses the bucket in the path, as S3-compatible
	// stores such as MinIO require.
	UsePathStyle bool `json:"usePathStyle,omitempty"`

	// BreakerFailures is how many consecutive failed writes open the
	// circuit breaker.
	BreakerFailures uint32 `json:"breakerFailures,omitempty"`

	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout Duration `json:"breakerTimeout,omitempty"`
}

// SessionConfig contains per-connection tuning.
type SessionConfig struct {
	ReadTimeout       Duration `json:"readTimeout,omitempty"`
	WriteTimeout      Duration `json:"writeTimeout,omitempty"`
	HeartbeatInterval Duration `json:"heartbeatInterval,omitempty"`
	MaxMessageSize    int64    `json:"maxMessageSize,omitempty"`
	SendQueueSize     int      `json:"sendQueueSize,omitempty"`

	// InboxSize is how many events may wait for the router.
	InboxSize int `json:"inboxSize,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	sess := server.DefaultSessionConfig()
	srv := server.DefaultServerConfig()
	return &Config{
		Port:            DefaultPort,
		AllowedOrigin:   DefaultAllowedOrigin,
		ShutdownTimeout: Duration(srv.ShutdownTimeout),
		Store: StoreConfig{
			Kind:       StoreFile,
			DataFile:   roomstore.DefaultDataFile,
			SQLitePath: DefaultSQLitePath,
			S3: S3Config{
				Key:             DefaultS3Key,
				BreakerFailures: 5,
				BreakerTimeout:  Duration(30 * time.Second),
			},
		},
		Session: SessionConfig{
			ReadTimeout:       Duration(sess.ReadTimeout),
			WriteTimeout:      Duration(sess.WriteTimeout),
			HeartbeatInterval: Duration(sess.HeartbeatInterval),
			MaxMessageSize:    sess.MaxMessageSize,
			SendQueueSize:     sess.SendQueueSize,
			InboxSize:         srv.InboxSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads balco.json from dir. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path. A missing
// file yields the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, errors.New(errors.CodeConfigRead).Wrap(err).
			WithDetail("Could not read " + path)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(errors.CodeConfigParse).
			WithDetail("Failed to parse " + path + ": " + err.Error()).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// Resolve loads path, applies the process environment and validates.
func Resolve(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the path where the config was loaded from, or "" if the
// defaults were used.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for fields the file left empty.
func (c *Config) applyDefaults() {
	d := New()
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.AllowedOrigin == "" {
		c.AllowedOrigin = d.AllowedOrigin
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}

	if c.Store.Kind == "" {
		c.Store.Kind = d.Store.Kind
	}
	if c.Store.DataFile == "" {
		c.Store.DataFile = d.Store.DataFile
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = d.Store.SQLitePath
	}
	if c.Store.S3.Key == "" {
		c.Store.S3.Key = d.Store.S3.Key
	}
	if c.Store.S3.BreakerFailures == 0 {
		c.Store.S3.BreakerFailures = d.Store.S3.BreakerFailures
	}
	if c.Store.S3.BreakerTimeout == 0 {
		c.Store.S3.BreakerTimeout = d.Store.S3.BreakerTimeout
	}

	if c.Session.ReadTimeout == 0 {
		c.Session.ReadTimeout = d.Session.ReadTimeout
	}
	if c.Session.WriteTimeout == 0 {
		c.Session.WriteTimeout = d.Session.WriteTimeout
	}
	if c.Session.HeartbeatInterval == 0 {
		c.Session.HeartbeatInterval = d.Session.HeartbeatInterval
	}
	if c.Session.MaxMessageSize == 0 {
		c.Session.MaxMessageSize = d.Session.MaxMessageSize
	}
	if c.Session.SendQueueSize == 0 {
		c.Session.SendQueueSize = d.Session.SendQueueSize
	}
	if c.Session.InboxSize == 0 {
		c.Session.InboxSize = d.Session.InboxSize
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// ApplyEnv overrides fields from environment variables read through
// lookup, typically os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.New(errors.CodeInvalidPort).
				WithDetailf("PORT=%q is not a number between 1 and 65535", v).
				WithSuggestion("Set PORT to a free TCP port, e.g. PORT=1000")
		}
		c.Port = port
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"BALCO_HOST", &c.Host},
		{"BALCO_ALLOWED_ORIGIN", &c.AllowedOrigin},
		{"BALCO_STORE", &c.Store.Kind},
		{"BALCO_DATA_FILE", &c.Store.DataFile},
		{"BALCO_STORE_FORMAT", &c.Store.Format},
		{"BALCO_SQLITE_PATH", &c.Store.SQLitePath},
		{"BALCO_S3_BUCKET", &c.Store.S3.Bucket},
		{"BALCO_S3_KEY", &c.Store.S3.Key},
		{"BALCO_S3_REGION", &c.Store.S3.Region},
		{"BALCO_S3_ENDPOINT", &c.Store.S3.Endpoint},
		{"BALCO_LOG_LEVEL", &c.Log.Level},
		{"BALCO_LOG_FORMAT", &c.Log.Format},
	}
	for _, s := range strs {
		if v, ok := lookup(s.name); ok && v != "" {
			*s.dst = v
		}
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New(errors.CodeInvalidPort).
			WithDetailf("Port %d is not between 1 and 65535", c.Port)
	}

	switch c.Store.Kind {
	case StoreFile:
		switch roomstore.Format(c.Store.Format) {
		case "", roomstore.FormatJSON, roomstore.FormatYAML:
		default:
			return errors.New(errors.CodeInvalidFormat).
				WithDetailf("Store format %q is not json or yaml", c.Store.Format)
		}
	case StoreSQLite, StoreMemory:
	case StoreS3:
		if c.Store.S3.Bucket == "" {
			return errors.New(errors.CodeMissingS3Bucket).
				WithSuggestion("Set BALCO_S3_BUCKET or store.s3.bucket in " + ConfigFileName)
		}
	default:
		return errors.New(errors.CodeInvalidStore).
			WithDetailf("Store kind %q is not one of file, sqlite, s3 or memory", c.Store.Kind)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New(errors.CodeInvalidLogFmt).
			WithDetailf("Log format %q is not text or json", c.Log.Format)
	}

	s := c.Session
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.HeartbeatInterval < 0 ||
		s.MaxMessageSize < 0 || s.SendQueueSize < 0 || s.InboxSize < 0 || c.ShutdownTimeout < 0 {
		return errors.New(errors.CodeInvalidSession)
	}
	if s.HeartbeatInterval > 0 && s.ReadTimeout > 0 && s.HeartbeatInterval >= s.ReadTimeout {
		return errors.New(errors.CodeInvalidSession).
			WithDetailf("Heartbeat interval %s must be shorter than read timeout %s",
				s.HeartbeatInterval, s.ReadTimeout)
	}
	return nil
}

// SlogLevel parses the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, errors.New(errors.CodeInvalidLogLevel).
			WithDetailf("Log level %q is not one of debug, info, warn or error", c.Log.Level)
	}
	return level, nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ServerConfig converts the configuration for server.New.
func (c *Config) ServerConfig() *server.ServerConfig {
	cfg := server.DefaultServerConfig()
	cfg.Address = c.Address()
	cfg.AllowedOrigin = c.AllowedOrigin
	cfg.ShutdownTimeout = c.ShutdownTimeout.Std()
	cfg.InboxSize = c.Session.InboxSize
	cfg.SessionConfig = &server.SessionConfig{
		ReadTimeout:       c.Session.ReadTimeout.Std(),
		WriteTimeout:      c.Session.WriteTimeout.Std(),
		HeartbeatInterval: c.Session.HeartbeatInterval.Std(),
		MaxMessageSize:    c.Session.MaxMessageSize,
		SendQueueSize:     c.Session.SendQueueSize,
	}
	return cfg
}

// String summarizes the store selection for logs.
func (s StoreConfig) String() string {
	switch s.Kind {
	case StoreFile:
		return fmt.Sprintf("file:%s", s.DataFile)
	case StoreSQLite:
		return fmt.Sprintf("sqlite:%s", s.SQLitePath)
	case StoreS3:
		return fmt.Sprintf("s3://%s/%s", s.S3.Bucket, s.S3.Key)
	default:
		return s.Kind
	}
}
