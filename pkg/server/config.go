package server

import (
	"time"

	"github.com/balco-dev/balco/pkg/router"
)

// SessionConfig holds per-connection tuning.
type SessionConfig struct {
	// ReadTimeout is how long a connection may stay silent, pongs included.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between pings. It should be shorter
	// than ReadTimeout.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// MaxMessageSize is the largest inbound frame accepted.
	// Default: 64KB.
	MaxMessageSize int64

	// SendQueueSize is how many outbound frames may wait for the write loop
	// before the connection is considered too slow and closed.
	// Default: 256.
	SendQueueSize int
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    64 * 1024,
		SendQueueSize:     256,
	}
}

// Clone returns a copy of the SessionConfig.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

func (c *SessionConfig) withDefaults() *SessionConfig {
	d := DefaultSessionConfig()
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
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = d.HeartbeatInterval
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	if out.SendQueueSize <= 0 {
		out.SendQueueSize = d.SendQueueSize
	}
	return out
}

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on.
	// Default: ":1000".
	Address string

	// AllowedOrigin is the single browser origin allowed to connect and to
	// call the HTTP API. "*" allows any origin.
	// Default: "http://localhost:3000".
	AllowedOrigin string

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// ShutdownTimeout bounds graceful shutdown when Run's context ends.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration

	// SessionConfig is the per-connection configuration.
	// Default: DefaultSessionConfig().
	SessionConfig *SessionConfig

	// InboxSize is passed to the router by callers that build it from this
	// config. Default: router.DefaultInboxSize.
	InboxSize int
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:         ":1000",
		AllowedOrigin:   "http://localhost:3000",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		ShutdownTimeout: 10 * time.Second,
		SessionConfig:   DefaultSessionConfig(),
		InboxSize:       router.DefaultInboxSize,
	}
}

// Clone returns a deep copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.SessionConfig = c.SessionConfig.Clone()
	return &clone
}

func (c *ServerConfig) withDefaults() *ServerConfig {
	d := DefaultServerConfig()
	if c == nil {
		return d
	}
	out := c.Clone()
	if out.Address == "" {
		out.Address = d.Address
	}
	if out.AllowedOrigin == "" {
		out.AllowedOrigin = d.AllowedOrigin
	}
	if out.ReadBufferSize <= 0 {
		out.ReadBufferSize = d.ReadBufferSize
	}
	if out.WriteBufferSize <= 0 {
		out.WriteBufferSize = d.WriteBufferSize
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = d.ShutdownTimeout
	}
	if out.InboxSize <= 0 {
		out.InboxSize = d.InboxSize
	}
	out.SessionConfig = out.SessionConfig.withDefaults()
	return out
}
