package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/server"
)

// Defaults.
const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 4380
	DefaultReadTimeout     = 30
	DefaultWriteTimeout    = 60
	DefaultShutdownTimeout = 5
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Config sources.
const (
	SourceDefault = "default"
	SourceEnv     = "env"
	SourceGlobal  = "global"
	SourceLocal   = "local"
	SourceFlag    = "flag"
)

// ServerConfig holds interceptor server settings. Timeouts are seconds.
type ServerConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	ReadTimeout     int    `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    int    `yaml:"writeTimeout" json:"writeTimeout"`
	ShutdownTimeout int    `yaml:"shutdownTimeout" json:"shutdownTimeout"`

	LogLevel  string `yaml:"logLevel" json:"logLevel"`
	LogFormat string `yaml:"logFormat" json:"logFormat"`
	LogFile   string `yaml:"logFile,omitempty" json:"logFile,omitempty"`

	// TokenSecret signs and verifies session tokens. RequireAuth refuses to
	// start without one.
	TokenSecret string `yaml:"tokenSecret,omitempty" json:"-"`
	RequireAuth bool   `yaml:"requireAuth" json:"requireAuth"`

	// Sources tracks where each value came from.
	Sources map[string]string `yaml:"-" json:"-"`
	// SetFields records keys present in a loaded file, so an explicit
	// false can override a true.
	SetFields map[string]bool `yaml:"-" json:"-"`
}

// NewDefault returns a ServerConfig with default values.
func NewDefault() *ServerConfig {
	cfg := &ServerConfig{
		Host:            DefaultHost,
		Port:            DefaultPort,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		Sources:         make(map[string]string),
	}
	for _, key := range []string{"host", "port", "readTimeout", "writeTimeout", "shutdownTimeout", "logLevel", "logFormat", "requireAuth"} {
		cfg.Sources[key] = SourceDefault
	}
	return cfg
}

// Validate checks ranges and cross-field constraints.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range (0-65535)", c.Port)
	}
	for _, t := range []struct {
		name  string
		value int
	}{
		{"readTimeout", c.ReadTimeout},
		{"writeTimeout", c.WriteTimeout},
		{"shutdownTimeout", c.ShutdownTimeout},
	} {
		if t.value < 0 || t.value > 3600 {
			return fmt.Errorf("%s %d is out of range (0-3600)", t.name, t.value)
		}
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown logLevel %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logFormat %q", c.LogFormat)
	}
	if c.RequireAuth && c.TokenSecret == "" {
		return fmt.Errorf("requireAuth is set but no tokenSecret is configured")
	}
	return nil
}

// Addr is the listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server converts to the server package configuration.
func (c *ServerConfig) Server() server.Config {
	cfg := server.Config{
		ReadTimeout:     time.Duration(c.ReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(c.WriteTimeout) * time.Second,
		ShutdownTimeout: time.Duration(c.ShutdownTimeout) * time.Second,
	}
	if c.TokenSecret != "" {
		cfg.TokenSecret = []byte(c.TokenSecret)
	}
	return cfg
}

// Logging converts to a logging configuration.
func (c *ServerConfig) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.LogLevel)
	cfg.Format = logging.ParseFormat(c.LogFormat)
	if c.LogFile != "" {
		cfg.File = logging.FileConfig{Path: c.LogFile}
	}
	return cfg
}
