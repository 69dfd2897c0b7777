// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/NERVsystems/overpassqb/pkg/export"
	"github.com/NERVsystems/overpassqb/pkg/osm"
	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
	"github.com/NERVsystems/overpassqb/pkg/server"
	"github.com/NERVsystems/overpassqb/pkg/tracing"
)

// EnvPrefix is the prefix of every environment override, for example
// OVERPASSQB_OVERPASS_BASE_URL.
const EnvPrefix = "OVERPASSQB"

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Overpass   OverpassConfig    `mapstructure:"overpass"`
	Nominatim  osm.ServiceConfig `mapstructure:"nominatim"`
	Taginfo    osm.ServiceConfig `mapstructure:"taginfo"`
	Export     export.Config     `mapstructure:"export"`
	Presets    PresetsConfig     `mapstructure:"presets"`
	Monitoring MonitoringConfig  `mapstructure:"monitoring"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Tracing    tracing.Config    `mapstructure:"tracing"`
	UserAgent  string            `mapstructure:"user_agent"`
}

// ServerConfig holds MCP and REST server configuration.
type ServerConfig struct {
	// Transport is "stdio" or "http".
	Transport string                     `mapstructure:"transport"`
	HTTP      server.HTTPTransportConfig `mapstructure:",squash"`
}

// OverpassConfig holds Overpass interpreter configuration.
type OverpassConfig struct {
	osm.OverpassOptions `mapstructure:",squash"`
	// DefaultTimeout is the [timeout:] used when a request sets none.
	DefaultTimeout int `mapstructure:"default_timeout"`
}

// PresetsConfig holds preset directory configuration.
type PresetsConfig struct {
	Dir      string        `mapstructure:"dir"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// MonitoringConfig holds Prometheus metrics configuration.
type MonitoringConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values on v.
func Defaults(v *viper.Viper) {
	// Server defaults
	transport := server.DefaultHTTPTransportConfig()
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.addr", transport.Addr)
	v.SetDefault("server.base_url", transport.BaseURL)
	v.SetDefault("server.auth_type", transport.AuthType)
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.sse_endpoint", transport.SSEEndpoint)
	v.SetDefault("server.msg_endpoint", transport.MsgEndpoint)
	v.SetDefault("server.rate_limit", transport.RateLimit)
	v.SetDefault("server.rate_burst", transport.RateBurst)
	v.SetDefault("server.max_request_size", transport.MaxRequestSize)
	v.SetDefault("server.max_header_bytes", transport.MaxHeaderBytes)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.force_https", false)

	// Remote services
	v.SetDefault("overpass.base_url", osm.OverpassBaseURL)
	v.SetDefault("overpass.rps", 1.0)
	v.SetDefault("overpass.burst", 2)
	v.SetDefault("overpass.cache_size", osm.DefaultOverpassCacheSize)
	v.SetDefault("overpass.default_timeout", queries.DefaultTimeout)
	v.SetDefault("nominatim.base_url", osm.NominatimBaseURL)
	v.SetDefault("nominatim.rps", 1.0)
	v.SetDefault("nominatim.burst", 1)
	v.SetDefault("taginfo.base_url", osm.TaginfoBaseURL)
	v.SetDefault("taginfo.rps", 2.0)
	v.SetDefault("taginfo.burst", 4)
	v.SetDefault("user_agent", osm.DefaultUserAgent)

	// Export defaults
	v.SetDefault("export.type", export.TypeNone)
	v.SetDefault("export.local.dir", "./exports")

	// Preset defaults
	v.SetDefault("presets.dir", "")
	v.SetDefault("presets.watch", true)
	v.SetDefault("presets.debounce", 300*time.Millisecond)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.addr", ":9090")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Tracing defaults
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.environment", "")
}

// Load loads configuration from environment and config file. A nil v uses
// the global viper instance so flags bound with viper.BindPFlag apply.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	Defaults(v)

	// Environment variable binding
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("overpassqb")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/overpassqb")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("unknown server transport: %s", c.Server.Transport)
	}

	switch c.Server.HTTP.AuthType {
	case "", "none":
	case "bearer", "basic":
		if c.Server.HTTP.AuthToken == "" {
			return fmt.Errorf("%s auth enabled but no auth token specified", c.Server.HTTP.AuthType)
		}
	default:
		return fmt.Errorf("unknown auth type: %s", c.Server.HTTP.AuthType)
	}

	if (c.Server.HTTP.TLSCertFile == "") != (c.Server.HTTP.TLSKeyFile == "") {
		return errors.New("TLS requires both cert and key files")
	}

	for name, svc := range map[string]osm.ServiceConfig{
		"overpass":  c.Overpass.ServiceConfig,
		"nominatim": c.Nominatim,
		"taginfo":   c.Taginfo,
	} {
		if svc.RPS < 0 || svc.Burst < 0 {
			return fmt.Errorf("%s rate limit must not be negative", name)
		}
	}

	if c.Overpass.DefaultTimeout < 0 || c.Overpass.DefaultTimeout > queries.MaxTimeout {
		return fmt.Errorf("overpass default timeout must be between 0 and %d", queries.MaxTimeout)
	}

	switch strings.ToLower(c.Export.Type) {
	case "", export.TypeNone:
	case export.TypeLocal:
		if c.Export.Local.Dir == "" {
			return errors.New("local export dir is required")
		}
	case export.TypeS3:
		if c.Export.S3.Bucket == "" {
			return errors.New("S3 bucket is required")
		}
	case export.TypeAzure:
		if c.Export.Azure.Container == "" {
			return errors.New("azure container is required")
		}
		if c.Export.Azure.AccountName == "" && c.Export.Azure.ConnectionString == "" {
			return errors.New("azure account name or connection string is required")
		}
	default:
		return fmt.Errorf("unknown export type: %s", c.Export.Type)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Logging.Format)
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be between 0 and 1: %v", c.Tracing.SampleRatio)
	}

	return nil
}

// QueryOptions returns the builder options implied by the configuration.
func (c *Config) QueryOptions() queries.Options {
	return queries.Options{Timeout: c.Overpass.DefaultTimeout}
}
