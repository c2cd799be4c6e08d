package config

import (
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// MaxConnectionsCeiling bounds server.max_connections regardless of what a
// config file asks for, so a misconfigured deployment cannot accidentally
// remove the admission limit entirely.
const MaxConnectionsCeiling = 20000

type Config struct {
	Server     ServerConfig   `toml:"server"`
	Cache      CacheConfig    `toml:"cache"`
	Timeouts   TimeoutsConfig `toml:"timeouts"`
	Logging    LoggingConfig  `toml:"logging"`
	LoadedPath string         `toml:"-"` // populated after loading
}

type ServerConfig struct {
	BindAddress    string `toml:"bind_address"`
	ProxyPort      int    `toml:"proxy_port"`
	ControlPort    int    `toml:"control_port"`
	MaxConnections int    `toml:"max_connections"`
}

type CacheConfig struct {
	MaxSizeMB int `toml:"max_size_mb"`
}

type TimeoutsConfig struct {
	SocketSeconds      int `toml:"socket_seconds"`
	ConnectIdleSeconds int `toml:"connect_idle_seconds"`
}

type LoggingConfig struct {
	AppLevel       string `toml:"app_level"`
	AppLogfile     string `toml:"app_logfile"`
	AccessToStdout bool   `toml:"access_to_stdout"`
	AccessLogfile  string `toml:"access_logfile"`
	AccessFormat   string `toml:"access_format"`
}

// MaxBytes returns the cache's aggregate (and per-object) byte budget.
func (c *CacheConfig) MaxBytes() int64 {
	return int64(c.MaxSizeMB) * 1024 * 1024
}

// SocketTimeoutSeconds returns the client/origin socket receive and send
// timeout, in seconds, as configured.
func (t *TimeoutsConfig) SocketTimeoutSeconds() int {
	return t.SocketSeconds
}

// ConnectIdleTimeoutSeconds returns the CONNECT tunnel's mutual-idleness
// timeout, in seconds, as configured.
func (t *TimeoutsConfig) ConnectIdleTimeoutSeconds() int {
	return t.ConnectIdleSeconds
}

// ValidateAccessFormat returns the effective access log format, falling
// back to "human" (with a warning) for anything it doesn't recognise.
func (l *LoggingConfig) ValidateAccessFormat() string {
	switch l.AccessFormat {
	case "human", "json":
		return l.AccessFormat
	case "":
		return "human"
	default:
		slog.Warn("config: invalid access_format, using default", "invalid", l.AccessFormat, "default", "human")
		return "human"
	}
}

func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:    "0.0.0.0",
			ProxyPort:      8080,
			ControlPort:    8081,
			MaxConnections: 2000,
		},
		Cache: CacheConfig{
			MaxSizeMB: 100,
		},
		Timeouts: TimeoutsConfig{
			SocketSeconds:      30,
			ConnectIdleSeconds: 100,
		},
		Logging: LoggingConfig{
			AppLevel:       "",
			AppLogfile:     "",
			AccessToStdout: true,
			AccessLogfile:  "",
			AccessFormat:   "human",
		},
	}
}

// LoadConfig loads configuration from path, or the first of a set of
// standard locations when path is empty, overlaying it on the compiled-in
// defaults. A missing file at any of the standard locations is not an
// error; an explicitly provided path that cannot be read is.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	configPath := path
	if configPath == "" {
		locations := []string{
			"./proxy.toml",
			os.ExpandEnv("$HOME/.config/proxy/config.toml"),
			os.ExpandEnv("$HOME/.proxy.toml"),
			"/etc/proxy/config.toml",
		}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				configPath = loc
				break
			}
		}
	}

	if configPath != "" {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, err
		}
		cfg.LoadedPath = configPath
	}

	if cfg.Server.MaxConnections <= 0 || cfg.Server.MaxConnections > MaxConnectionsCeiling {
		slog.Warn("config: invalid max_connections, using default", "invalid", cfg.Server.MaxConnections, "default", 2000)
		cfg.Server.MaxConnections = 2000
	}
	if cfg.Cache.MaxSizeMB <= 0 {
		slog.Warn("config: invalid cache.max_size_mb, using default", "invalid", cfg.Cache.MaxSizeMB, "default", 100)
		cfg.Cache.MaxSizeMB = 100
	}
	if cfg.Timeouts.SocketSeconds <= 0 {
		slog.Warn("config: invalid timeouts.socket_seconds, using default", "invalid", cfg.Timeouts.SocketSeconds, "default", 30)
		cfg.Timeouts.SocketSeconds = 30
	}
	if cfg.Timeouts.ConnectIdleSeconds <= 0 {
		slog.Warn("config: invalid timeouts.connect_idle_seconds, using default", "invalid", cfg.Timeouts.ConnectIdleSeconds, "default", 100)
		cfg.Timeouts.ConnectIdleSeconds = 100
	}

	if cfg.Logging.AppLevel != "" {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[cfg.Logging.AppLevel] {
			slog.Warn("config: invalid app_level, disabling application logging", "invalid", cfg.Logging.AppLevel)
			cfg.Logging.AppLevel = ""
		}
	}
	cfg.Logging.AccessFormat = cfg.Logging.ValidateAccessFormat()

	return cfg, nil
}
