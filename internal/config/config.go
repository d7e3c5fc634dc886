// Package config loads the application configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: VIEWEXEC_DATABASE_DSN sets
// database.dsn.
const EnvPrefix = "VIEWEXEC"

type Config struct {
	Log      Log      `mapstructure:"log"`
	Database Database `mapstructure:"database"`
	Views    Views    `mapstructure:"views"`
	Cache    Cache    `mapstructure:"cache"`
	Otel     Otel     `mapstructure:"otel"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Server   Server   `mapstructure:"server"`
	Access   Access   `mapstructure:"access"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Database struct {
	// Driver is "sqlite" or "pgx".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Views struct {
	// Dir holds one YAML file per view definition.
	Dir string `mapstructure:"dir"`
	// Schema is the data source schema file.
	Schema string `mapstructure:"schema"`
}

type Cache struct {
	Size int `mapstructure:"size"`
}

type Otel struct {
	Endpoint string `mapstructure:"endpoint"`
	Service  string `mapstructure:"service"`
}

type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type Server struct {
	Addr    string        `mapstructure:"addr"`
	Timeout time.Duration `mapstructure:"timeout"`
	Pretty  bool          `mapstructure:"pretty"`
	// UserHeader names the request header carrying the account subject.
	UserHeader string `mapstructure:"user_header"`
}

type Access struct {
	Model  string `mapstructure:"model"`
	Policy string `mapstructure:"policy"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:viewexec.db")
	v.SetDefault("views.dir", "views")
	v.SetDefault("views.schema", "schema.yaml")
	v.SetDefault("cache.size", 1024)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service", "viewexec")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.timeout", 10*time.Second)
	v.SetDefault("server.pretty", false)
	v.SetDefault("server.user_header", "X-User")
	v.SetDefault("access.model", "")
	v.SetDefault("access.policy", "")
}

// Load reads defaults, then the YAML file at path when set, then
// VIEWEXEC_* environment variables.
func Load(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	defaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("config: cache.size must be positive, got %d", c.Cache.Size)
	}
	return nil
}
