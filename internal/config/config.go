package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"climate-platform/internal/archive"
	"climate-platform/pkg/database"
)

// EnvPrefix prefixes every environment variable read by LoadConfig,
// e.g. CLIMATE_DATABASE_HOST for database.host.
const EnvPrefix = "CLIMATE"

// Config holds the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Stations    StationsConfig    `mapstructure:"stations"`
	WriteBehind WriteBehindConfig `mapstructure:"write_behind"`
	Search      SearchConfig      `mapstructure:"search"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// ArchiveConfig holds upstream archive settings
type ArchiveConfig struct {
	CompactBaseURL   string        `mapstructure:"compact_base_url"`
	DailyBaseURL     string        `mapstructure:"daily_base_url"`
	CacheDir         string        `mapstructure:"cache_dir"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
	MaxRetryInterval time.Duration `mapstructure:"max_retry_interval"`
	QualityFilter    bool          `mapstructure:"quality_filter"`
}

// StationsConfig holds station reference import settings
type StationsConfig struct {
	PrimaryURL  string `mapstructure:"primary_url"`
	FallbackURL string `mapstructure:"fallback_url"`
	BatchSize   int    `mapstructure:"batch_size"`
}

// WriteBehindConfig sizes the deferred persistence queue
type WriteBehindConfig struct {
	QueueSize   int           `mapstructure:"queue_size"`
	Workers     int           `mapstructure:"workers"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// SearchConfig holds station search settings
type SearchConfig struct {
	MemoTTL time.Duration `mapstructure:"memo_ttl"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.auto_migrate", true)

	v.SetDefault("database.driver", database.DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "climate")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "climate.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 1*time.Minute)

	v.SetDefault("archive.compact_base_url", archive.DefaultCompactBaseURL)
	v.SetDefault("archive.daily_base_url", archive.DefaultDailyBaseURL)
	v.SetDefault("archive.cache_dir", "data/ghcn")
	v.SetDefault("archive.timeout", 60*time.Second)
	v.SetDefault("archive.max_retries", 3)
	v.SetDefault("archive.retry_interval", 500*time.Millisecond)
	v.SetDefault("archive.max_retry_interval", 10*time.Second)
	v.SetDefault("archive.quality_filter", true)

	v.SetDefault("stations.primary_url", archive.DefaultStationsPrimaryURL)
	v.SetDefault("stations.fallback_url", archive.DefaultStationsFallbackURL)
	v.SetDefault("stations.batch_size", 1000)

	v.SetDefault("write_behind.queue_size", 256)
	v.SetDefault("write_behind.workers", 2)
	v.SetDefault("write_behind.task_timeout", 30*time.Second)

	v.SetDefault("search.memo_ttl", 5*time.Minute)

	v.SetDefault("logging.level", "info")

	v.SetDefault("metrics.namespace", "climate_platform")
}

// LoadConfig loads configuration from defaults, an optional config.yaml in
// the working directory, an optional .env file and CLIMATE_* environment
// variables, in increasing order of precedence.
func LoadConfig() (*Config, error) {
	// .env is optional; variables already set in the environment win
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for values the server cannot start with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverPgx:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case database.DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("max open connections must be positive")
	}
	if c.Database.MaxIdleConns < 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("max idle connections must be within [0, %d]", c.Database.MaxOpenConns)
	}

	for name, raw := range map[string]string{
		"archive.compact_base_url": c.Archive.CompactBaseURL,
		"archive.daily_base_url":   c.Archive.DailyBaseURL,
		"stations.primary_url":     c.Stations.PrimaryURL,
	} {
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.Stations.FallbackURL != "" {
		if err := validateURL(c.Stations.FallbackURL); err != nil {
			return fmt.Errorf("invalid stations.fallback_url: %w", err)
		}
	}

	if c.Archive.CacheDir == "" {
		return fmt.Errorf("archive cache directory is required")
	}
	if c.Archive.Timeout <= 0 {
		return fmt.Errorf("archive timeout must be positive")
	}
	if c.Archive.MaxRetries < 0 {
		return fmt.Errorf("archive max retries must not be negative")
	}

	if c.WriteBehind.QueueSize <= 0 {
		return fmt.Errorf("write-behind queue size must be positive")
	}
	if c.WriteBehind.Workers <= 0 {
		return fmt.Errorf("write-behind workers must be positive")
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// DatabaseSettings converts the settings into the database package's form
func (c *Config) DatabaseSettings() *database.Config {
	return &database.Config{
		Driver:          c.Database.Driver,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		Path:            c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}

// FetcherSettings converts the archive settings into the fetcher's form
func (c *Config) FetcherSettings() archive.FetcherConfig {
	return archive.FetcherConfig{
		CompactBaseURL:   c.Archive.CompactBaseURL,
		DailyBaseURL:     c.Archive.DailyBaseURL,
		CacheDir:         c.Archive.CacheDir,
		Timeout:          c.Archive.Timeout,
		MaxRetries:       c.Archive.MaxRetries,
		RetryInterval:    c.Archive.RetryInterval,
		MaxRetryInterval: c.Archive.MaxRetryInterval,
	}
}
