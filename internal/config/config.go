package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/lmsbridge/internal/moodle"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the LMSBridge server.
type Config struct {
	File      string
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Moodle    MoodleConfig
	Batch     BatchConfig
	Upload    UploadConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

type MoodleConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
	RoleIDs moodle.RoleIDs
}

type BatchConfig struct {
	Workers   int
	FlushSize int
	RowDelay  time.Duration
}

type UploadConfig struct {
	MaxBytes int64
}

type AuthConfig struct {
	// APIKeyHashes are bcrypt hashes of the accepted bearer keys.
	APIKeyHashes []string
}

type RateLimitConfig struct {
	PerMinute int
}

type LogConfig struct {
	Level slog.Level
}

// Configuration keys. Each key is also read from the environment variable
// of the same name in upper case.
const (
	keyConfigFile      = "lmsbridge_config"
	keyPort            = "lmsbridge_port"
	keyEnv             = "lmsbridge_env"
	keyDatabaseURL     = "database_url"
	keyMaxOpenConns    = "database_max_open_conns"
	keyMaxIdleConns    = "database_max_idle_conns"
	keyConnMaxLifetime = "database_conn_max_lifetime"
	keyMigrationsDir   = "database_migrations_dir"
	keyRedisURL        = "redis_url"
	keyMoodleURL       = "moodle_api_url"
	keyMoodleToken     = "moodle_api_token"
	keyMoodleTimeout   = "moodle_timeout"
	keyMoodleRoleIDs   = "moodle_role_ids"
	keyWorkers         = "batch_workers"
	keyFlushSize       = "batch_flush_size"
	keyRowDelay        = "batch_row_delay"
	keyUploadMaxBytes  = "upload_max_bytes"
	keyAPIKeyHashes    = "api_key_hashes"
	keyRateLimit       = "rate_limit_per_minute"
	keyLogLevel        = "log_level"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyPort, 8080)
	v.SetDefault(keyEnv, "development")
	v.SetDefault(keyMaxOpenConns, 25)
	v.SetDefault(keyMaxIdleConns, 5)
	v.SetDefault(keyConnMaxLifetime, 5*time.Minute)
	v.SetDefault(keyMigrationsDir, "migrations")
	v.SetDefault(keyMoodleTimeout, moodle.DefaultTimeout)
	v.SetDefault(keyWorkers, 2)
	v.SetDefault(keyFlushSize, 50)
	v.SetDefault(keyRowDelay, 500*time.Millisecond)
	v.SetDefault(keyUploadMaxBytes, 50<<20)
	v.SetDefault(keyRateLimit, 60)
	v.SetDefault(keyLogLevel, "info")
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	return LoadArgs(nil)
}

// LoadArgs is Load with command-line flags. Flags take precedence over the
// environment, which takes precedence over the optional config file.
func LoadArgs(args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	fs := pflag.NewFlagSet("lmsbridge", pflag.ContinueOnError)
	fs.String("config", "", "Configuration file (JSON or YAML)")
	fs.Int("port", 8080, "HTTP listen port")
	fs.Int("workers", 2, "Number of concurrent batch workers")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	_ = v.BindPFlag(keyConfigFile, fs.Lookup("config"))
	_ = v.BindPFlag(keyPort, fs.Lookup("port"))
	_ = v.BindPFlag(keyWorkers, fs.Lookup("workers"))

	file := v.GetString(keyConfigFile)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not load config file: %w", err)
		}
	}

	cfg, err := build(v)
	if err != nil {
		return nil, err
	}
	cfg.File = file

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func build(v *viper.Viper) (*Config, error) {
	roleIDs, err := moodle.ParseRoleIDs(v.GetString(keyMoodleRoleIDs))
	if err != nil {
		return nil, fmt.Errorf("MOODLE_ROLE_IDS: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString(keyLogLevel))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", v.GetString(keyLogLevel))
	}

	return &Config{
		Server: ServerConfig{
			Port: v.GetInt(keyPort),
			Env:  v.GetString(keyEnv),
		},
		Database: DatabaseConfig{
			URL:             v.GetString(keyDatabaseURL),
			MaxOpenConns:    v.GetInt(keyMaxOpenConns),
			MaxIdleConns:    v.GetInt(keyMaxIdleConns),
			ConnMaxLifetime: v.GetDuration(keyConnMaxLifetime),
			MigrationsDir:   v.GetString(keyMigrationsDir),
		},
		Redis: RedisConfig{
			URL: v.GetString(keyRedisURL),
		},
		Moodle: MoodleConfig{
			URL:     strings.TrimRight(v.GetString(keyMoodleURL), "/"),
			Token:   v.GetString(keyMoodleToken),
			Timeout: v.GetDuration(keyMoodleTimeout),
			RoleIDs: roleIDs,
		},
		Batch: BatchConfig{
			Workers:   v.GetInt(keyWorkers),
			FlushSize: v.GetInt(keyFlushSize),
			RowDelay:  v.GetDuration(keyRowDelay),
		},
		Upload: UploadConfig{
			MaxBytes: v.GetInt64(keyUploadMaxBytes),
		},
		Auth: AuthConfig{
			APIKeyHashes: splitList(v.GetString(keyAPIKeyHashes)),
		},
		RateLimit: RateLimitConfig{
			PerMinute: v.GetInt(keyRateLimit),
		},
		Log: LogConfig{Level: level},
	}, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Moodle.URL == "" {
		return fmt.Errorf("MOODLE_API_URL is required")
	}
	if !strings.HasPrefix(c.Moodle.URL, "http://") && !strings.HasPrefix(c.Moodle.URL, "https://") {
		return fmt.Errorf("MOODLE_API_URL must start with http:// or https://, got %q", c.Moodle.URL)
	}
	if c.Moodle.Token == "" {
		return fmt.Errorf("MOODLE_API_TOKEN is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("LMSBRIDGE_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("BATCH_WORKERS must be positive, got %d", c.Batch.Workers)
	}
	if c.Batch.FlushSize <= 0 {
		return fmt.Errorf("BATCH_FLUSH_SIZE must be positive, got %d", c.Batch.FlushSize)
	}
	if c.Batch.RowDelay < 0 {
		return fmt.Errorf("BATCH_ROW_DELAY must not be negative, got %s", c.Batch.RowDelay)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.Upload.MaxBytes)
	}

	if c.Server.Env == "production" && len(c.Auth.APIKeyHashes) == 0 {
		return fmt.Errorf("API_KEY_HASHES is required when LMSBRIDGE_ENV is production")
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
