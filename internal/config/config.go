package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// AuthConfig covers bearer tokens, the legacy static API key and the
// role required for the raw-SQL endpoint.
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	APIKey      string        `mapstructure:"api_key"`
	APIKeyRole  string        `mapstructure:"api_key_role"`
	RawSQLRoles []string      `mapstructure:"raw_sql_roles"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	UsersTable  string        `mapstructure:"users_table"`
}

// RouteLimit is a fixed request-count/window-size pair for one route.
type RouteLimit struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type RateLimitConfig struct {
	Routes  map[string]RouteLimit `mapstructure:"routes"`
	MaxKeys int                   `mapstructure:"max_keys"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type AuditConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	BufferSize      int  `mapstructure:"buffer_size"`
	FlushIntervalMs int  `mapstructure:"flush_interval_ms"`
	RetentionDays   int  `mapstructure:"retention_days"`
}

// ConnString returns the PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslMode)
}

// Defaults registers every default on v. Split out so tests and the CLI
// can build a Config without reading a file.
func Defaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "crudgate")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("auth.jwt_secret", "changeme-secret")
	v.SetDefault("auth.api_key_role", "admin")
	v.SetDefault("auth.raw_sql_roles", []string{"admin"})
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.users_table", "users")
	v.SetDefault("rate_limit.max_keys", 10000)
	v.SetDefault("rate_limit.routes", map[string]any{
		"/auth/login": map[string]any{"requests": 5, "window": "1m"},
	})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", 200)
	v.SetDefault("audit.flush_interval_ms", 500)
	v.SetDefault("audit.retention_days", 90)
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")

	Defaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
