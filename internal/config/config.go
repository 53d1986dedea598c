package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "RAVENCHAT"

	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	LedgerDatabase = "database"
	LedgerRedis    = "redis"

	defaultHTTPAddress    = "localhost:8000"
	defaultDatabaseDriver = DriverPostgres
	defaultDatabaseDSN    = "host=localhost user=postgres password=postgres dbname=ravenchat sslmode=disable"
	defaultLedgerBackend  = LedgerDatabase
	defaultRedisAddress   = "localhost:6379"
	defaultLogLevel       = "info"
	defaultContentTimeout = 10 * time.Second
)

type ContentConfig struct {
	// Endpoint of the text generation service. Templates are used when empty.
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type Config struct {
	ServerAddr     string
	DatabaseDriver string
	DatabaseDSN    string
	LedgerBackend  string
	RedisAddr      string
	SigningKey     []byte
	AllowedOrigins []string
	LogLevel       string
	Content        ContentConfig
}

// NewViper returns a viper instance with defaults and env bindings applied.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults binds RAVENCHAT_* environment variables and sets defaults on v.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.address", defaultHTTPAddress)
	v.SetDefault("database.driver", defaultDatabaseDriver)
	v.SetDefault("database.dsn", defaultDatabaseDSN)
	v.SetDefault("ledger.backend", defaultLedgerBackend)
	v.SetDefault("redis.address", defaultRedisAddress)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("content.timeout", defaultContentTimeout)
	v.SetDefault("cors.allowed_origins", []string{})
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ServerAddr:     v.GetString("http.address"),
		DatabaseDriver: strings.ToLower(v.GetString("database.driver")),
		DatabaseDSN:    v.GetString("database.dsn"),
		LedgerBackend:  strings.ToLower(v.GetString("ledger.backend")),
		RedisAddr:      v.GetString("redis.address"),
		AllowedOrigins: splitOrigins(v.GetStringSlice("cors.allowed_origins")),
		LogLevel:       v.GetString("log.level"),
		Content: ContentConfig{
			Endpoint: v.GetString("content.endpoint"),
			APIKey:   v.GetString("content.api_key"),
			Timeout:  v.GetDuration("content.timeout"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	secret := v.GetString("auth.signing_key")
	if secret == "" {
		return nil, fmt.Errorf("auth.signing_key cannot be empty")
	}

	signingKey, err := decodeSigningSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}
	cfg.SigningKey = signingKey

	return cfg, nil
}

// splitOrigins accepts both repeated values and comma separated lists.
func splitOrigins(vals []string) []string {
	origins := make([]string, 0, len(vals))
	for _, v := range vals {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	return origins
}

func (c *Config) validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("http.address cannot be empty")
	}

	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database.dsn cannot be empty")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported database.driver %q", c.DatabaseDriver)
	}

	switch c.LedgerBackend {
	case LedgerDatabase:
	case LedgerRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis.address cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported ledger.backend %q", c.LedgerBackend)
	}

	return nil
}
