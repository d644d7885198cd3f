package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Webhooks WebhooksConfig `mapstructure:"webhooks"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Email    EmailConfig    `mapstructure:"email"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// RedisConfig is optional; an empty Addr disables the idempotency cache
// and makes the rate limiter fall back to in-process buckets.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

type GatewayConfig struct {
	WebhookToken       string        `mapstructure:"webhook_token"`
	VerifyToken        string        `mapstructure:"verify_token"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	// IdempotencyRetention is how long stored responses stay replayable.
	IdempotencyRetention time.Duration `mapstructure:"idempotency_retention"`
	PruneInterval        time.Duration `mapstructure:"prune_interval"`
}

type WebhooksConfig struct {
	URL              string          `mapstructure:"url"`
	Secret           string          `mapstructure:"secret"`
	Timeout          time.Duration   `mapstructure:"timeout"`
	MaxAttempts      int             `mapstructure:"max_attempts"`
	Backoff          []time.Duration `mapstructure:"backoff"`
	WorkerCount      int             `mapstructure:"worker_count"`
	BatchSize        int             `mapstructure:"batch_size"`
	PollInterval     time.Duration   `mapstructure:"poll_interval"`
	BreakerThreshold int             `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration   `mapstructure:"breaker_cooldown"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type EmailConfig struct {
	Provider string     `mapstructure:"provider"`
	SMTP     SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "file:data/zapgate.db")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.cache_ttl", 24*time.Hour)

	v.SetDefault("gateway.webhook_token", "")
	v.SetDefault("gateway.verify_token", "")
	v.SetDefault("gateway.request_timeout", 8*time.Second)
	v.SetDefault("gateway.max_body_bytes", 1<<20)
	v.SetDefault("gateway.rate_limit_per_minute", 120)
	v.SetDefault("gateway.idempotency_retention", 720*time.Hour)
	v.SetDefault("gateway.prune_interval", time.Hour)

	v.SetDefault("webhooks.url", "")
	v.SetDefault("webhooks.secret", "")
	v.SetDefault("webhooks.timeout", 10*time.Second)
	v.SetDefault("webhooks.max_attempts", 6)
	v.SetDefault("webhooks.backoff", []string{"10s", "30s", "2m", "10m", "30m"})
	v.SetDefault("webhooks.worker_count", 4)
	v.SetDefault("webhooks.batch_size", 50)
	v.SetDefault("webhooks.poll_interval", 5*time.Second)
	v.SetDefault("webhooks.breaker_threshold", 5)
	v.SetDefault("webhooks.breaker_cooldown", 30*time.Second)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "zapgate")
	v.SetDefault("jwt.access_token_ttl", 24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("email.provider", "log")
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.from_address", "")
	v.SetDefault("email.smtp.from_name", "Gabinete")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads the YAML file at path (if it exists) and overlays ZAPGATE_*
// environment variables, e.g. ZAPGATE_GATEWAY_WEBHOOK_TOKEN.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ZAPGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the server cannot run with. An empty webhooks
// URL is allowed; outbound delivery is then disabled.
func (c *Config) Validate() error {
	if c.Webhooks.URL != "" {
		u, err := url.Parse(c.Webhooks.URL)
		if err != nil {
			return errors.New("webhooks.url: invalid format")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("webhooks.url must start with http:// or https://")
		}
		if u.Host == "" {
			return errors.New("webhooks.url: missing host")
		}
	}

	for i, d := range c.Webhooks.Backoff {
		if d <= 0 {
			return fmt.Errorf("webhooks.backoff[%d] must be positive", i)
		}
	}

	switch c.Email.Provider {
	case "", "log", "smtp":
	default:
		return fmt.Errorf("email.provider must be 'log' or 'smtp', got %q", c.Email.Provider)
	}

	return nil
}
