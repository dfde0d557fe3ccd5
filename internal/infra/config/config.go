package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App          AppSettings          `mapstructure:"app"`
	Postgres     PostgresSettings     `mapstructure:"postgres"`
	Redis        RedisSettings        `mapstructure:"redis"`
	Telegram     TelegramSettings     `mapstructure:"telegram"`
	RateLimit    RateLimitSettings    `mapstructure:"rate_limit"`
	Verification VerificationSettings `mapstructure:"verification"`
	Turnstile    TurnstileSettings    `mapstructure:"turnstile"`
	AI           AISettings           `mapstructure:"ai"`
	Stats        StatsSettings        `mapstructure:"stats"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection used for short-TTL caches.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// TelegramSettings configures the bot identity and admin routing.
type TelegramSettings struct {
	BotToken       string        `mapstructure:"bot_token"`
	AdminID        string        `mapstructure:"admin_id"`
	AutoWelcome    bool          `mapstructure:"auto_welcome"`
	WelcomeMessage string        `mapstructure:"welcome_message"`
	NotifyInterval time.Duration `mapstructure:"notify_interval"`
}

// RateLimitSettings carries the three base values the four tiers derive from.
type RateLimitSettings struct {
	Cooldown  int `mapstructure:"cooldown"`   // seconds between messages
	PerMinute int `mapstructure:"per_minute"` // messages per rolling minute
	PerHour   int `mapstructure:"per_hour"`   // messages per rolling hour
}

// VerificationSettings carries deployment defaults for the verification
// engine; the runtime method/enabled state lives in the config row.
type VerificationSettings struct {
	Required bool          `mapstructure:"required"`
	Timeout  time.Duration `mapstructure:"timeout"`
	BaseURL  string        `mapstructure:"base_url"`
}

// TurnstileSettings holds the CAPTCHA provider keys. The secret key is a
// deployment secret and never written to the store.
type TurnstileSettings struct {
	SiteKey   string `mapstructure:"site_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// AISettings holds the LLM provider access for the AI challenge strategy.
type AISettings struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type StatsSettings struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("RELAY")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"telegram.bot_token",
		"telegram.admin_id",
		"telegram.auto_welcome",
		"telegram.welcome_message",
		"telegram.notify_interval",
		"rate_limit.cooldown",
		"rate_limit.per_minute",
		"rate_limit.per_hour",
		"verification.required",
		"verification.timeout",
		"verification.base_url",
		"turnstile.site_key",
		"turnstile.secret_key",
		"ai.api_key",
		"ai.base_url",
		"ai.model",
		"stats.cache_ttl",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "telegram-pm-relay")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "relay")
	v.SetDefault("postgres.password", "relay_password")
	v.SetDefault("postgres.database", "relay")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "relay")

	v.SetDefault("telegram.auto_welcome", true)
	v.SetDefault("telegram.welcome_message", "Hello! I have received your message and will reply as soon as possible.")
	v.SetDefault("telegram.notify_interval", "1h")

	v.SetDefault("rate_limit.cooldown", 3)
	v.SetDefault("rate_limit.per_minute", 10)
	v.SetDefault("rate_limit.per_hour", 50)

	v.SetDefault("verification.required", true)
	v.SetDefault("verification.timeout", "15m")
	v.SetDefault("verification.base_url", "")

	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.model", "gpt-4o-mini")

	v.SetDefault("stats.cache_ttl", "5m")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "RELAY_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
