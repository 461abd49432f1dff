package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// StoreConfig selects the repository backend: "postgres", "memory" or "auto"
// (postgres when db.dsn is set).
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// KeyPrefix namespaces last-known price keys.
	KeyPrefix string `mapstructure:"key_prefix"`
}

type ResolverConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	EagerRun      bool          `mapstructure:"eager_run"`
	BatchLimit    int           `mapstructure:"batch_limit"`
	Concurrency   int           `mapstructure:"concurrency"`
	HealOnStart   bool          `mapstructure:"heal_on_start"`
}

type OracleConfig struct {
	CacheTTL        time.Duration     `mapstructure:"cache_ttl"`
	ProviderTimeout time.Duration     `mapstructure:"provider_timeout"`
	Providers       []ProviderConfig  `mapstructure:"providers"`
	Fallback        map[string]string `mapstructure:"fallback"`
}

type ProviderConfig struct {
	Name    string        `mapstructure:"name"`
	Kind    string        `mapstructure:"kind"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// RatePerSecond <= 0 disables limiting.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	Disabled      bool    `mapstructure:"disabled"`
}

type NotifyConfig struct {
	Log          bool          `mapstructure:"log"`
	WebhookURL   string        `mapstructure:"webhook_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RedisChannel string        `mapstructure:"redis_channel"`

	// AuditBaseURL and AuditAPIKey enable forwarding resolutions to an external audit log.
	AuditBaseURL string `mapstructure:"audit_base_url"`
	AuditAPIKey  string `mapstructure:"audit_api_key"`
}

// FallbackCents converts the configured per-symbol fallback prices to 2-decimal fixed point.
// viper lowercases map keys, so symbols are upper-cased here.
func (c OracleConfig) FallbackCents() (map[string]int64, error) {
	out := make(map[string]int64, len(c.Fallback))
	for sym, raw := range c.Fallback {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("oracle.fallback.%s: %w", sym, err)
		}
		if !d.IsPositive() {
			return nil, fmt.Errorf("oracle.fallback.%s: must be > 0", sym)
		}
		out[strings.ToUpper(strings.TrimSpace(sym))] = d.Shift(2).Round(0).IntPart()
	}
	return out, nil
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("store.driver", "auto")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "agenthub:price:")

	v.SetDefault("resolver.enabled", true)
	v.SetDefault("resolver.sweep_interval", "15s")
	v.SetDefault("resolver.eager_run", true)
	v.SetDefault("resolver.batch_limit", 500)
	v.SetDefault("resolver.concurrency", 1)
	v.SetDefault("resolver.heal_on_start", true)

	v.SetDefault("oracle.cache_ttl", "10s")
	v.SetDefault("oracle.provider_timeout", "5s")
	v.SetDefault("oracle.providers", []map[string]any{
		{"name": "binance", "kind": "binance", "base_url": "https://api.binance.com", "rate_per_second": 5, "burst": 5},
		{"name": "coinbase", "kind": "coinbase", "base_url": "https://api.coinbase.com", "rate_per_second": 3, "burst": 3},
		{"name": "coingecko", "kind": "coingecko", "base_url": "https://api.coingecko.com", "rate_per_second": 0.5, "burst": 2},
	})
	v.SetDefault("oracle.fallback", map[string]string{
		"BTC": "95000.00",
		"ETH": "3500.00",
		"SOL": "150.00",
	})

	v.SetDefault("notify.log", true)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", "5s")
	v.SetDefault("notify.redis_channel", "agenthub.signal_resolved")
	v.SetDefault("notify.audit_base_url", "")
	v.SetDefault("notify.audit_api_key", "")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
