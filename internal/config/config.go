package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Auth      AuthConfig      `yaml:"auth"`
	Provider  ProviderConfig  `yaml:"provider"`
	Squad     SquadConfig     `yaml:"squad"`
	Sync      SyncConfig      `yaml:"sync"`
	Log       LogConfig       `yaml:"log"`
}

// LogConfig controls zap. Level is a zapcore level name; empty means info.
type LogConfig struct {
	Level string `yaml:"level"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// ProviderConfig holds SMM provider API settings. An empty URL/key (or the
// literal "demo-key") keeps the gateway in demo mode.
type ProviderConfig struct {
	APIURL          string `yaml:"api_url"`
	APIKey          string `yaml:"api_key"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	MaxRetries      int    `yaml:"max_retries"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (p ProviderConfig) CacheTTL() time.Duration {
	if p.CacheTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(p.CacheTTLSeconds) * time.Second
}

type SquadConfig struct {
	BaseURL   string `yaml:"base_url"`
	SecretKey string `yaml:"secret_key"`
	// Top-up bounds in naira.
	MinTopup string `yaml:"min_topup"`
	MaxTopup string `yaml:"max_topup"`
}

type SyncConfig struct {
	OrderIntervalMinutes   int `yaml:"order_interval_minutes"`
	CatalogIntervalMinutes int `yaml:"catalog_interval_minutes"`
	OrphanSweepMinutes     int `yaml:"orphan_sweep_minutes"`
	OrphanAgeMinutes       int `yaml:"orphan_age_minutes"`
}

func (s SyncConfig) OrderInterval() time.Duration {
	return minutesOr(s.OrderIntervalMinutes, 30*time.Minute)
}

func (s SyncConfig) CatalogInterval() time.Duration {
	return minutesOr(s.CatalogIntervalMinutes, 6*time.Hour)
}

func (s SyncConfig) OrphanSweepInterval() time.Duration {
	return minutesOr(s.OrphanSweepMinutes, 10*time.Minute)
}

func (s SyncConfig) OrphanAge() time.Duration {
	return minutesOr(s.OrphanAgeMinutes, 15*time.Minute)
}

func minutesOr(m int, fallback time.Duration) time.Duration {
	if m <= 0 {
		return fallback
	}
	return time.Duration(m) * time.Minute
}

// Load reads the yaml file and applies env overrides for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if k := os.Getenv("PROVIDER_API_KEY"); k != "" {
		cfg.Provider.APIKey = k
	}
	if k := os.Getenv("SQUAD_SECRET_KEY"); k != "" {
		cfg.Squad.SecretKey = k
	}
	if k := os.Getenv("JWT_SECRET"); k != "" {
		cfg.Auth.JWTSecret = k
	}
	return &cfg, nil
}
