package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant      string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience       string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey     string        `mapstructure:"AUTH_SIGNING_KEY"`
	SlotMinutes        int           `mapstructure:"SLOT_MINUTES"`
	SlotDatePrecedence string        `mapstructure:"SLOT_DATE_PRECEDENCE"`
	PlanCache          string        `mapstructure:"PLAN_CACHE"`
	PlanCacheTTL       time.Duration `mapstructure:"PLAN_CACHE_TTL"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	EventSource        string        `mapstructure:"EVENT_SOURCE"`
	EventPGChannel     string        `mapstructure:"EVENT_PG_CHANNEL"`
	KafkaBrokers       []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic         string        `mapstructure:"KAFKA_TOPIC"`
	KafkaGroupID       string        `mapstructure:"KAFKA_GROUP_ID"`
}

const (
	EventSourceNone     = "none"
	EventSourcePostgres = "postgres"
	EventSourceKafka    = "kafka"

	PlanCacheNone   = "none"
	PlanCacheMemory = "memory"
	PlanCacheRedis  = "redis"
)

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DEFAULT_TENANT", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"SLOT_MINUTES", "SLOT_DATE_PRECEDENCE", "PLAN_CACHE", "PLAN_CACHE_TTL",
	"REDIS_URL", "EVENT_SOURCE", "EVENT_PG_CHANNEL", "KAFKA_BROKERS",
	"KAFKA_TOPIC", "KAFKA_GROUP_ID",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SLOT_MINUTES", 30)
	v.SetDefault("SLOT_DATE_PRECEDENCE", "specific-date")
	v.SetDefault("PLAN_CACHE", "")
	v.SetDefault("PLAN_CACHE_TTL", "30s")
	v.SetDefault("EVENT_SOURCE", EventSourceNone)
	v.SetDefault("EVENT_PG_CHANNEL", "slot_events")
	v.SetDefault("KAFKA_TOPIC", "opd.slot-events")
	v.SetDefault("KAFKA_GROUP_ID", "opd-server")

	// Unmarshal only sees env vars that are bound explicitly.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// The .env file is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.PlanCache == "" {
		cfg.PlanCache = PlanCacheNone
		if cfg.RedisURL != "" {
			cfg.PlanCache = PlanCacheRedis
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// splitList accepts either an already decoded list or a comma separated
// string and trims each entry.
func splitList(decoded []string, raw string) []string {
	if len(decoded) == 1 && strings.Contains(decoded[0], ",") {
		raw, decoded = decoded[0], nil
	}
	if len(decoded) == 0 {
		if raw == "" {
			return nil
		}
		decoded = strings.Split(raw, ",")
	}
	out := make([]string, 0, len(decoded))
	for _, s := range decoded {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks cross-field rules. Outside development a signing key is
// required because requests are otherwise granted admin access.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}

	if c.DBMinConns < 0 || c.DBMaxConns < 1 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must be between 0 and DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}

	if c.SlotMinutes < 5 || c.SlotMinutes > 240 {
		return fmt.Errorf("SLOT_MINUTES must be between 5 and 240, got %d", c.SlotMinutes)
	}
	switch c.SlotDatePrecedence {
	case "specific-date", "union":
	default:
		return fmt.Errorf("SLOT_DATE_PRECEDENCE must be \"specific-date\" or \"union\", got %q", c.SlotDatePrecedence)
	}

	switch c.PlanCache {
	case PlanCacheNone, PlanCacheMemory:
	case PlanCacheRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when PLAN_CACHE=redis")
		}
	default:
		return fmt.Errorf("PLAN_CACHE must be \"none\", \"memory\" or \"redis\", got %q", c.PlanCache)
	}
	if c.PlanCache != PlanCacheNone && c.PlanCacheTTL <= 0 {
		return fmt.Errorf("PLAN_CACHE_TTL must be positive when the plan cache is enabled")
	}

	switch c.EventSource {
	case EventSourceNone, EventSourcePostgres:
	case EventSourceKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENT_SOURCE=kafka")
		}
		if c.KafkaTopic == "" || c.KafkaGroupID == "" {
			return fmt.Errorf("KAFKA_TOPIC and KAFKA_GROUP_ID are required when EVENT_SOURCE=kafka")
		}
	default:
		return fmt.Errorf("EVENT_SOURCE must be \"none\", \"postgres\" or \"kafka\", got %q", c.EventSource)
	}

	return nil
}
