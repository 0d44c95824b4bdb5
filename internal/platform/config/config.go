package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	KVMemory   = "memory"
	KVRedis    = "redis"
	KVPostgres = "postgres"

	BrokerNone     = "none"
	BrokerKafka    = "kafka"
	BrokerRabbitMQ = "rabbitmq"
)

type Config struct {
	Addr                     string
	DatabaseURL              string
	JWTSecret                string
	DataEncryptionKey        string
	AuditChainKey            string
	Environment              string
	LogLevel                 string
	MigrationsDir            string
	RunMigrations            bool
	RunSeed                  bool
	SeedAdminEmail           string
	SeedAdminPassword        string
	InitSecret               string
	InitAllowedIPs           []string
	KVBackend                string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	KVTimeout                time.Duration
	AllowInProcessRevocation bool
	TokenTTL                 time.Duration
	BcryptCost               int
	LoginRateLimit           int
	LoginRateWindow          time.Duration
	RateLimitPerMinute       int
	LoginMinDuration         time.Duration
	MinReasonLength          int
	Timezone                 string
	EventBroker              string
	KafkaBrokers             []string
	KafkaTopic               string
	RabbitMQURL              string
	RabbitMQQueue            string
	EmailEnabled             bool
	EmailFrom                string
	SMTPHost                 string
	SMTPPort                 int
	SMTPUser                 string
	SMTPPassword             string
	SMTPUseTLS               bool
	MaxBodyBytes             int64
	TrustProxyHeaders        bool
	MaintenanceInterval      time.Duration
	MetricsEnabled           bool
	// Ephemeral keeps every store in process memory; set by --ephemeral.
	Ephemeral bool
}

func Load() Config {
	return Config{
		Addr:                     getEnv("APP_ADDR", ":8080"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		JWTSecret:                getEnv("JWT_SECRET", ""),
		DataEncryptionKey:        getEnv("DATA_ENCRYPTION_KEY", ""),
		AuditChainKey:            getEnv("AUDIT_CHAIN_KEY", ""),
		Environment:              getEnv("APP_ENV", "development"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		MigrationsDir:            getEnv("MIGRATIONS_DIR", "migrations"),
		RunMigrations:            getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:                  getEnvBool("RUN_SEED", true),
		SeedAdminEmail:           getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword:        getEnv("SEED_ADMIN_PASSWORD", ""),
		InitSecret:               getEnv("INIT_SECRET", ""),
		InitAllowedIPs:           getEnvList("INIT_ALLOWED_IPS"),
		KVBackend:                strings.ToLower(getEnv("KV_BACKEND", KVMemory)),
		RedisAddr:                getEnv("REDIS_ADDR", ""),
		RedisPassword:            getEnv("REDIS_PASSWORD", ""),
		RedisDB:                  getEnvInt("REDIS_DB", 0),
		KVTimeout:                getEnvDuration("KV_TIMEOUT", 250*time.Millisecond),
		AllowInProcessRevocation: getEnvBool("ALLOW_INPROCESS_REVOCATION", false),
		TokenTTL:                 getEnvDuration("TOKEN_TTL", 8*time.Hour),
		BcryptCost:               getEnvInt("BCRYPT_COST", 12),
		LoginRateLimit:           getEnvInt("LOGIN_RATE_LIMIT", 5),
		LoginRateWindow:          getEnvDuration("LOGIN_RATE_WINDOW", 5*time.Minute),
		RateLimitPerMinute:       getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		LoginMinDuration:         getEnvDuration("LOGIN_MIN_DURATION", 400*time.Millisecond),
		MinReasonLength:          getEnvInt("MIN_REASON_LENGTH", 10),
		Timezone:                 getEnv("TIMEZONE", "UTC"),
		EventBroker:              strings.ToLower(getEnv("EVENT_BROKER", BrokerNone)),
		KafkaBrokers:             getEnvList("KAFKA_BROKERS"),
		KafkaTopic:               getEnv("KAFKA_TOPIC", "timeoff.events"),
		RabbitMQURL:              getEnv("RABBITMQ_URL", ""),
		RabbitMQQueue:            getEnv("RABBITMQ_QUEUE", "timeoff.events"),
		EmailEnabled:             getEnvBool("EMAIL_ENABLED", false),
		EmailFrom:                getEnv("EMAIL_FROM", "no-reply@example.com"),
		SMTPHost:                 getEnv("SMTP_HOST", ""),
		SMTPPort:                 getEnvInt("SMTP_PORT", 587),
		SMTPUser:                 getEnv("SMTP_USER", ""),
		SMTPPassword:             getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:               getEnvBool("SMTP_USE_TLS", true),
		MaxBodyBytes:             int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		TrustProxyHeaders:        getEnvBool("TRUST_PROXY_HEADERS", false),
		MaintenanceInterval:      getEnvDuration("MAINTENANCE_INTERVAL", 10*time.Minute),
		MetricsEnabled:           getEnvBool("METRICS_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location resolves Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) Validate() error {
	if c.Ephemeral {
		if c.IsProduction() {
			return fmt.Errorf("ephemeral mode is not allowed in production")
		}
		if c.KVBackend == KVPostgres {
			return fmt.Errorf("KV_BACKEND=postgres needs a database; ephemeral mode has none")
		}
	} else if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if c.KVBackend == KVMemory && !c.AllowInProcessRevocation {
			return fmt.Errorf("KV_BACKEND=memory does not share revocations across instances; set KV_BACKEND or ALLOW_INPROCESS_REVOCATION=true")
		}
		if c.BcryptCost < 10 {
			return fmt.Errorf("BCRYPT_COST must be at least 10 in production")
		}
	}
	switch c.KVBackend {
	case KVMemory, KVPostgres:
	case KVRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR must be set when KV_BACKEND is redis")
		}
	default:
		return fmt.Errorf("KV_BACKEND must be one of memory, redis, postgres")
	}
	switch c.EventBroker {
	case BrokerNone:
	case BrokerKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC must be set when EVENT_BROKER is kafka")
		}
	case BrokerRabbitMQ:
		if c.RabbitMQURL == "" || c.RabbitMQQueue == "" {
			return fmt.Errorf("RABBITMQ_URL and RABBITMQ_QUEUE must be set when EVENT_BROKER is rabbitmq")
		}
	default:
		return fmt.Errorf("EVENT_BROKER must be one of none, kafka, rabbitmq")
	}
	if c.KVTimeout <= 0 {
		return fmt.Errorf("KV_TIMEOUT must be positive")
	}
	if c.TokenTTL <= 0 || c.TokenTTL > 8*time.Hour {
		return fmt.Errorf("TOKEN_TTL must be positive and at most 8h")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 || c.LoginRateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and LOGIN_RATE_LIMIT must be positive")
	}
	if c.MinReasonLength < 1 {
		return fmt.Errorf("MIN_REASON_LENGTH must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	return nil
}
