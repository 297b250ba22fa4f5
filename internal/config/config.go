package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName      string
	AppVersion   string
	Environment  string
	HTTPPort     string
	DefaultOrgID int64
	NodeID       int64

	OTLPEndpoint   string
	MetricsEnabled bool
	TracingEnabled bool

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	AuthzEnabled     bool
	AuthzDefaultRole string

	RedisAddr     string
	RedisPassword string
	LockTTLSecond int

	WriteRateLimit float64
	WriteRateBurst int

	OutboxPollSecond int
	SlackWebhookURL  string
	SMTP             SMTPConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewSettingsHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "boqledger"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPPort:     getenv("HTTP_PORT", "8080"),
		DefaultOrgID: getenvInt64("DEFAULT_ORG", 0),
		NodeID:       getenvInt64("NODE_ID", 1),

		OTLPEndpoint:   getenv("OTLP_ENDPOINT", "localhost:4317"),
		MetricsEnabled: getenvBool("METRICS_ENABLED", false),
		TracingEnabled: getenvBool("TRACING_ENABLED", false),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "boqledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		AuthzEnabled:     getenvBool("AUTHZ_ENABLED", true),
		AuthzDefaultRole: getenv("AUTHZ_DEFAULT_ROLE", "manager"),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		LockTTLSecond: getenvInt("LOCK_TTL_SECONDS", 30),

		WriteRateLimit: getenvFloat("WRITE_RATE_LIMIT", 0),
		WriteRateBurst: getenvInt("WRITE_RATE_BURST", 20),

		OutboxPollSecond: getenvInt("OUTBOX_POLL_SECONDS", 5),
		SlackWebhookURL:  strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "boq@localhost"),
			To:       splitList(getenv("SMTP_TO", "")),
		},
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
