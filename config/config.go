package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Port           string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	JWTSecret      string
	TRXAddress     string
	AllowedOrigins []string

	SweepInterval         time.Duration
	PendingPaymentTimeout time.Duration
	AuditExportInterval   time.Duration

	PaymentOracleURL     string
	PaymentOracleTimeout time.Duration
	NodeCatalogFile      string

	TelegramBotToken     string
	TelegramOperatorChat int64
	CloudflareAccountID  string
	R2AccessKeyID        string
	R2AccessKeySecret    string
	R2Bucket             string

	LogLevel  string
	LogFormat string
}

// placeholderJWTSecret is the stock example value and never signs tokens.
const placeholderJWTSecret = "your-secret-key-here"

var ErrJWTSecretUnset = errors.New("JWT_SECRET must be set to a private value")

// LoadConfig reads .env (if present) and then the process environment. The
// logger is configured before anything else is logged.
func LoadConfig() *Config {
	envErr := godotenv.Load()

	cfg := &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
	cfg.SetupLogger()
	if envErr != nil {
		log.Info("No .env file found, using system environment variables")
	}

	cfg.load()
	return cfg
}

func (c *Config) load() {
	*c = Config{
		LogLevel:  c.LogLevel,
		LogFormat: c.LogFormat,

		Port:           getEnv("PORT", "8001"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		TRXAddress:     getEnv("TRX_RECEIVE_ADDRESS", "TFNHcYdhEq5sgjaWPdR1Gnxgzu3RUKncwu"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		SweepInterval:         getDuration("SWEEP_INTERVAL", time.Minute),
		PendingPaymentTimeout: getDuration("PENDING_PAYMENT_TIMEOUT", 24*time.Hour),
		AuditExportInterval:   getDuration("AUDIT_EXPORT_INTERVAL", 24*time.Hour),

		PaymentOracleURL:     getEnv("PAYMENT_ORACLE_URL", ""),
		PaymentOracleTimeout: getDuration("PAYMENT_ORACLE_TIMEOUT", 10*time.Second),
		NodeCatalogFile:      getEnv("NODE_CATALOG_FILE", ""),

		TelegramBotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramOperatorChat: getInt64("TELEGRAM_OPERATOR_CHAT_ID", 0),
		CloudflareAccountID:  getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
		R2AccessKeyID:        getEnv("R2_ACCESS_KEY_ID", ""),
		R2AccessKeySecret:    getEnv("R2_ACCESS_KEY_SECRET", ""),
		R2Bucket:             getEnv("R2_BUCKET_NAME", ""),
	}
}

// ValidateAuth rejects an empty or placeholder JWT secret.
func (c *Config) ValidateAuth() error {
	secret := strings.TrimSpace(c.JWTSecret)
	if secret == "" || secret == placeholderJWTSecret {
		return ErrJWTSecretUnset
	}
	return nil
}

// R2Enabled reports whether withdrawal audit export has somewhere to go.
func (c *Config) R2Enabled() bool {
	return c.CloudflareAccountID != "" && c.R2Bucket != ""
}

// SetupLogger applies LOG_LEVEL and LOG_FORMAT to the standard logrus logger.
func (c *Config) SetupLogger() {
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("unknown LOG_LEVEL %q, falling back to info", c.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Warnf("invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func getInt64(key string, fallback int64) int64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Warnf("invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
