// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"retroboard/backend/internal/trust"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN. Required by cmd/server, cmd/migrate, and cmd/seed.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "retroboard-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "retroboard-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// SessionTTL is the session lifetime (e.g. "24h"); also the token lifetime.
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// SessionRotationInterval is the session age after which rotation is recommended (e.g. "120m").
	SessionRotationInterval string `mapstructure:"SESSION_ROTATION_INTERVAL"`
	// CSRFProtection enables the CSRF-header advisory on state-changing requests; default true.
	CSRFProtection bool `mapstructure:"CSRF_PROTECTION"`
	// FingerprintTTL is the window within which a stored fingerprint is comparable (e.g. "24h").
	FingerprintTTL string `mapstructure:"FINGERPRINT_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// CookieDomain is the Domain attribute on the session cookie; empty for host-only.
	CookieDomain string `mapstructure:"COOKIE_DOMAIN"`
	// AllowedOrigins is a comma-separated list of origins allowed to open websocket connections.
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	// Env is the application environment (e.g. "development", "production"). Production enforces Secure cookies and HTTPS transport.
	Env string `mapstructure:"APP_ENV"`

	// Telemetry (optional). When Kafka brokers are set, the server emits security events to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for security events (default retroboard-security).
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// OTLPEndpoint is the OTLP gRPC endpoint for traces/metrics/logs (e.g. localhost:4317); empty disables OTel export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`

	// Worker-only: Loki URL for the telemetry worker to push events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "retroboard-auth")
	v.SetDefault("JWT_AUDIENCE", "retroboard-api")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_ROTATION_INTERVAL", "120m")
	v.SetDefault("CSRF_PROTECTION", true)
	v.SetDefault("FINGERPRINT_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "retroboard-security")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "retroboard-telemetry-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.Production() && (cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "") {
		return nil, errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// Production reports whether the app runs with production hardening.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// SessionLifetime parses SessionTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) SessionLifetime() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// CookieSecurity builds the cookie trust checks the server runs. Rotation
// and tampering detection are always on; the CSRF advisory follows
// CSRF_PROTECTION.
func (c *Config) CookieSecurity() trust.CookieConfig {
	return trust.CookieConfig{
		EnableCSRFProtection:           c.CSRFProtection,
		EnableSessionRotation:          true,
		EnableCookieTamperingDetection: true,
		SessionRotationInterval:        c.RotationInterval(),
	}
}

// RotationInterval parses SessionRotationInterval. Returns 120m if unset or invalid.
func (c *Config) RotationInterval() time.Duration {
	d, err := time.ParseDuration(c.SessionRotationInterval)
	if err != nil || d <= 0 {
		return 120 * time.Minute
	}
	return d
}

// FingerprintWindow parses FingerprintTTL. Returns 24h if unset or invalid.
func (c *Config) FingerprintWindow() time.Duration {
	d, err := time.ParseDuration(c.FingerprintTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	return splitCSV(c.TelemetryKafkaBrokers)
}

// AllowedOriginsList returns the websocket origin allow list.
func (c *Config) AllowedOriginsList() []string {
	return splitCSV(c.AllowedOrigins)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
