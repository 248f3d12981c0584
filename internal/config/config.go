package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/joho/godotenv"
)

// DevSessionSecret is the well-known development secret used when nothing else is configured.
const DevSessionSecret = "dev-secret"

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
}

// AppConfig controls server level behavior. ProxyHeader is only believed when the
// connecting peer is listed in TrustedProxies (addresses or CIDR ranges).
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	BaseURL               string
	ProxyHeader           string
	TrustedProxies        []string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// SecretCandidate is one environment variable that may carry the session secret.
type SecretCandidate struct {
	Name  string
	Value string
}

// AuthConfig defines session and service-token parameters.
type AuthConfig struct {
	// SessionSecrets lists candidates in resolution order: primary first, then fallbacks.
	SessionSecrets        []SecretCandidate
	StrictSecret          bool
	SessionCookieName     string
	SessionTTLMinutes     int
	SessionLeewaySeconds  int
	ServiceNamespace      string
	ServiceAudience       string
	SigningKeyPEM         string
	SigningKeyFile        string
	SigningKeyRedisKey    string
	SigningKeyID          string
	PreviousJWKSFile      string
	KeyRefreshSeconds     int
	KeyFetchTimeoutMillis int
	SigningTimeoutMillis  int
	BcryptCost            int
}

// RateLimitConfig defines admission policies.
type RateLimitConfig struct {
	Backend              string
	LoginMax             int
	LoginWindowSeconds   int
	ExchangeMax          int
	ExchangeWindowSecs   int
	SweepIntervalSeconds int
}

// AuditConfig configures security event sinks.
type AuditConfig struct {
	SinkTimeoutMillis int
	PersistEvents     bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "token-bridge"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			BaseURL:               strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
			ProxyHeader:           os.Getenv("APP_PROXY_HEADER"),
			TrustedProxies:        getEnvAsList("APP_TRUSTED_PROXIES"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			SessionSecrets: []SecretCandidate{
				{Name: "AUTH_SESSION_SECRET", Value: os.Getenv("AUTH_SESSION_SECRET")},
				{Name: "AUTH_SECRET", Value: os.Getenv("AUTH_SECRET")},
				{Name: "JWT_SECRET", Value: os.Getenv("JWT_SECRET")},
			},
			StrictSecret:          getEnvAsBool("AUTH_STRICT_SECRET", false),
			SessionCookieName:     getEnv("AUTH_SESSION_COOKIE", "session_token"),
			SessionTTLMinutes:     getEnvAsInt("AUTH_SESSION_TTL_MINUTES", 60*24*7),
			SessionLeewaySeconds:  getEnvAsInt("AUTH_SESSION_LEEWAY_SECONDS", 0),
			ServiceNamespace:      getEnv("AUTH_SERVICE_NAMESPACE", "backend"),
			ServiceAudience:       getEnv("AUTH_SERVICE_AUDIENCE", "backend"),
			SigningKeyPEM:         os.Getenv("AUTH_SIGNING_KEY_PEM"),
			SigningKeyFile:        os.Getenv("AUTH_SIGNING_KEY_FILE"),
			SigningKeyRedisKey:    os.Getenv("AUTH_SIGNING_KEY_REDIS_KEY"),
			SigningKeyID:          os.Getenv("AUTH_SIGNING_KEY_ID"),
			PreviousJWKSFile:      os.Getenv("AUTH_PREVIOUS_JWKS_FILE"),
			KeyRefreshSeconds:     getEnvAsInt("AUTH_KEY_REFRESH_SECONDS", 300),
			KeyFetchTimeoutMillis: getEnvAsInt("AUTH_KEY_FETCH_TIMEOUT_MS", 2000),
			SigningTimeoutMillis:  getEnvAsInt("AUTH_SIGNING_TIMEOUT_MS", 2000),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		RateLimit: RateLimitConfig{
			Backend:              getEnv("RATE_LIMIT_BACKEND", "memory"),
			LoginMax:             getEnvAsInt("RATE_LIMIT_LOGIN_MAX", 5),
			LoginWindowSeconds:   getEnvAsInt("RATE_LIMIT_LOGIN_WINDOW_SECONDS", 60),
			ExchangeMax:          getEnvAsInt("RATE_LIMIT_EXCHANGE_MAX", 20),
			ExchangeWindowSecs:   getEnvAsInt("RATE_LIMIT_EXCHANGE_WINDOW_SECONDS", 60),
			SweepIntervalSeconds: getEnvAsInt("RATE_LIMIT_SWEEP_INTERVAL_SECONDS", 60),
		},
		Audit: AuditConfig{
			SinkTimeoutMillis: getEnvAsInt("AUDIT_SINK_TIMEOUT_MS", 1000),
			PersistEvents:     getEnvAsBool("AUDIT_PERSIST_EVENTS", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.App,
		validation.Field(&c.App.Port, validation.Required, is.Port),
		validation.Field(&c.App.BaseURL, validation.Required, is.URL),
		validation.Field(&c.App.TrustedProxies, validation.Each(validation.By(ipOrCIDR))),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Auth,
		validation.Field(&c.Auth.SessionCookieName, validation.Required),
		validation.Field(&c.Auth.SessionTTLMinutes, validation.Min(1)),
		validation.Field(&c.Auth.SessionLeewaySeconds, validation.Min(0)),
		validation.Field(&c.Auth.ServiceNamespace, validation.Required, validation.By(noSeparator)),
		validation.Field(&c.Auth.ServiceAudience, validation.Required),
		validation.Field(&c.Auth.KeyFetchTimeoutMillis, validation.Min(1)),
		validation.Field(&c.Auth.SigningTimeoutMillis, validation.Min(1)),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.RateLimit,
		validation.Field(&c.RateLimit.Backend, validation.Required, validation.In("memory", "redis")),
		validation.Field(&c.RateLimit.LoginMax, validation.Min(1)),
		validation.Field(&c.RateLimit.LoginWindowSeconds, validation.Min(1)),
		validation.Field(&c.RateLimit.ExchangeMax, validation.Min(1)),
		validation.Field(&c.RateLimit.ExchangeWindowSecs, validation.Min(1)),
	)
}

func noSeparator(value interface{}) error {
	s, _ := value.(string)
	if strings.Contains(s, "|") {
		return fmt.Errorf("must not contain '|'")
	}
	return nil
}

func ipOrCIDR(value interface{}) error {
	s, _ := value.(string)
	if net.ParseIP(s) != nil {
		return nil
	}
	if _, _, err := net.ParseCIDR(s); err != nil {
		return fmt.Errorf("must be an IP address or CIDR range")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ProductionLike reports whether the environment must not run on development defaults.
func (a AppConfig) ProductionLike() bool {
	switch strings.ToLower(a.Env) {
	case "production", "prod", "staging":
		return true
	}
	return false
}

func (a AuthConfig) SessionTTL() time.Duration {
	return time.Duration(a.SessionTTLMinutes) * time.Minute
}

func (a AuthConfig) SessionLeeway() time.Duration {
	return time.Duration(a.SessionLeewaySeconds) * time.Second
}

func (a AuthConfig) KeyRefresh() time.Duration {
	return time.Duration(a.KeyRefreshSeconds) * time.Second
}

func (a AuthConfig) KeyFetchTimeout() time.Duration {
	return time.Duration(a.KeyFetchTimeoutMillis) * time.Millisecond
}

func (a AuthConfig) SigningTimeout() time.Duration {
	return time.Duration(a.SigningTimeoutMillis) * time.Millisecond
}

func (r RateLimitConfig) SweepInterval() time.Duration {
	return time.Duration(r.SweepIntervalSeconds) * time.Second
}

func (a AuditConfig) SinkTimeout() time.Duration {
	return time.Duration(a.SinkTimeoutMillis) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
