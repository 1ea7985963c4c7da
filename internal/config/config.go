package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Membership   MembershipConfig
	Verification VerificationConfig
	Tracing      TracingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	NodeID                int64
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

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds outbound delivery endpoints. An empty webhook URL
// means codes are only logged.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
	Timeout    time.Duration
}

// MembershipConfig points at the registry that owns member status. When
// BaseURL is empty the members table in Postgres is read instead, or the
// JSON SeedFile when running without a database.
type MembershipConfig struct {
	BaseURL         string
	Timeout         time.Duration
	MaxAttempts     int
	BreakerFailures int
	BreakerCooldown time.Duration
	SeedFile        string
}

// VerificationConfig holds the tunables of the code and visit workflow.
type VerificationConfig struct {
	CodeLength      int
	CodeTTL         time.Duration
	CodeSecret      string
	IssueLimit      int
	IssueWindow     time.Duration
	AttemptsPerMin  int
	AttemptBurst    int
	UpstreamTimeout time.Duration
	RateLimitStore  string
}

// TracingConfig enables OTLP span export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string
	ServiceName string
	Insecure    bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "visit-verification"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			NodeID:                int64(getEnvAsInt("APP_NODE_ID", 1)),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
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
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			Timeout:    getEnvAsDuration("NOTIFY_TIMEOUT", 5*time.Second),
		},
		Membership: MembershipConfig{
			BaseURL:         strings.TrimRight(getEnv("MEMBERSHIP_BASE_URL", ""), "/"),
			Timeout:         getEnvAsDuration("MEMBERSHIP_TIMEOUT", 2*time.Second),
			MaxAttempts:     getEnvAsInt("MEMBERSHIP_MAX_ATTEMPTS", 3),
			BreakerFailures: getEnvAsInt("MEMBERSHIP_BREAKER_FAILURES", 5),
			BreakerCooldown: getEnvAsDuration("MEMBERSHIP_BREAKER_COOLDOWN", 30*time.Second),
		},
		Verification: VerificationConfig{
			CodeLength:      getEnvAsInt("VERIFICATION_CODE_LENGTH", 6),
			CodeTTL:         getEnvAsDuration("VERIFICATION_CODE_TTL", 5*time.Minute),
			CodeSecret:      getEnv("VERIFICATION_CODE_SECRET", "dev-code-secret"),
			IssueLimit:      getEnvAsInt("VERIFICATION_ISSUE_LIMIT", 3),
			IssueWindow:     getEnvAsDuration("VERIFICATION_ISSUE_WINDOW", 15*time.Minute),
			AttemptsPerMin:  getEnvAsInt("VERIFICATION_ATTEMPTS_PER_MINUTE", 5),
			AttemptBurst:    getEnvAsInt("VERIFICATION_ATTEMPT_BURST", 5),
			UpstreamTimeout: getEnvAsDuration("VERIFICATION_UPSTREAM_TIMEOUT", 3*time.Second),
			RateLimitStore:  strings.ToLower(getEnv("VERIFICATION_RATE_LIMIT_STORE", "redis")),
		},
		Tracing: TracingConfig{
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "visit-verification"),
			Insecure:    getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
	}

	if err := cfg.Verification.Validate(); err != nil {
		return nil, err
	}
	if cfg.IsProduction() && (cfg.Verification.CodeSecret == "dev-code-secret" || cfg.Auth.JWTSecret == "dev-secret") {
		return nil, errors.New("AUTH_JWT_SECRET and VERIFICATION_CODE_SECRET must be set in production")
	}

	return cfg, nil
}

// Validate rejects tunables the workflow cannot operate with.
func (v VerificationConfig) Validate() error {
	var errs []error
	if v.CodeLength < 4 || v.CodeLength > 12 {
		errs = append(errs, fmt.Errorf("VERIFICATION_CODE_LENGTH must be between 4 and 12, got %d", v.CodeLength))
	}
	if v.CodeTTL <= 0 {
		errs = append(errs, errors.New("VERIFICATION_CODE_TTL must be positive"))
	}
	if v.IssueLimit <= 0 {
		errs = append(errs, errors.New("VERIFICATION_ISSUE_LIMIT must be positive"))
	}
	if v.IssueWindow <= 0 {
		errs = append(errs, errors.New("VERIFICATION_ISSUE_WINDOW must be positive"))
	}
	if v.AttemptsPerMin <= 0 || v.AttemptBurst <= 0 {
		errs = append(errs, errors.New("VERIFICATION_ATTEMPTS_PER_MINUTE and VERIFICATION_ATTEMPT_BURST must be positive"))
	}
	if v.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("VERIFICATION_UPSTREAM_TIMEOUT must be positive"))
	}
	if strings.TrimSpace(v.CodeSecret) == "" {
		errs = append(errs, errors.New("VERIFICATION_CODE_SECRET must not be empty"))
	}
	if v.RateLimitStore != "redis" && v.RateLimitStore != "memory" {
		errs = append(errs, fmt.Errorf("VERIFICATION_RATE_LIMIT_STORE must be redis or memory, got %q", v.RateLimitStore))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs with production safeguards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
