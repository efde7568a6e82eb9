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

// Token store backends.
const (
	TokenStoreMemory   = "memory"
	TokenStorePostgres = "postgres"
	TokenStoreRedis    = "redis"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Keys         KeysConfig
	Tokens       TokensConfig
	Verification VerificationConfig
	Admin        AdminConfig
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSAllowOrigins      string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	RunMigrations   bool
	MaxConnIdle     time.Duration
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// KeysConfig locates the issuer keypair.
type KeysConfig struct {
	IssuerDID      string
	PrivateKeyPath string
	PublicKeyPath  string
}

// TokensConfig controls reference token minting and storage.
type TokensConfig struct {
	Store            string
	CheckInTTL       time.Duration
	CheckInLength    int
	ShareLength      int
	MaxShareHours    int
	Retention        time.Duration
	CleanupInterval  time.Duration
	CheckInSingleUse bool
}

// VerificationConfig bounds check-in and per-store latency.
type VerificationConfig struct {
	CheckInTimeout time.Duration
	StoreTimeout   time.Duration
	BundlePolicy   string
}

// AdminConfig protects issuance and revocation routes.
type AdminConfig struct {
	APIKeyHash string
}

// KafkaConfig enables event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers string
	Topic   string
	Acks    string
}

// RateLimitConfig bounds per-client check-in and verify traffic.
type RateLimitConfig struct {
	PerSecond int
	Burst     int
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
			Name:                  getEnv("APP_NAME", "credential-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			CORSAllowOrigins:      getEnv("CORS_ALLOW_ORIGINS", "*"),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			MaxConns:        int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:        int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:   getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MaxConnIdle:     getEnvAsDuration("POSTGRES_CONN_MAX_IDLE", 30*time.Second),
			MaxConnLifetime: getEnvAsDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnectTimeout:  getEnvAsDuration("POSTGRES_CONNECT_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Keys: KeysConfig{
			IssuerDID:      getEnv("ISSUER_DID", "did:web:gym.example"),
			PrivateKeyPath: getEnv("ISSUER_PRIVATE_KEY_PATH", "keys/issuer.pem"),
			PublicKeyPath:  getEnv("ISSUER_PUBLIC_KEY_PATH", "keys/issuer.pub.pem"),
		},
		Tokens: TokensConfig{
			Store:            strings.ToLower(getEnv("TOKEN_STORE", "")),
			CheckInTTL:       getEnvAsDuration("CHECKIN_TOKEN_TTL", 60*time.Second),
			CheckInLength:    getEnvAsInt("CHECKIN_TOKEN_LENGTH", 10),
			ShareLength:      getEnvAsInt("SHARE_TOKEN_LENGTH", 32),
			MaxShareHours:    getEnvAsInt("SHARE_MAX_HOURS", 720),
			Retention:        getEnvAsDuration("TOKEN_RETENTION", 24*time.Hour),
			CleanupInterval:  getEnvAsDuration("TOKEN_CLEANUP_INTERVAL", 10*time.Minute),
			CheckInSingleUse: getEnvAsBool("CHECKIN_SINGLE_USE", false),
		},
		Verification: VerificationConfig{
			CheckInTimeout: getEnvAsDuration("CHECKIN_TIMEOUT", 3*time.Second),
			StoreTimeout:   getEnvAsDuration("STORE_TIMEOUT", 2*time.Second),
			BundlePolicy:   getEnv("BUNDLE_POLICY", "all_or_nothing"),
		},
		Admin: AdminConfig{
			APIKeyHash: os.Getenv("ADMIN_API_KEY_HASH"),
		},
		Kafka: KafkaConfig{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "credential-events"),
			Acks:    getEnv("KAFKA_ACKS", "all"),
		},
		RateLimit: RateLimitConfig{
			PerSecond: getEnvAsInt("RATE_LIMIT_PER_SECOND", 20),
			Burst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
	}

	if cfg.Tokens.Store == "" {
		cfg.Tokens.Store = TokenStoreMemory
		if cfg.Postgres.DSN != "" {
			cfg.Tokens.Store = TokenStorePostgres
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Tokens.Store {
	case TokenStoreMemory, TokenStoreRedis:
	case TokenStorePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("TOKEN_STORE=postgres requires POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TOKEN_STORE %q", c.Tokens.Store))
	}
	if c.Tokens.CheckInTTL <= 0 {
		errs = append(errs, errors.New("CHECKIN_TOKEN_TTL must be positive"))
	}
	if c.Tokens.CheckInLength < 8 || c.Tokens.ShareLength < 16 {
		errs = append(errs, errors.New("token lengths too short"))
	}
	if c.Tokens.MaxShareHours <= 0 {
		errs = append(errs, errors.New("SHARE_MAX_HOURS must be positive"))
	}
	if c.Verification.CheckInTimeout <= 0 || c.Verification.StoreTimeout <= 0 {
		errs = append(errs, errors.New("CHECKIN_TIMEOUT and STORE_TIMEOUT must be positive"))
	}
	switch c.Verification.BundlePolicy {
	case "all_or_nothing", "best_effort":
	default:
		errs = append(errs, fmt.Errorf("unknown BUNDLE_POLICY %q", c.Verification.BundlePolicy))
	}
	if !strings.HasPrefix(c.Keys.IssuerDID, "did:") {
		errs = append(errs, fmt.Errorf("ISSUER_DID %q is not a DID", c.Keys.IssuerDID))
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate limit values must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
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

// Enabled reports whether events should be published to Kafka.
func (k KafkaConfig) Enabled() bool {
	return k.Brokers != ""
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
