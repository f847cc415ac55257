package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendPostgres  = "postgres"
	BackendQuickbase = "quickbase"
	BackendMemory    = "memory"
)

// Claim guard backends.
const (
	GuardLocal = "local"
	GuardRedis = "redis"
	GuardNATS  = "nats"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	Quickbase    QuickbaseConfig
	Redis        RedisConfig
	NATS         NATSConfig
	Guard        GuardConfig
	Engine       EngineConfig
	Directory    DirectoryConfig
	Logger       LoggerConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects the record store and bounds every call to it.
type StoreConfig struct {
	Backend      string
	Timeout      time.Duration
	MaxAttempts  int
	RetryInitial time.Duration
	RetryMax     time.Duration
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

// QuickbaseConfig holds the legacy record store settings.
type QuickbaseConfig struct {
	Realm              string
	Token              string
	BaseURL            string
	AppointmentsTable  string
	ClaimsTable        string
	PreviewRoundsTable string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NATSConfig holds NATS connection values. An empty URL disables NATS.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	KVBucket      string
}

// GuardConfig selects how claims are serialized across replicas.
type GuardConfig struct {
	Backend string
	TTL     time.Duration
}

// EngineConfig holds the dispatch rules.
type EngineConfig struct {
	EscalationThreshold   time.Duration
	MaxRounds             int
	PreviewWindow         time.Duration
	SweepInterval         time.Duration
	DefaultHub            string
	FallbackHub           string
	RegionOverrideEnabled bool
	RegionOverrideHub     string
	RegionOverrideMarkers []string
	MaxDailyAppointments  int
	ClaimExpiry           time.Duration
	MarkUnassignable      bool
	Timezone              string
	HealthCheckInterval   time.Duration
}

// DirectoryConfig points at the partner and hub definitions.
type DirectoryConfig struct {
	File string
}

// LoggerConfig configures logging behavior. Format is "json" or "console".
type LoggerConfig struct {
	Level  string
	Format string
}

// NotificationConfig holds stub notification settings.
type NotificationConfig struct {
	SendSMS    bool
	SendEmail  bool
	Delay      time.Duration
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	dsn := os.Getenv("POSTGRES_DSN")
	defaultBackend := BackendMemory
	if dsn != "" {
		defaultBackend = BackendPostgres
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "dispatch-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Backend:      strings.ToLower(getEnv("STORE_BACKEND", defaultBackend)),
			Timeout:      getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
			MaxAttempts:  getEnvAsInt("STORE_MAX_ATTEMPTS", 3),
			RetryInitial: getEnvAsDuration("STORE_RETRY_INITIAL", 100*time.Millisecond),
			RetryMax:     getEnvAsDuration("STORE_RETRY_MAX", 2*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Quickbase: QuickbaseConfig{
			Realm:              os.Getenv("QUICKBASE_REALM"),
			Token:              os.Getenv("QUICKBASE_TOKEN"),
			BaseURL:            getEnv("QUICKBASE_BASE_URL", "https://api.quickbase.com/v1"),
			AppointmentsTable:  os.Getenv("TABLE_APPOINTMENTS"),
			ClaimsTable:        os.Getenv("TABLE_CLAIMS"),
			PreviewRoundsTable: os.Getenv("TABLE_PREVIEW_ROUNDS"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		NATS: NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "dispatch.events"),
			KVBucket:      getEnv("NATS_KV_BUCKET", "dispatch-claims"),
		},
		Guard: GuardConfig{
			Backend: strings.ToLower(getEnv("CLAIM_GUARD", GuardLocal)),
			TTL:     getEnvAsDuration("CLAIM_GUARD_TTL", 30*time.Second),
		},
		Engine: EngineConfig{
			EscalationThreshold:   time.Duration(getEnvAsInt("ESCALATION_MINUTES", 15)) * time.Minute,
			MaxRounds:             getEnvAsInt("ESCALATION_ROUNDS", 3),
			PreviewWindow:         time.Duration(getEnvAsInt("PREVIEW_WINDOW_MINUTES", 15)) * time.Minute,
			SweepInterval:         getEnvAsDuration("ESCALATION_SWEEP_INTERVAL", 15*time.Minute),
			DefaultHub:            getEnv("DEFAULT_HUB", "STL_MO"),
			FallbackHub:           getEnv("FALLBACK_HUB", "KC_MO"),
			RegionOverrideEnabled: getEnvAsBool("ENABLE_REGION_OVERRIDE", true),
			RegionOverrideHub:     getEnv("REGION_OVERRIDE_HUB", "STL_IL"),
			RegionOverrideMarkers: getEnvAsList("REGION_OVERRIDE_MARKERS", []string{"IL", "Illinois"}),
			MaxDailyAppointments:  getEnvAsInt("MAX_DAILY_APPOINTMENTS", 100),
			ClaimExpiry:           time.Duration(getEnvAsInt("CLAIM_EXPIRY_HOURS", 24)) * time.Hour,
			MarkUnassignable:      getEnvAsBool("MARK_UNASSIGNABLE", false),
			Timezone:              getEnv("TIMEZONE", "America/Los_Angeles"),
			HealthCheckInterval:   getEnvAsDuration("HEALTH_CHECK_INTERVAL", 5*time.Minute),
		},
		Directory: DirectoryConfig{
			File: getEnv("DIRECTORY_FILE", "directory.yaml"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Notification: NotificationConfig{
			SendSMS:    getEnvAsBool("SEND_SMS_NOTIFICATIONS", true),
			SendEmail:  getEnvAsBool("SEND_EMAIL_NOTIFICATIONS", true),
			Delay:      time.Duration(getEnvAsInt("NOTIFICATION_DELAY_SECONDS", 0)) * time.Second,
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("STORE_BACKEND=postgres requires POSTGRES_DSN"))
		}
	case BackendQuickbase:
		q := c.Quickbase
		if q.Realm == "" || q.Token == "" || q.AppointmentsTable == "" || q.ClaimsTable == "" || q.PreviewRoundsTable == "" {
			errs = append(errs, errors.New("STORE_BACKEND=quickbase requires QUICKBASE_REALM, QUICKBASE_TOKEN and the TABLE_* ids"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}

	switch c.Guard.Backend {
	case GuardLocal, GuardRedis:
	case GuardNATS:
		if c.NATS.URL == "" {
			errs = append(errs, errors.New("CLAIM_GUARD=nats requires NATS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CLAIM_GUARD %q", c.Guard.Backend))
	}

	e := c.Engine
	if strings.TrimSpace(e.DefaultHub) == "" {
		errs = append(errs, errors.New("DEFAULT_HUB must not be empty"))
	}
	if e.MaxRounds < 1 {
		errs = append(errs, errors.New("ESCALATION_ROUNDS must be at least 1"))
	}
	if e.EscalationThreshold <= 0 || e.PreviewWindow <= 0 || e.SweepInterval <= 0 {
		errs = append(errs, errors.New("escalation threshold, preview window and sweep interval must be positive"))
	}
	if e.MaxDailyAppointments < 0 {
		errs = append(errs, errors.New("MAX_DAILY_APPOINTMENTS must not be negative"))
	}
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid TIMEZONE %q: %w", e.Timezone, err))
	}

	return errors.Join(errs...)
}

// Location returns the engine timezone. Validate has already checked it.
func (e EngineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
