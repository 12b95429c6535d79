package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Archival ArchivalConfig
	Slack    SlackConfig
	Log      LogConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string //nolint:gosec // G117: DB connection config
	DBName         string
	SSLMode        string
	MaxConns       int
	MigrateOnStart bool
}

// RedisConfig holds Redis connection settings. Without Redis the run lock is
// process-local and run events are not published.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	RateLimit    float64 // requests per second per client IP
	RateBurst    int
}

// ArchivalConfig holds the defaults of scheduled and manual runs.
type ArchivalConfig struct {
	MonthsToKeep         int
	AuditLogMonthsToKeep int
	BatchSize            int
	Schedule             string // cron expression; empty disables scheduled runs
	ContinueOnError      bool
	PolicyFile           string // YAML retention policy; empty uses defaults
	LockTTL              time.Duration
}

// SlackConfig holds Slack notification settings.
type SlackConfig struct {
	BotToken string //nolint:gosec // G117: Slack bot token config
	Channel  string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config.LoadDotEnv: %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("FUELOPS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("FUELOPS_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	migrateOnStart, err := getEnvBool("FUELOPS_DB_MIGRATE", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisEnabled, err := getEnvBool("FUELOPS_REDIS_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("FUELOPS_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("FUELOPS_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("FUELOPS_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateLimit, err := getEnvFloat("FUELOPS_SERVER_RATE_LIMIT", 5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateBurst, err := getEnvInt("FUELOPS_SERVER_RATE_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	monthsToKeep, err := getEnvInt("FUELOPS_ARCHIVAL_MONTHS_TO_KEEP", 6)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	auditMonths, err := getEnvInt("FUELOPS_ARCHIVAL_AUDIT_LOG_MONTHS_TO_KEEP", 12)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	batchSize, err := getEnvInt("FUELOPS_ARCHIVAL_BATCH_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	continueOnError, err := getEnvBool("FUELOPS_ARCHIVAL_CONTINUE_ON_ERROR", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	lockTTL, err := getEnvDuration("FUELOPS_ARCHIVAL_LOCK_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:           getEnv("FUELOPS_DB_HOST", "localhost"),
			Port:           dbPort,
			User:           getEnv("FUELOPS_DB_USER", "fuelops"),
			Password:       getEnv("FUELOPS_DB_PASSWORD", ""),
			DBName:         getEnv("FUELOPS_DB_NAME", "fuelops_dev"),
			SSLMode:        getEnv("FUELOPS_DB_SSLMODE", "disable"),
			MaxConns:       dbMaxConns,
			MigrateOnStart: migrateOnStart,
		},
		Redis: RedisConfig{
			Enabled:  redisEnabled,
			Addr:     getEnv("FUELOPS_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("FUELOPS_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Server: ServerConfig{
			Addr:         getEnv("FUELOPS_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("FUELOPS_CORS_ORIGINS", []string{"http://localhost:5173"}),
			RateLimit:    rateLimit,
			RateBurst:    rateBurst,
		},
		Archival: ArchivalConfig{
			MonthsToKeep:         monthsToKeep,
			AuditLogMonthsToKeep: auditMonths,
			BatchSize:            batchSize,
			Schedule:             getEnv("FUELOPS_ARCHIVAL_SCHEDULE", "0 2 1 * *"),
			ContinueOnError:      continueOnError,
			PolicyFile:           getEnv("FUELOPS_ARCHIVAL_POLICY_FILE", ""),
			LockTTL:              lockTTL,
		},
		Slack: SlackConfig{
			BotToken: getEnv("FUELOPS_SLACK_BOT_TOKEN", ""),
			Channel:  getEnv("FUELOPS_SLACK_CHANNEL", ""),
		},
		Log: LogConfig{
			Level:  getEnv("FUELOPS_LOG_LEVEL", "info"),
			Format: getEnv("FUELOPS_LOG_FORMAT", "json"),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Database.SSLMode == "disable" {
		log.Warn().Msg("FUELOPS_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("FUELOPS_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("FUELOPS_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("FUELOPS_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("FUELOPS_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("FUELOPS_SERVER_RATE_LIMIT must be positive, got %g", c.Server.RateLimit)
	}
	if c.Server.RateBurst < 1 {
		return fmt.Errorf("FUELOPS_SERVER_RATE_BURST must be >= 1, got %d", c.Server.RateBurst)
	}
	if c.Archival.MonthsToKeep < 1 {
		return fmt.Errorf("FUELOPS_ARCHIVAL_MONTHS_TO_KEEP must be >= 1, got %d", c.Archival.MonthsToKeep)
	}
	if c.Archival.AuditLogMonthsToKeep < 1 {
		return fmt.Errorf("FUELOPS_ARCHIVAL_AUDIT_LOG_MONTHS_TO_KEEP must be >= 1, got %d", c.Archival.AuditLogMonthsToKeep)
	}
	if c.Archival.BatchSize < 1 {
		return fmt.Errorf("FUELOPS_ARCHIVAL_BATCH_SIZE must be >= 1, got %d", c.Archival.BatchSize)
	}
	if c.Archival.LockTTL < time.Second {
		return fmt.Errorf("FUELOPS_ARCHIVAL_LOCK_TTL must be at least 1s, got %s", c.Archival.LockTTL)
	}
	if c.Archival.Schedule != "" {
		if _, err := cron.ParseStandard(c.Archival.Schedule); err != nil {
			return fmt.Errorf("FUELOPS_ARCHIVAL_SCHEDULE %q is not a valid cron expression: %w", c.Archival.Schedule, err)
		}
	}
	if c.Slack.BotToken != "" && c.Slack.Channel == "" {
		return errors.New("FUELOPS_SLACK_CHANNEL is required when FUELOPS_SLACK_BOT_TOKEN is set")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("FUELOPS_LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	return nil
}

// DSN returns the PostgreSQL connection URL.
func (c *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
