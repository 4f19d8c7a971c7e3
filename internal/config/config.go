package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"redditfit"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"redditfit"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	NSQLookupd        string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost          string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP          string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	EnableJobConsumer bool   `envconfig:"ENABLE_JOB_CONSUMER" default:"false"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	RewriteModel string `envconfig:"REWRITE_MODEL" default:"gemini-1.5-flash"`

	// Jobs
	MaxConcurrentJobs   int           `envconfig:"MAX_CONCURRENT_JOBS" default:"3"`
	BulkRewriteDelay    time.Duration `envconfig:"BULK_REWRITE_DELAY" default:"100ms"`
	CleanupRetention    time.Duration `envconfig:"CLEANUP_RETENTION" default:"720h"`
	EnableScheduledJobs bool          `envconfig:"ENABLE_SCHEDULED_JOBS" default:"true"`

	// Monitoring
	ErrorAlertEmail string        `envconfig:"ERROR_ALERT_EMAIL" default:"admin@reddit.com"`
	AlertCooldown   time.Duration `envconfig:"ALERT_COOLDOWN" default:"5m"`
	LogBufferSize   int           `envconfig:"LOG_BUFFER_SIZE" default:"1000"`
	LogFilePath     string        `envconfig:"LOG_FILE_PATH"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`

	// Server
	ServerPort       int  `envconfig:"SERVER_PORT" default:"8081"`
	RateLimitEnabled bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Missing .env files are fine; the shell environment may carry everything.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("%w: MAX_CONCURRENT_JOBS must be at least 1", ErrInvalidValue)
	}
	if c.BulkRewriteDelay < 0 {
		return fmt.Errorf("%w: BULK_REWRITE_DELAY must not be negative", ErrInvalidValue)
	}
	return nil
}

// DSN is the lib/pq connection string for the configured database.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}

// MigrateURL is the golang-migrate database URL for the configured database.
func (c *Config) MigrateURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}
