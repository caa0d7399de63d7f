package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the demolens server, worker and tools.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Worker   WorkerConfig
	Source   SourceConfig
	Archive  ArchiveConfig
	Capture  CaptureConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	CORSOrigins       []string
	RequestsPerMinute int
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MongoDatabase   string
	MongoCollection string
	MigrationsDir   string
}

// RedisConfig is optional; an empty URL disables the status cache, the
// persistent attempt counter and rate limiting.
type RedisConfig struct {
	URL string
}

type QueueConfig struct {
	Driver      string
	Dir         string
	RedisPrefix string
	RabbitURL   string
	RabbitQueue string
	BatchSize   int
}

type WorkerConfig struct {
	PollInterval   time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	NotFoundPolicy string
	MetricsPort    int
}

type SourceConfig struct {
	Mode    string
	BaseURL string
	Timeout time.Duration
}

type ArchiveConfig struct {
	Driver string
	Dir    string
	Minio  MinioConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	UseSSL    bool
}

type CaptureConfig struct {
	Enabled bool
	Dir     string
}

const (
	NotFoundDrop  = "drop"
	NotFoundRetry = "retry"
)

var (
	validDatabaseDrivers = map[string]bool{"postgres": true, "mongo": true, "memory": true}
	validQueueDrivers    = map[string]bool{"dir": true, "redis": true, "rabbitmq": true}
	validArchiveDrivers  = map[string]bool{"dir": true, "minio": true}
	validSourceModes     = map[string]bool{"http": true, "simulated": true}
)

// Load reads configuration from environment variables (and a .env file when present)
// and returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("DEMOLENS_PORT", 8080),
			Env:               envString("DEMOLENS_ENV", "development"),
			CORSOrigins:       envList("CORS_ALLOWED_ORIGINS"),
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			Driver:          envString("DATABASE_DRIVER", "postgres"),
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MongoDatabase:   envString("MONGO_DATABASE", "analysis_db"),
			MongoCollection: envString("MONGO_COLLECTION", "analysis_jobs"),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			Driver:      envString("QUEUE_DRIVER", "dir"),
			Dir:         envString("QUEUE_DIR", "local-queue"),
			RedisPrefix: envString("QUEUE_REDIS_PREFIX", "demolens:queue"),
			RabbitURL:   os.Getenv("RABBITMQ_URL"),
			RabbitQueue: envString("RABBITMQ_QUEUE", "analysis.requested.v1"),
			BatchSize:   envInt("QUEUE_BATCH_SIZE", 50),
		},
		Worker: WorkerConfig{
			PollInterval:   envDuration("POLL_INTERVAL", time.Second),
			MaxAttempts:    envInt("MAX_ATTEMPTS", 5),
			BackoffInitial: envDuration("RETRY_BACKOFF_INITIAL", 2*time.Second),
			BackoffMax:     envDuration("RETRY_BACKOFF_MAX", 2*time.Minute),
			NotFoundPolicy: envString("NOT_FOUND_POLICY", NotFoundDrop),
			MetricsPort:    envInt("WORKER_METRICS_PORT", 9091),
		},
		Source: SourceConfig{
			Mode:    envString("SOURCE_MODE", "simulated"),
			BaseURL: os.Getenv("SOURCE_BASE_URL"),
			Timeout: envDuration("SOURCE_TIMEOUT", 10*time.Second),
		},
		Archive: ArchiveConfig{
			Driver: envString("ARCHIVE_DRIVER", "dir"),
			Dir:    envString("ARCHIVE_DIR", "failed-records"),
			Minio: MinioConfig{
				Endpoint:  os.Getenv("MINIO_ENDPOINT"),
				AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
				SecretKey: os.Getenv("MINIO_SECRET_KEY"),
				Bucket:    envString("MINIO_BUCKET", "failed-records"),
				Region:    envString("MINIO_REGION", "us-east-1"),
				Prefix:    os.Getenv("MINIO_PREFIX"),
				UseSSL:    envBool("MINIO_USE_SSL", false),
			},
		},
		Capture: CaptureConfig{
			Enabled: envBool("CAPTURE_MODE", false),
			Dir:     envString("CAPTURE_DIR", "debug-payloads"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !validDatabaseDrivers[c.Database.Driver] {
		return fmt.Errorf("DATABASE_DRIVER must be one of postgres, mongo, memory; got %q", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER is %s", c.Database.Driver)
	}

	if !validQueueDrivers[c.Queue.Driver] {
		return fmt.Errorf("QUEUE_DRIVER must be one of dir, redis, rabbitmq; got %q", c.Queue.Driver)
	}
	if c.Queue.Driver == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when QUEUE_DRIVER is redis")
	}
	if c.Queue.Driver == "rabbitmq" && c.Queue.RabbitURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required when QUEUE_DRIVER is rabbitmq")
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("QUEUE_BATCH_SIZE must be positive, got %d", c.Queue.BatchSize)
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Worker.PollInterval)
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be >= 1, got %d", c.Worker.MaxAttempts)
	}
	if c.Worker.BackoffMax < c.Worker.BackoffInitial {
		return fmt.Errorf("RETRY_BACKOFF_MAX (%s) must not be below RETRY_BACKOFF_INITIAL (%s)",
			c.Worker.BackoffMax, c.Worker.BackoffInitial)
	}
	if c.Worker.NotFoundPolicy != NotFoundDrop && c.Worker.NotFoundPolicy != NotFoundRetry {
		return fmt.Errorf("NOT_FOUND_POLICY must be one of drop, retry; got %q", c.Worker.NotFoundPolicy)
	}

	if !validSourceModes[c.Source.Mode] {
		return fmt.Errorf("SOURCE_MODE must be one of http, simulated; got %q", c.Source.Mode)
	}
	if c.Source.Mode == "http" {
		if c.Source.BaseURL == "" {
			return fmt.Errorf("SOURCE_BASE_URL is required when SOURCE_MODE is http")
		}
		if !strings.HasPrefix(c.Source.BaseURL, "http://") && !strings.HasPrefix(c.Source.BaseURL, "https://") {
			return fmt.Errorf("SOURCE_BASE_URL must start with http:// or https://, got %q", c.Source.BaseURL)
		}
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("SOURCE_TIMEOUT must be positive, got %s", c.Source.Timeout)
	}

	if !validArchiveDrivers[c.Archive.Driver] {
		return fmt.Errorf("ARCHIVE_DRIVER must be one of dir, minio; got %q", c.Archive.Driver)
	}
	if c.Archive.Driver == "minio" {
		if c.Archive.Minio.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when ARCHIVE_DRIVER is minio")
		}
		if c.Archive.Minio.AccessKey == "" || c.Archive.Minio.SecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when ARCHIVE_DRIVER is minio")
		}
	}

	return nil
}

// ValidateDataURL checks that raw is an absolute http(s) URL.
func ValidateDataURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url must include a host")
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
