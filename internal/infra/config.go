package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	StoreBackendFile     = "file"
	StoreBackendPostgres = "postgres"
)

// Config represents application configuration loaded from environment variables.
// It is built once at startup and passed by reference; nothing mutates it later.
type Config struct {
	AppEnv           string
	Port             string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	CacheDir     string
	RecordsDir   string
	LocksDir     string
	DownloadsDir string
	StoreBackend string
	DatabaseURL  string

	WorkerConcurrency int
	WorkerQueueSize   int
	RetrievalTimeout  time.Duration
	JobExpiry         time.Duration
	SweepInterval     time.Duration
	SweeperEnabled    bool

	CookiesFile   string
	CookiesBase64 string
	ProxyURL      string
	YtdlpBinary   string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cacheDir := getEnv("CACHE_DIR", filepath.Join(os.TempDir(), "fetchd-cache"))
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8000"),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		CacheDir:          cacheDir,
		RecordsDir:        filepath.Join(cacheDir, "tasks"),
		LocksDir:          filepath.Join(cacheDir, "locks"),
		DownloadsDir:      filepath.Join(cacheDir, "downloads"),
		StoreBackend:      strings.ToLower(getEnv("JOB_STORE", StoreBackendFile)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerQueueSize:   getEnvInt("WORKER_QUEUE_SIZE", 64),
		RetrievalTimeout:  getEnvDuration("RETRIEVAL_TIMEOUT_SECONDS", 0),
		JobExpiry:         getEnvDuration("JOB_EXPIRY_SECONDS", 5*time.Minute),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL_SECONDS", 30*time.Second),
		SweeperEnabled:    getEnvBool("SWEEPER_ENABLED", true),
		CookiesFile:       getEnv("COOKIES_FILE", filepath.Join(cacheDir, "cookies.txt")),
		CookiesBase64:     os.Getenv("COOKIES_BASE64"),
		ProxyURL:          os.Getenv("PROXY_URL"),
		YtdlpBinary:       os.Getenv("YTDLP_BINARY"),
	}

	switch cfg.StoreBackend {
	case StoreBackendFile:
	case StoreBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when JOB_STORE=postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported JOB_STORE %q", cfg.StoreBackend)
	}

	if cfg.WorkerConcurrency <= 0 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if cfg.WorkerQueueSize < 0 {
		return nil, fmt.Errorf("WORKER_QUEUE_SIZE must not be negative")
	}
	if cfg.JobExpiry <= 0 {
		return nil, fmt.Errorf("JOB_EXPIRY_SECONDS must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}

	return cfg, nil
}

// EnsureDirs creates the records, locks and downloads roots if absent.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.CacheDir, c.RecordsDir, c.LocksDir, c.DownloadsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration reads a whole number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
