/*
Package configs loads the service configuration from environment variables.

Every backing service is optional: without DATABASE_URL the REST interest API
is disabled, without REDIS_ADDR rate limiting and the embedding cache are
skipped, and without NATS_URL room lifecycle events are not published.
*/
package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Server Settings
	Environment    string
	Port           int
	AllowedOrigins []string

	// Backing services
	DatabaseDSN string
	RedisAddr   string
	NATSURL     string

	// Embedding provider
	EmbeddingAPIKey     string
	EmbeddingEndpoint   string
	EmbeddingModel      string
	EmbeddingDimensions int
	SimilarityThreshold float64

	// Live engine
	RoomJoinTimeout   time.Duration
	WorkerPoolSize    int
	MaxConnections    int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("configs: load %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads and parses the application configuration from environment
// variables, applying defaults and validating ranges.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	// --- General Server Settings ---
	cfg.Environment = envString("ENVIRONMENT", "development")

	if cfg.Port, err = envInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	cfg.AllowedOrigins = []string{}
	if originsStr := os.Getenv("ALLOWED_ORIGINS"); originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	// --- Backing services ---
	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// --- Embedding provider ---
	cfg.EmbeddingAPIKey = os.Getenv("EMBEDDING_API_KEY")
	cfg.EmbeddingEndpoint = envString("EMBEDDING_ENDPOINT", "https://generativelanguage.googleapis.com")
	cfg.EmbeddingModel = envString("EMBEDDING_MODEL", "text-embedding-004")

	if cfg.EmbeddingDimensions, err = envInt("EMBEDDING_DIMENSIONS", 512); err != nil {
		return nil, err
	}
	if cfg.EmbeddingDimensions <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", cfg.EmbeddingDimensions)
	}

	thresholdStr := envString("SIMILARITY_THRESHOLD", "0.7")
	cfg.SimilarityThreshold, err = strconv.ParseFloat(thresholdStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SIMILARITY_THRESHOLD environment variable: %w", err)
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold >= 1 {
		return nil, fmt.Errorf("SIMILARITY_THRESHOLD must be in (0, 1), got %v", cfg.SimilarityThreshold)
	}

	// --- Live engine ---
	if cfg.RoomJoinTimeout, err = envDuration("ROOM_JOIN_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.WorkerPoolSize, err = envPositiveInt("WORKER_POOL_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.MaxConnections, err = envPositiveInt("MAX_CONNECTIONS", 100000); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout, err = envDuration("READ_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = envDuration("WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.HeartbeatInterval, err = envDuration("HEARTBEAT_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return n, nil
}

func envPositiveInt(key string, def int) (int, error) {
	n, err := envInt(key, def)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

// envDuration accepts Go duration strings such as "45s" or "2m". A zero
// duration is allowed and disables the feature it configures.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, d)
	}
	return d, nil
}
