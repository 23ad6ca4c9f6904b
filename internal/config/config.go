// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all gateway configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Chunk cache
	DataDir string

	// Upstream network
	OriginURL       string
	TrustedGateways []string
	FetchAttempts   int

	// S3 contiguous-data source (optional — enabled if S3_BUCKET is set)
	S3Endpoint  string
	S3Bucket    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string

	// Bundle import
	ImportWorkerCount   int
	ImportQueueSize     int
	UnbundleWorkerCount int
	UnbundleQueueSize   int
	UnbundleFilter      string

	// Admin API
	AdminAPIKey string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  envOr("LISTEN_ADDR", ":4000"),
		MetricsAddr: envOr("METRICS_ADDR", ":9090"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		DataDir:     envOr("DATA_DIR", "data"),
		OriginURL:   envOr("ORIGIN_URL", "https://arweave.net"),
		TrustedGateways: splitList(envOr("TRUSTED_GATEWAYS", "https://arweave.net")),
		FetchAttempts:   envInt("FETCH_ATTEMPTS", 3),
		S3Endpoint:  envOr("S3_ENDPOINT", ""),
		S3Bucket:    envOr("S3_BUCKET", ""),
		S3Prefix:    envOr("S3_PREFIX", ""),
		S3AccessKey: envOr("S3_ACCESS_KEY", ""),
		S3SecretKey: envOr("S3_SECRET_KEY", ""),
		S3Region:    envOr("S3_REGION", "us-east-1"),
		ImportWorkerCount:   envInt("IMPORT_WORKER_COUNT", 1),
		ImportQueueSize:     envInt("IMPORT_QUEUE_SIZE", 1000),
		UnbundleWorkerCount: envInt("UNBUNDLE_WORKER_COUNT", 1),
		UnbundleQueueSize:   envInt("UNBUNDLE_QUEUE_SIZE", 1000),
		UnbundleFilter:      envOr("UNBUNDLE_FILTER", `{"never": true}`),
		AdminAPIKey:         envOr("ADMIN_API_KEY", ""),
	}

	if len(cfg.TrustedGateways) == 0 {
		return nil, fmt.Errorf("TRUSTED_GATEWAYS must list at least one gateway")
	}
	if cfg.FetchAttempts < 1 {
		return nil, fmt.Errorf("FETCH_ATTEMPTS must be at least 1")
	}
	if cfg.ImportWorkerCount < 1 || cfg.UnbundleWorkerCount < 1 {
		return nil, fmt.Errorf("worker counts must be at least 1")
	}
	if cfg.ImportQueueSize < 1 || cfg.UnbundleQueueSize < 1 {
		return nil, fmt.Errorf("queue sizes must be at least 1")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.TrimSuffix(part, "/"))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
