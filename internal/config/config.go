// Package config loads the service configuration from environment
// variables and command line flags.
package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Addr        string
	DBPath      string
	CacheDBPath string
	CacheDir    string
	NVDAPIKey   string
	NVDBaseURL  string
	EPSSBaseURL string
	KEVURL      string
	KEVFallback string
	OrgName     string
	Debug       bool

	DetailTTL  time.Duration
	ExploitTTL time.Duration
	KEVTTL     time.Duration

	RefreshInterval time.Duration
	ScoreDelta      float64

	BulkConcurrency int
	AdapterTimeout  time.Duration
	OverallTimeout  time.Duration
}

// Load parses command line flags and environment variables to populate
// Config. Flags take precedence over environment variables.
func Load() *Config {
	cfg := &Config{}

	// Defaults and environment variables
	cfg.Addr = getEnv("VULNPRIO_ADDR", ":8080")
	cfg.DBPath = getEnv("VULNPRIO_DB", defaultDataPath("vulnprio.db"))
	cfg.CacheDBPath = getEnv("VULNPRIO_CACHE_DB", defaultDataPath("enrichment_cache.db"))
	cfg.CacheDir = getEnv("VULNPRIO_CACHE_DIR", defaultDataPath("feeds"))
	cfg.NVDAPIKey = getEnv("VULNPRIO_NVD_API_KEY", "")
	cfg.NVDBaseURL = getEnv("VULNPRIO_NVD_URL", "")
	cfg.EPSSBaseURL = getEnv("VULNPRIO_EPSS_URL", "")
	cfg.KEVURL = getEnv("VULNPRIO_KEV_URL", "")
	cfg.KEVFallback = getEnv("VULNPRIO_KEV_FALLBACK_URL", "")
	cfg.OrgName = getEnv("VULNPRIO_ORG", "")
	cfg.Debug = getEnvBool("VULNPRIO_DEBUG", false)

	cfg.DetailTTL = getEnvDuration("VULNPRIO_DETAIL_TTL", 7*24*time.Hour)
	cfg.ExploitTTL = getEnvDuration("VULNPRIO_EPSS_TTL", 24*time.Hour)
	cfg.KEVTTL = getEnvDuration("VULNPRIO_KEV_TTL", 24*time.Hour)
	cfg.RefreshInterval = getEnvDuration("VULNPRIO_REFRESH_INTERVAL", 24*time.Hour)
	cfg.ScoreDelta = getEnvFloat("VULNPRIO_SCORE_DELTA", 0.5)
	cfg.BulkConcurrency = getEnvInt("VULNPRIO_BULK_CONCURRENCY", 8)
	cfg.AdapterTimeout = getEnvDuration("VULNPRIO_ADAPTER_TIMEOUT", 10*time.Second)
	cfg.OverallTimeout = getEnvDuration("VULNPRIO_OVERALL_TIMEOUT", 45*time.Second)

	// Command line flags (override env)
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to vulnerability SQLite database")
	flag.StringVar(&cfg.CacheDBPath, "cache-db", cfg.CacheDBPath, "Path to enrichment cache database")
	flag.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "Directory for feed snapshots")
	flag.StringVar(&cfg.NVDAPIKey, "nvd-key", cfg.NVDAPIKey, "NVD API key (raises the request budget)")
	flag.StringVar(&cfg.OrgName, "org", cfg.OrgName, "Organization name on generated reports")
	flag.DurationVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "Background refresh interval")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")

	flag.Parse()

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// defaultDataPath places data files under ~/.vulnprio, falling back to
// the working directory when the home directory is unavailable.
func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: could not get user home directory, using current dir: %v", err)
		return name
	}

	dataDir := filepath.Join(home, ".vulnprio")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Printf("Warning: could not create data directory, using current dir: %v", err)
		return name
	}

	return filepath.Join(dataDir, name)
}
