// Package config loads the OCR batch service's runtime configuration from
// environment variables, falling back to the defaults documented in §6 of
// the service specification when a variable is unset.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every tunable the OCR batch service reads at startup.
type Config struct {
	ListenAddr string

	MaxUploadBytes int64
	AllowedExts    map[string]struct{}

	CacheRoot       string
	CacheMaxAgeDays int
	CacheMaxTotalMB int64

	OptimiseThresholdMB     int64
	OptimiseMinReductionPct float64

	WorkerCap          int
	PerFileTimeoutSecs int
	HangWarningSecs    int
	LogRingCapacity    int

	UploadsDir string

	GhostscriptCmd string
	OCRMyPDFCmd    string
}

// Load reads `.env` (if present, via godotenv, matching the teacher's own
// dependency on joho/godotenv) and then environment variables, applying
// the defaults from §6 of the specification for anything unset.
func Load() *Config {
	// A missing .env file is normal outside local development; godotenv's
	// error in that case is intentionally discarded, matching how
	// adverant-Adverant-Nexus-Open-Core's worker treats ".env.nexus" as
	// optional at startup.
	_ = godotenv.Load()

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 1_536*1024*1024), // 1.5 GiB
		AllowedExts:    parseExtSet(getEnv("ALLOWED_EXTENSIONS", "pdf")),

		CacheRoot:       getEnv("CACHE_ROOT", "./ocr_cache"),
		CacheMaxAgeDays: getEnvInt("CACHE_MAX_AGE_DAYS", 7),
		CacheMaxTotalMB: getEnvInt64("CACHE_MAX_TOTAL_MB", 5000),

		OptimiseThresholdMB:     getEnvInt64("OPTIMISE_THRESHOLD_MB", 100),
		OptimiseMinReductionPct: getEnvFloat("OPTIMISE_MIN_REDUCTION_PCT", 10),

		WorkerCap:          getEnvInt("WORKER_CAP", 4),
		PerFileTimeoutSecs: getEnvInt("PER_FILE_TIMEOUT_SECONDS", 1800),
		HangWarningSecs:    getEnvInt("HANG_WARNING_SECONDS", 120),
		LogRingCapacity:    getEnvInt("LOG_RING_CAPACITY", 100),

		UploadsDir: getEnv("UPLOADS_DIR", "./uploads"),

		GhostscriptCmd: getEnv("GS_CMD", "gs"),
		OCRMyPDFCmd:    getEnv("OCRMYPDF_CMD", "ocrmypdf"),
	}
}

// MaxAgeSeconds returns the cache eviction age budget in seconds.
func (c *Config) MaxAgeSeconds() int64 {
	return int64(c.CacheMaxAgeDays) * 24 * 60 * 60
}

// MaxTotalBytes returns the cache eviction size budget in bytes.
func (c *Config) MaxTotalBytes() int64 {
	return c.CacheMaxTotalMB * 1024 * 1024
}

// OptimiseThresholdBytes returns the optimiser's size threshold in bytes.
func (c *Config) OptimiseThresholdBytes() int64 {
	return c.OptimiseThresholdMB * 1024 * 1024
}

func parseExtSet(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, ext := range strings.Split(raw, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		ext = strings.TrimPrefix(ext, ".")
		if ext != "" {
			set[ext] = struct{}{}
		}
	}
	return set
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

// Validate reports a descriptive error for configuration values that can
// never produce a working service, matching the fail-fast style of
// adverant-Adverant-Nexus-Open-Core's internal/config.Config.Validate.
func (c *Config) Validate() error {
	if c.WorkerCap < 1 {
		return fmt.Errorf("WORKER_CAP must be at least 1, got %d", c.WorkerCap)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if len(c.AllowedExts) == 0 {
		return fmt.Errorf("ALLOWED_EXTENSIONS must not be empty")
	}
	return nil
}
