package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearOCRBatchEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"LISTEN_ADDR", "MAX_UPLOAD_BYTES", "ALLOWED_EXTENSIONS",
		"CACHE_ROOT", "CACHE_MAX_AGE_DAYS", "CACHE_MAX_TOTAL_MB",
		"OPTIMISE_THRESHOLD_MB", "OPTIMISE_MIN_REDUCTION_PCT",
		"WORKER_CAP", "PER_FILE_TIMEOUT_SECONDS", "HANG_WARNING_SECONDS",
		"LOG_RING_CAPACITY", "UPLOADS_DIR", "GS_CMD", "OCRMYPDF_CMD",
	}
	for _, k := range keys {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearOCRBatchEnv(t)
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, int64(1_536*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, 4, cfg.WorkerCap)
	assert.Contains(t, cfg.AllowedExts, "pdf")
}

func TestLoadHonorsOverrides(t *testing.T) {
	clearOCRBatchEnv(t)
	t.Setenv("WORKER_CAP", "8")
	t.Setenv("ALLOWED_EXTENSIONS", ".PDF, .Pdf")

	cfg := Load()
	assert.Equal(t, 8, cfg.WorkerCap)
	assert.Contains(t, cfg.AllowedExts, "pdf")
	assert.Len(t, cfg.AllowedExts, 1)
}

func TestValidateRejectsZeroWorkerCap(t *testing.T) {
	cfg := &Config{WorkerCap: 0, MaxUploadBytes: 10, AllowedExts: map[string]struct{}{"pdf": {}}}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyAllowedExtensions(t *testing.T) {
	cfg := &Config{WorkerCap: 1, MaxUploadBytes: 10, AllowedExts: map[string]struct{}{}}
	require.Error(t, cfg.Validate())
}

func TestDerivedByteBudgets(t *testing.T) {
	cfg := &Config{CacheMaxAgeDays: 1, CacheMaxTotalMB: 2, OptimiseThresholdMB: 3}
	assert.Equal(t, int64(24*60*60), cfg.MaxAgeSeconds())
	assert.Equal(t, int64(2*1024*1024), cfg.MaxTotalBytes())
	assert.Equal(t, int64(3*1024*1024), cfg.OptimiseThresholdBytes())
}
