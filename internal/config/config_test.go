package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRINISTOCKS_CACHE_DIR", dir)
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_DSN", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, filepath.Join(dir, "trinistocks.db"), cfg.DBDSN)
	assert.Equal(t, 3, cfg.FetchAttempts)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, filepath.Join(dir, "pdf"), cfg.PDFCacheDir())
	assert.False(t, cfg.Archive.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TRINISTOCKS_CACHE_DIR", t.TempDir())
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_DSN", "user:pw@tcp(localhost:3306)/stocks")
	t.Setenv("FETCH_TIMEOUT", "15s")
	t.Setenv("SMTP_TO", "a@example.com, b@example.com")
	t.Setenv("ARCHIVE_BUCKET", "reports")
	t.Setenv("WORKERS", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.SMTP.To)
	assert.True(t, cfg.Archive.Enabled())
	assert.Equal(t, 4, cfg.Workers)
}

func TestValidate(t *testing.T) {
	cfg := &Config{DBDriver: "postgres", DBDSN: "x", FetchAttempts: 1, FetchRatePerSecond: 1}
	assert.Error(t, cfg.Validate())

	cfg.DBDriver = "sqlite"
	assert.NoError(t, cfg.Validate())

	cfg.FetchAttempts = 0
	assert.Error(t, cfg.Validate())
}
