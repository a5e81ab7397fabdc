package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WORKER_POOL_SIZE", "")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("HARMONIZER_MODEL", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5, cfg.WorkerPoolSize)
	assert.Equal(t, 3, cfg.MaxActiveNotes)
	assert.Equal(t, 30*time.Second, cfg.ModelTimeout)
	assert.Equal(t, "ffn_harmonizer", cfg.HarmonizerModel)
	assert.False(t, cfg.S3Enabled())
	assert.False(t, cfg.DatabaseEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WORKER_POOL_SIZE", "8")
	t.Setenv("MODEL_TIMEOUT", "5s")
	t.Setenv("MAX_ACTIVE_NOTES", "-2")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("S3_BUCKET", "melodies")

	cfg := Load()
	assert.Equal(t, 8, cfg.WorkerPoolSize)
	assert.Equal(t, 5*time.Second, cfg.ModelTimeout)
	assert.Equal(t, 3, cfg.MaxActiveNotes, "invalid values fall back")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.True(t, cfg.S3Enabled())
}

func TestLoad_HarmonizerOff(t *testing.T) {
	t.Setenv("HARMONIZER_MODEL", "OFF")
	assert.Empty(t, Load().HarmonizerModel)

	t.Setenv("HARMONIZER_MODEL", "satb_ffn")
	assert.Equal(t, "satb_ffn", Load().HarmonizerModel)
}
