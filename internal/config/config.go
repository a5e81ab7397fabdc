package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Environment
	Environment string
	Port        string

	// Model server (TensorFlow Serving REST API)
	ModelServerURL  string
	ModelTimeout    time.Duration
	HarmonizerModel string // HARMONIZER_MODEL=off disables /api/harmonize

	// Generation
	WorkerPoolSize int    // Concurrent generation jobs
	MaxActiveNotes int    // Simultaneous-note cap
	PolyphonyMode  string // Default polyphony mode for v0
	InstrumentName string // GM instrument written to output files
	RequestTimeout time.Duration

	// Files
	OutputDir string
	UploadDir string

	// S3 mirror (optional)
	S3Bucket string
	S3Region string
	S3Prefix string

	// Generation audit log (optional)
	DatabaseURL string

	// Observability
	SentryDSN string

	// CORS
	AllowedOrigins []string
}

func Load() *Config {
	return &Config{
		Environment:     getEnv("ENVIRONMENT", "development"),
		Port:            getEnv("PORT", "8080"),
		ModelServerURL:  getEnv("MODEL_SERVER_URL", "http://localhost:8501"),
		ModelTimeout:    getDuration("MODEL_TIMEOUT", 30*time.Second),
		HarmonizerModel: getOptional("HARMONIZER_MODEL", "ffn_harmonizer"),
		WorkerPoolSize:  getInt("WORKER_POOL_SIZE", 5),
		MaxActiveNotes:  getInt("MAX_ACTIVE_NOTES", 3),
		PolyphonyMode:   getEnv("POLYPHONY_MODE", "harmonic_intervals"),
		InstrumentName:  getEnv("INSTRUMENT_NAME", "Acoustic Grand Piano"),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", 5*time.Minute),
		OutputDir:       getEnv("OUTPUT_DIR", "generated_midis"),
		UploadDir:       getEnv("UPLOAD_DIR", "uploaded_midis"),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Prefix:        getEnv("S3_PREFIX", "midi"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SentryDSN:       getEnv("SENTRY_DSN", ""),
		AllowedOrigins:  getList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

// getOptional is getEnv where "off" switches the feature off
func getOptional(key, defaultValue string) string {
	value := getEnv(key, defaultValue)
	if strings.EqualFold(value, "off") {
		return ""
	}
	return value
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using %v", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// S3Enabled returns true if generated files are mirrored to S3
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// DatabaseEnabled returns true if generation logs are persisted
func (c *Config) DatabaseEnabled() bool {
	return c.DatabaseURL != ""
}
