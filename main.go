package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Conceptual-Machines/melodygen-api/internal/api"
	"github.com/Conceptual-Machines/melodygen-api/internal/api/handlers"
	"github.com/Conceptual-Machines/melodygen-api/internal/config"
	"github.com/Conceptual-Machines/melodygen-api/internal/database"
	"github.com/Conceptual-Machines/melodygen-api/internal/generation"
	"github.com/Conceptual-Machines/melodygen-api/internal/harmony"
	"github.com/Conceptual-Machines/melodygen-api/internal/metrics"
	"github.com/Conceptual-Machines/melodygen-api/internal/midi"
	"github.com/Conceptual-Machines/melodygen-api/internal/model"
	"github.com/Conceptual-Machines/melodygen-api/internal/storage"
	"github.com/Conceptual-Machines/melodygen-api/internal/workerpool"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

const (
	sentryFlushTimeout    = 2 * time.Second
	environmentProduction = "production"
	modelLoadTimeout      = 30 * time.Second
	readHeaderTimeout     = 10 * time.Second
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

// GetVersion returns the current release version
func GetVersion() string {
	return releaseVersion
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Initialize Sentry
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "melodygen-api@" + releaseVersion,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			EnableLogs:       true,
			Debug:            cfg.Environment != environmentProduction,
			BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
				if event.Request != nil {
					event.Request.Headers = filterSensitiveHeaders(event.Request.Headers)
				}
				return event
			},
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("⚠️  Sentry not configured (SENTRY_DSN not set)")
	}

	// Validate generation defaults before accepting traffic
	defaultMode, err := generation.ParsePolyphonyMode(cfg.PolyphonyMode)
	if err != nil {
		log.Fatal("Invalid POLYPHONY_MODE: ", err)
	}
	if _, err := midi.Program(cfg.InstrumentName); err != nil {
		log.Fatal("Invalid INSTRUMENT_NAME: ", err)
	}

	// Load models once; every variant must be served
	ctx, cancel := context.WithTimeout(context.Background(), modelLoadTimeout)
	registry, err := model.LoadRegistry(ctx, cfg.ModelServerURL, cfg.ModelTimeout, model.Variants())
	if err != nil {
		cancel()
		sentry.CaptureException(err)
		log.Fatal("Failed to load models: ", err)
	}

	var harmonizer *harmony.Harmonizer
	if cfg.HarmonizerModel != "" {
		p := model.NewTFServingPredictor(cfg.ModelServerURL, cfg.HarmonizerModel, cfg.ModelTimeout)
		if err := p.CheckAvailable(ctx); err != nil {
			cancel()
			sentry.CaptureException(err)
			log.Fatal("Failed to load harmonizer: ", err)
		}
		harmonizer = harmony.NewHarmonizer(p)
		log.Printf("🧠 Model loaded: %s (harmonizer)", cfg.HarmonizerModel)
	}
	cancel()

	// File storage
	store, err := storage.NewStore(cfg.OutputDir, cfg.UploadDir)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to initialize storage: ", err)
	}
	if removed, err := store.CleanOldFiles(); err != nil {
		log.Printf("⚠️  Startup cleanup failed: %v", err)
	} else {
		log.Printf("🧹 Removed %d old generated files", removed)
	}

	var mirror storage.Mirror
	if cfg.S3Enabled() {
		s3Mirror, err := storage.NewS3Mirror(cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
		if err != nil {
			log.Printf("⚠️  S3 mirror disabled: %v", err)
		} else {
			mirror = s3Mirror
			log.Printf("☁️  Mirroring generated files to s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
		}
	}

	// Optional generation audit log
	var db *gorm.DB
	var logs *database.GenerationLogStore
	if cfg.DatabaseEnabled() {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			sentry.CaptureException(err)
			log.Fatal("Failed to connect to database:", err)
		}
		if err := database.Migrate(db); err != nil {
			sentry.CaptureException(err)
			log.Fatal("Failed to run migrations:", err)
		}
		logs = database.NewGenerationLogStore(db)
	}

	cw, err := metrics.NewClient(context.Background(), cfg.Environment)
	if err != nil {
		log.Printf("⚠️  CloudWatch metrics disabled: %v", err)
	}

	pool := workerpool.New(cfg.WorkerPoolSize)
	log.Printf("👷 Worker pool ready (%d workers)", pool.Size())

	// Set Gin mode
	if cfg.Environment == environmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.SetupRouter(cfg, handlers.GenerationDeps{
		Registry:   registry,
		Generator:  generation.NewGenerator(nil, cfg.MaxActiveNotes, defaultMode),
		Harmonizer: harmonizer,
		Pool:       pool,
		Store:      store,
		Mirror:     mirror,
		Logs:       logs,
		Metrics:    cw,
	}, db, GetVersion())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Printf("🚀 Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.CaptureException(err)
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server shutdown error: %v", err)
	}

	// Let in-flight generations finish writing their files
	pool.Stop()
	if err := pool.Wait(shutdownCtx); err != nil {
		log.Printf("⚠️  Worker pool did not drain: %v", err)
	}
	log.Println("✅ Server stopped")
}

func filterSensitiveHeaders(headers map[string]string) map[string]string {
	filtered := make(map[string]string)
	sensitiveKeys := map[string]bool{
		"authorization": true,
		"cookie":        true,
		"x-api-key":     true,
	}

	for k, v := range headers {
		if sensitiveKeys[k] {
			filtered[k] = "[REDACTED]"
		} else {
			filtered[k] = v
		}
	}
	return filtered
}
