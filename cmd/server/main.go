package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nidscan/nid-ocr-service/api"
	"github.com/nidscan/nid-ocr-service/internal/admission"
	"github.com/nidscan/nid-ocr-service/internal/auth"
	"github.com/nidscan/nid-ocr-service/internal/config"
	"github.com/nidscan/nid-ocr-service/internal/db"
	"github.com/nidscan/nid-ocr-service/internal/extract"
	"github.com/nidscan/nid-ocr-service/internal/logging"
	"github.com/nidscan/nid-ocr-service/internal/models"
	"github.com/nidscan/nid-ocr-service/internal/ocr"
	"github.com/nidscan/nid-ocr-service/internal/ocr/tesseract"
	"github.com/nidscan/nid-ocr-service/internal/ocr/vision"
	"github.com/nidscan/nid-ocr-service/internal/pipeline"
	"github.com/nidscan/nid-ocr-service/internal/ratelimit"
	"github.com/nidscan/nid-ocr-service/internal/services"
	"github.com/nidscan/nid-ocr-service/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := "config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.NewLogger("nid-ocr")
	ctx := context.Background()

	// Prepare the scratch directory
	if err := os.MkdirAll(cfg.Upload.CacheDir, 0o750); err != nil {
		log.Fatalf("Failed to create cache directory: %v", err)
	}
	scratch := storage.NewScratch(cfg.Upload.CacheDir, logger.With("component", "scratch"))
	if n, err := scratch.PurgeStale(cfg.Upload.StaleAfter); err != nil {
		log.Printf("Warning: failed to purge cache directory: %v", err)
	} else if n > 0 {
		log.Printf("Removed %d stale files from %s", n, cfg.Upload.CacheDir)
	}

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize OCR engine: %v", err)
	}

	ledger, err := newLedger(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize rate limiter: %v", err)
	}

	// Initialize the audit log
	var audit pipeline.AuditRecorder
	if err := db.Init(ctx, cfg.Database.URL); err != nil {
		if !errors.Is(err, db.ErrNotConfigured) {
			log.Printf("Warning: Database not available: %v", err)
		}
		log.Println("Running without audit log")
	} else {
		defer db.Close()
		auditLog := db.NewAuditLog(db.Pool)
		if err := auditLog.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to create audit table: %v", err)
		}
		audit = auditLog
		log.Println("Audit log initialized")
	}

	authenticator, err := auth.NewAuthenticator(cfg.Auth.Token, cfg.Auth.SecretKey, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}

	controller := admission.NewController(authenticator, ledger, admission.Config{
		MaxBytes:     cfg.Upload.MaxBytes,
		AllowedTypes: cfg.Upload.AllowedTypes,
		Limit:        cfg.RateLimit.Limit,
		Window:       cfg.RateLimit.Window,
		KeyBy:        admission.KeyBy(cfg.RateLimit.KeyBy),
	})

	orch := pipeline.New(pipeline.Deps{
		Admission:  controller,
		Scratch:    scratch,
		Engine:     engine,
		Normalizer: extract.NewNormalizer(cfg.OCR.LineTolerance),
		Extractor:  extract.NewExtractor(extractConfig(cfg)),
		Comparator: services.NewComparator(cfg.Extraction.MatchThreshold),
		Audit:      audit,
		Logger:     logger.With("component", "pipeline"),
	})

	handler := api.NewHandler(cfg, orch, authenticator, ledger, logger.With("component", "api"))
	router := handler.SetupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server
	log.Printf("Starting NID OCR Service v%s on %s", api.Version, addr)
	log.Printf("OCR Engine: %s", engine.Name())
	log.Printf("Rate limit: %d per %s (%s, keyed by %s)", cfg.RateLimit.Limit, cfg.RateLimit.Window, ledger.Backend(), cfg.RateLimit.KeyBy)
	log.Printf("Token exchange: %v", authenticator.ExchangeEnabled())
	log.Printf("Database: %v", db.Pool != nil)
	log.Printf("Endpoints:")
	log.Printf("  POST http://%s/process_image          - Process card image (requires token)", addr)
	log.Printf("  POST http://%s/api/process-image      - Alias of /process_image", addr)
	log.Printf("  POST http://%s/api/token              - Exchange token for JWT", addr)
	log.Printf("  GET  http://%s/health                 - Health check", addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
	if c, ok := ledger.(interface{ Close() error }); ok {
		c.Close()
	}
	if c, ok := engine.(interface{ Close() error }); ok {
		c.Close()
	}
}

func newEngine(ctx context.Context, cfg *models.Config) (ocr.Engine, error) {
	switch cfg.OCR.Engine {
	case "tesseract":
		return tesseract.NewEngine(tesseract.Config{
			Language:    cfg.OCR.Language,
			PageSegMode: cfg.OCR.PageSegMode,
		}), nil
	case "openai":
		return vision.NewOpenAIEngine(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.BaseURL, cfg.AI.OpenAI.Model), nil
	case "gemini":
		engine, err := vision.NewGeminiEngine(ctx, cfg.AI.Gemini.APIKey, cfg.AI.Gemini.Model)
		if err != nil {
			return nil, err
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("unsupported OCR engine: %s", cfg.OCR.Engine)
	}
}

func newLedger(ctx context.Context, cfg *models.Config) (ratelimit.Ledger, error) {
	switch cfg.RateLimit.Backend {
	case "redis":
		ledger, err := ratelimit.DialRedisLedger(ctx, cfg.RateLimit.RedisURL, cfg.RateLimit.Limit, cfg.RateLimit.Window)
		if err != nil {
			return nil, err
		}
		return ledger, nil
	default:
		return ratelimit.NewMemoryLedger(cfg.RateLimit.Limit, cfg.RateLimit.Window), nil
	}
}

// extractConfig maps the extraction settings onto the extractor. MIN_AGE=0 is
// passed through and disables the age check.
func extractConfig(cfg *models.Config) extract.Config {
	ec := extract.DefaultConfig()
	ec.MinBirthYear = cfg.Extraction.MinBirthYear
	ec.MinAge = cfg.Extraction.MinAge
	ec.NameKeywordThreshold = cfg.Extraction.NameKeywordThreshold
	return ec
}
