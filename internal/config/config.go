// Package config loads the service configuration: YAML file, then .env, then
// process environment, then validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nidscan/nid-ocr-service/internal/models"
)

// Defaults returns the configuration used when nothing overrides it
func Defaults() *models.Config {
	return &models.Config{
		Port: 5000,
		Host: "0.0.0.0",
		Auth: models.AuthConfig{
			TokenTTL: time.Hour,
		},
		Upload: models.UploadConfig{
			MaxBytes:     5 * 1024 * 1024,
			AllowedTypes: []string{"image/png", "image/jpeg"},
			CacheDir:     "cache",
			StaleAfter:   time.Hour,
		},
		RateLimit: models.RateLimitConfig{
			Limit:   10,
			Window:  60 * time.Second,
			Backend: "memory",
			KeyBy:   "token",
		},
		OCR: models.OCRConfig{
			Engine:        "tesseract",
			Language:      "eng",
			LineTolerance: 0.5,
		},
		AI: models.AIConfig{
			OpenAI: models.OpenAIConfig{Model: "gpt-4o"},
			Gemini: models.GeminiConfig{Model: "gemini-1.5-flash"},
		},
		Extraction: models.ExtractionConfig{
			MinBirthYear:         1900,
			MinAge:               18,
			NameKeywordThreshold: 0.75,
			MatchThreshold:       0.85,
		},
	}
}

// Load reads path (a missing file keeps the defaults), loads .env from the
// working directory when present, applies environment overrides and validates.
func Load(path string) (*models.Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *models.Config) error {
	envString("HOST", &cfg.Host)
	envString("AUTH_TOKEN", &cfg.Auth.Token)
	envString("SECRET_KEY", &cfg.Auth.SecretKey)
	envString("RATE_LIMIT_BACKEND", &cfg.RateLimit.Backend)
	envString("RATE_LIMIT_KEY_BY", &cfg.RateLimit.KeyBy)
	envString("REDIS_URL", &cfg.RateLimit.RedisURL)
	envString("CACHE_DIR", &cfg.Upload.CacheDir)
	envString("OCR_ENGINE", &cfg.OCR.Engine)
	envString("OCR_LANGUAGE", &cfg.OCR.Language)
	envString("OPENAI_API_KEY", &cfg.AI.OpenAI.APIKey)
	envString("OPENAI_BASE_URL", &cfg.AI.OpenAI.BaseURL)
	envString("OPENAI_MODEL", &cfg.AI.OpenAI.Model)
	envString("GEMINI_API_KEY", &cfg.AI.Gemini.APIKey)
	envString("GEMINI_MODEL", &cfg.AI.Gemini.Model)
	envString("DATABASE_URL", &cfg.Database.URL)

	if v := os.Getenv("ALLOWED_MIME_TYPES"); v != "" {
		cfg.Upload.AllowedTypes = splitList(v)
	}

	var window int
	for _, err := range []error{
		envInt("PORT", &cfg.Port),
		envInt("RATE_LIMIT", &cfg.RateLimit.Limit),
		envInt("RATE_LIMIT_WINDOW", &window),
		envInt64("MAX_CONTENT_LENGTH", &cfg.Upload.MaxBytes),
		envInt("MIN_BIRTH_YEAR", &cfg.Extraction.MinBirthYear),
		envInt("MIN_AGE", &cfg.Extraction.MinAge),
		envFloat("MATCH_THRESHOLD", &cfg.Extraction.MatchThreshold),
		envFloat("NAME_KEYWORD_THRESHOLD", &cfg.Extraction.NameKeywordThreshold),
		envFloat("LINE_TOLERANCE", &cfg.OCR.LineTolerance),
	} {
		if err != nil {
			return err
		}
	}
	// RATE_LIMIT_WINDOW is in seconds
	if window > 0 {
		cfg.RateLimit.Window = time.Duration(window) * time.Second
	}
	return nil
}

// Validate checks if configuration is valid
func Validate(cfg *models.Config) error {
	if cfg.Auth.Token == "" {
		return fmt.Errorf("AUTH_TOKEN is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.Upload.MaxBytes < 1 {
		return fmt.Errorf("max upload size must be positive, got %d", cfg.Upload.MaxBytes)
	}
	if len(cfg.Upload.AllowedTypes) == 0 {
		return fmt.Errorf("at least one allowed media type is required")
	}
	if cfg.Upload.CacheDir == "" {
		return fmt.Errorf("cache dir is required")
	}
	if cfg.RateLimit.Limit < 1 {
		return fmt.Errorf("rate limit must be at least 1, got %d", cfg.RateLimit.Limit)
	}
	if cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	switch cfg.RateLimit.Backend {
	case "memory":
	case "redis":
		if cfg.RateLimit.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
	}
	switch cfg.RateLimit.KeyBy {
	case "token", "ip":
	default:
		return fmt.Errorf("rate_limit.key_by must be token or ip, got %q", cfg.RateLimit.KeyBy)
	}
	switch cfg.OCR.Engine {
	case "tesseract":
	case "openai":
		if cfg.AI.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai engine")
		}
	case "gemini":
		if cfg.AI.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini engine")
		}
	default:
		return fmt.Errorf("unknown OCR engine %q", cfg.OCR.Engine)
	}
	if cfg.Extraction.MinBirthYear < 1 {
		return fmt.Errorf("min birth year must be positive, got %d", cfg.Extraction.MinBirthYear)
	}
	if cfg.Extraction.MinAge < 0 {
		return fmt.Errorf("min age must not be negative, got %d", cfg.Extraction.MinAge)
	}
	for name, v := range map[string]float64{
		"match threshold":        cfg.Extraction.MatchThreshold,
		"name keyword threshold": cfg.Extraction.NameKeywordThreshold,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, v)
		}
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func envInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("%s must be a number: %w", key, err)
	}
	*dst = f
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
