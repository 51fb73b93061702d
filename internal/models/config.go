package models

import "time"

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	Auth       AuthConfig       `yaml:"auth"`
	Upload     UploadConfig     `yaml:"upload"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	OCR        OCRConfig        `yaml:"ocr"`
	AI         AIConfig         `yaml:"ai"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Database   DatabaseConfig   `yaml:"database"`
}

// AuthConfig holds request credentials. Never logged.
type AuthConfig struct {
	Token     string        `yaml:"token"`      // static API token
	SecretKey string        `yaml:"secret_key"` // HS256 key for exchanged tokens
	TokenTTL  time.Duration `yaml:"token_ttl"`  // Default: 1h
}

// UploadConfig bounds what an upload may be
type UploadConfig struct {
	MaxBytes     int64         `yaml:"max_bytes"`     // Default: 5 MiB
	AllowedTypes []string      `yaml:"allowed_types"` // Default: image/png, image/jpeg
	CacheDir     string        `yaml:"cache_dir"`     // scratch directory, Default: "cache"
	StaleAfter   time.Duration `yaml:"stale_after"`   // leftovers older than this are purged at start-up
}

// RateLimitConfig represents the per-client admission budget
type RateLimitConfig struct {
	Limit    int           `yaml:"limit"`     // requests per window, Default: 10
	Window   time.Duration `yaml:"window"`    // Default: 60s
	Backend  string        `yaml:"backend"`   // "memory" or "redis"
	RedisURL string        `yaml:"redis_url"` // e.g., "redis://localhost:6379/0"
	KeyBy    string        `yaml:"key_by"`    // "token" or "ip"
}

// OCRConfig represents OCR-specific configuration
type OCRConfig struct {
	Engine        string  `yaml:"engine"`         // "tesseract", "openai" or "gemini"
	Language      string  `yaml:"language"`       // Tesseract language (default: "eng")
	PageSegMode   int     `yaml:"page_seg_mode"`  // Tesseract PSM, 0 keeps the library default
	LineTolerance float64 `yaml:"line_tolerance"` // fraction of fragment height, Default: 0.5
}

// AIConfig represents vision model configuration
type AIConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`
}

// OpenAIConfig for OpenAI or any compatible endpoint
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"` // For custom endpoints
	Model   string `yaml:"model"`              // Default: "gpt-4o"
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // Default: "gemini-1.5-flash"
}

// ExtractionConfig tunes field validation and comparison
type ExtractionConfig struct {
	MinBirthYear         int     `yaml:"min_birth_year"`         // Default: 1900
	MinAge               int     `yaml:"min_age"`                // Default: 18
	NameKeywordThreshold float64 `yaml:"name_keyword_threshold"` // Default: 0.75
	MatchThreshold       float64 `yaml:"match_threshold"`        // Default: 0.85
}

// DatabaseConfig for the optional audit log
type DatabaseConfig struct {
	URL string `yaml:"url"` // falls back to DATABASE_URL / DB_* variables
}
