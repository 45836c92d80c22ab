package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendREST  = "rest"
	BackendGenAI = "genai"
)

type Config struct {
	TelegramToken string
	GeminiAPIKey  string

	GeminiBackend    string
	GeminiBaseURL    string
	GeminiAPIVersion string
	TextModel        string
	ImageModel       string
	ImagenModel      string
	ImageCount       int

	LogLevel string
	LogFile  string
	Debug    bool

	PreferIPv4     bool
	HTTPTimeout    time.Duration
	RequestTimeout time.Duration

	WebAddr         string
	AllowedOrigins  []string
	RateLimit       int
	RateLimitWindow time.Duration
	MaxUploadBytes  int64

	SessionTTL  time.Duration
	MaxSessions int
	RedisAddr   string
	RedisPrefix string

	AssetMaxDimension int
	AssetJPEGQuality  int

	MediaGroupDebounce time.Duration
	MaxConcurrent      int
}

// Load reads the environment. GEMINI_API_KEY is always required; surfaces
// with further requirements check them with RequireTelegram.
func Load() (Config, error) {
	cfg := Config{
		GeminiBackend:      strings.ToLower(getEnv("GEMINI_BACKEND", BackendREST)),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiAPIVersion:   getEnv("GEMINI_API_VERSION", "v1beta"),
		TextModel:          getEnv("GEMINI_TEXT_MODEL", ""),
		ImageModel:         getEnv("GEMINI_IMAGE_MODEL", ""),
		ImagenModel:        getEnv("IMAGEN_MODEL", ""),
		ImageCount:         getEnvInt("IMAGE_COUNT", 4),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:            getEnv("LOG_FILE", ""),
		Debug:              getEnvBool("DEBUG", false),
		PreferIPv4:         getEnvBool("PREFER_IPV4", true),
		HTTPTimeout:        time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 180)) * time.Second,
		WebAddr:            getEnv("WEB_ADDR", ":8080"),
		AllowedOrigins:     getEnvList("ALLOWED_ORIGINS"),
		RateLimit:          getEnvInt("RATE_LIMIT", 60),
		RateLimitWindow:    time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 25)) << 20,
		SessionTTL:         time.Duration(getEnvInt("SESSION_TTL_MINUTES", 120)) * time.Minute,
		MaxSessions:        getEnvInt("MAX_SESSIONS", 1000),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPrefix:        getEnv("REDIS_PREFIX", "studio:session:"),
		AssetMaxDimension:  getEnvInt("ASSET_MAX_DIMENSION", 1536),
		AssetJPEGQuality:   getEnvInt("ASSET_JPEG_QUALITY", 85),
		MediaGroupDebounce: time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxConcurrent:      getEnvInt("MAX_CONCURRENT", 4),
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))

	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}
	switch cfg.GeminiBackend {
	case BackendREST, BackendGenAI:
	default:
		return Config{}, fmt.Errorf("GEMINI_BACKEND must be %q or %q, got %q", BackendREST, BackendGenAI, cfg.GeminiBackend)
	}

	if cfg.ImageCount < 1 {
		cfg.ImageCount = 1
	}
	if cfg.ImageCount > 8 {
		cfg.ImageCount = 8
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 180 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.RateLimit < 0 {
		cfg.RateLimit = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 1
	}
	if cfg.AssetJPEGQuality < 1 || cfg.AssetJPEGQuality > 100 {
		cfg.AssetJPEGQuality = 85
	}
	if cfg.AssetMaxDimension < 64 {
		cfg.AssetMaxDimension = 64
	}

	return cfg, nil
}

func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
