// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Storage
	Storage       string // "postgres" or "file"
	DatabaseURL   string
	StoreFile     string
	RetentionDays int

	// Telegram
	TelegramToken  string
	TelegramChatID string
	TelegramAPIURL string

	// Rewrite pipeline
	Rewriter              string // "gemini" or "passthrough"
	GeminiAPIKey          string
	GeminiModel           string
	RewriteCallInterval   time.Duration
	MaxRewriteCallsPerDay int
	AttributionLabel      string
	MinPostRunes          int
	CaptionMaxRunes       int

	// Schedule
	ScrapeInterval  time.Duration
	PublishInterval time.Duration
	ScrapeOnStart   bool

	// Sources
	SourcesFile         string
	RequestTimeout      time.Duration
	UserAgent           string
	DynamicBatchSize    int
	DynamicRequestDelay time.Duration
	DynamicBatchPause   time.Duration
	BrowserTimeout      time.Duration
	CredentialMaxAge    time.Duration
	DynamicStaticToken  string
	ChromePath          string

	// Admission
	NewsMaxAge        time.Duration
	TopicKeywords     []string
	FuzzyThreshold    float64
	FuzzyWindow       time.Duration
	MinParagraphRunes int
	MaxEnrichPerCycle int
	MaxDraftsPerCycle int
	EnrichCacheTTL    time.Duration

	// Rotation
	Timezone             string
	WorkHoursStart       int
	WorkHoursEnd         int
	PrimaryLanguage      string
	SecondaryLanguage    string
	SecondaryMinInterval time.Duration
	LanguageQuotas       map[string]int
	PendingScanLimit     int

	// Leader election
	LeaderBackend       string // "postgres", "redis" or "none"
	LeaderLockID        int64
	LeaderAttempts      int
	LeaderRetryInterval time.Duration
	RedisAddr           string
	RedisPassword       string
	LeaderKey           string
	LeaderTTL           time.Duration

	// HTTP
	HTTPAddr string

	Debug bool
}

const defaultTopicKeywords = "эконом,финанс,туриз,жаңалық,банк,инфляц,инвестиц,казахст,саяхат,валют,рынок,бюджет,салық,заң,әкім,министр,президент,үкімет,тенге,образов,наук,школ,врач,здравоохр,медиц,білім,ғылым,мектеп,денсаулық,дәрігер,колледж,студент,аурухана,емхана"

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	cfg := &Config{
		Storage:               "postgres",
		StoreFile:             "newsdesk_store.json",
		RetentionDays:         30,
		TelegramAPIURL:        "https://api.telegram.org",
		Rewriter:              "gemini",
		GeminiModel:           "gemini-2.0-flash",
		RewriteCallInterval:   20 * time.Second,
		MaxRewriteCallsPerDay: 300,
		AttributionLabel:      "Түпнұсқа",
		MinPostRunes:          120,
		CaptionMaxRunes:       1000,
		ScrapeInterval:        20 * time.Minute,
		PublishInterval:       15 * time.Minute,
		ScrapeOnStart:         true,
		SourcesFile:           "configs/sources.yaml",
		RequestTimeout:        15 * time.Second,
		UserAgent:             "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		DynamicBatchSize:      5,
		DynamicRequestDelay:   1500 * time.Millisecond,
		DynamicBatchPause:     10 * time.Second,
		BrowserTimeout:        45 * time.Second,
		CredentialMaxAge:      10 * time.Minute,
		NewsMaxAge:            24 * time.Hour,
		FuzzyThreshold:        0.65,
		FuzzyWindow:           72 * time.Hour,
		MinParagraphRunes:     50,
		MaxEnrichPerCycle:     30,
		MaxDraftsPerCycle:     5,
		EnrichCacheTTL:        6 * time.Hour,
		Timezone:              "Asia/Almaty",
		WorkHoursStart:        8,
		WorkHoursEnd:          22,
		PrimaryLanguage:       "ru",
		SecondaryLanguage:     "kz",
		SecondaryMinInterval:  time.Hour,
		LanguageQuotas:        map[string]int{"ru": 24, "kz": 8},
		PendingScanLimit:      50,
		LeaderBackend:         "postgres",
		LeaderLockID:          724301,
		LeaderAttempts:        15,
		LeaderRetryInterval:   2 * time.Second,
		LeaderKey:             "newsdesk:leader",
		LeaderTTL:             30 * time.Second,
		HTTPAddr:              ":8000",
	}

	cfg.Storage = getEnvOrDefault("STORAGE", cfg.Storage)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.StoreFile = getEnvOrDefault("STORE_FILE", cfg.StoreFile)
	cfg.RetentionDays = getEnvIntOrDefault("RETENTION_DAYS", cfg.RetentionDays)

	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	cfg.TelegramAPIURL = getEnvOrDefault("TELEGRAM_API_URL", cfg.TelegramAPIURL)

	cfg.Rewriter = getEnvOrDefault("REWRITER", cfg.Rewriter)
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", cfg.GeminiModel)
	cfg.RewriteCallInterval = getEnvSecondsOrDefault("REWRITE_CALL_INTERVAL_SECONDS", cfg.RewriteCallInterval)
	cfg.MaxRewriteCallsPerDay = getEnvIntOrDefault("MAX_REWRITE_CALLS_PER_DAY", cfg.MaxRewriteCallsPerDay)
	cfg.AttributionLabel = getEnvOrDefault("ATTRIBUTION_LABEL", cfg.AttributionLabel)
	cfg.MinPostRunes = getEnvIntOrDefault("MIN_POST_RUNES", cfg.MinPostRunes)
	cfg.CaptionMaxRunes = getEnvIntOrDefault("CAPTION_MAX_RUNES", cfg.CaptionMaxRunes)

	cfg.ScrapeInterval = getEnvMinutesOrDefault("SCRAPE_INTERVAL_MINUTES", cfg.ScrapeInterval)
	cfg.PublishInterval = getEnvMinutesOrDefault("PUBLISH_INTERVAL_MINUTES", cfg.PublishInterval)
	if v := os.Getenv("SCRAPE_ON_START"); v != "" {
		cfg.ScrapeOnStart = v == "true"
	}

	cfg.SourcesFile = getEnvOrDefault("SOURCES_FILE", cfg.SourcesFile)
	cfg.RequestTimeout = getEnvSecondsOrDefault("REQUEST_TIMEOUT_SECONDS", cfg.RequestTimeout)
	cfg.UserAgent = getEnvOrDefault("USER_AGENT", cfg.UserAgent)
	cfg.DynamicBatchSize = getEnvIntOrDefault("DYNAMIC_BATCH_SIZE", cfg.DynamicBatchSize)
	if v := os.Getenv("DYNAMIC_REQUEST_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			cfg.DynamicRequestDelay = time.Duration(ms) * time.Millisecond
		}
	}
	cfg.DynamicBatchPause = getEnvSecondsOrDefault("DYNAMIC_BATCH_PAUSE_SECONDS", cfg.DynamicBatchPause)
	cfg.BrowserTimeout = getEnvSecondsOrDefault("BROWSER_TIMEOUT_SECONDS", cfg.BrowserTimeout)
	cfg.CredentialMaxAge = getEnvMinutesOrDefault("CREDENTIAL_MAX_AGE_MINUTES", cfg.CredentialMaxAge)
	cfg.DynamicStaticToken = os.Getenv("DYNAMIC_STATIC_TOKEN")
	cfg.ChromePath = os.Getenv("CHROME_PATH")

	if v := os.Getenv("NEWS_MAX_AGE_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.NewsMaxAge = time.Duration(days) * 24 * time.Hour
		}
	}
	cfg.TopicKeywords = splitList(getEnvOrDefault("TOPIC_KEYWORDS", defaultTopicKeywords))
	if v := os.Getenv("FUZZY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.FuzzyThreshold = f
		}
	}
	if v := os.Getenv("FUZZY_WINDOW_HOURS"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h > 0 {
			cfg.FuzzyWindow = time.Duration(h) * time.Hour
		}
	}
	cfg.MinParagraphRunes = getEnvIntOrDefault("MIN_PARAGRAPH_RUNES", cfg.MinParagraphRunes)
	cfg.MaxEnrichPerCycle = getEnvIntOrDefault("MAX_ENRICH_PER_CYCLE", cfg.MaxEnrichPerCycle)
	cfg.MaxDraftsPerCycle = getEnvIntOrDefault("MAX_DRAFTS_PER_CYCLE", cfg.MaxDraftsPerCycle)
	cfg.EnrichCacheTTL = getEnvMinutesOrDefault("ENRICH_CACHE_TTL_MINUTES", cfg.EnrichCacheTTL)

	cfg.Timezone = getEnvOrDefault("TIMEZONE", cfg.Timezone)
	cfg.WorkHoursStart = getEnvIntOrDefault("WORK_HOURS_START", cfg.WorkHoursStart)
	cfg.WorkHoursEnd = getEnvIntOrDefault("WORK_HOURS_END", cfg.WorkHoursEnd)
	cfg.PrimaryLanguage = strings.ToLower(getEnvOrDefault("PRIMARY_LANGUAGE", cfg.PrimaryLanguage))
	cfg.SecondaryLanguage = strings.ToLower(getEnvOrDefault("SECONDARY_LANGUAGE", cfg.SecondaryLanguage))
	cfg.SecondaryMinInterval = getEnvMinutesOrDefault("SECONDARY_MIN_INTERVAL_MINUTES", cfg.SecondaryMinInterval)
	if v := os.Getenv("LANGUAGE_QUOTAS"); v != "" {
		quotas, err := ParseQuotas(v)
		if err != nil {
			return nil, err
		}
		cfg.LanguageQuotas = quotas
	}
	cfg.PendingScanLimit = getEnvIntOrDefault("PENDING_SCAN_LIMIT", cfg.PendingScanLimit)

	cfg.LeaderBackend = getEnvOrDefault("LEADER_BACKEND", cfg.LeaderBackend)
	if v := os.Getenv("LEADER_LOCK_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.LeaderLockID = id
		}
	}
	cfg.LeaderAttempts = getEnvIntOrDefault("LEADER_ATTEMPTS", cfg.LeaderAttempts)
	cfg.LeaderRetryInterval = getEnvSecondsOrDefault("LEADER_RETRY_INTERVAL_SECONDS", cfg.LeaderRetryInterval)
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.LeaderKey = getEnvOrDefault("LEADER_KEY", cfg.LeaderKey)
	cfg.LeaderTTL = getEnvSecondsOrDefault("LEADER_TTL_SECONDS", cfg.LeaderTTL)

	if port := os.Getenv("PORT"); port != "" {
		cfg.HTTPAddr = ":" + port
	}
	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", cfg.HTTPAddr)

	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseQuotas parses "ru:24,kz:8" into a language → daily cap map.
func ParseQuotas(raw string) (map[string]int, error) {
	quotas := make(map[string]int)
	for _, part := range splitList(raw) {
		lang, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid quota %q: want lang:count", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid quota count in %q", part)
		}
		quotas[strings.ToLower(strings.TrimSpace(lang))] = n
	}
	return quotas, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvMinutesOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return defaultValue
}

func getEnvSecondsOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage {
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required"))
		}
	case "file":
		if c.StoreFile == "" {
			errs = append(errs, errors.New("STORE_FILE is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE must be 'postgres' or 'file', got %q", c.Storage))
	}
	if c.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.TelegramChatID == "" {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required"))
	}
	switch c.Rewriter {
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required"))
		}
	case "passthrough":
	default:
		errs = append(errs, fmt.Errorf("REWRITER must be 'gemini' or 'passthrough', got %q", c.Rewriter))
	}
	switch c.LeaderBackend {
	case "postgres":
		if c.Storage != "postgres" {
			errs = append(errs, errors.New("LEADER_BACKEND=postgres requires STORAGE=postgres"))
		}
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for LEADER_BACKEND=redis"))
		}
		if c.LeaderTTL <= 0 {
			errs = append(errs, errors.New("LEADER_TTL_SECONDS must be positive for LEADER_BACKEND=redis"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("LEADER_BACKEND must be 'postgres', 'redis' or 'none', got %q", c.LeaderBackend))
	}
	if c.WorkHoursStart < 0 || c.WorkHoursStart > 23 || c.WorkHoursEnd < 1 || c.WorkHoursEnd > 24 {
		errs = append(errs, errors.New("WORK_HOURS_START/WORK_HOURS_END out of range"))
	}
	if c.PrimaryLanguage == c.SecondaryLanguage {
		errs = append(errs, errors.New("PRIMARY_LANGUAGE and SECONDARY_LANGUAGE must differ"))
	}
	if c.DynamicBatchSize <= 0 {
		errs = append(errs, errors.New("DYNAMIC_BATCH_SIZE must be positive"))
	}
	return errors.Join(errs...)
}
