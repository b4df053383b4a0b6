package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level        string
	Pretty       bool
	File         string
	MaxSizeMB    int
	MaxBackups   int
	MaxAgeDays   int
	Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// EndpointsConfig names the three remote endpoints of a run.
type EndpointsConfig struct {
	TargetURL string
	APIURL    string
	SubmitURL string
}

// ScraperConfig controls page rendering and image extraction.
type ScraperConfig struct {
	Renderer          string // "chrome"|"http"
	BrowserPath       string
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string
	SettleDelay       time.Duration
	NavigationTimeout time.Duration
	DownloadTimeout   time.Duration
}

// InferenceConfig controls the caption request.
type InferenceConfig struct {
	Model   string
	Prompt  string
	Timeout time.Duration
}

// OutputConfig names the files a run produces.
type OutputConfig struct {
	Dir        string
	ImageFile  string
	ResultFile string
}

// ArchiveConfig enables the optional S3 copy of run artifacts.
type ArchiveConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Passphrase      string
}

// Config is the top-level configuration.
type Config struct {
	Logging       LoggingConfig
	Axiom         AxiomConfig
	Endpoints     EndpointsConfig
	Scraper       ScraperConfig
	Inference     InferenceConfig
	SubmitTimeout time.Duration
	Output        OutputConfig
	Archive       ArchiveConfig
	StatusRedisURL string
	MetricsFile    string
}

const (
	DefaultTargetURL = "https://intern.aiaxuropenings.com/scrape/325bec94-ab50-452f-a0bf-74ecb815b25b"
	DefaultAPIURL    = "https://intern.aiaxuropenings.com/v1/chat/completions"
	DefaultSubmitURL = "https://intern.aiaxuropenings.com/api/submit-response"
	DefaultModel     = "microsoft-florence-2-large"
	DefaultPrompt    = "Provide a <DETAILED_CAPTION> for this image."
)

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", defaultPretty())),
		File:       getEnv("LOG_FILE", "scraper_inference.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "10"), 10),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "3"), 3),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "false")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_captionpipe",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Endpoints = EndpointsConfig{
		TargetURL: getEnv("TARGET_URL", DefaultTargetURL),
		APIURL:    getEnv("API_URL", DefaultAPIURL),
		SubmitURL: getEnv("SUBMIT_URL", DefaultSubmitURL),
	}

	cfg.Scraper = ScraperConfig{
		Renderer:          strings.ToLower(getEnv("RENDERER", "chrome")),
		BrowserPath:       getEnv("CHROME_PATH", ""),
		ViewportWidth:     parseInt(getEnv("VIEWPORT_WIDTH", "1280"), 1280),
		ViewportHeight:    parseInt(getEnv("VIEWPORT_HEIGHT", "800"), 800),
		UserAgent:         getEnv("USER_AGENT", "Mozilla/5.0"),
		SettleDelay:       parseDuration(getEnv("SETTLE_DELAY", "3s"), 3*time.Second),
		NavigationTimeout: parseDuration(getEnv("NAVIGATION_TIMEOUT", "60s"), 60*time.Second),
		DownloadTimeout:   parseDuration(getEnv("DOWNLOAD_TIMEOUT", "30s"), 30*time.Second),
	}

	cfg.Inference = InferenceConfig{
		Model:   getEnv("INFERENCE_MODEL", DefaultModel),
		Prompt:  getEnv("CAPTION_PROMPT", DefaultPrompt),
		Timeout: parseDuration(getEnv("INFERENCE_TIMEOUT", "60s"), 60*time.Second),
	}
	cfg.SubmitTimeout = parseDuration(getEnv("SUBMIT_TIMEOUT", "60s"), 60*time.Second)

	cfg.Output = OutputConfig{
		Dir:        getEnv("OUTPUT_DIR", "scraped_images"),
		ImageFile:  getEnv("IMAGE_FILE", "scraped_image.jpg"),
		ResultFile: getEnv("RESULT_FILE", "inference_result.json"),
	}

	cfg.Archive = ArchiveConfig{
		Bucket:          getEnv("ARCHIVE_S3_BUCKET", ""),
		Prefix:          strings.Trim(getEnv("ARCHIVE_S3_PREFIX", "runs"), "/"),
		Region:          getEnv("ARCHIVE_S3_REGION", ""),
		Endpoint:        getEnv("ARCHIVE_S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("ARCHIVE_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", ""),
		Passphrase:      getEnv("ARCHIVE_PASSPHRASE", ""),
	}

	cfg.StatusRedisURL = getEnv("STATUS_REDIS_URL", "")
	cfg.MetricsFile = getEnv("METRICS_FILE", "")

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

// The CLI is usually run by hand, so console output is pretty unless
// ENVIRONMENT says otherwise.
func defaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "prod" || env == "production" {
		return "false"
	}
	return "true"
}
