package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultModels is the model rotation used when ANALYZER_MODELS is unset.
var DefaultModels = []string{
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
	"gemini-2.0-flash",
}

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	// Server
	ListenAddr     string   // PORT, e.g. :8080
	MaxUploadBytes int64    // MAX_UPLOAD_BYTES
	CORSOrigins    []string // CORS_ORIGINS, comma separated; empty means "*"

	// Inference provider
	GeminiAPIKey string        // GEMINI_API_KEY, falls back to GOOGLE_API_KEY
	Models       []string      // ANALYZER_MODELS, comma separated, tried in order
	Retries      int           // ANALYZER_RETRIES, attempts per model on rate limiting
	RetryWait    time.Duration // ANALYZER_RETRY_WAIT

	// Statement handling
	MaxPromptChars int    // MAX_PROMPT_CHARS
	MinTextChars   int    // MIN_TEXT_CHARS
	KeywordsFile   string // REDACT_KEYWORDS_FILE, optional YAML merged over the defaults

	// Google Cloud
	ProjectID string // GOOGLE_CLOUD_PROJECT; empty disables BigQuery auditing
	Dataset   string // BQ_DATASET
	Bucket    string // GCS_BUCKET

	// Jobs
	JobWorkers    int // JOB_WORKERS
	JobMaxRetries int // JOB_MAX_RETRIES

	// Logging
	LogLevel  string // LOG_LEVEL
	LogFormat string // LOG_FORMAT (console|json)
}

// Load reads .env (if present) then environment variables and returns Config.
func Load() (*Config, error) {
	// Best-effort: load .env from current directory
	_ = godotenv.Load()
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*Config, error) {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := &Config{
		ListenAddr:   ":" + orDefault(get("PORT"), "8080"),
		CORSOrigins:  splitList(get("CORS_ORIGINS")),
		GeminiAPIKey: orDefault(get("GEMINI_API_KEY"), get("GOOGLE_API_KEY")),
		Models:       splitList(get("ANALYZER_MODELS")),
		KeywordsFile: get("REDACT_KEYWORDS_FILE"),
		ProjectID:    get("GOOGLE_CLOUD_PROJECT"),
		Dataset:      orDefault(get("BQ_DATASET"), "statements"),
		Bucket:       get("GCS_BUCKET"),
		LogLevel:     orDefault(get("LOG_LEVEL"), "info"),
		LogFormat:    orDefault(get("LOG_FORMAT"), "console"),
	}
	if len(cfg.Models) == 0 {
		cfg.Models = append([]string(nil), DefaultModels...)
	}

	var err error
	if cfg.Retries, err = intVar(get, "ANALYZER_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.MaxPromptChars, err = intVar(get, "MAX_PROMPT_CHARS", 30000); err != nil {
		return nil, err
	}
	if cfg.MinTextChars, err = intVar(get, "MIN_TEXT_CHARS", 50); err != nil {
		return nil, err
	}
	if cfg.JobWorkers, err = intVar(get, "JOB_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.JobMaxRetries, err = intVar(get, "JOB_MAX_RETRIES", 2); err != nil {
		return nil, err
	}

	maxUpload, err := intVar(get, "MAX_UPLOAD_BYTES", 20<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	cfg.RetryWait = 2 * time.Second
	if raw := get("ANALYZER_RETRY_WAIT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("config: ANALYZER_RETRY_WAIT %q is not a valid duration", raw)
		}
		cfg.RetryWait = d
	}

	if cfg.Retries < 1 {
		return nil, fmt.Errorf("config: ANALYZER_RETRIES must be >= 1, got %d", cfg.Retries)
	}
	if cfg.MaxPromptChars < 1 {
		return nil, fmt.Errorf("config: MAX_PROMPT_CHARS must be >= 1, got %d", cfg.MaxPromptChars)
	}
	if cfg.JobWorkers < 1 {
		return nil, fmt.Errorf("config: JOB_WORKERS must be >= 1, got %d", cfg.JobWorkers)
	}

	return cfg, nil
}

// BigQueryEnabled reports whether analysis runs should be recorded in BigQuery.
func (c *Config) BigQueryEnabled() bool {
	return c.ProjectID != ""
}

func intVar(get func(string) string, key string, def int) (int, error) {
	raw := get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s %q is not an integer", key, raw)
	}
	return n, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
