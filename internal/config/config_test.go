package config

import (
	"reflect"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := fromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("fromEnv failed: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if !reflect.DeepEqual(cfg.Models, DefaultModels) {
		t.Errorf("Models = %v, want %v", cfg.Models, DefaultModels)
	}
	if cfg.Retries != 2 || cfg.RetryWait != 2*time.Second {
		t.Errorf("retry settings = %d/%v, want 2/2s", cfg.Retries, cfg.RetryWait)
	}
	if cfg.MaxPromptChars != 30000 || cfg.MinTextChars != 50 {
		t.Errorf("text limits = %d/%d, want 30000/50", cfg.MaxPromptChars, cfg.MinTextChars)
	}
	if cfg.MaxUploadBytes != 20<<20 {
		t.Errorf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 20<<20)
	}
	if cfg.BigQueryEnabled() {
		t.Error("BigQueryEnabled() = true without a project")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := fromEnv(envMap(map[string]string{
		"PORT":                 "9090",
		"GOOGLE_API_KEY":       "fallback-key",
		"ANALYZER_MODELS":      " model-a, ,model-b ",
		"ANALYZER_RETRIES":     "4",
		"ANALYZER_RETRY_WAIT":  "250ms",
		"MAX_PROMPT_CHARS":     "1000",
		"CORS_ORIGINS":         "http://localhost:3000,https://app.example.com",
		"GOOGLE_CLOUD_PROJECT": "proj",
		"BQ_DATASET":           "audit",
	}))
	if err != nil {
		t.Fatalf("fromEnv failed: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.GeminiAPIKey != "fallback-key" {
		t.Errorf("GeminiAPIKey = %q, want GOOGLE_API_KEY fallback", cfg.GeminiAPIKey)
	}
	if want := []string{"model-a", "model-b"}; !reflect.DeepEqual(cfg.Models, want) {
		t.Errorf("Models = %v, want %v", cfg.Models, want)
	}
	if cfg.Retries != 4 || cfg.RetryWait != 250*time.Millisecond {
		t.Errorf("retry settings = %d/%v", cfg.Retries, cfg.RetryWait)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if !cfg.BigQueryEnabled() || cfg.Dataset != "audit" {
		t.Errorf("bigquery settings = %q/%q", cfg.ProjectID, cfg.Dataset)
	}
}

func TestFromEnv_GeminiKeyPreferred(t *testing.T) {
	cfg, err := fromEnv(envMap(map[string]string{
		"GEMINI_API_KEY": "primary",
		"GOOGLE_API_KEY": "fallback",
	}))
	if err != nil {
		t.Fatalf("fromEnv failed: %v", err)
	}
	if cfg.GeminiAPIKey != "primary" {
		t.Errorf("GeminiAPIKey = %q, want primary", cfg.GeminiAPIKey)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non-numeric retries", map[string]string{"ANALYZER_RETRIES": "many"}},
		{"zero retries", map[string]string{"ANALYZER_RETRIES": "0"}},
		{"bad duration", map[string]string{"ANALYZER_RETRY_WAIT": "soon"}},
		{"negative duration", map[string]string{"ANALYZER_RETRY_WAIT": "-1s"}},
		{"zero prompt chars", map[string]string{"MAX_PROMPT_CHARS": "0"}},
		{"bad upload size", map[string]string{"MAX_UPLOAD_BYTES": "20MB"}},
		{"zero workers", map[string]string{"JOB_WORKERS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fromEnv(envMap(tt.env)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
