package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "SERVER_HOST", "SERVER_PORT", "STT_LANGUAGE", "REPORT_PDF_DIR", "REPORT_EXCEL_DIR",
		"PROSODY_WORKERS", "CACHE_TRANSCRIPT_TTL", "CORS_ALLOWED_ORIGINS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.STT.Language != "ko" {
		t.Errorf("language = %q, want ko", cfg.STT.Language)
	}
	if cfg.Report.PDFDir != "results/pdf" || cfg.Report.ExcelDir != "results/excel" {
		t.Errorf("report dirs = %+v", cfg.Report)
	}
	if cfg.Prosody.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Prosody.Workers)
	}
	if cfg.Redis.TranscriptTTL != 24*time.Hour {
		t.Errorf("ttl = %s", cfg.Redis.TranscriptTTL)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr = %s", cfg.Addr())
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STT_BACKEND", "local")
	t.Setenv("PROSODY_MAX_AMPLITUDE_FACTOR", "1.8")
	t.Setenv("CACHE_TRANSCRIPT_TTL", "90m")
	t.Setenv("STT_LOAD_ON_STARTUP", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example, ,https://b.example ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.STT.Backend != "local" {
		t.Errorf("cfg = %+v", cfg.Server)
	}
	if cfg.Prosody.MaxAmplitudeFactor != 1.8 {
		t.Errorf("amplitude factor = %g", cfg.Prosody.MaxAmplitudeFactor)
	}
	if cfg.Redis.TranscriptTTL != 90*time.Minute {
		t.Errorf("ttl = %s", cfg.Redis.TranscriptTTL)
	}
	if cfg.STT.LoadOnStartup {
		t.Error("expected load on startup disabled")
	}
	if got := strings.Join(cfg.Server.CORSOrigins, "|"); got != "https://a.example|https://b.example" {
		t.Errorf("cors origins = %q", got)
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "PROSODY_WORKERS", "PROSODY_PITCH_FLOOR", "CACHE_TRANSCRIPT_TTL"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "abc")
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("err = %v, want mention of %s", err, key)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("err = %v, want missing key", err)
	}

	cfg.STT.Backend = "whisper-server"
	if err := cfg.Validate(); err != nil {
		t.Errorf("whisper-server should validate: %v", err)
	}

	cfg.Prosody.Profile = "noisy"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for profile without path")
	}
}
