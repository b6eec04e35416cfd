package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	LLM      LLMConfig
	Storage  StorageConfig
	STT      STTConfig
	Prosody  ProsodyConfig
	Report   ReportConfig
}

type ServerConfig struct {
	Host          string
	Port          int
	IndexHTMLPath string
	UploadDir     string
	MaxUploadMB   int
	CORSOrigins   []string
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	TranscriptTTL time.Duration
}

type AuthConfig struct {
	JWTSecret string // empty disables auth on /api/v1
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
}

type StorageConfig struct {
	SupabaseURL string
	SupabaseKey string
	Bucket      string
}

type STTConfig struct {
	Backend        string // "openai", "whisper-server" or "local"
	Language       string
	OpenAIKey      string
	OpenAIBaseURL  string
	OpenAIModel    string
	ServerBaseURL  string // default: "http://localhost:8178/v1"
	ServerModel    string
	LocalBinPath   string
	LocalModelPath string
	LocalThreads   int
	TimeoutSeconds int
	LoadOnStartup  bool
}

// ProsodyConfig overrides the acoustic measurement parameters. Zero values
// keep the built-in defaults.
type ProsodyConfig struct {
	Workers            int
	ProfilesPath       string
	Profile            string
	PitchFloor         float64
	PitchCeiling       float64
	ShortestPeriod     float64
	LongestPeriod      float64
	MaxPeriodFactor    float64
	MaxAmplitudeFactor float64
}

type ReportConfig struct {
	PDFDir   string
	ExcelDir string
	FontPath string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxUpload, err := getEnvInt("MAX_UPLOAD_MB", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_MB: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	transcriptTTL, err := getEnvDuration("CACHE_TRANSCRIPT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TRANSCRIPT_TTL: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	sttThreads, err := getEnvInt("STT_LOCAL_THREADS", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_LOCAL_THREADS: %w", err)
	}

	sttTimeout, err := getEnvInt("STT_TIMEOUT_SECONDS", 600)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_TIMEOUT_SECONDS: %w", err)
	}

	workers, err := getEnvInt("PROSODY_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid PROSODY_WORKERS: %w", err)
	}

	prosody := ProsodyConfig{
		Workers:      workers,
		ProfilesPath: getEnv("PROSODY_PROFILES_PATH", ""),
		Profile:      getEnv("PROSODY_PROFILE", ""),
	}
	floats := []struct {
		key string
		dst *float64
	}{
		{"PROSODY_PITCH_FLOOR", &prosody.PitchFloor},
		{"PROSODY_PITCH_CEILING", &prosody.PitchCeiling},
		{"PROSODY_SHORTEST_PERIOD", &prosody.ShortestPeriod},
		{"PROSODY_LONGEST_PERIOD", &prosody.LongestPeriod},
		{"PROSODY_MAX_PERIOD_FACTOR", &prosody.MaxPeriodFactor},
		{"PROSODY_MAX_AMPLITUDE_FACTOR", &prosody.MaxAmplitudeFactor},
	}
	for _, f := range floats {
		v, err := getEnvFloat(f.key, 0)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dst = v
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:          getEnv("SERVER_HOST", "0.0.0.0"),
			Port:          port,
			IndexHTMLPath: getEnv("INDEX_HTML_PATH", "templates/index.html"),
			UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
			MaxUploadMB:   maxUpload,
			CORSOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            redisDB,
			TranscriptTTL: transcriptTTL,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-3.5-turbo"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
		},
		Storage: StorageConfig{
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "reports"),
		},
		STT: STTConfig{
			Backend:        getEnv("STT_BACKEND", "openai"),
			Language:       getEnv("STT_LANGUAGE", "ko"),
			OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:  getEnv("STT_OPENAI_BASE_URL", ""),
			OpenAIModel:    getEnv("STT_OPENAI_MODEL", ""),
			ServerBaseURL:  getEnv("STT_SERVER_BASE_URL", "http://localhost:8178/v1"),
			ServerModel:    getEnv("STT_SERVER_MODEL", "small"),
			LocalBinPath:   getEnv("STT_LOCAL_BIN", "whisper"),
			LocalModelPath: getEnv("STT_LOCAL_MODEL", ""),
			LocalThreads:   sttThreads,
			TimeoutSeconds: sttTimeout,
			LoadOnStartup:  getEnvBool("STT_LOAD_ON_STARTUP", true),
		},
		Prosody: prosody,
		Report: ReportConfig{
			PDFDir:   getEnv("REPORT_PDF_DIR", "results/pdf"),
			ExcelDir: getEnv("REPORT_EXCEL_DIR", "results/excel"),
			FontPath: getEnv("REPORT_FONT_PATH", "fonts/malgun.ttf"),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports settings that are inconsistent with each other. Every
// external service is optional, so nothing is strictly required.
func (c *Config) Validate() error {
	var problems []string
	switch c.STT.Backend {
	case "openai":
		if c.STT.OpenAIKey == "" && c.STT.OpenAIBaseURL == "" {
			problems = append(problems, "STT_BACKEND=openai needs OPENAI_API_KEY")
		}
	case "whisper-server":
	case "local":
		if c.STT.LocalBinPath == "" {
			problems = append(problems, "STT_BACKEND=local needs STT_LOCAL_BIN")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STT_BACKEND %q", c.STT.Backend))
	}
	if c.Prosody.Profile != "" && c.Prosody.ProfilesPath == "" {
		problems = append(problems, "PROSODY_PROFILE needs PROSODY_PROFILES_PATH")
	}
	if c.Prosody.Workers < 1 {
		problems = append(problems, "PROSODY_WORKERS must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
