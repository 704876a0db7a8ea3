// Package config loads Lavis's runtime configuration from an optional YAML
// file with environment-variable overrides, and exposes every tunable named
// in the reasoning loop, memory manager, scheduler, and skill loader.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AnthropicConfig configures the Anthropic chat/vision adapter.
type AnthropicConfig struct {
	APIKey      string         `yaml:"api_key"`
	Model       string         `yaml:"model"`
	BaseURL     string         `yaml:"base_url"`
	ExtraParams map[string]any `yaml:"extra_params"`
}

// OpenAIConfig configures the OpenAI-compatible chat/vision adapter. The same
// struct also drives self-hosted OpenAI-compatible servers (llama.cpp, mlx_lm)
// by pointing BaseURL at the local endpoint.
type OpenAIConfig struct {
	APIKey      string         `yaml:"api_key"`
	Model       string         `yaml:"model"`
	BaseURL     string         `yaml:"base_url"`
	ExtraParams map[string]any `yaml:"extra_params"`
}

// GoogleConfig configures the Google Gemini chat/vision adapter.
type GoogleConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout_seconds"`
}

// LLMConfig selects and configures the active ChatModel provider.
type LLMConfig struct {
	Provider  string          `yaml:"provider"` // "anthropic" | "openai" | "google"
	Model     string          `yaml:"model"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Google    GoogleConfig    `yaml:"google"`
}

// CaptureConfig tunes ScreenPerceiver/DedupCapturer.
type CaptureConfig struct {
	IntervalMS      int `yaml:"interval_ms"`
	DedupThreshold  int `yaml:"dedup_hamming_threshold"` // Hamming distance at or below which a frame is a duplicate
	DownscaleWidth  int `yaml:"downscale_width"`
	DownscaleHeight int `yaml:"downscale_height"`
	ScreenWidth     int `yaml:"screen_width"`  // physical display width, for mapping normalized [0,1000] actuator coordinates
	ScreenHeight    int `yaml:"screen_height"` // physical display height
}

// MemoryConfig tunes ConversationMemory/VisualCompactor/MemoryManager.
type MemoryConfig struct {
	Enabled               bool   `yaml:"enabled"`
	ContextWindowTokens   int    `yaml:"context_window_tokens"`
	ReserveBufferTokens   int    `yaml:"reserve_buffer_tokens"`
	MinKeepLastMessages   int    `yaml:"min_keep_last_messages"`
	MaxKeepLastMessages   int    `yaml:"max_keep_last_messages"`
	MaxSummaryChunkTokens int    `yaml:"max_summary_chunk_tokens"`
	SummaryModel          string `yaml:"summary_model"`
	KeepImageCount        int    `yaml:"keep_image_count"` // max window entries keeping inline image bytes (min 2); each turn's first and last image are never collapsed
}

// ColdStorageConfig tunes the cold-storage backend.
type ColdStorageConfig struct {
	Backend         string `yaml:"backend"` // "fs" | "s3"
	FSRoot          string `yaml:"fs_root"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Prefix        string `yaml:"s3_prefix"`
	RetentionDays   int    `yaml:"retention_days"`
	PresignTimeoutS int    `yaml:"presign_timeout_seconds"`
}

// PersistenceConfig tunes the structured-record store.
type PersistenceConfig struct {
	Backend string `yaml:"backend"` // "memory" | "postgres"
	DSN     string `yaml:"dsn"`
}

// SchedulerConfig tunes the task scheduler.
type SchedulerConfig struct {
	WorkerPoolSize  int `yaml:"worker_pool_size"`
	RunLogRetention int `yaml:"run_log_retention_days"`
}

// SkillsConfig tunes the skill loader and service.
type SkillsConfig struct {
	Dir              string `yaml:"dir"`
	HotReloadSeconds int    `yaml:"hot_reload_seconds"`
	RedisAddr        string `yaml:"redis_addr"`
}

// ReasoningConfig tunes the reasoning loop.
type ReasoningConfig struct {
	MaxSteps        int           `yaml:"max_steps"`
	RetryBudget     int           `yaml:"retry_budget"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay_ms"`
	ToolWaitDefault time.Duration `yaml:"tool_wait_default_ms"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Config is the complete, flat configuration for a lavisd process.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	LLM         LLMConfig         `yaml:"llm"`
	Capture     CaptureConfig     `yaml:"capture"`
	Memory      MemoryConfig      `yaml:"memory"`
	ColdStorage ColdStorageConfig `yaml:"cold_storage"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Skills      SkillsConfig      `yaml:"skills"`
	Reasoning   ReasoningConfig   `yaml:"reasoning"`
	OTel        TelemetryConfig   `yaml:"otel"`
}

// loadFile reads an optional YAML config file. A missing file is not an
// error: it just leaves every field at its zero value, so the caller falls
// through to environment variables and hardcoded defaults.
func loadFile(path string) (Config, error) {
	var fc Config
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// Load reads configuration from an optional YAML file (LAVIS_CONFIG_FILE,
// default "./config.yaml") and then applies environment variable overrides.
// It overlays a local .env file first (Overload, so the repo-local file
// wins over an already-exported OS var, which is convenient in development).
func Load() (Config, error) {
	_ = godotenv.Overload()

	filePath := firstNonEmpty(getenv("LAVIS_CONFIG_FILE"), "./config.yaml")
	file, err := loadFile(filePath)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Host: resolveStr("LAVIS_HOST", file.Host, "127.0.0.1"),
		Port: resolveInt("LAVIS_PORT", file.Port, 8177),
		LLM: LLMConfig{
			Provider: strings.ToLower(resolveStr("LLM_PROVIDER", file.LLM.Provider, "anthropic")),
			Model:    resolveStr("LLM_MODEL", file.LLM.Model, ""),
			Anthropic: AnthropicConfig{
				APIKey:      resolveStr("ANTHROPIC_API_KEY", file.LLM.Anthropic.APIKey, ""),
				Model:       resolveStr("ANTHROPIC_MODEL", file.LLM.Anthropic.Model, "claude-sonnet-4-5-latest"),
				BaseURL:     resolveStr("ANTHROPIC_BASE_URL", file.LLM.Anthropic.BaseURL, ""),
				ExtraParams: file.LLM.Anthropic.ExtraParams,
			},
			OpenAI: OpenAIConfig{
				APIKey:      resolveStr("OPENAI_API_KEY", file.LLM.OpenAI.APIKey, ""),
				Model:       resolveStr("OPENAI_MODEL", file.LLM.OpenAI.Model, "gpt-4.1"),
				BaseURL:     resolveStr("OPENAI_BASE_URL", file.LLM.OpenAI.BaseURL, ""),
				ExtraParams: file.LLM.OpenAI.ExtraParams,
			},
			Google: GoogleConfig{
				APIKey:  resolveStr("GOOGLE_API_KEY", file.LLM.Google.APIKey, ""),
				Model:   resolveStr("GOOGLE_MODEL", file.LLM.Google.Model, "gemini-2.5-flash"),
				BaseURL: resolveStr("GOOGLE_BASE_URL", file.LLM.Google.BaseURL, ""),
				Timeout: resolveInt("GOOGLE_TIMEOUT_SECONDS", file.LLM.Google.Timeout, 60),
			},
		},
		Capture: CaptureConfig{
			IntervalMS:      resolveInt("LAVIS_CAPTURE_INTERVAL_MS", file.Capture.IntervalMS, 1000),
			DedupThreshold:  resolveInt("LAVIS_DEDUP_HAMMING_THRESHOLD", file.Capture.DedupThreshold, 4),
			DownscaleWidth:  9,
			DownscaleHeight: 8,
			ScreenWidth:     resolveInt("LAVIS_SCREEN_WIDTH", file.Capture.ScreenWidth, 1920),
			ScreenHeight:    resolveInt("LAVIS_SCREEN_HEIGHT", file.Capture.ScreenHeight, 1080),
		},
		Memory: MemoryConfig{
			Enabled:               true,
			ContextWindowTokens:   resolveInt("LAVIS_CONTEXT_WINDOW_TOKENS", file.Memory.ContextWindowTokens, 128000),
			ReserveBufferTokens:   resolveInt("LAVIS_RESERVE_BUFFER_TOKENS", file.Memory.ReserveBufferTokens, 4000),
			MinKeepLastMessages:   resolveInt("LAVIS_MIN_KEEP_MESSAGES", file.Memory.MinKeepLastMessages, 4),
			MaxKeepLastMessages:   resolveInt("LAVIS_MAX_KEEP_MESSAGES", file.Memory.MaxKeepLastMessages, 40),
			MaxSummaryChunkTokens: resolveInt("LAVIS_SUMMARY_CHUNK_TOKENS", file.Memory.MaxSummaryChunkTokens, 2000),
			SummaryModel:          resolveStr("LAVIS_SUMMARY_MODEL", file.Memory.SummaryModel, ""),
			KeepImageCount:        resolveInt("LAVIS_KEEP_IMAGE_COUNT", file.Memory.KeepImageCount, 2),
		},
		ColdStorage: ColdStorageConfig{
			Backend:         resolveStr("LAVIS_COLDSTORAGE_BACKEND", file.ColdStorage.Backend, "fs"),
			FSRoot:          resolveStr("LAVIS_COLDSTORAGE_FS_ROOT", file.ColdStorage.FSRoot, "./data/coldstorage"),
			S3Bucket:        resolveStr("LAVIS_COLDSTORAGE_S3_BUCKET", file.ColdStorage.S3Bucket, ""),
			S3Prefix:        resolveStr("LAVIS_COLDSTORAGE_S3_PREFIX", file.ColdStorage.S3Prefix, ""),
			RetentionDays:   resolveInt("LAVIS_COLDSTORAGE_RETENTION_DAYS", file.ColdStorage.RetentionDays, 30),
			PresignTimeoutS: resolveInt("LAVIS_COLDSTORAGE_PRESIGN_SECONDS", file.ColdStorage.PresignTimeoutS, 900),
		},
		Persistence: PersistenceConfig{
			Backend: resolveStr("LAVIS_PERSISTENCE_BACKEND", file.Persistence.Backend, "memory"),
			DSN:     resolveStr("LAVIS_POSTGRES_DSN", file.Persistence.DSN, ""),
		},
		Scheduler: SchedulerConfig{
			WorkerPoolSize:  resolveInt("LAVIS_SCHEDULER_WORKERS", file.Scheduler.WorkerPoolSize, 4),
			RunLogRetention: resolveInt("LAVIS_SCHEDULER_RUNLOG_RETENTION_DAYS", file.Scheduler.RunLogRetention, 14),
		},
		Skills: SkillsConfig{
			Dir:              resolveStr("LAVIS_SKILLS_DIR", file.Skills.Dir, "./skills"),
			HotReloadSeconds: resolveInt("LAVIS_SKILLS_RELOAD_SECONDS", file.Skills.HotReloadSeconds, 30),
			RedisAddr:        resolveStr("LAVIS_SKILLS_REDIS_ADDR", file.Skills.RedisAddr, ""),
		},
		Reasoning: ReasoningConfig{
			MaxSteps:        resolveInt("LAVIS_MAX_STEPS", file.Reasoning.MaxSteps, 50),
			RetryBudget:     resolveInt("LAVIS_RETRY_BUDGET", file.Reasoning.RetryBudget, 3),
			RetryBaseDelay:  time.Duration(resolveInt("LAVIS_RETRY_BASE_DELAY_MS", int(file.Reasoning.RetryBaseDelay), 500)) * time.Millisecond,
			ToolWaitDefault: time.Duration(resolveInt("LAVIS_TOOL_WAIT_DEFAULT_MS", int(file.Reasoning.ToolWaitDefault), 300)) * time.Millisecond,
		},
		OTel: TelemetryConfig{
			Enabled:     resolveBool("LAVIS_OTEL_ENABLED", file.OTel.Enabled, false),
			Endpoint:    resolveStr("LAVIS_OTEL_ENDPOINT", file.OTel.Endpoint, ""),
			Insecure:    resolveBool("LAVIS_OTEL_INSECURE", file.OTel.Insecure, true),
			ServiceName: resolveStr("LAVIS_OTEL_SERVICE_NAME", file.OTel.ServiceName, "lavis"),
		},
	}
	return cfg, nil
}

func getenv(key string) string { return strings.TrimSpace(os.Getenv(key)) }

// resolveStr picks, in priority order: an explicitly set env var, a
// non-empty value from the YAML file, then the hardcoded default.
func resolveStr(key, fileVal, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return firstNonEmpty(fileVal, def)
}

func resolveInt(key string, fileVal, def int) int {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if fileVal != 0 {
		return fileVal
	}
	return def
}

func resolveBool(key string, fileVal, def bool) bool {
	if v := getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	if fileVal {
		return true
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
