package common

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix scopes environment overrides; "__" separates nesting levels,
// e.g. GRADER_EVALUATION_LLM__MODEL -> evaluation_llm.model.
const EnvPrefix = "GRADER_"

const maxConfigFileSize = 1 << 20

// Config holds all application configuration
type Config struct {
	Paths         PathsConfig      `koanf:"paths"`
	Storage       StorageConfig    `koanf:"storage"`
	Server        ServerConfig     `koanf:"server"`
	OCR           OCRConfig        `koanf:"ocr"`
	OCRLLM        LLMConfig        `koanf:"ocr_llm"`
	EvaluationLLM LLMConfig        `koanf:"evaluation_llm"`
	Evaluation    EvaluationConfig `koanf:"evaluation"`
	Queue         QueueConfig      `koanf:"queue"`
	Events        EventsConfig     `koanf:"events"`
	Checkpoint    CheckpointConfig `koanf:"checkpoint"`
	Log           LogConfig        `koanf:"log"`
}

// PathsConfig holds on-disk locations.
type PathsConfig struct {
	Uploads     string `koanf:"uploads"`
	Outputs     string `koanf:"outputs"`
	Checkpoints string `koanf:"checkpoints"`
}

// StorageConfig selects where checkpoints and the exam cache live.
// Driver is "file" (default), "sqlite" or "postgres".
type StorageConfig struct {
	Driver           string        `koanf:"driver"`
	DSN              string        `koanf:"dsn"`
	MaxConns         int32         `koanf:"max_conns"`
	MinConns         int32         `koanf:"min_conns"`
	MaxConnLifetime  time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `koanf:"max_conn_idle_time"`
	DialTimeout      time.Duration `koanf:"dial_timeout"`
	StatementTimeout time.Duration `koanf:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string `koanf:"grpc_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// OCRConfig holds rasterization settings.
type OCRConfig struct {
	Pdftoppm    string `koanf:"pdftoppm"`
	DPI         int    `koanf:"dpi"`
	MaxPages    int    `koanf:"max_pages"`
	MaxImageDim int    `koanf:"max_image_dim"` // longest edge in pixels, 0 = keep
}

// LLMConfig configures one external chat-completions service.
type LLMConfig struct {
	BaseURL           string  `koanf:"base_url"`
	APIKey            string  `koanf:"api_key"`
	Model             string  `koanf:"model"`
	TimeoutSeconds    int     `koanf:"timeout_seconds"`
	MaxRetries        int     `koanf:"max_retries"`
	BaseDelaySeconds  float64 `koanf:"base_delay_seconds"`
	Temperature       float64 `koanf:"temperature"`
	TopP              float64 `koanf:"top_p"`
	TopK              int     `koanf:"top_k"`
	MaxTokens         int     `koanf:"max_tokens"`
	RequestsPerMinute int     `koanf:"requests_per_minute"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c LLMConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelaySeconds * float64(time.Second))
}

// EvaluationConfig holds reasoning prompt settings.
type EvaluationConfig struct {
	Prompt             string  `koanf:"prompt"`
	QuestionPaperChars int     `koanf:"question_paper_chars"`
	AnswerKeyChars     int     `koanf:"answer_key_chars"`
	StudentChars       int     `koanf:"student_chars"`
	HeadFraction       float64 `koanf:"head_fraction"`
	DefaultMode        string  `koanf:"default_mode"`
}

// QueueConfig sizes the worker pool.
type QueueConfig struct {
	Workers int `koanf:"workers"`
	Size    int `koanf:"size"`
}

// EventsConfig configures job transition publishing. Empty NATSURL logs only.
type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// CheckpointConfig controls retention after success.
type CheckpointConfig struct {
	CleanupOnSuccess bool `koanf:"cleanup_on_success"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json | text
}

// LoadConfig loads configuration with precedence env > YAML file > defaults.
// A .env file in the working directory is loaded first when present; it never
// overrides variables already set in the process environment.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// envKey maps GRADER_OCR_LLM__API_KEY to ocr_llm.api_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("config file %s exceeds %d bytes", path, maxConfigFileSize), ErrInvalidInput)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func applyDefaults(cfg *Config) {
	setString(&cfg.Paths.Uploads, "./uploads")
	setString(&cfg.Paths.Outputs, "./outputs")
	setString(&cfg.Paths.Checkpoints, "./checkpoints")

	setString(&cfg.Storage.Driver, "file")
	if cfg.Storage.MaxConns == 0 {
		cfg.Storage.MaxConns = 10
	}
	if cfg.Storage.MinConns == 0 {
		cfg.Storage.MinConns = 1
	}
	setDuration(&cfg.Storage.MaxConnLifetime, 30*time.Minute)
	setDuration(&cfg.Storage.MaxConnIdleTime, 5*time.Minute)
	setDuration(&cfg.Storage.DialTimeout, 3*time.Second)

	setString(&cfg.Server.GRPCAddr, ":8080")
	setString(&cfg.Server.MetricsAddr, ":9090")

	setString(&cfg.OCR.Pdftoppm, "pdftoppm")
	setInt(&cfg.OCR.DPI, 200)
	setInt(&cfg.OCR.MaxImageDim, 2400)

	// Vision OCR service.
	setString(&cfg.OCRLLM.BaseURL, "https://api.groq.com/openai/v1")
	setString(&cfg.OCRLLM.APIKey, getEnv("GROQ_API_KEY", ""))
	setString(&cfg.OCRLLM.Model, "meta-llama/llama-4-maverick-17b-128e-instruct")
	setInt(&cfg.OCRLLM.TimeoutSeconds, 120)
	setInt(&cfg.OCRLLM.MaxRetries, 15)
	setFloat(&cfg.OCRLLM.BaseDelaySeconds, 5)
	setFloat(&cfg.OCRLLM.Temperature, 0.1)
	setInt(&cfg.OCRLLM.MaxTokens, 2000)

	// Reasoning service.
	setString(&cfg.EvaluationLLM.BaseURL, "https://api.fireworks.ai/inference/v1")
	setString(&cfg.EvaluationLLM.APIKey, getEnv("FIREWORKS_API_KEY", ""))
	setString(&cfg.EvaluationLLM.Model, "accounts/fireworks/models/qwen3-vl-235b-a22b-thinking")
	setInt(&cfg.EvaluationLLM.TimeoutSeconds, 300)
	setInt(&cfg.EvaluationLLM.MaxRetries, 10)
	setFloat(&cfg.EvaluationLLM.BaseDelaySeconds, 5)
	setFloat(&cfg.EvaluationLLM.Temperature, 0.6)
	setFloat(&cfg.EvaluationLLM.TopP, 1)
	setInt(&cfg.EvaluationLLM.TopK, 40)
	setInt(&cfg.EvaluationLLM.MaxTokens, 8000)

	setInt(&cfg.Evaluation.QuestionPaperChars, 15000)
	setInt(&cfg.Evaluation.AnswerKeyChars, 12000)
	setInt(&cfg.Evaluation.StudentChars, 15000)
	setFloat(&cfg.Evaluation.HeadFraction, 0.6)
	setString(&cfg.Evaluation.DefaultMode, "PT-2")

	setInt(&cfg.Queue.Workers, 4)
	setInt(&cfg.Queue.Size, 256)

	setString(&cfg.Events.SubjectPrefix, "grader.jobs")

	setString(&cfg.Log.Level, getEnv("LOG_LEVEL", "info"))
	setString(&cfg.Log.Format, "text")
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "file":
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			return NewAppError("CONFIG_ERROR", "storage.dsn is required for driver "+c.Storage.Driver, ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown storage.driver %q", c.Storage.Driver), ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "server.grpc_addr is required", ErrInvalidInput)
	}
	if c.Evaluation.HeadFraction <= 0 || c.Evaluation.HeadFraction >= 1 {
		return NewAppError("CONFIG_ERROR", "evaluation.head_fraction must be between 0 and 1", ErrInvalidInput)
	}
	for name, l := range map[string]LLMConfig{"ocr_llm": c.OCRLLM, "evaluation_llm": c.EvaluationLLM} {
		if l.MaxRetries < 1 {
			return NewAppError("CONFIG_ERROR", name+".max_retries must be at least 1", ErrInvalidInput)
		}
		if l.TimeoutSeconds < 1 {
			return NewAppError("CONFIG_ERROR", name+".timeout_seconds must be at least 1", ErrInvalidInput)
		}
	}
	return nil
}

// ValidateCredentials is called by commands that reach the model services.
func (c *Config) ValidateCredentials() error {
	if c.OCRLLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "ocr_llm.api_key (or GROQ_API_KEY) is required", ErrInvalidInput)
	}
	if c.EvaluationLLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "evaluation_llm.api_key (or FIREWORKS_API_KEY) is required", ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}
