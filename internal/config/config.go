// Package config builds the immutable run configuration from defaults, an
// optional YAML file, and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingAPIKey indicates no TTS API key was configured.
	ErrMissingAPIKey = errors.New("ELEVENLABS_API_KEY is not set")

	// ErrMissingSheetID indicates no spreadsheet was configured.
	ErrMissingSheetID = errors.New("sheet id is not set")
)

type Config struct {
	Sheet      SheetConfig      `yaml:"sheet"`
	TTS        TTSConfig        `yaml:"tts"`
	Storage    StorageConfig    `yaml:"storage"`
	Perf       PerfConfig       `yaml:"perf"`
	Retry      RetryConfig      `yaml:"retry"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type SheetConfig struct {
	SheetID         string `yaml:"sheet_id"`
	SheetName       string `yaml:"sheet_name"`
	SourceColumn    string `yaml:"source_column"`
	DestColumn      string `yaml:"dest_column"`
	CredentialsFile string `yaml:"credentials_file"`
}

type TTSConfig struct {
	APIKey         string `yaml:"-"` // env only, never in a config file
	BaseURL        string `yaml:"base_url"`
	VoiceID        string `yaml:"voice_id"`
	ModelID        string `yaml:"model_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type StorageConfig struct {
	Backend        string `yaml:"backend"`
	LocalDir       string `yaml:"local_dir"`
	GCSBucket      string `yaml:"gcs_bucket"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	Prefix         string `yaml:"prefix"`
	LinkTTLHours   int    `yaml:"link_ttl_hours"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type PerfConfig struct {
	Workers           int `yaml:"workers"`
	TTSConcurrency    int `yaml:"tts_concurrency"`
	UploadConcurrency int `yaml:"upload_concurrency"`
}

type RetryConfig struct {
	MaxAttempts  int `yaml:"max_attempts"`
	BackoffMs    int `yaml:"backoff_ms"`
	MaxBackoffMs int `yaml:"max_backoff_ms"`
}

type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DefaultConfigFile is the optional YAML overlay looked up next to the binary.
const DefaultConfigFile = "sheetvox.yaml"

// defaults returns the baseline configuration.
func defaults() Config {
	return Config{
		Sheet: SheetConfig{
			SheetName:       "Sheet1",
			SourceColumn:    "A",
			DestColumn:      "B",
			CredentialsFile: "credentials.json",
		},
		TTS: TTSConfig{
			TimeoutSeconds: 120,
		},
		Storage: StorageConfig{
			Backend:        "local",
			LocalDir:       "./audio",
			Prefix:         "audio/",
			TimeoutSeconds: 120,
		},
		Perf: PerfConfig{
			Workers:           5,
			TTSConcurrency:    10,
			UploadConcurrency: 4,
		},
		Retry: RetryConfig{
			MaxAttempts:  4,
			BackoffMs:    1000,
			MaxBackoffMs: 30000,
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
			Path:    "checkpoint.json",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path when
// present, then environment variables.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overrides configuration from the environment.
func applyEnv(cfg *Config) {
	cfg.TTS.APIKey = getenvDefault("ELEVENLABS_API_KEY", cfg.TTS.APIKey)
	cfg.TTS.BaseURL = getenvDefault("ELEVENLABS_BASE_URL", cfg.TTS.BaseURL)
	cfg.TTS.VoiceID = getenvDefault("ELEVENLABS_VOICE_ID", cfg.TTS.VoiceID)
	cfg.TTS.ModelID = getenvDefault("ELEVENLABS_MODEL_ID", cfg.TTS.ModelID)

	cfg.Sheet.SheetID = getenvDefault("SHEET_ID", cfg.Sheet.SheetID)
	cfg.Sheet.SheetName = getenvDefault("SHEET_NAME", cfg.Sheet.SheetName)
	cfg.Sheet.CredentialsFile = getenvDefault("GOOGLE_CREDENTIALS_FILE", cfg.Sheet.CredentialsFile)

	cfg.Storage.Backend = getenvDefault("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.LocalDir = getenvDefault("LOCAL_DIR", cfg.Storage.LocalDir)
	cfg.Storage.GCSBucket = getenvDefault("STORAGE_GCS_BUCKET", cfg.Storage.GCSBucket)
	cfg.Storage.S3Bucket = getenvDefault("STORAGE_S3_BUCKET", cfg.Storage.S3Bucket)
	cfg.Storage.S3Endpoint = getenvDefault("STORAGE_S3_ENDPOINT", cfg.Storage.S3Endpoint)
	cfg.Storage.S3Region = getenvDefault("STORAGE_S3_REGION", cfg.Storage.S3Region)
	cfg.Storage.Prefix = getenvDefault("STORAGE_PREFIX", cfg.Storage.Prefix)
	cfg.Storage.TimeoutSeconds = getenvInt("STORAGE_TIMEOUT_SECONDS", cfg.Storage.TimeoutSeconds)

	cfg.Perf.Workers = getenvInt("WORKERS", cfg.Perf.Workers)
	cfg.Perf.TTSConcurrency = getenvInt("TTS_CONCURRENCY_LIMIT", cfg.Perf.TTSConcurrency)
	cfg.Perf.UploadConcurrency = getenvInt("UPLOAD_CONCURRENCY_LIMIT", cfg.Perf.UploadConcurrency)

	cfg.Retry.MaxAttempts = getenvInt("RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.BackoffMs = getenvInt("RETRY_BACKOFF_MS", cfg.Retry.BackoffMs)
	cfg.Retry.MaxBackoffMs = getenvInt("RETRY_MAX_BACKOFF_MS", cfg.Retry.MaxBackoffMs)

	cfg.Checkpoint.Path = getenvDefault("CHECKPOINT_FILE", cfg.Checkpoint.Path)
	if os.Getenv("CHECKPOINT_DISABLED") == "true" {
		cfg.Checkpoint.Enabled = false
	}

	cfg.Logging.Format = getenvDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)

	if os.Getenv("METRICS_ENABLED") == "true" {
		cfg.Metrics.Enabled = true
	}
	cfg.Metrics.Address = getenvDefault("METRICS_ADDRESS", cfg.Metrics.Address)
}

// Validate checks the configuration needed before any row can run.
func (c Config) Validate() error {
	if c.TTS.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Sheet.SheetID == "" {
		return ErrMissingSheetID
	}
	if c.Perf.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Perf.Workers)
	}
	if c.Perf.TTSConcurrency < 1 || c.Perf.UploadConcurrency < 1 {
		return fmt.Errorf("concurrency limits must be >= 1")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
