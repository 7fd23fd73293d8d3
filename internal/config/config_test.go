package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sheet.SourceColumn != "A" || cfg.Sheet.DestColumn != "B" {
		t.Errorf("default columns = %s/%s, want A/B", cfg.Sheet.SourceColumn, cfg.Sheet.DestColumn)
	}
	if cfg.Perf.Workers != 5 {
		t.Errorf("default workers = %d, want 5", cfg.Perf.Workers)
	}
	if cfg.Perf.TTSConcurrency != 10 {
		t.Errorf("default tts concurrency = %d, want 10", cfg.Perf.TTSConcurrency)
	}
	if !cfg.Checkpoint.Enabled || cfg.Checkpoint.Path != "checkpoint.json" {
		t.Errorf("default checkpoint = %+v", cfg.Checkpoint)
	}
	if cfg.Storage.TimeoutSeconds != 120 {
		t.Errorf("default storage timeout = %d, want 120", cfg.Storage.TimeoutSeconds)
	}
}

func TestYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheetvox.yaml")
	content := []byte(`
sheet:
  sheet_name: Narration
  source_column: C
perf:
  workers: 8
storage:
  backend: s3
  s3_bucket: audio-out
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sheet.SheetName != "Narration" || cfg.Sheet.SourceColumn != "C" {
		t.Errorf("sheet overlay not applied: %+v", cfg.Sheet)
	}
	if cfg.Perf.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Perf.Workers)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.S3Bucket != "audio-out" {
		t.Errorf("storage overlay not applied: %+v", cfg.Storage)
	}
	// Untouched values keep their defaults
	if cfg.Sheet.DestColumn != "B" {
		t.Errorf("dest column = %s, want default B", cfg.Sheet.DestColumn)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheetvox.yaml")
	if err := os.WriteFile(path, []byte("perf:\n  workers: 8\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("WORKERS", "3")
	t.Setenv("TTS_CONCURRENCY_LIMIT", "2")
	t.Setenv("ELEVENLABS_API_KEY", "key-from-env")
	t.Setenv("STORAGE_TIMEOUT_SECONDS", "45")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Perf.Workers != 3 {
		t.Errorf("workers = %d, want env override 3", cfg.Perf.Workers)
	}
	if cfg.Perf.TTSConcurrency != 2 {
		t.Errorf("tts concurrency = %d, want 2", cfg.Perf.TTSConcurrency)
	}
	if cfg.TTS.APIKey != "key-from-env" {
		t.Errorf("api key = %q, want env value", cfg.TTS.APIKey)
	}
	if cfg.Storage.TimeoutSeconds != 45 {
		t.Errorf("storage timeout = %d, want 45", cfg.Storage.TimeoutSeconds)
	}
}

func TestMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheetvox.yaml")
	if err := os.WriteFile(path, []byte("perf: [not a map"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load of malformed YAML should fail")
	}
}

func TestValidate(t *testing.T) {
	base := defaults()
	base.TTS.APIKey = "key"
	base.Sheet.SheetID = "sheet-1"

	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	noKey := base
	noKey.TTS.APIKey = ""
	if err := noKey.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("missing api key error = %v, want ErrMissingAPIKey", err)
	}

	noSheet := base
	noSheet.Sheet.SheetID = ""
	if err := noSheet.Validate(); !errors.Is(err, ErrMissingSheetID) {
		t.Errorf("missing sheet error = %v, want ErrMissingSheetID", err)
	}

	badWorkers := base
	badWorkers.Perf.Workers = 0
	if err := badWorkers.Validate(); err == nil {
		t.Error("zero workers should be rejected")
	}
}
