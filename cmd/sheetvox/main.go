package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/voxlift/sheetvox/internal/batch"
	"github.com/voxlift/sheetvox/internal/checkpoint"
	"github.com/voxlift/sheetvox/internal/config"
	"github.com/voxlift/sheetvox/internal/logging"
	"github.com/voxlift/sheetvox/internal/metrics"
	"github.com/voxlift/sheetvox/internal/retry"
	"github.com/voxlift/sheetvox/internal/sheets"
	"github.com/voxlift/sheetvox/internal/storage"
	"github.com/voxlift/sheetvox/internal/tts"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sheetvox: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.DefaultConfigFile)
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
	log := logging.Component("main")

	// Interactive parameters, skipped when running non-interactively.
	in := bufio.NewReader(os.Stdin)
	if isTerminal(os.Stdin) {
		promptRunParameters(in, &cfg)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := sheets.ValidateColumn(cfg.Sheet.SourceColumn); err != nil {
		return fmt.Errorf("source column: %w", err)
	}
	if err := sheets.ValidateColumn(cfg.Sheet.DestColumn); err != nil {
		return fmt.Errorf("destination column: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Info("received signal, finishing in-flight rows", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Enabled {
		metrics.Init("sheetvox")
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	store, err := checkpoint.NewStore(checkpoint.Config{
		Enabled: cfg.Checkpoint.Enabled,
		Path:    cfg.Checkpoint.Path,
		SheetID: cfg.Sheet.SheetID,
	})
	if err != nil {
		return err
	}

	// A leftover checkpoint means a previous run was interrupted; let the
	// operator choose between resuming and starting over.
	if cfg.Checkpoint.Enabled && checkpoint.Exists(cfg.Checkpoint.Path) && isTerminal(os.Stdin) {
		states, err := store.Load(ctx)
		if err != nil {
			if errors.Is(err, checkpoint.ErrCorrupt) {
				return fmt.Errorf("%w\nfix or remove %s and re-run", err, store.Path())
			}
			return err
		}
		fmt.Printf("Found previous run state: %d rows recorded.\n", len(states))
		if !promptYesNo(in, "Resume? (y/n) [y]: ", true) {
			if err := store.Clear(); err != nil {
				return fmt.Errorf("clear checkpoint: %w", err)
			}
			log.Info("checkpoint cleared, starting fresh")
		}
	}

	sheetClient, err := sheets.NewClient(ctx, sheets.Config{
		BaseURL:         os.Getenv("SHEETS_BASE_URL"),
		SheetID:         cfg.Sheet.SheetID,
		SheetName:       cfg.Sheet.SheetName,
		CredentialsFile: cfg.Sheet.CredentialsFile,
	})
	if err != nil {
		return fmt.Errorf("create sheets client: %w", err)
	}

	synth := tts.NewClient(tts.Config{
		BaseURL: cfg.TTS.BaseURL,
		APIKey:  cfg.TTS.APIKey,
		VoiceID: cfg.TTS.VoiceID,
		ModelID: cfg.TTS.ModelID,
		Timeout: time.Duration(cfg.TTS.TimeoutSeconds) * time.Second,
	})

	audioStore, err := storage.NewAudioStore(storage.Config{
		Backend:    cfg.Storage.Backend,
		LocalDir:   cfg.Storage.LocalDir,
		GCSBucket:  cfg.Storage.GCSBucket,
		S3Bucket:   cfg.Storage.S3Bucket,
		S3Endpoint: cfg.Storage.S3Endpoint,
		S3Region:   cfg.Storage.S3Region,
		Prefix:     cfg.Storage.Prefix,
		LinkTTL:    time.Duration(cfg.Storage.LinkTTLHours) * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create audio storage: %w", err)
	}
	defer audioStore.Close()

	pipeline := batch.NewPipeline(batch.PipelineConfig{
		Synthesizer: synth,
		Store:       audioStore,
		Writer:      sheetClient,
		DestColumn:  cfg.Sheet.DestColumn,
		SheetLabel:  cfg.Sheet.SheetName,
		Policy: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Retry.BackoffMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
			Jitter:      0.2,
		},
		UploadTimeout:     time.Duration(cfg.Storage.TimeoutSeconds) * time.Second,
		TTSConcurrency:    cfg.Perf.TTSConcurrency,
		UploadConcurrency: cfg.Perf.UploadConcurrency,
	})
	exec := batch.NewExecutor(cfg.Perf.Workers, pipeline.Process)
	coord := batch.NewCoordinator(sheetClient, store, exec, cfg.Sheet.SourceColumn, cfg.Sheet.SheetName)

	summary, err := coord.Run(ctx)
	if err != nil {
		if errors.Is(err, checkpoint.ErrCorrupt) {
			return fmt.Errorf("%w\nfix or remove %s and re-run", err, store.Path())
		}
		return err
	}

	printSummary(summary)
	if ctx.Err() != nil {
		log.Info("interrupted; re-run to process the remaining rows")
	}
	return nil
}

// promptRunParameters asks for the per-run sheet parameters, keeping the
// configured value on an empty answer.
func promptRunParameters(in *bufio.Reader, cfg *config.Config) {
	cfg.Sheet.SheetName = promptString(in,
		fmt.Sprintf("Sheet name [%s]: ", cfg.Sheet.SheetName), cfg.Sheet.SheetName)
	cfg.Sheet.SourceColumn = strings.ToUpper(promptString(in,
		fmt.Sprintf("Text column [%s]: ", cfg.Sheet.SourceColumn), cfg.Sheet.SourceColumn))
	cfg.Sheet.DestColumn = strings.ToUpper(promptString(in,
		fmt.Sprintf("Link column [%s]: ", cfg.Sheet.DestColumn), cfg.Sheet.DestColumn))
	cfg.Perf.Workers = promptInt(in,
		fmt.Sprintf("Workers [%d]: ", cfg.Perf.Workers), cfg.Perf.Workers)
}

func promptString(in *bufio.Reader, prompt, def string) string {
	fmt.Print(prompt)
	line, err := in.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func promptInt(in *bufio.Reader, prompt string, def int) int {
	answer := promptString(in, prompt, strconv.Itoa(def))
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 {
		fmt.Printf("invalid number %q, using %d\n", answer, def)
		return def
	}
	return n
}

func promptYesNo(in *bufio.Reader, prompt string, def bool) bool {
	answer := strings.ToLower(promptString(in, prompt, ""))
	switch answer {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}

func printSummary(s batch.Summary) {
	fmt.Printf("\nDone: %d succeeded, %d failed, %d skipped (%d total)\n",
		s.Succeeded, s.Failed, s.Skipped, s.Total())
	if len(s.FailedRows) > 0 {
		fmt.Printf("Failed rows: %v\nRe-run to retry them.\n", s.FailedRows)
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
