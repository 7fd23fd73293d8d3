package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxlift/sheetvox/internal/logging"
	"github.com/voxlift/sheetvox/internal/metrics"
	"github.com/voxlift/sheetvox/internal/retry"
	"github.com/voxlift/sheetvox/internal/sheets"
	"github.com/voxlift/sheetvox/internal/storage"
	"github.com/voxlift/sheetvox/internal/tts"
)

// audioContentType is the MIME type of synthesized payloads.
const audioContentType = "audio/mpeg"

// Pipeline drives one row through synthesize -> upload -> link write.
// Side effects are strictly ordered: the link is only written after a
// confirmed upload, and the caller only records success after a confirmed
// link write.
type Pipeline struct {
	synth  tts.Synthesizer
	store  storage.AudioStore
	writer sheets.Writer

	destColumn    string
	sheetLabel    string // metrics label
	policy        retry.Policy
	uploadTimeout time.Duration

	ttsBudget    *budget
	uploadBudget *budget
}

// PipelineConfig wires a pipeline's collaborators and limits.
type PipelineConfig struct {
	Synthesizer tts.Synthesizer
	Store       storage.AudioStore
	Writer      sheets.Writer
	DestColumn  string
	SheetLabel  string
	Policy      retry.Policy

	// UploadTimeout bounds a single upload attempt. Storage clients carry
	// no overall request deadline of their own, so a stalled transfer must
	// be cut off here to keep the retry policy's bounds meaningful.
	UploadTimeout time.Duration

	TTSConcurrency    int
	UploadConcurrency int
}

// NewPipeline creates the per-row pipeline with its two service budgets.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 2 * time.Minute
	}
	return &Pipeline{
		synth:         cfg.Synthesizer,
		store:         cfg.Store,
		writer:        cfg.Writer,
		destColumn:    cfg.DestColumn,
		sheetLabel:    cfg.SheetLabel,
		policy:        cfg.Policy,
		uploadTimeout: cfg.UploadTimeout,
		ttsBudget:     newBudget(cfg.TTSConcurrency),
		uploadBudget:  newBudget(cfg.UploadConcurrency),
	}
}

// Process runs the full state machine for one row and returns its terminal
// outcome. Failures never propagate to other rows; a cancelled context
// surfaces as a non-terminal outcome the coordinator must not persist.
func (p *Pipeline) Process(ctx context.Context, workerID int, row Row) Outcome {
	correlationID := logging.GenerateCorrelationID()
	log := logging.RowLogger(correlationID, workerID, row.Index)
	ctx = logging.WithCorrelationID(ctx, correlationID)

	row.Status = StatusInProgress

	audio, err := p.synthesize(ctx, &row)
	if err != nil {
		return p.fail(log, row, "synthesize", err)
	}
	log.Debug("synthesized audio", "bytes", len(audio))

	key := fmt.Sprintf("row_%d_%s.mp3", row.Index, uuid.NewString())
	link, err := p.upload(ctx, &row, key, audio)
	if err != nil {
		return p.fail(log, row, "upload", err)
	}
	log.Debug("uploaded audio", "key", key)

	if err := p.writeLink(ctx, &row, link); err != nil {
		return p.fail(log, row, "write link", err)
	}

	row.Status = StatusSucceeded
	row.Link = link
	log.Info("row succeeded", "attempts", row.Attempts)
	return Outcome{Row: row}
}

// synthesize acquires a TTS budget slot for the duration of the call chain.
func (p *Pipeline) synthesize(ctx context.Context, row *Row) ([]byte, error) {
	if err := p.ttsBudget.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.ttsBudget.release()

	if m := metrics.Get(); m != nil {
		m.InFlightSynthesis.Inc()
		defer m.InFlightSynthesis.Dec()
	}

	start := time.Now()
	attempt := 0
	var audio []byte
	err := p.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		row.Attempts++
		if attempt > 1 {
			slog.Debug("retrying synthesis",
				"correlation_id", logging.CorrelationID(ctx),
				"row", row.Index,
				"attempt", attempt,
			)
			if m := metrics.Get(); m != nil {
				m.IncRetryAttempts(p.sheetLabel, "synthesize")
			}
		}
		a, err := p.synth.Synthesize(ctx, row.Text)
		if err != nil {
			return err
		}
		audio = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m := metrics.Get(); m != nil {
		m.ObserveSynthesisDuration(p.sheetLabel, time.Since(start).Seconds())
		m.ObserveAudioBytes(p.sheetLabel, float64(len(audio)))
	}
	return audio, nil
}

// upload acquires an upload budget slot for the duration of the call chain.
func (p *Pipeline) upload(ctx context.Context, row *Row, key string, audio []byte) (string, error) {
	if err := p.uploadBudget.acquire(ctx); err != nil {
		return "", err
	}
	defer p.uploadBudget.release()

	if m := metrics.Get(); m != nil {
		m.InFlightUploads.Inc()
		defer m.InFlightUploads.Dec()
	}

	start := time.Now()
	attempt := 0
	var link string
	err := p.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		row.Attempts++
		if attempt > 1 {
			slog.Debug("retrying upload",
				"correlation_id", logging.CorrelationID(ctx),
				"row", row.Index,
				"attempt", attempt,
			)
			if m := metrics.Get(); m != nil {
				m.IncRetryAttempts(p.sheetLabel, "upload")
			}
		}
		// Storage clients have no request deadline of their own; a hung
		// transfer must surface as a transient failure, not block forever.
		ctx, cancel := context.WithTimeout(ctx, p.uploadTimeout)
		defer cancel()
		l, err := p.store.Upload(ctx, key, audio, audioContentType)
		if err != nil {
			return err
		}
		link = l
		return nil
	})
	if err != nil {
		return "", err
	}

	if m := metrics.Get(); m != nil {
		m.ObserveUploadDuration(p.sheetLabel, time.Since(start).Seconds())
	}
	return link, nil
}

// writeLink writes the shareable link into the row's destination cell.
func (p *Pipeline) writeLink(ctx context.Context, row *Row, link string) error {
	start := time.Now()
	err := p.policy.Do(ctx, func(ctx context.Context) error {
		row.Attempts++
		return p.writer.WriteCell(ctx, p.destColumn, row.Index, link)
	})
	if err != nil {
		return err
	}

	if m := metrics.Get(); m != nil {
		m.ObserveCellWriteDuration(p.sheetLabel, time.Since(start).Seconds())
	}
	return nil
}

// fail builds the failed outcome for a row.
func (p *Pipeline) fail(log *slog.Logger, row Row, phase string, err error) Outcome {
	row.Status = StatusFailed
	row.LastErr = fmt.Sprintf("%s: %v", phase, err)
	log.Warn("row failed", "phase", phase, "error", err, "attempts", row.Attempts)
	return Outcome{Row: row, Err: err}
}
