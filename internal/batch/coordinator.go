package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxlift/sheetvox/internal/checkpoint"
	"github.com/voxlift/sheetvox/internal/metrics"
	"github.com/voxlift/sheetvox/internal/sheets"
)

// Coordinator is the top-level batch driver: it reads the source column,
// filters rows against the checkpoint, runs the rest through the executor,
// and persists each terminal outcome synchronously as it arrives.
type Coordinator struct {
	reader     sheets.Reader
	store      checkpoint.Store
	exec       *Executor
	sourceCol  string
	sheetLabel string
	log        *slog.Logger
}

// NewCoordinator wires the coordinator to its collaborators.
func NewCoordinator(reader sheets.Reader, store checkpoint.Store, exec *Executor, sourceCol, sheetLabel string) *Coordinator {
	return &Coordinator{
		reader:     reader,
		store:      store,
		exec:       exec,
		sourceCol:  sourceCol,
		sheetLabel: sheetLabel,
		log:        slog.With("component", "coordinator"),
	}
}

// Run executes the batch to completion and returns the summary. Row
// failures are recorded, not fatal; only configuration, sheet-read and
// checkpoint errors abort the run.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	startTime := time.Now()

	cells, err := c.reader.ReadColumn(ctx, c.sourceCol)
	if err != nil {
		return Summary{}, fmt.Errorf("read source column %s: %w", c.sourceCol, err)
	}
	c.log.Info("fetched spreadsheet data", "rows", len(cells))

	states, err := c.store.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if len(states) > 0 {
		c.log.Info("resuming from checkpoint", "recorded_rows", len(states))
	}

	var summary Summary
	pending := make([]Row, 0, len(cells))

	for _, cell := range cells {
		if st, ok := states[cell.Index]; ok && st.Status == checkpoint.StatusSucceeded {
			summary.Skipped++
			if m := metrics.Get(); m != nil {
				m.IncRowsSkipped(c.sheetLabel)
			}
			continue
		}

		// Empty rows have nothing to speak; checkpoint them as done so
		// they are not revisited on resume.
		if cell.Text == "" {
			if err := c.saveState(ctx, cell.Index, checkpoint.RowState{Status: checkpoint.StatusSucceeded}); err != nil {
				return summary, err
			}
			summary.Skipped++
			continue
		}

		pending = append(pending, Row{Index: cell.Index, Text: cell.Text, Status: StatusPending})
	}

	c.log.Info("starting batch",
		"pending", len(pending),
		"skipped", summary.Skipped,
	)
	if m := metrics.Get(); m != nil {
		m.QueueDepth.Set(float64(len(pending)))
	}

	done := 0
	for outcome := range c.exec.Run(ctx, pending) {
		// A cancelled row never reached a terminal state; leave it out of
		// the checkpoint so the next run retries it whole.
		if outcome.Err != nil && errors.Is(outcome.Err, context.Canceled) {
			continue
		}

		if err := c.record(ctx, outcome); err != nil {
			return summary, err
		}

		switch outcome.Row.Status {
		case StatusSucceeded:
			summary.Succeeded++
		case StatusFailed:
			summary.Failed++
			summary.FailedRows = append(summary.FailedRows, outcome.Row.Index)
		}

		done++
		if m := metrics.Get(); m != nil {
			m.QueueDepth.Set(float64(len(pending) - done))
		}
		c.log.Info("progress",
			"done", done,
			"pending", len(pending)-done,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
		)
	}

	elapsed := time.Since(startTime)
	c.log.Info("batch complete",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration", elapsed.String(),
	)
	if summary.Failed > 0 {
		c.log.Warn("some rows failed; re-run to retry them", "rows", summary.FailedRows)
	}

	return summary, nil
}

// record persists one terminal outcome before the next row is accounted.
func (c *Coordinator) record(ctx context.Context, outcome Outcome) error {
	state := checkpoint.RowState{
		Attempts: outcome.Row.Attempts,
	}

	switch outcome.Row.Status {
	case StatusSucceeded:
		state.Status = checkpoint.StatusSucceeded
		state.Link = outcome.Row.Link
		if m := metrics.Get(); m != nil {
			m.IncRowsSucceeded(c.sheetLabel)
		}
	case StatusFailed:
		state.Status = checkpoint.StatusFailed
		state.LastError = outcome.Row.LastErr
		if m := metrics.Get(); m != nil {
			m.IncRowsFailed(c.sheetLabel)
		}
	default:
		return fmt.Errorf("row %d finished with non-terminal status %s", outcome.Row.Index, outcome.Row.Status)
	}

	return c.saveState(ctx, outcome.Row.Index, state)
}

// saveState persists a row state; checkpoint write failures are fatal
// because continuing would silently lose progress guarantees.
func (c *Coordinator) saveState(ctx context.Context, index int, state checkpoint.RowState) error {
	if err := c.store.Save(ctx, index, state); err != nil {
		return fmt.Errorf("save checkpoint for row %d: %w", index, err)
	}
	return nil
}
