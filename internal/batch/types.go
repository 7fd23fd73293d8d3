package batch

// RowStatus is the in-memory processing state of one row. Only terminal
// statuses ever reach the checkpoint.
type RowStatus string

const (
	StatusPending    RowStatus = "pending"
	StatusInProgress RowStatus = "in_progress"
	StatusSucceeded  RowStatus = "succeeded"
	StatusFailed     RowStatus = "failed"
)

// Row is one unit of work: a single spreadsheet line's text.
type Row struct {
	Index    int // 1-based sheet position, stable identity
	Text     string
	Status   RowStatus
	Link     string // set only on success
	LastErr  string // set only on failure
	Attempts int    // external call invocations made for this row
}

// Outcome is one row's terminal result, emitted exactly once per row.
type Outcome struct {
	Row Row
	Err error // nil on success; context errors mean the row never finished
}

// Summary is the final tally of a batch run.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
	FailedRows []int // indices for manual inspection or re-run
}

// Total returns the number of rows accounted for.
func (s Summary) Total() int {
	return s.Succeeded + s.Failed + s.Skipped
}
