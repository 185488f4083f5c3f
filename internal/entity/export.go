package entity

import "time"

// ExportCursor is the position of the next record to export.
type ExportCursor struct {
	Offset         int64
	LastExportTime time.Time
}

type ExportOutcome string

const (
	ExportCommitted ExportOutcome = "committed"
	ExportRejected  ExportOutcome = "rejected"
	ExportEmpty     ExportOutcome = "empty"
)

type ExportResult struct {
	Outcome ExportOutcome
	Rows    int
	// Offset is the cursor after the batch.
	Offset int64
	// InvalidIndex is the position of the first incomplete record in a rejected batch, -1 otherwise.
	InvalidIndex int
}

// ImportStats are reported by the stand-alone importer.
type ImportStats struct {
	Total   int
	Success int
	Failed  int
	Skipped int
}
