package runlog

import (
	"time"

	"cloud.google.com/go/bigquery"
)

const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// SyncRunRow is one row of receipt_sync_runs.
type SyncRunRow struct {
	RunID    string `bigquery:"run_id"`    // REQUIRED
	BudgetID string `bigquery:"budget_id"` // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Trigger bigquery.NullString `bigquery:"trigger"` // NULLABLE
	DryRun  bigquery.NullBool   `bigquery:"dry_run"` // NULLABLE

	Status       bigquery.NullString `bigquery:"status"`        // NULLABLE
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE

	Receipts         bigquery.NullInt64 `bigquery:"receipts"`          // NULLABLE
	Updated          bigquery.NullInt64 `bigquery:"updated"`           // NULLABLE
	Unmatched        bigquery.NullInt64 `bigquery:"unmatched"`         // NULLABLE
	AlreadyItemized  bigquery.NullInt64 `bigquery:"already_itemized"`  // NULLABLE
	AlreadyAnnotated bigquery.NullInt64 `bigquery:"already_annotated"` // NULLABLE
	Degenerate       bigquery.NullInt64 `bigquery:"degenerate"`        // NULLABLE
}

// Stats are the per-status receipt counts of a finished run.
type Stats struct {
	Receipts         int `json:"receipts"`
	Updated          int `json:"updated"`
	Unmatched        int `json:"unmatched"`
	AlreadyItemized  int `json:"already_itemized"`
	AlreadyAnnotated int `json:"already_annotated"`
	Degenerate       int `json:"degenerate"`
}

// Run is the caller-facing view of a SyncRunRow.
type Run struct {
	RunID        string     `json:"run_id"`
	BudgetID     string     `json:"budget_id"`
	Trigger      string     `json:"trigger,omitempty"`
	DryRun       bool       `json:"dry_run"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Stats        *Stats     `json:"stats,omitempty"`
}

func (row *SyncRunRow) toRun() *Run {
	run := &Run{
		RunID:        row.RunID,
		BudgetID:     row.BudgetID,
		Trigger:      row.Trigger.StringVal,
		DryRun:       row.DryRun.Bool,
		Status:       row.Status.StringVal,
		ErrorMessage: row.ErrorMessage.StringVal,
		StartedAt:    row.StartedTS,
	}
	if row.FinishedTS.Valid {
		finished := row.FinishedTS.Timestamp
		run.FinishedAt = &finished
	}
	if row.Receipts.Valid {
		run.Stats = &Stats{
			Receipts:         int(row.Receipts.Int64),
			Updated:          int(row.Updated.Int64),
			Unmatched:        int(row.Unmatched.Int64),
			AlreadyItemized:  int(row.AlreadyItemized.Int64),
			AlreadyAnnotated: int(row.AlreadyAnnotated.Int64),
			Degenerate:       int(row.Degenerate.Int64),
		}
	}
	return run
}

// truncateError bounds error_message to what the column is meant to hold.
func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	const maxLen = 2000
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
